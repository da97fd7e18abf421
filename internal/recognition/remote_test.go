package recognition

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/prospect-worker/internal/model"
)

func TestOutputValidate(t *testing.T) {
	o := &Output{Text: "  Maria Santos \n12 mutual friends\n\n\nJuan Dela Cruz\r\n2 hrs ago ", Confidence: 1.7}
	o.Validate()

	assert.Equal(t, 1.0, o.Confidence)
	assert.Equal(t, [][]string{{"Maria Santos", "12 mutual friends"}, {"Juan Dela Cruz", "2 hrs ago"}}, o.Blocks)
	assert.Equal(t, []string{"Maria Santos", "12 mutual friends", "Juan Dela Cruz", "2 hrs ago"}, o.Lines)

	nan := &Output{Confidence: math.NaN(), Lines: []string{" a ", "", "b"}}
	nan.Validate()
	assert.Equal(t, 0.0, nan.Confidence)
	assert.Equal(t, [][]string{{"a", "b"}}, nan.Blocks)
	assert.Equal(t, "a\nb", nan.Text)

	blocks := &Output{Text: "ignored for grouping", Blocks: [][]string{{"x", " "}, {}, {"y"}}, Lines: []string{"stale"}, Confidence: -1}
	blocks.Validate()
	assert.Equal(t, 0.0, blocks.Confidence)
	assert.Equal(t, []string{"x", "y"}, blocks.Lines, "lines follow blocks")

	empty := &Output{}
	empty.Validate()
	assert.Empty(t, empty.Lines)
	assert.Empty(t, empty.Blocks)
}

func TestRemoteRecognizer(t *testing.T) {
	var got VisionOCRRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/internal/vision/extract-text", r.URL.Path)
		assert.Equal(t, "prospect-worker", r.Header.Get("X-Source"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_ = json.NewEncoder(w).Encode(VisionOCRResponse{
			Success: true,
			Data:    VisionOCRData{Text: "Maria Santos\n12 mutual friends", Confidence: 0.93, ModelUsed: "vision-x"},
		})
	}))
	defer srv.Close()

	rec := NewRemoteRecognizer(srv.URL+"/", "multi")
	out, err := rec.Recognize(context.Background(), model.NormalizedImage{
		ID:       "n1",
		SourceID: "s1",
		Image:    image.NewNRGBA(image.Rect(0, 0, 4, 4)),
	})
	require.NoError(t, err)

	assert.Equal(t, 0.93, out.Confidence)
	assert.Equal(t, "remote:vision-x", out.Backend)
	assert.Equal(t, "multi", got.Language)
	assert.Equal(t, "base64", got.Format)
	decoded, err := base64.StdEncoding.DecodeString(got.Image)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(decoded[:4]))
}

func TestRemoteRecognizerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "upstream down")
	}))
	defer srv.Close()

	rec := NewRemoteRecognizer(srv.URL, "en")
	_, err := rec.Recognize(context.Background(), model.NormalizedImage{Image: image.NewNRGBA(image.Rect(0, 0, 1, 1))})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	_, err = rec.Recognize(context.Background(), model.NormalizedImage{})
	assert.Error(t, err, "nil image cannot be encoded")

	unsuccessful := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(VisionOCRResponse{Success: false, Message: "no model"})
	}))
	defer unsuccessful.Close()

	_, err = NewRemoteRecognizer(unsuccessful.URL, "en").Recognize(context.Background(),
		model.NormalizedImage{Image: image.NewNRGBA(image.Rect(0, 0, 1, 1))})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model")
}

func TestFallbackRecognizer(t *testing.T) {
	failing := RecognizerFunc(func(ctx context.Context, img model.NormalizedImage) (*Output, error) {
		return nil, fmt.Errorf("primary down")
	})
	working := RecognizerFunc(func(ctx context.Context, img model.NormalizedImage) (*Output, error) {
		return &Output{Text: "fallback", Confidence: 0.6}, nil
	})

	out, err := NewFallbackRecognizer(failing, working).Recognize(context.Background(), model.NormalizedImage{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", out.Text)

	out, err = NewFallbackRecognizer(working, failing).Recognize(context.Background(), model.NormalizedImage{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", out.Text)

	_, err = NewFallbackRecognizer(failing, failing).Recognize(context.Background(), model.NormalizedImage{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all recognizers failed")
}
