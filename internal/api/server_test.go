package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/adverant/nexus/prospect-worker/internal/errors"
	"github.com/adverant/nexus/prospect-worker/internal/logging"
	"github.com/adverant/nexus/prospect-worker/internal/metrics"
	"github.com/adverant/nexus/prospect-worker/internal/model"
	"github.com/adverant/nexus/prospect-worker/internal/processor"
	"github.com/adverant/nexus/prospect-worker/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeScans struct {
	queued    []string
	submitted map[string][]model.RawImage
	failWith  error
	statuses  map[string]*processor.StatusView
}

func newFakeScans() *fakeScans {
	return &fakeScans{submitted: map[string][]model.RawImage{}, statuses: map[string]*processor.StatusView{}}
}

func (f *fakeScans) MarkQueued(ctx context.Context, scanID string) error {
	f.queued = append(f.queued, scanID)
	return nil
}

func (f *fakeScans) SubmitScan(ctx context.Context, scanID string, images []model.RawImage) (*processor.ScanOutcome, error) {
	f.submitted[scanID] = images
	if f.failWith != nil {
		return &processor.ScanOutcome{ScanID: scanID, Status: processor.StatusFailed, Error: f.failWith.Error()}, f.failWith
	}
	return &processor.ScanOutcome{ScanID: scanID, Status: processor.StatusCompleted, ProspectsFound: len(images)}, nil
}

func (f *fakeScans) PollStatus(ctx context.Context, scanID string) (*processor.StatusView, error) {
	view, ok := f.statuses[scanID]
	if !ok {
		return nil, fmt.Errorf("scan %s: %w", scanID, storage.ErrNotFound)
	}
	return view, nil
}

type fakeQueue struct {
	enqueued map[string]int
	err      error
}

func (q *fakeQueue) Enqueue(ctx context.Context, scanID string, images []model.RawImage) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued[scanID] = len(images)
	return nil
}

func newTestRouter(t *testing.T, scans *fakeScans, q *fakeQueue) *gin.Engine {
	t.Helper()
	cfg := Config{
		Scans:     scans,
		Metrics:   metrics.New(),
		MaxImages: 3,
		Logger:    logging.NewLoggerWithOutput("API", io.Discard),
	}
	if q != nil {
		cfg.Queue = q
	}
	r, err := NewRouter(cfg)
	require.NoError(t, err)
	return r
}

func do(r http.Handler, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) (APIResponse, map[string]interface{}) {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data, _ := resp.Data.(map[string]interface{})
	return resp, data
}

const twoImages = `{"scanId":"scan-1","images":[{"id":"a","data":"aGVsbG8="},{"filename":"b.png","data":{"type":"Buffer","data":[1,2]}}]}`

func TestSubmitScanQueues(t *testing.T) {
	scans := newFakeScans()
	q := &fakeQueue{enqueued: map[string]int{}}
	r := newTestRouter(t, scans, q)

	rec := do(r, http.MethodPost, "/api/scans", bytes.NewBufferString(twoImages), "application/json")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	resp, data := decode(t, rec)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, "scan-1", data["scanId"])
	assert.Equal(t, "queued", data["status"])
	assert.Equal(t, "/api/scans/scan-1/status", data["statusUrl"])

	assert.Equal(t, []string{"scan-1"}, scans.queued)
	assert.Equal(t, 2, q.enqueued["scan-1"])
}

func TestSubmitScanWaitRunsInline(t *testing.T) {
	scans := newFakeScans()
	r := newTestRouter(t, scans, nil)

	rec := do(r, http.MethodPost, "/api/scans?wait=true", bytes.NewBufferString(twoImages), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, data := decode(t, rec)
	assert.Equal(t, "completed", data["status"])
	assert.Equal(t, float64(2), data["prospectsFound"])

	images := scans.submitted["scan-1"]
	require.Len(t, images, 2)
	assert.Equal(t, []byte("hello"), images[0].Data)
	assert.Equal(t, "scan-1-1", images[1].ID)
	assert.Equal(t, []byte{1, 2}, images[1].Data)
}

func TestSubmitScanWaitReportsFailure(t *testing.T) {
	scans := newFakeScans()
	scans.failWith = apperrors.NewStageFailedError("scan-1", "scoring", errors.New("boom"))
	r := newTestRouter(t, scans, nil)

	rec := do(r, http.MethodPost, "/api/scans?wait=1", bytes.NewBufferString(twoImages), "application/json")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	resp, data := decode(t, rec)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "SCAN_FAILED", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "boom")
	assert.Equal(t, "failed", data["status"])
}

func TestSubmitScanMultipart(t *testing.T) {
	scans := newFakeScans()
	r := newTestRouter(t, scans, nil)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("scanId", "scan-mp"))
	part, err := w.CreateFormFile("images", "feed.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	rec := do(r, http.MethodPost, "/api/scans?wait=true", &body, w.FormDataContentType())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	images := scans.submitted["scan-mp"]
	require.Len(t, images, 1)
	assert.Equal(t, "feed.png", images[0].Filename)
	assert.Equal(t, []byte("png-bytes"), images[0].Data)
}

func TestSubmitScanRejectsBadRequests(t *testing.T) {
	r := newTestRouter(t, newFakeScans(), &fakeQueue{enqueued: map[string]int{}})

	cases := map[string]string{
		"malformed": `{"images":`,
		"no images": `{"scanId":"x","images":[]}`,
		"too many":  `{"images":[{"data":"AA=="},{"data":"AA=="},{"data":"AA=="},{"data":"AA=="}]}`,
		"bad data":  `{"images":[{"data":12}]}`,
	}
	for name, body := range cases {
		rec := do(r, http.MethodPost, "/api/scans", bytes.NewBufferString(body), "application/json")
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		resp, _ := decode(t, rec)
		require.NotNil(t, resp.Error, name)
		assert.Equal(t, "INVALID_REQUEST", resp.Error.Code, name)
	}
}

func TestSubmitScanWithoutQueue(t *testing.T) {
	r := newTestRouter(t, newFakeScans(), nil)

	rec := do(r, http.MethodPost, "/api/scans", bytes.NewBufferString(twoImages), "application/json")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSubmitScanEnqueueFailure(t *testing.T) {
	r := newTestRouter(t, newFakeScans(), &fakeQueue{err: errors.New("redis down")})

	rec := do(r, http.MethodPost, "/api/scans", bytes.NewBufferString(twoImages), "application/json")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp, _ := decode(t, rec)
	assert.Equal(t, "QUEUE_UNAVAILABLE", resp.Error.Code)
}

func TestPollStatus(t *testing.T) {
	scans := newFakeScans()
	eta := 12
	scans.statuses["scan-2"] = &processor.StatusView{
		ScanID:          "scan-2",
		Status:          processor.StatusProcessing,
		Stage:           "scoring",
		Message:         "Scoring prospects",
		ProgressPercent: 85,
		EtaSeconds:      &eta,
	}
	r := newTestRouter(t, scans, nil)

	rec := do(r, http.MethodGet, "/api/scans/scan-2/status", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, data := decode(t, rec)
	assert.Equal(t, "processing", data["status"])
	assert.Equal(t, float64(85), data["progressPercent"])
	assert.Equal(t, float64(12), data["etaSeconds"])

	rec = do(r, http.MethodGet, "/api/scans/missing/status", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp, _ := decode(t, rec)
	assert.Equal(t, "SCAN_NOT_FOUND", resp.Error.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	scans := newFakeScans()
	r, err := NewRouter(Config{
		Scans:   scans,
		Metrics: metrics.New(),
		Checks: map[string]HealthCheck{
			"redis":    func(ctx context.Context) error { return nil },
			"postgres": func(ctx context.Context) error { return errors.New("connection refused") },
		},
		Logger: logging.NewLoggerWithOutput("API", io.Discard),
	})
	require.NoError(t, err)

	rec := do(r, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var health struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "ok", health.Checks["redis"])
	assert.Equal(t, "connection refused", health.Checks["postgres"])

	rec = do(r, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRequestIDIsEchoed(t *testing.T) {
	r := newTestRouter(t, newFakeScans(), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

type fakeSimilar struct {
	gotText  string
	gotLimit int
	err      error
}

func (f *fakeSimilar) SearchSimilar(ctx context.Context, text string, limit int) ([]*storage.SimilarProspect, error) {
	f.gotText, f.gotLimit = text, limit
	if f.err != nil {
		return nil, f.err
	}
	return []*storage.SimilarProspect{{ProspectID: "p-1", ScanID: "scan-1", Name: "Maria Santos", Score: 70, Similarity: 0.9}}, nil
}

func TestSimilarProspects(t *testing.T) {
	similar := &fakeSimilar{}
	r, err := NewRouter(Config{
		Scans:   newFakeScans(),
		Similar: similar,
		Logger:  logging.NewLoggerWithOutput("API", io.Discard),
	})
	require.NoError(t, err)

	rec := do(r, http.MethodGet, "/api/prospects/similar?text=budget+for+crm&limit=5", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, data := decode(t, rec)
	assert.Equal(t, float64(1), data["count"])
	assert.Equal(t, "budget for crm", similar.gotText)
	assert.Equal(t, 5, similar.gotLimit)

	rec = do(r, http.MethodGet, "/api/prospects/similar", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, http.MethodGet, "/api/prospects/similar?text=x&limit=0", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	similar.err = errors.New("qdrant down")
	rec = do(r, http.MethodGet, "/api/prospects/similar?text=x", nil, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSimilarProspectsWithoutIndex(t *testing.T) {
	r := newTestRouter(t, newFakeScans(), nil)

	rec := do(r, http.MethodGet, "/api/prospects/similar?text=x", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp, _ := decode(t, rec)
	assert.Equal(t, "INDEX_UNAVAILABLE", resp.Error.Code)
}

func TestStats(t *testing.T) {
	r, err := NewRouter(Config{
		Scans: newFakeScans(),
		Stats: map[string]StatsSource{
			"queue": func(ctx context.Context) (map[string]interface{}, error) {
				return map[string]interface{}{"concurrency": 4}, nil
			},
			"storage": func(ctx context.Context) (map[string]interface{}, error) {
				return nil, errors.New("qdrant down")
			},
		},
		Logger: logging.NewLoggerWithOutput("API", io.Discard),
	})
	require.NoError(t, err)

	rec := do(r, http.MethodGet, "/api/stats", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, data := decode(t, rec)
	queue, _ := data["queue"].(map[string]interface{})
	assert.Equal(t, float64(4), queue["concurrency"])
	storageSection, _ := data["storage"].(map[string]interface{})
	assert.Equal(t, "qdrant down", storageSection["error"])
}
