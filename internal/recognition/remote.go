/**
 * Remote Recognizer - HTTP vision OCR service
 *
 * Sends each normalized slice as a base64 PNG to the vision service's
 * extract-text endpoint and maps the reply onto Output. Model selection is the
 * service's concern.
 */

package recognition

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/adverant/nexus/prospect-worker/internal/logging"
	"github.com/adverant/nexus/prospect-worker/internal/model"
)

// RemoteRecognizer handles communication with the vision OCR service
type RemoteRecognizer struct {
	baseURL    string
	language   string
	httpClient *http.Client
	logger     *logging.Logger
}

// VisionOCRRequest represents a request to extract text from an image
type VisionOCRRequest struct {
	Image          string                 `json:"image"`  // Base64 encoded PNG
	Format         string                 `json:"format"` // always "base64"
	PreferAccuracy bool                   `json:"preferAccuracy"`
	Language       string                 `json:"language"`
	Metadata       map[string]interface{} `json:"metadata"`
}

// VisionOCRResponse represents a synchronous response from the vision endpoint
type VisionOCRResponse struct {
	Success bool          `json:"success"`
	Data    VisionOCRData `json:"data"`
	Message string        `json:"message"`
}

// VisionOCRData contains the extracted text and metadata
type VisionOCRData struct {
	Text           string     `json:"text"`
	Lines          []string   `json:"lines,omitempty"`
	Blocks         [][]string `json:"blocks,omitempty"`
	Confidence     float64    `json:"confidence"`
	ModelUsed      string     `json:"modelUsed"`
	ProcessingTime int64      `json:"processingTime"` // milliseconds
}

// NewRemoteRecognizer creates a client for the vision service at baseURL
func NewRemoteRecognizer(baseURL, language string) *RemoteRecognizer {
	return &RemoteRecognizer{
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: language,
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // Vision tasks can take time
		},
		logger: logging.NewLogger("RemoteRecognizer"),
	}
}

// Recognize implements Recognizer
func (c *RemoteRecognizer) Recognize(ctx context.Context, img model.NormalizedImage) (*Output, error) {
	data, err := EncodePNG(img.Image)
	if err != nil {
		return nil, err
	}

	req := &VisionOCRRequest{
		Image:          base64.StdEncoding.EncodeToString(data),
		Format:         "base64",
		PreferAccuracy: false,
		Language:       c.language,
		Metadata: map[string]interface{}{
			"source":     "prospect-worker",
			"imageId":    img.ID,
			"sourceId":   img.SourceID,
			"sliceIndex": img.SliceIndex,
		},
	}

	resp, err := c.ExtractText(ctx, req)
	if err != nil {
		return nil, err
	}

	return &Output{
		Text:       resp.Data.Text,
		Lines:      resp.Data.Lines,
		Blocks:     resp.Data.Blocks,
		Confidence: resp.Data.Confidence,
		Backend:    "remote:" + resp.Data.ModelUsed,
	}, nil
}

// ExtractText posts one extraction request
func (c *RemoteRecognizer) ExtractText(ctx context.Context, req *VisionOCRRequest) (*VisionOCRResponse, error) {
	endpoint := fmt.Sprintf("%s/api/internal/vision/extract-text", c.baseURL)

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Source", "prospect-worker")
	httpReq.Header.Set("X-Request-ID", fmt.Sprintf("ocr-%d", time.Now().UnixNano()))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to vision service failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vision service returned error status %d: %s", resp.StatusCode, string(body))
	}

	var ocrResp VisionOCRResponse
	if err := json.Unmarshal(body, &ocrResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !ocrResp.Success {
		return nil, fmt.Errorf("vision extraction failed: %s", ocrResp.Message)
	}

	c.logger.Debug("Text extraction complete",
		"modelUsed", ocrResp.Data.ModelUsed,
		"confidence", ocrResp.Data.Confidence,
		"processingTime", ocrResp.Data.ProcessingTime,
		"textLength", len(ocrResp.Data.Text))

	return &ocrResp, nil
}

// FallbackRecognizer tries Primary first and Secondary when Primary errors
type FallbackRecognizer struct {
	Primary   Recognizer
	Secondary Recognizer
	logger    *logging.Logger
}

// NewFallbackRecognizer chains two recognizers
func NewFallbackRecognizer(primary, secondary Recognizer) *FallbackRecognizer {
	return &FallbackRecognizer{
		Primary:   primary,
		Secondary: secondary,
		logger:    logging.NewLogger("FallbackRecognizer"),
	}
}

// Recognize implements Recognizer
func (f *FallbackRecognizer) Recognize(ctx context.Context, img model.NormalizedImage) (*Output, error) {
	out, err := f.Primary.Recognize(ctx, img)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	f.logger.Warn("Primary recognizer failed, falling back", "imageId", img.ID, "error", err)
	out, fallbackErr := f.Secondary.Recognize(ctx, img)
	if fallbackErr != nil {
		return nil, fmt.Errorf("all recognizers failed: primary: %v, fallback: %w", err, fallbackErr)
	}
	return out, nil
}

// EncodePNG renders a normalized image for backends that take encoded bytes
func EncodePNG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("image is nil")
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
