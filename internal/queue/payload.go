package queue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/prospect-worker/internal/model"
)

// TaskTypeScan is the asynq task type of a prospect scan
const TaskTypeScan = "prospect:scan"

// ScanPayload is the job data of one scan
type ScanPayload struct {
	ScanID   string                 `json:"scanId"`
	Images   []ImagePayload         `json:"images"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ImagePayload carries one screenshot. Data marshals as base64.
type ImagePayload struct {
	ID       string `json:"id"`
	Filename string `json:"filename,omitempty"`
	Data     []byte `json:"data"`
}

// UnmarshalJSON accepts data as a base64 string or as a Node.js Buffer
// object ({"type":"Buffer","data":[...]}) sent by JavaScript producers.
func (p *ImagePayload) UnmarshalJSON(data []byte) error {
	type Alias ImagePayload
	aux := &struct {
		Data interface{} `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal image payload: %w", err)
	}

	switch v := aux.Data.(type) {
	case nil:
		p.Data = nil

	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 image data: %w", err)
		}
		p.Data = decoded

	case map[string]interface{}:
		if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		p.Data = make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok || byteVal < 0 || byteVal > 255 {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			p.Data[i] = byte(byteVal)
		}

	default:
		return fmt.Errorf("image data must be either base64 string or Buffer object, got %T", v)
	}

	return nil
}

// NewScanPayload builds a payload from raw images
func NewScanPayload(scanID string, images []model.RawImage) ScanPayload {
	payload := ScanPayload{ScanID: scanID, Images: make([]ImagePayload, len(images))}
	for i, img := range images {
		payload.Images[i] = ImagePayload{ID: img.ID, Filename: img.Filename, Data: img.Data}
	}
	return payload
}

// RawImages converts the payload back into pipeline input
func (p ScanPayload) RawImages() []model.RawImage {
	out := make([]model.RawImage, len(p.Images))
	for i, img := range p.Images {
		out[i] = model.RawImage{ID: img.ID, Filename: img.Filename, Data: img.Data}
	}
	return out
}

// NewScanTask wraps a payload in an asynq task
func NewScanTask(payload ScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scan payload: %w", err)
	}
	return asynq.NewTask(TaskTypeScan, data), nil
}
