/**
 * Tesseract Recognizer - local, offline OCR
 *
 * Default backend when no remote vision service is configured, and the
 * fallback when one is. Lives in its own package because gosseract needs cgo
 * and libtesseract.
 */

package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/adverant/nexus/prospect-worker/internal/model"
	"github.com/adverant/nexus/prospect-worker/internal/recognition"
)

// Recognizer handles OCR using Tesseract
type Recognizer struct {
	languages []string
}

// New creates a Tesseract recognizer for the given language codes (e.g. "eng", "fil")
func New(languages []string) *Recognizer {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Recognizer{languages: languages}
}

// Recognize implements recognition.Recognizer
func (t *Recognizer) Recognize(ctx context.Context, img model.NormalizedImage) (*recognition.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := recognition.EncodePNG(img.Image)
	if err != nil {
		return nil, err
	}

	// gosseract clients are not safe for concurrent use; one per call
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return nil, fmt.Errorf("failed to set languages %v: %w", t.languages, err)
	}

	if err := client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	confidence := estimateConfidence(text)
	if boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD); err == nil && len(boxes) > 0 {
		confidence = meanWordConfidence(boxes)
	}

	return &recognition.Output{
		Text:       text,
		Confidence: confidence,
		Backend:    "tesseract",
	}, nil
}

// meanWordConfidence averages Tesseract's 0-100 word confidences into [0,1]
func meanWordConfidence(boxes []gosseract.BoundingBox) float64 {
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes)) / 100
}

// estimateConfidence scores text quality when word boxes are unavailable
func estimateConfidence(text string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}

	confidence := 0.5

	words := strings.Fields(trimmed)
	if len(words) > 20 {
		confidence += 0.1
	}

	alphaCount := 0
	total := 0
	for _, r := range trimmed {
		total++
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			alphaCount++
		}
	}
	alphaRatio := float64(alphaCount) / float64(total)
	if alphaRatio > 0.5 && alphaRatio < 0.95 {
		confidence += 0.1
	}

	// Cap at reasonable maximum for Tesseract
	if confidence > 0.85 {
		confidence = 0.85
	}

	return confidence
}
