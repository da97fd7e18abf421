/**
 * Recognition types - the closed contract between the coordinator and any
 * text-recognition backend (local Tesseract, remote vision service, test fakes)
 */

package recognition

import (
	"context"
	"math"
	"strings"

	"github.com/adverant/nexus/prospect-worker/internal/model"
)

// Recognizer extracts text from one normalized image
type Recognizer interface {
	Recognize(ctx context.Context, img model.NormalizedImage) (*Output, error)
}

// RecognizerFunc adapts a function to Recognizer
type RecognizerFunc func(ctx context.Context, img model.NormalizedImage) (*Output, error)

func (f RecognizerFunc) Recognize(ctx context.Context, img model.NormalizedImage) (*Output, error) {
	return f(ctx, img)
}

// Output is what a backend returns. Lines and Blocks are optional; Validate
// derives them from Text when a backend only reports raw text.
type Output struct {
	Text       string     `json:"text"`
	Lines      []string   `json:"lines,omitempty"`
	Blocks     [][]string `json:"blocks,omitempty"`
	Confidence float64    `json:"confidence"`
	Backend    string     `json:"backend,omitempty"`
}

// Validate normalizes the output in place:
// - confidence is clamped to [0,1] (NaN becomes 0)
// - lines are trimmed and empty lines removed
// - blocks are the authoritative grouping, and Lines always equals the blocks flattened
func (o *Output) Validate() {
	switch {
	case math.IsNaN(o.Confidence) || o.Confidence < 0:
		o.Confidence = 0
	case o.Confidence > 1:
		o.Confidence = 1
	}

	blocks := cleanBlocks(o.Blocks)
	if len(blocks) == 0 {
		if lines := cleanLines(o.Lines); len(lines) > 0 && strings.TrimSpace(o.Text) == "" {
			blocks = [][]string{lines}
		} else {
			blocks = splitIntoBlocks(o.Text)
		}
	}

	o.Blocks = blocks
	o.Lines = flatten(blocks)
	if strings.TrimSpace(o.Text) == "" {
		o.Text = joinBlocks(blocks)
	}
}

func cleanLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func cleanBlocks(blocks [][]string) [][]string {
	out := make([][]string, 0, len(blocks))
	for _, b := range blocks {
		if lines := cleanLines(b); len(lines) > 0 {
			out = append(out, lines)
		}
	}
	return out
}

func flatten(blocks [][]string) []string {
	var out []string
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out
}

func joinBlocks(blocks [][]string) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, strings.Join(b, "\n"))
	}
	return strings.Join(parts, "\n\n")
}
