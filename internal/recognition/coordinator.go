/**
 * Batch Recognition Coordinator
 *
 * Runs a Recognizer over many normalized images with a hard concurrency ceiling:
 * images are processed in chunks of Concurrency, and the coordinator waits for
 * the whole chunk before dispatching the next one.
 *
 * Per-image failures (preprocessing or recognition) never abort the batch; they
 * come back as zero-confidence results carrying the error message.
 */

package recognition

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/adverant/nexus/prospect-worker/internal/errors"
	"github.com/adverant/nexus/prospect-worker/internal/lexicon"
	"github.com/adverant/nexus/prospect-worker/internal/logging"
	"github.com/adverant/nexus/prospect-worker/internal/metrics"
	"github.com/adverant/nexus/prospect-worker/internal/model"
)

const DefaultConcurrency = 3

// Normalizer produces recognition-ready images from a raw screenshot
type Normalizer interface {
	Normalize(raw model.RawImage) ([]model.NormalizedImage, error)
}

// Coordinator fans recognition out over bounded chunks
type Coordinator struct {
	recognizer  Recognizer
	normalizer  Normalizer
	detector    *LanguageDetector
	concurrency int
	metrics     *metrics.Metrics
	logger      *logging.Logger
}

// CoordinatorConfig holds coordinator dependencies
type CoordinatorConfig struct {
	Recognizer  Recognizer
	Normalizer  Normalizer
	Lexicon     *lexicon.Lexicon
	Concurrency int
	Metrics     *metrics.Metrics
	Logger      *logging.Logger
}

// NewCoordinator creates a coordinator. Concurrency below 1 uses the default of 3.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Recognizer == nil {
		return nil, fmt.Errorf("recognizer is required")
	}
	if cfg.Normalizer == nil {
		return nil, fmt.Errorf("normalizer is required")
	}
	if cfg.Lexicon == nil {
		return nil, fmt.Errorf("lexicon is required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger("Recognition")
	}

	return &Coordinator{
		recognizer:  cfg.Recognizer,
		normalizer:  cfg.Normalizer,
		detector:    NewLanguageDetector(cfg.Lexicon),
		concurrency: cfg.Concurrency,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}, nil
}

// Process normalizes every raw image and recognizes the resulting slices.
// Results are grouped by input image in input order, slices in slice order.
// An image that fails preprocessing yields one zero-confidence result.
func (c *Coordinator) Process(ctx context.Context, images []model.RawImage) []model.RecognitionResult {
	type slot struct {
		failed *model.RecognitionResult
		first  int
		count  int
	}

	slots := make([]slot, len(images))
	var normalized []model.NormalizedImage

	for i, raw := range images {
		slices, err := c.normalizer.Normalize(raw)
		if err != nil {
			c.logger.Warn("Preprocessing failed, image skipped", "imageId", raw.ID, "filename", raw.Filename, "error", err)
			slots[i].failed = &model.RecognitionResult{
				ImageID:     raw.ID,
				SourceID:    raw.ID,
				LanguageMix: model.LanguageOther,
				Error:       err.Error(),
			}
			continue
		}
		slots[i].first = len(normalized)
		slots[i].count = len(slices)
		normalized = append(normalized, slices...)
	}

	recognized := c.RunBatch(ctx, normalized)

	out := make([]model.RecognitionResult, 0, len(recognized)+len(images))
	for _, s := range slots {
		if s.failed != nil {
			out = append(out, *s.failed)
			continue
		}
		out = append(out, recognized[s.first:s.first+s.count]...)
	}
	return out
}

// RunBatch recognizes images in chunks of at most Concurrency simultaneous calls.
// The output has one result per input, in input order.
func (c *Coordinator) RunBatch(ctx context.Context, images []model.NormalizedImage) []model.RecognitionResult {
	results := make([]model.RecognitionResult, len(images))

	for start := 0; start < len(images); start += c.concurrency {
		end := start + c.concurrency
		if end > len(images) {
			end = len(images)
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = c.recognizeOne(ctx, images[i])
				return nil
			})
		}
		// recognizeOne absorbs its own errors
		_ = g.Wait()

		c.logger.Debug("Recognition chunk complete", "from", start, "to", end, "total", len(images))
	}

	return results
}

func (c *Coordinator) recognizeOne(ctx context.Context, img model.NormalizedImage) model.RecognitionResult {
	startTime := time.Now()
	result := model.RecognitionResult{
		ImageID:     img.ID,
		SourceID:    img.SourceID,
		SliceIndex:  img.SliceIndex,
		LanguageMix: model.LanguageOther,
	}

	out, err := c.recognize(ctx, img)
	result.Duration = time.Since(startTime)
	if err != nil {
		recErr := apperrors.NewRecognitionFailedError(img.ID, err)
		c.logger.Warn("Recognition failed, image isolated", "imageId", img.ID, "sourceId", img.SourceID, "error", err)
		c.metrics.ObserveRecognition("error", result.Duration)
		result.Error = recErr.Error()
		return result
	}

	out.Validate()
	result.Text = out.Text
	result.Lines = out.Lines
	result.Blocks = out.Blocks
	result.Confidence = out.Confidence
	result.LanguageMix = c.detector.Detect(out.Text)
	c.metrics.ObserveRecognition("ok", result.Duration)
	return result
}

// recognize shields the batch from a panicking backend
func (c *Coordinator) recognize(ctx context.Context, img model.NormalizedImage) (out *Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("recognizer panic: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err = c.recognizer.Recognize(ctx, img)
	if err == nil && out == nil {
		err = fmt.Errorf("recognizer returned no output")
	}
	return out, err
}

// Usable keeps results without errors whose confidence reaches floor
func Usable(results []model.RecognitionResult, floor float64) []model.RecognitionResult {
	out := make([]model.RecognitionResult, 0, len(results))
	for _, r := range results {
		if r.Error == "" && r.Confidence >= floor {
			out = append(out, r)
		}
	}
	return out
}

// Combined is the document handed to the parser
type Combined struct {
	Text   string
	Lines  []model.Line
	Blocks []model.Block
}

// Combine concatenates results per source in slice order. Sources keep their
// first-appearance order. When a slice starts with the line the previous slice
// of the same source ended on (text read twice across the overlap), that line
// is dropped.
func Combine(results []model.RecognitionResult) Combined {
	var order []string
	bySource := make(map[string][]model.RecognitionResult)
	for _, r := range results {
		if _, ok := bySource[r.SourceID]; !ok {
			order = append(order, r.SourceID)
		}
		bySource[r.SourceID] = append(bySource[r.SourceID], r)
	}

	var combined Combined
	var textBlocks []string

	for _, sourceID := range order {
		group := bySource[sourceID]
		sort.SliceStable(group, func(i, j int) bool { return group[i].SliceIndex < group[j].SliceIndex })

		index := 0
		previousLast := ""
		for _, r := range group {
			blocks := r.Blocks
			if len(blocks) == 0 && len(r.Lines) > 0 {
				blocks = [][]string{r.Lines}
			}

			for bi, b := range blocks {
				block := model.Block{}
				for li, text := range b {
					if bi == 0 && li == 0 && previousLast != "" && sameLine(text, previousLast) {
						continue
					}
					line := model.Line{Text: text, SourceID: sourceID, Index: index, Confidence: r.Confidence}
					index++
					block.Lines = append(block.Lines, line)
					combined.Lines = append(combined.Lines, line)
				}
				if len(block.Lines) == 0 {
					continue
				}
				combined.Blocks = append(combined.Blocks, block)
				textBlocks = append(textBlocks, blockText(block))
			}

			if n := len(r.Lines); n > 0 {
				previousLast = r.Lines[n-1]
			}
		}
	}

	combined.Text = strings.Join(textBlocks, "\n\n")
	return combined
}

func sameLine(a, b string) bool {
	return strings.EqualFold(strings.Join(strings.Fields(a), " "), strings.Join(strings.Fields(b), " "))
}

func blockText(b model.Block) string {
	parts := make([]string, len(b.Lines))
	for i, l := range b.Lines {
		parts[i] = l.Text
	}
	return strings.Join(parts, "\n")
}
