/**
 * Pipeline assembly shared by the worker and the CLI
 */

package pipeline

import (
	"fmt"
	"strings"

	"github.com/adverant/nexus/prospect-worker/internal/enrichment"
	"github.com/adverant/nexus/prospect-worker/internal/lexicon"
	"github.com/adverant/nexus/prospect-worker/internal/logging"
	"github.com/adverant/nexus/prospect-worker/internal/metrics"
	"github.com/adverant/nexus/prospect-worker/internal/parser"
	"github.com/adverant/nexus/prospect-worker/internal/preprocess"
	"github.com/adverant/nexus/prospect-worker/internal/processor"
	"github.com/adverant/nexus/prospect-worker/internal/recognition"
	"github.com/adverant/nexus/prospect-worker/internal/recognition/tesseract"
	"github.com/adverant/nexus/prospect-worker/internal/scoring"
	"github.com/adverant/nexus/prospect-worker/internal/storage"
)

// Options configures an orchestrator
type Options struct {
	Lexicon                *lexicon.Lexicon
	Recognizer             recognition.Recognizer
	Statuses               storage.StatusStore
	Results                storage.ResultStore
	RecognitionConcurrency int
	MinConfidence          float64
	MaxSliceHeight         int
	SliceOverlap           int
	Metrics                *metrics.Metrics
	Logger                 *logging.Logger
}

// LoadLexicon reads path, or returns the built-in tables when path is empty
func LoadLexicon(path string) (*lexicon.Lexicon, error) {
	lex, err := lexicon.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load lexicon: %w", err)
	}
	return lex, nil
}

// NewRecognizer uses the remote vision service when remoteURL is set, with
// local Tesseract as fallback; otherwise Tesseract alone.
func NewRecognizer(remoteURL string, languages []string) recognition.Recognizer {
	local := tesseract.New(languages)
	if remoteURL == "" {
		return local
	}
	remote := recognition.NewRemoteRecognizer(remoteURL, strings.Join(languages, "+"))
	return recognition.NewFallbackRecognizer(remote, local)
}

// Build wires preprocessing, recognition, parsing, enrichment and scoring
// into an orchestrator
func Build(opts Options) (*processor.Orchestrator, error) {
	if opts.Lexicon == nil {
		return nil, fmt.Errorf("lexicon is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger("Pipeline")
	}

	coordinator, err := recognition.NewCoordinator(recognition.CoordinatorConfig{
		Recognizer: opts.Recognizer,
		Normalizer: preprocess.NewPreprocessor(preprocess.Options{
			MaxSliceHeight: opts.MaxSliceHeight,
			SliceOverlap:   opts.SliceOverlap,
		}),
		Lexicon:     opts.Lexicon,
		Concurrency: opts.RecognitionConcurrency,
		Metrics:     opts.Metrics,
		Logger:      opts.Logger.With("Recognition"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create recognition coordinator: %w", err)
	}

	return processor.NewOrchestrator(processor.OrchestratorConfig{
		Recognition:   coordinator,
		Parser:        parser.NewParser(opts.Lexicon),
		Enricher:      enrichment.NewEngine(opts.Lexicon),
		Scorer:        scoring.NewScorer(opts.Lexicon),
		Statuses:      opts.Statuses,
		Results:       opts.Results,
		MinConfidence: opts.MinConfidence,
		Metrics:       opts.Metrics,
		Logger:        opts.Logger.With("Orchestrator"),
	})
}
