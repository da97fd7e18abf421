/**
 * Scan Orchestrator
 *
 * Drives one scan through the pipeline:
 * initializing → recognizing_text → parsing_structure → enriching_general →
 * analyzing_language_mix → profiling_personality → detecting_pain_points →
 * scoring → persisting_results → completed
 *
 * Every transition is persisted to the status store. A stage error (or panic)
 * fails the scan with the cause attached; nothing is retried. A status write
 * that fails is logged and counted but never fails the scan.
 */

package processor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	apperrors "github.com/adverant/nexus/prospect-worker/internal/errors"
	"github.com/adverant/nexus/prospect-worker/internal/logging"
	"github.com/adverant/nexus/prospect-worker/internal/metrics"
	"github.com/adverant/nexus/prospect-worker/internal/model"
	"github.com/adverant/nexus/prospect-worker/internal/recognition"
	"github.com/adverant/nexus/prospect-worker/internal/storage"
)

// DefaultMinConfidence drops recognition results below this confidence before parsing
const DefaultMinConfidence = 0.5

// Recognition normalizes and recognizes a batch of screenshots
type Recognition interface {
	Process(ctx context.Context, images []model.RawImage) []model.RecognitionResult
}

// EntityParser extracts entities from the combined document
type EntityParser interface {
	Parse(text string, lines []model.Line, blocks []model.Block) []model.ParsedEntity
}

// Enricher runs the four analyzers, one per stage
type Enricher interface {
	General(ctx context.Context, text string) (model.GeneralSignals, error)
	LanguageMix(ctx context.Context, text string) (model.LanguageMixSignals, error)
	Personality(ctx context.Context, text string, posts int) (model.PersonalitySignals, error)
	PainPoints(ctx context.Context, text string) (model.PainPointSignals, error)
}

// ProspectScorer ranks entities
type ProspectScorer interface {
	Score(entities []model.ParsedEntity, bundle *model.EnrichmentBundle) []model.ScoredProspect
}

// OrchestratorConfig holds orchestrator dependencies
type OrchestratorConfig struct {
	Recognition   Recognition
	Parser        EntityParser
	Enricher      Enricher
	Scorer        ProspectScorer
	Statuses      storage.StatusStore
	Results       storage.ResultStore
	MinConfidence float64
	Metrics       *metrics.Metrics
	Logger        *logging.Logger
	Clock         func() time.Time
}

// ScanOutcome is returned by SubmitScan
type ScanOutcome struct {
	ScanID           string                 `json:"scanId"`
	ProspectsFound   int                    `json:"prospectsFound"`
	Status           string                 `json:"status"`
	ProcessingTimeMs int64                  `json:"processingTimeMs"`
	Prospects        []model.ScoredProspect `json:"prospects"`
	Error            string                 `json:"error,omitempty"`
}

// Caller-facing scan statuses
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// StatusView is the polled status of a scan
type StatusView struct {
	ScanID          string `json:"scanId"`
	Status          string `json:"status"`
	Stage           string `json:"stage"`
	Message         string `json:"message"`
	ProgressPercent int    `json:"progressPercent"`
	EtaSeconds      *int   `json:"etaSeconds,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Orchestrator runs scans. It holds no per-scan state and is safe for concurrent scans.
type Orchestrator struct {
	recognition   Recognition
	parser        EntityParser
	enricher      Enricher
	scorer        ProspectScorer
	statuses      storage.StatusStore
	results       storage.ResultStore
	minConfidence float64
	metrics       *metrics.Metrics
	logger        *logging.Logger
	clock         func() time.Time
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Recognition == nil {
		return nil, fmt.Errorf("recognition is required")
	}
	if cfg.Parser == nil {
		return nil, fmt.Errorf("parser is required")
	}
	if cfg.Enricher == nil {
		return nil, fmt.Errorf("enricher is required")
	}
	if cfg.Scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}
	if cfg.Statuses == nil {
		return nil, fmt.Errorf("status store is required")
	}
	if cfg.Results == nil {
		return nil, fmt.Errorf("result store is required")
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger("Orchestrator")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Orchestrator{
		recognition:   cfg.Recognition,
		parser:        cfg.Parser,
		enricher:      cfg.Enricher,
		scorer:        cfg.Scorer,
		statuses:      cfg.Statuses,
		results:       cfg.Results,
		minConfidence: cfg.MinConfidence,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		clock:         cfg.Clock,
	}, nil
}

// scan carries the intermediate values of one pipeline run
type scan struct {
	id        string
	images    []model.RawImage
	results   []model.RecognitionResult
	combined  recognition.Combined
	entities  []model.ParsedEntity
	bundle    model.EnrichmentBundle
	prospects []model.ScoredProspect
}

type stageFunc func(ctx context.Context, s *scan) (map[string]interface{}, error)

// MarkQueued records a scan as queued before it is handed to a worker
func (o *Orchestrator) MarkQueued(ctx context.Context, scanID string) error {
	if scanID == "" {
		return apperrors.NewInvalidRequestError("scan ID is required")
	}
	state := NewStateMachine(scanID, o.clock).State()
	if err := o.statuses.PutStatus(ctx, scanID, state); err != nil {
		o.metrics.StatusWriteFailed()
		return fmt.Errorf("failed to mark scan %s queued: %w", scanID, err)
	}
	o.metrics.ObserveTransition(state.Stage)
	return nil
}

// SubmitScan runs the whole pipeline for images and blocks until the scan is
// terminal. A failed scan returns its outcome together with the stage error.
// Once started a scan runs to completion or failure; cancelling ctx does not
// stop it.
func (o *Orchestrator) SubmitScan(ctx context.Context, scanID string, images []model.RawImage) (*ScanOutcome, error) {
	if scanID == "" {
		return nil, apperrors.NewInvalidRequestError("scan ID is required")
	}
	if len(images) == 0 {
		return nil, apperrors.NewInvalidRequestError("at least one image is required")
	}
	ctx = context.WithoutCancel(ctx)

	startTime := o.clock()
	log.Printf("[Scan %s] Starting prospect pipeline (%d images)", scanID, len(images))

	sm := NewStateMachine(scanID, o.clock)
	o.persist(ctx, sm.State())

	s := &scan{id: scanID, images: images}
	steps := []struct {
		stage Stage
		run   stageFunc
	}{
		{StageInitializing, o.initialize},
		{StageRecognizingText, o.recognize},
		{StageParsingStructure, o.parse},
		{StageEnrichingGeneral, o.enrichGeneral},
		{StageAnalyzingMix, o.analyzeMix},
		{StageProfilingPersonal, o.profilePersonality},
		{StageDetectingPainPoints, o.detectPainPoints},
		{StageScoring, o.score},
		{StagePersistingResults, o.persistResults},
	}

	// stage outputs accumulate under the name of the stage that produced them
	metadata := map[string]interface{}{}
	for _, step := range steps {
		state, err := sm.Transition(step.stage, metadata)
		if err != nil {
			return o.fail(ctx, sm, s, startTime, err)
		}
		o.persist(ctx, state)
		log.Printf("[Scan %s] %s (%d%%)", scanID, state.Message, state.Progress)

		out, err := o.runStage(ctx, step.stage, step.run, s)
		if err != nil {
			return o.fail(ctx, sm, s, startTime, apperrors.NewStageFailedError(scanID, string(step.stage), err))
		}
		if out != nil {
			metadata[string(step.stage)] = out
		}
	}

	metadata["prospectsFound"] = len(s.prospects)
	state, err := sm.Transition(StageCompleted, metadata)
	if err != nil {
		return o.fail(ctx, sm, s, startTime, err)
	}
	o.persist(ctx, state)

	elapsed := o.clock().Sub(startTime)
	o.metrics.ObserveScan(StatusCompleted, elapsed, len(s.prospects))
	log.Printf("[Scan %s] Pipeline complete: prospects=%d, time=%dms", scanID, len(s.prospects), elapsed.Milliseconds())

	return &ScanOutcome{
		ScanID:           scanID,
		ProspectsFound:   len(s.prospects),
		Status:           StatusCompleted,
		ProcessingTimeMs: elapsed.Milliseconds(),
		Prospects:        s.prospects,
	}, nil
}

// PollStatus reads the latest persisted state of a scan
func (o *Orchestrator) PollStatus(ctx context.Context, scanID string) (*StatusView, error) {
	state, err := o.statuses.GetStatus(ctx, scanID)
	if err != nil {
		return nil, err
	}
	return NewStatusView(*state), nil
}

// NewStatusView maps a pipeline state to its caller-facing form
func NewStatusView(state model.PipelineState) *StatusView {
	view := &StatusView{
		ScanID:          state.ScanID,
		Stage:           state.Stage,
		Message:         state.Message,
		ProgressPercent: state.Progress,
		EtaSeconds:      state.EtaSeconds,
	}

	switch Stage(state.Stage) {
	case StageQueued:
		view.Status = StatusQueued
	case StageCompleted:
		view.Status = StatusCompleted
	case StageFailed:
		view.Status = StatusFailed
	default:
		view.Status = StatusProcessing
	}

	if state.ErrorMessage != nil {
		view.Error = *state.ErrorMessage
	}
	return view
}

// runStage executes one stage, turning a panic into an error
func (o *Orchestrator) runStage(ctx context.Context, stage Stage, run stageFunc, s *scan) (metadata map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Stage panicked", "scanId", s.id, "stage", stage, "panic", r)
			metadata, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return run(ctx, s)
}

func (o *Orchestrator) fail(ctx context.Context, sm *StateMachine, s *scan, startTime time.Time, cause error) (*ScanOutcome, error) {
	from := sm.Current()
	state, err := sm.Fail(cause)
	if err != nil {
		// already terminal
		o.logger.Error("Cannot fail scan", "scanId", s.id, "stage", from, "error", err)
	} else {
		o.persist(ctx, state)
	}

	elapsed := o.clock().Sub(startTime)
	o.metrics.ObserveScan(StatusFailed, elapsed, 0)
	o.logger.Error("Scan failed", "scanId", s.id, "stage", from, "error", cause)

	return &ScanOutcome{
		ScanID:           s.id,
		Status:           StatusFailed,
		ProcessingTimeMs: elapsed.Milliseconds(),
		Prospects:        []model.ScoredProspect{},
		Error:            cause.Error(),
	}, cause
}

// persist writes state; a failed write is a warning, not a scan failure
func (o *Orchestrator) persist(ctx context.Context, state model.PipelineState) {
	o.metrics.ObserveTransition(state.Stage)
	if err := o.statuses.PutStatus(ctx, state.ScanID, state); err != nil {
		o.metrics.StatusWriteFailed()
		o.logger.Warn("Failed to update scan status", "scanId", state.ScanID, "stage", state.Stage, "error", err)
	}
}

func (o *Orchestrator) initialize(ctx context.Context, s *scan) (map[string]interface{}, error) {
	var bytesTotal int
	for _, img := range s.images {
		bytesTotal += len(img.Data)
	}
	return map[string]interface{}{
		"images": len(s.images),
		"bytes":  bytesTotal,
	}, nil
}

func (o *Orchestrator) recognize(ctx context.Context, s *scan) (map[string]interface{}, error) {
	s.results = o.recognition.Process(ctx, s.images)

	failed := 0
	for _, r := range s.results {
		if r.Error != "" {
			failed++
		}
	}
	usable := recognition.Usable(s.results, o.minConfidence)
	s.combined = recognition.Combine(usable)

	log.Printf("[Scan %s] Recognition complete: results=%d, usable=%d, failed=%d",
		s.id, len(s.results), len(usable), failed)

	return map[string]interface{}{
		"recognized": len(s.results),
		"usable":     len(usable),
		"failed":     failed,
		"lines":      len(s.combined.Lines),
	}, nil
}

func (o *Orchestrator) parse(ctx context.Context, s *scan) (map[string]interface{}, error) {
	s.entities = o.parser.Parse(s.combined.Text, s.combined.Lines, s.combined.Blocks)

	counts := map[string]interface{}{"entities": len(s.entities)}
	for _, e := range s.entities {
		key := string(e.Kind)
		n, _ := counts[key].(int)
		counts[key] = n + 1
	}
	return counts, nil
}

func (o *Orchestrator) enrichGeneral(ctx context.Context, s *scan) (map[string]interface{}, error) {
	general, err := o.enricher.General(ctx, s.combined.Text)
	if err != nil {
		return nil, err
	}
	s.bundle.General = general
	return map[string]interface{}{
		"topics":    general.Topics,
		"sentiment": string(general.Sentiment),
	}, nil
}

func (o *Orchestrator) analyzeMix(ctx context.Context, s *scan) (map[string]interface{}, error) {
	mix, err := o.enricher.LanguageMix(ctx, s.combined.Text)
	if err != nil {
		return nil, err
	}
	s.bundle.LanguageMix = mix
	return map[string]interface{}{
		"style":            string(mix.Style),
		"primaryPercent":   mix.PrimaryPercent,
		"secondaryPercent": mix.SecondaryPercent,
	}, nil
}

func (o *Orchestrator) profilePersonality(ctx context.Context, s *scan) (map[string]interface{}, error) {
	posts := 0
	for _, e := range s.entities {
		if e.Kind == model.KindPost {
			posts++
		}
	}

	personality, err := o.enricher.Personality(ctx, s.combined.Text, posts)
	if err != nil {
		return nil, err
	}
	s.bundle.Personality = personality
	return map[string]interface{}{
		"style":      string(personality.Style),
		"engagement": string(personality.Engagement),
	}, nil
}

func (o *Orchestrator) detectPainPoints(ctx context.Context, s *scan) (map[string]interface{}, error) {
	pain, err := o.enricher.PainPoints(ctx, s.combined.Text)
	if err != nil {
		return nil, err
	}
	s.bundle.PainPoints = pain
	return map[string]interface{}{
		"painPoints":       len(pain.PainPoints),
		"opportunityScore": pain.OpportunityScore,
		"readiness":        string(pain.Readiness),
	}, nil
}

func (o *Orchestrator) score(ctx context.Context, s *scan) (map[string]interface{}, error) {
	s.prospects = o.scorer.Score(s.entities, &s.bundle)
	if s.prospects == nil {
		s.prospects = []model.ScoredProspect{}
	}

	meta := map[string]interface{}{"prospects": len(s.prospects)}
	if len(s.prospects) > 0 {
		meta["topScore"] = s.prospects[0].Score
	}
	return meta, nil
}

func (o *Orchestrator) persistResults(ctx context.Context, s *scan) (map[string]interface{}, error) {
	if err := o.results.SaveRecognitionResults(ctx, s.id, s.results); err != nil {
		return nil, apperrors.NewStorageFailedError(s.id, err)
	}
	if err := o.results.SaveEntities(ctx, s.id, s.entities); err != nil {
		return nil, apperrors.NewStorageFailedError(s.id, err)
	}
	if err := o.results.SaveProspects(ctx, s.id, s.prospects); err != nil {
		return nil, apperrors.NewStorageFailedError(s.id, err)
	}
	return map[string]interface{}{
		"recognitionResults": len(s.results),
		"entities":           len(s.entities),
		"prospects":          len(s.prospects),
	}, nil
}

// IsInvalidTransition reports whether err is a rejected state transition
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
