package processor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/prospect-worker/internal/enrichment"
	apperrors "github.com/adverant/nexus/prospect-worker/internal/errors"
	"github.com/adverant/nexus/prospect-worker/internal/lexicon"
	"github.com/adverant/nexus/prospect-worker/internal/logging"
	"github.com/adverant/nexus/prospect-worker/internal/metrics"
	"github.com/adverant/nexus/prospect-worker/internal/model"
	"github.com/adverant/nexus/prospect-worker/internal/parser"
	"github.com/adverant/nexus/prospect-worker/internal/preprocess"
	"github.com/adverant/nexus/prospect-worker/internal/recognition"
	"github.com/adverant/nexus/prospect-worker/internal/scoring"
	"github.com/adverant/nexus/prospect-worker/internal/storage"
)

// screenshots maps each raw image id to the text its single slice reads as
var screenshots = map[string]string{
	"friends-1": "Maria Santos\n12 mutual friends",
	"friends-2": "Jose Rizal\n3 mutual friends",
	"feed-1":    "Juan Dela Cruz\n2 hrs ago\nLooking for a new CRM tool for our team\n5 comments",

	"friends-maria": "Maria Santos\n80 mutual friends",
	"feed-maria":    "Maria Santos\n3 hrs ago\nOpening our second bakery branch next month\n8 comments",
}

// oneSliceNormalizer yields one slice per image
type oneSliceNormalizer struct{}

func (oneSliceNormalizer) Normalize(raw model.RawImage) ([]model.NormalizedImage, error) {
	return []model.NormalizedImage{{
		ID:       raw.ID + "-0",
		SourceID: raw.ID,
		Image:    image.NewNRGBA(image.Rect(0, 0, 4, 4)),
		Width:    4,
		Height:   4,
	}}, nil
}

func screenshotRecognizer() recognition.Recognizer {
	return recognition.RecognizerFunc(func(ctx context.Context, img model.NormalizedImage) (*recognition.Output, error) {
		text, ok := screenshots[img.SourceID]
		if !ok {
			return nil, fmt.Errorf("no text for %s", img.SourceID)
		}
		return &recognition.Output{Text: text, Confidence: 0.9}, nil
	})
}

// recordingStatuses keeps every state written
type recordingStatuses struct {
	*storage.MemoryStore
	mu     sync.Mutex
	states map[string][]model.PipelineState
}

func newRecordingStatuses() *recordingStatuses {
	return &recordingStatuses{MemoryStore: storage.NewMemoryStore(), states: map[string][]model.PipelineState{}}
}

func (r *recordingStatuses) PutStatus(ctx context.Context, scanID string, state model.PipelineState) error {
	r.mu.Lock()
	r.states[scanID] = append(r.states[scanID], state)
	r.mu.Unlock()
	return r.MemoryStore.PutStatus(ctx, scanID, state)
}

func (r *recordingStatuses) history(scanID string) []model.PipelineState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.PipelineState(nil), r.states[scanID]...)
}

type brokenStatuses struct{}

func (brokenStatuses) PutStatus(ctx context.Context, scanID string, state model.PipelineState) error {
	return errors.New("redis unavailable")
}

func (brokenStatuses) GetStatus(ctx context.Context, scanID string) (*model.PipelineState, error) {
	return nil, errors.New("redis unavailable")
}

// failingEnricher breaks the general enrichment stage
type failingEnricher struct {
	*enrichment.Engine
}

func (failingEnricher) General(ctx context.Context, text string) (model.GeneralSignals, error) {
	return model.GeneralSignals{}, errors.New("topic model exploded")
}

type panickingScorer struct{}

func (panickingScorer) Score(entities []model.ParsedEntity, bundle *model.EnrichmentBundle) []model.ScoredProspect {
	panic("score table corrupted")
}

type harness struct {
	orchestrator *Orchestrator
	statuses     *recordingStatuses
	results      *storage.MemoryStore
}

func newHarness(t *testing.T, mutate func(*OrchestratorConfig)) *harness {
	t.Helper()
	lex := lexicon.MustDefault()
	quiet := logging.NewLoggerWithOutput("Test", io.Discard)

	coordinator, err := recognition.NewCoordinator(recognition.CoordinatorConfig{
		Recognizer:  screenshotRecognizer(),
		Normalizer:  oneSliceNormalizer{},
		Lexicon:     lex,
		Concurrency: 2,
		Logger:      quiet,
	})
	require.NoError(t, err)

	h := &harness{statuses: newRecordingStatuses(), results: storage.NewMemoryStore()}
	cfg := OrchestratorConfig{
		Recognition: coordinator,
		Parser:      parser.NewParser(lex),
		Enricher:    enrichment.NewEngine(lex),
		Scorer:      scoring.NewScorer(lex),
		Statuses:    h.statuses,
		Results:     h.results,
		Logger:      quiet,
		Clock:       newTickingClock(50 * time.Millisecond).Now,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	h.orchestrator, err = NewOrchestrator(cfg)
	require.NoError(t, err)
	return h
}

func rawImages(ids ...string) []model.RawImage {
	out := make([]model.RawImage, len(ids))
	for i, id := range ids {
		out[i] = model.RawImage{ID: id, Filename: id + ".png", Data: []byte("png:" + id)}
	}
	return out
}

func TestSubmitScanEndToEnd(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	outcome, err := h.orchestrator.SubmitScan(ctx, "scan-e2e", rawImages("friends-1", "friends-2", "feed-1"))
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, outcome.Status)
	assert.Equal(t, 3, outcome.ProspectsFound)
	assert.Positive(t, outcome.ProcessingTimeMs)
	assert.Empty(t, outcome.Error)

	assert.Len(t, h.results.RecognitionResults("scan-e2e"), 3)
	require.Len(t, h.results.Entities("scan-e2e"), 3)
	require.Len(t, h.results.Prospects("scan-e2e"), 3)

	kinds := map[model.EntityKind]int{}
	for _, e := range h.results.Entities("scan-e2e") {
		kinds[e.Kind]++
	}
	assert.Equal(t, map[model.EntityKind]int{model.KindFriendRow: 2, model.KindPost: 1}, kinds)

	names := make([]string, 0, 3)
	for _, p := range outcome.Prospects {
		names = append(names, p.Name)
		assert.GreaterOrEqual(t, p.Score, 0)
		assert.LessOrEqual(t, p.Score, 100)
	}
	assert.ElementsMatch(t, []string{"Maria Santos", "Jose Rizal", "Juan Dela Cruz"}, names)

	history := h.statuses.history("scan-e2e")
	require.Len(t, history, len(Pipeline))
	last := -1
	for i, state := range history {
		assert.Equal(t, string(Pipeline[i]), state.Stage)
		assert.GreaterOrEqual(t, state.Progress, last)
		if i < len(history)-1 {
			assert.Less(t, state.Progress, 100)
		}
		last = state.Progress
	}
	assert.Equal(t, 3, history[len(history)-1].Metadata["prospectsFound"])

	view, err := h.orchestrator.PollStatus(ctx, "scan-e2e")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, view.Status)
	assert.Equal(t, 100, view.ProgressPercent)
	require.NotNil(t, view.EtaSeconds)
	assert.Equal(t, 0, *view.EtaSeconds)
}

func TestSubmitScanCombinesFriendRowAndPostOfSamePerson(t *testing.T) {
	h := newHarness(t, nil)

	outcome, err := h.orchestrator.SubmitScan(context.Background(), "scan-maria", rawImages("friends-maria", "feed-maria"))
	require.NoError(t, err)
	require.Equal(t, 1, outcome.ProspectsFound)

	maria := outcome.Prospects[0]
	assert.Equal(t, "Maria Santos", maria.Name)
	assert.GreaterOrEqual(t, maria.Score, 60)
	assert.Equal(t, 80, maria.Metadata["mutualCount"])
	assert.ElementsMatch(t, []model.EntityKind{model.KindFriendRow, model.KindPost}, maria.Metadata["detectedVia"])

	entities := h.results.Entities("scan-maria")
	require.Len(t, entities, 1)
	require.Len(t, entities[0].Merged, 1)
}

func TestSubmitScanIgnoresCallerCancellation(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := h.orchestrator.SubmitScan(ctx, "scan-detached", rawImages("friends-1", "friends-2", "feed-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, outcome.Status)
	assert.Equal(t, 3, outcome.ProspectsFound)

	for _, r := range h.results.RecognitionResults("scan-detached") {
		assert.Empty(t, r.Error)
	}

	state, err := h.statuses.GetStatus(context.Background(), "scan-detached")
	require.NoError(t, err)
	assert.Equal(t, string(StageCompleted), state.Stage)
}

func TestStageMetadataIsKeyedByProducingStage(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.orchestrator.SubmitScan(context.Background(), "scan-meta", rawImages("friends-1", "feed-1"))
	require.NoError(t, err)

	var parsing, completed *model.PipelineState
	for _, state := range h.statuses.history("scan-meta") {
		state := state
		switch Stage(state.Stage) {
		case StageParsingStructure:
			parsing = &state
		case StageCompleted:
			completed = &state
		}
	}
	require.NotNil(t, parsing)
	require.NotNil(t, completed)

	assert.Contains(t, parsing.Metadata, string(StageRecognizingText))
	assert.NotContains(t, parsing.Metadata, string(StageParsingStructure))

	assert.Contains(t, completed.Metadata, string(StageParsingStructure))
	assert.Contains(t, completed.Metadata, string(StagePersistingResults))
	assert.Equal(t, 2, completed.Metadata["prospectsFound"])
}

func TestSubmitScanSurvivesUndecodableImage(t *testing.T) {
	h := newHarness(t, func(cfg *OrchestratorConfig) {
		coordinator, err := recognition.NewCoordinator(recognition.CoordinatorConfig{
			Recognizer: screenshotRecognizer(),
			Normalizer: preprocess.NewPreprocessor(preprocess.Options{}),
			Lexicon:    lexicon.MustDefault(),
			Logger:     logging.NewLoggerWithOutput("Test", io.Discard),
		})
		require.NoError(t, err)
		cfg.Recognition = coordinator
	})

	images := []model.RawImage{{ID: "broken", Filename: "broken.png", Data: []byte("definitely not a png")}}
	outcome, err := h.orchestrator.SubmitScan(context.Background(), "scan-broken", images)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, outcome.Status)
	assert.Equal(t, 0, outcome.ProspectsFound)
	assert.NotNil(t, outcome.Prospects)

	results := h.results.RecognitionResults("scan-broken")
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].Error)
	assert.Zero(t, results[0].Confidence)
}

func TestSubmitScanFailsOnEnrichmentError(t *testing.T) {
	h := newHarness(t, func(cfg *OrchestratorConfig) {
		cfg.Enricher = failingEnricher{enrichment.NewEngine(lexicon.MustDefault())}
	})

	outcome, err := h.orchestrator.SubmitScan(context.Background(), "scan-fail", rawImages("friends-1"))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrorStageFailed))
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Contains(t, outcome.Error, "topic model exploded")

	state, err := h.statuses.GetStatus(context.Background(), "scan-fail")
	require.NoError(t, err)
	assert.Equal(t, string(StageFailed), state.Stage)
	require.NotNil(t, state.ErrorMessage)
	assert.NotEmpty(t, *state.ErrorMessage)
	require.NotNil(t, state.CompletedAt)
	assert.Equal(t, 45, state.Progress)
	assert.Equal(t, string(StageEnrichingGeneral), state.Metadata["failedStage"])

	// nothing after the failing stage ran
	assert.Nil(t, h.results.Prospects("scan-fail"))

	view, err := h.orchestrator.PollStatus(context.Background(), "scan-fail")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, view.Status)
	assert.Contains(t, view.Error, "topic model exploded")
	assert.Nil(t, view.EtaSeconds)
}

func TestSubmitScanRecoversStagePanic(t *testing.T) {
	h := newHarness(t, func(cfg *OrchestratorConfig) {
		cfg.Scorer = panickingScorer{}
	})

	outcome, err := h.orchestrator.SubmitScan(context.Background(), "scan-panic", rawImages("friends-1"))
	require.Error(t, err)
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Contains(t, outcome.Error, "score table corrupted")

	history := h.statuses.history("scan-panic")
	require.NotEmpty(t, history)
	final := history[len(history)-1]
	assert.Equal(t, string(StageFailed), final.Stage)
	assert.Equal(t, string(StageScoring), final.Metadata["failedStage"])
}

func TestStatusWriteFailureDoesNotFailScan(t *testing.T) {
	m := metrics.New()
	h := newHarness(t, func(cfg *OrchestratorConfig) {
		cfg.Statuses = brokenStatuses{}
		cfg.Metrics = m
	})

	outcome, err := h.orchestrator.SubmitScan(context.Background(), "scan-nostatus", rawImages("friends-1", "friends-2"))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, outcome.Status)
	assert.Equal(t, 2, outcome.ProspectsFound)

	expected := fmt.Sprintf(`
# HELP prospect_worker_status_write_errors_total Status store writes that failed.
# TYPE prospect_worker_status_write_errors_total counter
prospect_worker_status_write_errors_total %d
`, len(Pipeline))
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "prospect_worker_status_write_errors_total"))
}

func TestSubmitScanRejectsBadInput(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.orchestrator.SubmitScan(context.Background(), "scan-empty", nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrorInvalidRequest))

	_, err = h.orchestrator.SubmitScan(context.Background(), "", rawImages("friends-1"))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrorInvalidRequest))

	assert.Empty(t, h.statuses.history("scan-empty"))
}

func TestMarkQueuedAndPoll(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.orchestrator.PollStatus(ctx, "scan-q")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, h.orchestrator.MarkQueued(ctx, "scan-q"))

	view, err := h.orchestrator.PollStatus(ctx, "scan-q")
	require.NoError(t, err)
	assert.Equal(t, &StatusView{
		ScanID:          "scan-q",
		Status:          StatusQueued,
		Stage:           string(StageQueued),
		Message:         StageQueued.Message(),
		ProgressPercent: 0,
	}, view)
}

func TestConcurrentScansAreIndependent(t *testing.T) {
	h := newHarness(t, func(cfg *OrchestratorConfig) {
		cfg.Clock = time.Now
	})

	var wg sync.WaitGroup
	outcomes := make([]*ScanOutcome, 4)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], _ = h.orchestrator.SubmitScan(context.Background(), fmt.Sprintf("scan-%d", i), rawImages("friends-1", "feed-1"))
		}(i)
	}
	wg.Wait()

	for i, outcome := range outcomes {
		require.NotNil(t, outcome)
		assert.Equal(t, StatusCompleted, outcome.Status)
		assert.Equal(t, 2, outcome.ProspectsFound)
		assert.Len(t, h.statuses.history(fmt.Sprintf("scan-%d", i)), len(Pipeline))
	}
}

func TestNewStatusViewMapsStages(t *testing.T) {
	assert.Equal(t, StatusProcessing, NewStatusView(model.PipelineState{Stage: string(StageScoring)}).Status)
	assert.Equal(t, StatusQueued, NewStatusView(model.PipelineState{Stage: string(StageQueued)}).Status)
}
