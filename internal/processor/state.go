package processor

import (
	"errors"
	"math"
	"time"

	apperrors "github.com/adverant/nexus/prospect-worker/internal/errors"
	"github.com/adverant/nexus/prospect-worker/internal/model"
)

// Stage is one state of the scan pipeline
type Stage string

const (
	StageQueued              Stage = "queued"
	StageInitializing        Stage = "initializing"
	StageRecognizingText     Stage = "recognizing_text"
	StageParsingStructure    Stage = "parsing_structure"
	StageEnrichingGeneral    Stage = "enriching_general"
	StageAnalyzingMix        Stage = "analyzing_language_mix"
	StageProfilingPersonal   Stage = "profiling_personality"
	StageDetectingPainPoints Stage = "detecting_pain_points"
	StageScoring             Stage = "scoring"
	StagePersistingResults   Stage = "persisting_results"
	StageCompleted           Stage = "completed"
	StageFailed              Stage = "failed"
)

// ErrInvalidTransition is wrapped by every rejected transition
var ErrInvalidTransition = errors.New("invalid pipeline transition")

type stageInfo struct {
	progress int
	message  string
}

var stages = map[Stage]stageInfo{
	StageQueued:              {0, "Scan queued"},
	StageInitializing:        {5, "Preparing screenshots"},
	StageRecognizingText:     {15, "Reading text from screenshots"},
	StageParsingStructure:    {35, "Finding friends, posts and comments"},
	StageEnrichingGeneral:    {45, "Extracting topics and interests"},
	StageAnalyzingMix:        {55, "Analyzing language mix"},
	StageProfilingPersonal:   {65, "Profiling communication style"},
	StageDetectingPainPoints: {75, "Detecting pain points"},
	StageScoring:             {85, "Scoring prospects"},
	StagePersistingResults:   {95, "Saving results"},
	StageCompleted:           {100, "Scan complete"},
	StageFailed:              {-1, "Scan failed"},
}

// transitions lists the only legal next states
var transitions = map[Stage][]Stage{
	StageQueued:              {StageInitializing, StageFailed},
	StageInitializing:        {StageRecognizingText, StageFailed},
	StageRecognizingText:     {StageParsingStructure, StageFailed},
	StageParsingStructure:    {StageEnrichingGeneral, StageFailed},
	StageEnrichingGeneral:    {StageAnalyzingMix, StageFailed},
	StageAnalyzingMix:        {StageProfilingPersonal, StageFailed},
	StageProfilingPersonal:   {StageDetectingPainPoints, StageFailed},
	StageDetectingPainPoints: {StageScoring, StageFailed},
	StageScoring:             {StagePersistingResults, StageFailed},
	StagePersistingResults:   {StageCompleted, StageFailed},
	StageCompleted:           {},
	StageFailed:              {},
}

// Pipeline lists the success path in order
var Pipeline = []Stage{
	StageQueued,
	StageInitializing,
	StageRecognizingText,
	StageParsingStructure,
	StageEnrichingGeneral,
	StageAnalyzingMix,
	StageProfilingPersonal,
	StageDetectingPainPoints,
	StageScoring,
	StagePersistingResults,
	StageCompleted,
}

// Progress returns the fixed percentage of a stage; failed has none
func (s Stage) Progress() (int, bool) {
	info, ok := stages[s]
	if !ok || info.progress < 0 {
		return 0, false
	}
	return info.progress, true
}

// Message is the human-readable label of a stage
func (s Stage) Message() string {
	return stages[s].message
}

// Terminal reports whether no transition leaves s
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// CanTransition reports whether from -> to is in the transition table
func CanTransition(from, to Stage) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StateMachine owns the PipelineState of one scan
type StateMachine struct {
	state model.PipelineState
	now   func() time.Time
}

// NewStateMachine starts a scan in the queued state
func NewStateMachine(scanID string, now func() time.Time) *StateMachine {
	if now == nil {
		now = time.Now
	}
	started := now()
	return &StateMachine{
		now: now,
		state: model.PipelineState{
			ScanID:    scanID,
			Stage:     string(StageQueued),
			Progress:  0,
			Message:   StageQueued.Message(),
			StartedAt: started,
			UpdatedAt: started,
			Metadata:  map[string]interface{}{},
		},
	}
}

// Current is the stage the scan is in
func (m *StateMachine) Current() Stage {
	return Stage(m.state.Stage)
}

// State returns a copy of the current state
func (m *StateMachine) State() model.PipelineState {
	s := m.state
	s.Metadata = copyMetadata(m.state.Metadata)
	return s
}

// Transition moves to the next stage, replacing the metadata. An illegal
// request leaves the state untouched.
func (m *StateMachine) Transition(to Stage, metadata map[string]interface{}) (model.PipelineState, error) {
	from := m.Current()
	if to == StageFailed || !CanTransition(from, to) {
		return m.State(), m.invalid(from, to)
	}

	progress, _ := to.Progress()
	now := m.now()

	next := m.state
	next.Stage = string(to)
	next.Progress = progress
	next.Message = to.Message()
	next.UpdatedAt = now
	next.Metadata = copyMetadata(metadata)
	next.EtaSeconds = ETA(now.Sub(next.StartedAt), progress)
	if to == StageCompleted {
		next.CompletedAt = &now
	}

	m.state = next
	return m.State(), nil
}

// Fail ends the scan with cause's message, keeping the last progress
func (m *StateMachine) Fail(cause error) (model.PipelineState, error) {
	from := m.Current()
	if !CanTransition(from, StageFailed) {
		return m.State(), m.invalid(from, StageFailed)
	}

	now := m.now()
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}

	next := m.state
	next.Stage = string(StageFailed)
	next.Message = StageFailed.Message()
	next.UpdatedAt = now
	next.CompletedAt = &now
	next.ErrorMessage = &msg
	next.EtaSeconds = nil
	next.Metadata = copyMetadata(m.state.Metadata)
	next.Metadata["failedStage"] = string(from)
	var scanErr *apperrors.ScanError
	if errors.As(cause, &scanErr) {
		next.Metadata["error"] = scanErr.ToMap()
	}

	m.state = next
	return m.State(), nil
}

func (m *StateMachine) invalid(from, to Stage) error {
	err := apperrors.NewInvalidTransitionError(m.state.ScanID, string(from), string(to))
	err.Cause = ErrInvalidTransition
	return err
}

// ETA extrapolates the remaining time from elapsed time and progress:
// elapsed/ratio - elapsed. Unknown at 0%, zero at 100%.
func ETA(elapsed time.Duration, progress int) *int {
	if progress <= 0 {
		return nil
	}
	remaining := 0
	if progress < 100 {
		ratio := float64(progress) / 100
		secs := elapsed.Seconds()
		remaining = int(math.Round(secs/ratio - secs))
	}
	return &remaining
}

func copyMetadata(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
