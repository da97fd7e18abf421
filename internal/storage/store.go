/**
 * Status and result stores for the prospect scan pipeline
 *
 * The orchestrator is the only writer of a scan's status; every write replaces
 * the whole record, so last-writer-wins per scan id is all the consistency the
 * stores need to provide.
 */

package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	apperrors "github.com/adverant/nexus/prospect-worker/internal/errors"
	"github.com/adverant/nexus/prospect-worker/internal/model"
)

// ErrNotFound is returned for unknown scan ids
var ErrNotFound = apperrors.ErrNotFound

// StatusStore keeps the latest PipelineState per scan
type StatusStore interface {
	PutStatus(ctx context.Context, scanID string, state model.PipelineState) error
	GetStatus(ctx context.Context, scanID string) (*model.PipelineState, error)
}

// ResultStore receives the bulk output of a finished scan
type ResultStore interface {
	SaveRecognitionResults(ctx context.Context, scanID string, results []model.RecognitionResult) error
	SaveEntities(ctx context.Context, scanID string, entities []model.ParsedEntity) error
	SaveProspects(ctx context.Context, scanID string, prospects []model.ScoredProspect) error
}

// MemoryStore implements StatusStore and ResultStore in process memory.
// It backs the CLI and tests, and stands in for PostgreSQL when no database
// is configured.
type MemoryStore struct {
	mu          sync.RWMutex
	statuses    map[string]model.PipelineState
	recognition map[string][]model.RecognitionResult
	entities    map[string][]model.ParsedEntity
	prospects   map[string][]model.ScoredProspect
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		statuses:    make(map[string]model.PipelineState),
		recognition: make(map[string][]model.RecognitionResult),
		entities:    make(map[string][]model.ParsedEntity),
		prospects:   make(map[string][]model.ScoredProspect),
	}
}

func (m *MemoryStore) PutStatus(ctx context.Context, scanID string, state model.PipelineState) error {
	if scanID == "" {
		return fmt.Errorf("scan ID is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[scanID] = state
	return nil
}

func (m *MemoryStore) GetStatus(ctx context.Context, scanID string) (*model.PipelineState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.statuses[scanID]
	if !ok {
		return nil, fmt.Errorf("scan %s: %w", scanID, ErrNotFound)
	}
	return &state, nil
}

func (m *MemoryStore) SaveRecognitionResults(ctx context.Context, scanID string, results []model.RecognitionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recognition[scanID] = append([]model.RecognitionResult(nil), results...)
	return nil
}

func (m *MemoryStore) SaveEntities(ctx context.Context, scanID string, entities []model.ParsedEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[scanID] = append([]model.ParsedEntity(nil), entities...)
	return nil
}

func (m *MemoryStore) SaveProspects(ctx context.Context, scanID string, prospects []model.ScoredProspect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prospects[scanID] = append([]model.ScoredProspect(nil), prospects...)
	return nil
}

// RecognitionResults returns what was saved for scanID
func (m *MemoryStore) RecognitionResults(scanID string) []model.RecognitionResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recognition[scanID]
}

func (m *MemoryStore) Entities(scanID string) []model.ParsedEntity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entities[scanID]
}

func (m *MemoryStore) Prospects(scanID string) []model.ScoredProspect {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prospects[scanID]
}

// MirroredStatusStore writes every status to a primary store and, best
// effort, to a mirror. Reads prefer the primary and fall back to the mirror
// once the primary has forgotten a scan (for example after its TTL expired).
type MirroredStatusStore struct {
	primary StatusStore
	mirror  StatusStore
	onError func(scanID string, err error)
}

// NewMirroredStatusStore returns primary unchanged when mirror is nil.
// onError, if set, observes failed mirror writes.
func NewMirroredStatusStore(primary, mirror StatusStore, onError func(scanID string, err error)) StatusStore {
	if mirror == nil {
		return primary
	}
	return &MirroredStatusStore{primary: primary, mirror: mirror, onError: onError}
}

func (s *MirroredStatusStore) PutStatus(ctx context.Context, scanID string, state model.PipelineState) error {
	if err := s.primary.PutStatus(ctx, scanID, state); err != nil {
		return err
	}
	if err := s.mirror.PutStatus(ctx, scanID, state); err != nil && s.onError != nil {
		s.onError(scanID, err)
	}
	return nil
}

func (s *MirroredStatusStore) GetStatus(ctx context.Context, scanID string) (*model.PipelineState, error) {
	state, err := s.primary.GetStatus(ctx, scanID)
	if errors.Is(err, ErrNotFound) {
		return s.mirror.GetStatus(ctx, scanID)
	}
	return state, err
}
