/**
 * Storage Manager for the prospect scan worker
 *
 * Coordinates result persistence across PostgreSQL (or memory when no database
 * is configured) and the optional Qdrant prospect index. Prospects are written
 * to the index first; if the result store then fails, the points are removed
 * again so both sides stay consistent.
 */

package storage

import (
	"context"
	"fmt"
	"regexp"

	"github.com/adverant/nexus/prospect-worker/internal/logging"
	"github.com/adverant/nexus/prospect-worker/internal/model"
)

// ProspectIndexer is the subset of ProspectIndex the manager needs
type ProspectIndexer interface {
	UpsertProspects(ctx context.Context, scanID string, prospects []model.ScoredProspect) ([]string, error)
	DeletePoints(ctx context.Context, ids []string) error
}

// StorageManager implements ResultStore over a result store and an optional index
type StorageManager struct {
	results  ResultStore
	index    ProspectIndexer
	postgres *PostgresClient
	qdrant   *ProspectIndex
	logger   *logging.Logger
}

// NewStorageManager connects the configured backends. An empty databaseURL keeps
// results in memory; an empty qdrantAddress disables the index.
func NewStorageManager(databaseURL string, qdrantAddress string, qdrantCollection string) (*StorageManager, error) {
	sm := &StorageManager{logger: logging.NewLogger("Storage")}

	if databaseURL != "" {
		postgres, err := NewPostgresClient(databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
		}
		sm.postgres = postgres
		sm.results = postgres
	} else {
		sm.logger.Warn("DATABASE_URL not set, results are kept in memory")
		sm.results = NewMemoryStore()
	}

	if qdrantAddress != "" {
		idx, err := NewProspectIndex(qdrantAddress, qdrantCollection)
		if err != nil {
			sm.Close()
			return nil, fmt.Errorf("failed to initialize Qdrant client: %w", err)
		}
		sm.qdrant = idx
		sm.index = idx
	}

	return sm, nil
}

// NewStorageManagerWith wires explicit backends; index may be nil
func NewStorageManagerWith(results ResultStore, index ProspectIndexer, logger *logging.Logger) *StorageManager {
	if logger == nil {
		logger = logging.NewLogger("Storage")
	}
	return &StorageManager{results: results, index: index, logger: logger}
}

func (sm *StorageManager) SaveRecognitionResults(ctx context.Context, scanID string, results []model.RecognitionResult) error {
	return sm.results.SaveRecognitionResults(ctx, scanID, results)
}

func (sm *StorageManager) SaveEntities(ctx context.Context, scanID string, entities []model.ParsedEntity) error {
	return sm.results.SaveEntities(ctx, scanID, entities)
}

// SaveProspects indexes then stores prospects, undoing the index write on failure
func (sm *StorageManager) SaveProspects(ctx context.Context, scanID string, prospects []model.ScoredProspect) error {
	var indexed []string
	if sm.index != nil {
		ids, err := sm.index.UpsertProspects(ctx, scanID, prospects)
		if err != nil {
			return fmt.Errorf("failed to index prospects: %w", err)
		}
		indexed = ids
	}

	if err := sm.results.SaveProspects(ctx, scanID, prospects); err != nil {
		if len(indexed) > 0 {
			if delErr := sm.index.DeletePoints(ctx, indexed); delErr != nil {
				sm.logger.Error("Failed to roll back prospect index", "scanId", scanID, "points", len(indexed), "error", delErr)
			}
		}
		return fmt.Errorf("failed to store prospects: %w", err)
	}
	return nil
}

// StatusMirror returns the PostgreSQL status table when a database is configured
func (sm *StorageManager) StatusMirror() StatusStore {
	if sm.postgres == nil {
		return nil
	}
	return sm.postgres
}

// Ping checks every configured backend
func (sm *StorageManager) Ping(ctx context.Context) error {
	if sm.postgres != nil {
		if err := sm.postgres.Ping(ctx); err != nil {
			return fmt.Errorf("database health check failed: %w", err)
		}
	}
	if sm.qdrant != nil {
		if _, err := sm.qdrant.GetCollectionInfo(ctx); err != nil {
			return fmt.Errorf("qdrant health check failed: %w", err)
		}
	}
	return nil
}

// Index returns the prospect index, or nil when disabled
func (sm *StorageManager) Index() *ProspectIndex {
	return sm.qdrant
}

// GetStats returns statistics from the configured backends
func (sm *StorageManager) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{}

	if sm.postgres != nil {
		pgStats := sm.postgres.GetStats()
		stats["postgres"] = map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		}
	}

	if sm.qdrant != nil {
		qdrantStats, err := sm.qdrant.GetCollectionInfo(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get Qdrant stats: %w", err)
		}
		stats["qdrant"] = qdrantStats
	}

	return stats, nil
}

// Close closes all connections
func (sm *StorageManager) Close() error {
	var pgErr, qdErr error

	if sm.postgres != nil {
		pgErr = sm.postgres.Close()
	}

	if sm.qdrant != nil {
		qdErr = sm.qdrant.Close()
	}

	if pgErr != nil {
		return fmt.Errorf("failed to close PostgreSQL: %w", pgErr)
	}

	if qdErr != nil {
		return fmt.Errorf("failed to close Qdrant: %w", qdErr)
	}

	return nil
}

var (
	nullEscape    = regexp.MustCompile(`\\u0000`)
	controlEscape = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// sanitizeJSONForPostgres drops \u0000 escapes and turns other control-character
// escapes into spaces, since JSONB rejects them. OCR text regularly carries both.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	result := nullEscape.ReplaceAll(jsonBytes, []byte{})
	return controlEscape.ReplaceAll(result, []byte(" "))
}
