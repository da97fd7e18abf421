/**
 * PostgreSQL Client for the prospect scan worker
 *
 * Bulk-inserts per-scan recognition results, parsed entities and scored
 * prospects with COPY, and mirrors scan status for long-term audit.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/adverant/nexus/prospect-worker/internal/model"
)

const schemaName = "prospect"

var schemaStatements = []string{
	`CREATE SCHEMA IF NOT EXISTS prospect`,
	`CREATE TABLE IF NOT EXISTS prospect.scan_status (
		scan_id       TEXT PRIMARY KEY,
		stage         TEXT NOT NULL,
		progress      INTEGER NOT NULL,
		message       TEXT NOT NULL,
		started_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL,
		completed_at  TIMESTAMPTZ,
		eta_seconds   INTEGER,
		error_message TEXT,
		metadata      JSONB NOT NULL DEFAULT '{}'::jsonb
	)`,
	`CREATE TABLE IF NOT EXISTS prospect.recognition_results (
		scan_id      TEXT NOT NULL,
		image_id     TEXT NOT NULL,
		source_id    TEXT NOT NULL,
		slice_index  INTEGER NOT NULL,
		text         TEXT NOT NULL,
		confidence   NUMERIC(5,4) NOT NULL,
		language_mix TEXT NOT NULL,
		error        TEXT,
		duration_ms  BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS prospect.parsed_entities (
		scan_id     TEXT NOT NULL,
		kind        TEXT NOT NULL,
		name        TEXT,
		source_id   TEXT NOT NULL,
		line_index  INTEGER NOT NULL,
		confidence  NUMERIC(5,4) NOT NULL,
		entity      JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS prospect.scored_prospects (
		scan_id     TEXT NOT NULL,
		prospect_id TEXT NOT NULL,
		name        TEXT NOT NULL,
		kind        TEXT NOT NULL,
		score       INTEGER NOT NULL,
		source      JSONB NOT NULL,
		metadata    JSONB NOT NULL
	)`,
}

// PostgresClient implements ResultStore and StatusStore on PostgreSQL
type PostgresClient struct {
	db *sql.DB
}

// sanitizeConfidence clamps to [0,1] and rounds to 4 decimals to fit NUMERIC(5,4)
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return float64(int(confidence*10000+0.5)) / 10000
}

// NewPostgresClient connects and creates the schema when missing
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	client := &PostgresClient{db: db}
	if err := client.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return client, nil
}

// EnsureSchema creates the prospect schema and tables
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// PutStatus upserts the scan's status row
func (p *PostgresClient) PutStatus(ctx context.Context, scanID string, state model.PipelineState) error {
	if scanID == "" {
		return fmt.Errorf("scan ID is required")
	}

	metadataJSON, err := json.Marshal(state.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO prospect.scan_status (
			scan_id, stage, progress, message, started_at, updated_at,
			completed_at, eta_seconds, error_message, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10::jsonb, '{}'::jsonb))
		ON CONFLICT (scan_id) DO UPDATE SET
			stage = EXCLUDED.stage,
			progress = EXCLUDED.progress,
			message = EXCLUDED.message,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at,
			eta_seconds = EXCLUDED.eta_seconds,
			error_message = EXCLUDED.error_message,
			metadata = EXCLUDED.metadata
	`

	_, err = p.db.ExecContext(ctx, query,
		scanID,
		state.Stage,
		state.Progress,
		state.Message,
		state.StartedAt,
		state.UpdatedAt,
		state.CompletedAt,
		state.EtaSeconds,
		state.ErrorMessage,
		string(sanitizeJSONForPostgres(metadataJSON)),
	)
	if err != nil {
		return fmt.Errorf("failed to update scan status (scan=%s, stage=%s): %w", scanID, state.Stage, err)
	}
	return nil
}

// GetStatus reads the scan's status row
func (p *PostgresClient) GetStatus(ctx context.Context, scanID string) (*model.PipelineState, error) {
	query := `
		SELECT stage, progress, message, started_at, updated_at,
		       completed_at, eta_seconds, error_message, metadata
		FROM prospect.scan_status
		WHERE scan_id = $1
	`

	var (
		state        = model.PipelineState{ScanID: scanID}
		completedAt  sql.NullTime
		eta          sql.NullInt64
		errorMessage sql.NullString
		metadataJSON []byte
	)

	err := p.db.QueryRowContext(ctx, query, scanID).Scan(
		&state.Stage, &state.Progress, &state.Message, &state.StartedAt, &state.UpdatedAt,
		&completedAt, &eta, &errorMessage, &metadataJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan %s: %w", scanID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan status: %w", err)
	}

	if completedAt.Valid {
		t := completedAt.Time
		state.CompletedAt = &t
	}
	if eta.Valid {
		n := int(eta.Int64)
		state.EtaSeconds = &n
	}
	if errorMessage.Valid {
		msg := errorMessage.String
		state.ErrorMessage = &msg
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &state.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &state, nil
}

func (p *PostgresClient) SaveRecognitionResults(ctx context.Context, scanID string, results []model.RecognitionResult) error {
	rows := make([][]interface{}, 0, len(results))
	for _, r := range results {
		rows = append(rows, []interface{}{
			scanID, r.ImageID, r.SourceID, r.SliceIndex, r.Text,
			sanitizeConfidence(r.Confidence), string(r.LanguageMix), nullable(r.Error), r.Duration.Milliseconds(),
		})
	}
	return p.replaceRows(ctx, scanID, "recognition_results", []string{
		"scan_id", "image_id", "source_id", "slice_index", "text",
		"confidence", "language_mix", "error", "duration_ms",
	}, rows)
}

func (p *PostgresClient) SaveEntities(ctx context.Context, scanID string, entities []model.ParsedEntity) error {
	rows := make([][]interface{}, 0, len(entities))
	for _, e := range entities {
		entityJSON, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entity: %w", err)
		}
		rows = append(rows, []interface{}{
			scanID, string(e.Kind), nullable(e.Name()), e.Provenance.SourceID, e.Provenance.LineIndex,
			sanitizeConfidence(e.Confidence), string(sanitizeJSONForPostgres(entityJSON)),
		})
	}
	return p.replaceRows(ctx, scanID, "parsed_entities", []string{
		"scan_id", "kind", "name", "source_id", "line_index", "confidence", "entity",
	}, rows)
}

func (p *PostgresClient) SaveProspects(ctx context.Context, scanID string, prospects []model.ScoredProspect) error {
	rows := make([][]interface{}, 0, len(prospects))
	for _, sp := range prospects {
		sourceJSON, err := json.Marshal(sp.Source)
		if err != nil {
			return fmt.Errorf("failed to marshal prospect source: %w", err)
		}
		metadataJSON, err := json.Marshal(sp.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal prospect metadata: %w", err)
		}
		rows = append(rows, []interface{}{
			scanID, sp.ID, sp.Name, string(sp.Kind), sp.Score,
			string(sanitizeJSONForPostgres(sourceJSON)), string(sanitizeJSONForPostgres(metadataJSON)),
		})
	}
	return p.replaceRows(ctx, scanID, "scored_prospects", []string{
		"scan_id", "prospect_id", "name", "kind", "score", "source", "metadata",
	}, rows)
}

// replaceRows deletes the scan's previous rows in table and COPYs rows in, in one transaction
func (p *PostgresClient) replaceRows(ctx context.Context, scanID, table string, columns []string, rows [][]interface{}) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s.%s WHERE scan_id = $1", schemaName, table), scanID); err != nil {
		return fmt.Errorf("failed to clear %s for scan %s: %w", table, scanID, err)
	}

	if len(rows) > 0 {
		stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema(schemaName, table, columns...))
		if err != nil {
			return fmt.Errorf("failed to prepare copy into %s: %w", table, err)
		}
		for _, row := range rows {
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				stmt.Close()
				return fmt.Errorf("failed to copy row into %s: %w", table, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to flush copy into %s: %w", table, err)
		}
		if err := stmt.Close(); err != nil {
			return fmt.Errorf("failed to close copy into %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s for scan %s: %w", table, scanID, err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
