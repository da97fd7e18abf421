/**
 * Redis-backed status store
 *
 * One JSON document per scan under prospect:scan:<id>:status, replaced on every
 * transition and expired after the configured TTL. Each write also publishes a
 * small event on prospect:status:events for dashboards; the stored document
 * remains the source of truth.
 */

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/prospect-worker/internal/model"
)

const (
	statusKeyPrefix = "prospect:scan:"
	// StatusEventsChannel carries one event per status write
	StatusEventsChannel = "prospect:status:events"
	DefaultStatusTTL    = 24 * time.Hour
)

// StatusEvent is published after every status write
type StatusEvent struct {
	Event     string `json:"event"`
	ScanID    string `json:"scanId"`
	Stage     string `json:"stage"`
	Progress  int    `json:"progress"`
	Timestamp string `json:"timestamp"`
}

// RedisStatusStore implements StatusStore on Redis
type RedisStatusStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStatusStore connects to redisURL and verifies the connection
func NewRedisStatusStore(redisURL string, ttl time.Duration) (*RedisStatusStore, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStatusStoreWithClient(client, ttl), nil
}

// NewRedisStatusStoreWithClient wraps an existing client. ttl <= 0 uses 24h.
func NewRedisStatusStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStatusStore {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &RedisStatusStore{client: client, ttl: ttl}
}

func statusKey(scanID string) string {
	return statusKeyPrefix + scanID + ":status"
}

func (s *RedisStatusStore) PutStatus(ctx context.Context, scanID string, state model.PipelineState) error {
	if scanID == "" {
		return fmt.Errorf("scan ID is required")
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	if err := s.client.Set(ctx, statusKey(scanID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write status for scan %s: %w", scanID, err)
	}

	eventData, err := json.Marshal(newStatusEvent(scanID, state))
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}
	// subscribers are optional; a failed publish does not undo the write
	_ = s.client.Publish(ctx, StatusEventsChannel, eventData).Err()

	return nil
}

func (s *RedisStatusStore) GetStatus(ctx context.Context, scanID string) (*model.PipelineState, error) {
	data, err := s.client.Get(ctx, statusKey(scanID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("scan %s: %w", scanID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read status for scan %s: %w", scanID, err)
	}

	var state model.PipelineState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status for scan %s: %w", scanID, err)
	}
	return &state, nil
}

// Ping checks Redis connectivity
func (s *RedisStatusStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStatusStore) Close() error {
	return s.client.Close()
}

func newStatusEvent(scanID string, state model.PipelineState) StatusEvent {
	return StatusEvent{
		Event:     fmt.Sprintf("scan:%s", state.Stage),
		ScanID:    scanID,
		Stage:     state.Stage,
		Progress:  state.Progress,
		Timestamp: state.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
