package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/prospect-worker/internal/model"
)

func newTestRedisStatusStore(t *testing.T, ttl time.Duration) (*RedisStatusStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedisStatusStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), ttl)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStatusStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStatusStore(t, time.Hour)

	_, err := store.GetStatus(ctx, "scan-r")
	assert.ErrorIs(t, err, ErrNotFound)

	updated := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, store.PutStatus(ctx, "scan-r", model.PipelineState{ScanID: "scan-r", Stage: "queued", UpdatedAt: updated}))
	require.NoError(t, store.PutStatus(ctx, "scan-r", model.PipelineState{
		ScanID:    "scan-r",
		Stage:     "parsing_structure",
		Progress:  35,
		Message:   "Parsing structure",
		UpdatedAt: updated,
		Metadata:  map[string]interface{}{"recognizing_text": map[string]interface{}{"usable": 2}},
	}))

	got, err := store.GetStatus(ctx, "scan-r")
	require.NoError(t, err)
	assert.Equal(t, "scan-r", got.ScanID)
	assert.Equal(t, "parsing_structure", got.Stage)
	assert.Equal(t, 35, got.Progress)
	assert.True(t, updated.Equal(got.UpdatedAt))
	assert.Contains(t, got.Metadata, "recognizing_text")

	assert.True(t, mr.Exists(statusKey("scan-r")))
	assert.Equal(t, time.Hour, mr.TTL(statusKey("scan-r")))

	assert.Error(t, store.PutStatus(ctx, "", model.PipelineState{}))
	assert.NoError(t, store.Ping(ctx))
}

func TestRedisStatusStoreExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStatusStore(t, time.Minute)

	require.NoError(t, store.PutStatus(ctx, "scan-ttl", model.PipelineState{ScanID: "scan-ttl", Stage: "completed", Progress: 100}))
	mr.FastForward(59 * time.Second)
	_, err := store.GetStatus(ctx, "scan-ttl")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	_, err = store.GetStatus(ctx, "scan-ttl")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStatusStoreDefaultTTL(t *testing.T) {
	store, mr := newTestRedisStatusStore(t, 0)

	require.NoError(t, store.PutStatus(context.Background(), "scan-d", model.PipelineState{ScanID: "scan-d", Stage: "queued"}))
	assert.Equal(t, DefaultStatusTTL, mr.TTL(statusKey("scan-d")))
}

func TestRedisStatusStoreReportsOutage(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStatusStore(t, time.Minute)
	mr.Close()

	err := store.PutStatus(ctx, "scan-down", model.PipelineState{ScanID: "scan-down", Stage: "queued"})
	assert.Error(t, err)
	assert.Error(t, store.Ping(ctx))

	_, err = store.GetStatus(ctx, "scan-down")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
