/**
 * Queue Consumer for the prospect scan worker
 *
 * Consumes scan jobs from Redis with Asynq and runs each through the
 * orchestrator. Scans are never retried by the queue: a failed scan is
 * terminal and the caller submits a new one.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	apperrors "github.com/adverant/nexus/prospect-worker/internal/errors"
	"github.com/adverant/nexus/prospect-worker/internal/model"
	"github.com/adverant/nexus/prospect-worker/internal/processor"
)

// ScanSubmitter runs one scan to a terminal state
type ScanSubmitter interface {
	SubmitScan(ctx context.Context, scanID string, images []model.RawImage) (*processor.ScanOutcome, error)
}

// Handler processes prospect:scan tasks
type Handler struct {
	submitter ScanSubmitter
	timeout   time.Duration
}

// NewHandler creates a task handler. A zero timeout leaves the task context as is.
func NewHandler(submitter ScanSubmitter, timeout time.Duration) *Handler {
	return &Handler{submitter: submitter, timeout: timeout}
}

// ProcessTask implements asynq.Handler
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var payload ScanPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal scan payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.ScanID == "" {
		return fmt.Errorf("%v: %w", apperrors.NewInvalidRequestError("scan payload has no scanId"), asynq.SkipRetry)
	}

	log.Printf("[Scan %s] Dequeued: images=%d", payload.ScanID, len(payload.Images))

	processCtx := ctx
	if h.timeout > 0 {
		var cancel context.CancelFunc
		processCtx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	outcome, err := h.submitter.SubmitScan(processCtx, payload.ScanID, payload.RawImages())
	duration := time.Since(startTime)
	if err != nil {
		log.Printf("[Scan %s] Scan failed after %v: %v", payload.ScanID, duration, err)
		return fmt.Errorf("scan %s failed: %v: %w", payload.ScanID, err, asynq.SkipRetry)
	}

	log.Printf("[Scan %s] Scan completed in %v: prospects=%d", payload.ScanID, duration, outcome.ProspectsFound)
	return nil
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Submitter         ScanSubmitter
	ProcessingTimeout time.Duration
}

// Consumer handles scan consumption from the Redis queue
type Consumer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	config *ConsumerConfig
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Submitter == nil {
		return nil, fmt.Errorf("Submitter is required")
	}

	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task processing error: type=%s, bytes=%d, error=%v",
					task.Type(), len(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.Handle(TaskTypeScan, NewHandler(cfg.Submitter, cfg.ProcessingTimeout))

	return &Consumer{server: server, mux: mux, config: cfg}, nil
}

// Start runs the consumer in the background
func (c *Consumer) Start(ctx context.Context) error {
	log.Printf("Starting queue consumer (concurrency=%d, queue=%s)...",
		c.config.Concurrency, c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	return nil
}

// Stop waits for in-flight scans and stops the consumer
func (c *Consumer) Stop(ctx context.Context) error {
	log.Printf("Stopping queue consumer...")
	c.server.Shutdown()
	log.Printf("Queue consumer stopped")
	return nil
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
	}
}
