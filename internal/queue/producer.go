package queue

import (
	"context"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/prospect-worker/internal/model"
)

// Enqueuer hands scans to the worker pool
type Enqueuer interface {
	Enqueue(ctx context.Context, scanID string, images []model.RawImage) error
}

// Producer enqueues scans on the Asynq queue
type Producer struct {
	client    *asynq.Client
	queueName string
}

// NewProducer connects a producer to redisURL
func NewProducer(redisURL, queueName string) (*Producer, error) {
	if queueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &Producer{client: asynq.NewClient(redisOpt), queueName: queueName}, nil
}

// Enqueue submits one scan. The scan id doubles as the task id, so a scan
// cannot be queued twice; failed scans are not retried.
func (p *Producer) Enqueue(ctx context.Context, scanID string, images []model.RawImage) error {
	task, err := NewScanTask(NewScanPayload(scanID, images))
	if err != nil {
		return err
	}

	info, err := p.client.EnqueueContext(ctx, task,
		asynq.Queue(p.queueName),
		asynq.TaskID(scanID),
		asynq.MaxRetry(0),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue scan %s: %w", scanID, err)
	}

	log.Printf("[Scan %s] Enqueued: queue=%s, task=%s", scanID, info.Queue, info.ID)
	return nil
}

// Close closes the Redis connection
func (p *Producer) Close() error {
	return p.client.Close()
}
