// Package queue carries render jobs from the API to workers over a Redis stream.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/animagen/animagen/internal/metrics"
)

const (
	// StreamKey is the Redis stream for render jobs.
	StreamKey = "stream:render_jobs"

	// DeadLetterStreamKey is the Redis stream for jobs that could not be processed.
	DeadLetterStreamKey = "stream:render_jobs:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000
)

// RenderJob asks a worker to run the generation pipeline for a task.
type RenderJob struct {
	TaskID     string    `json:"task_id"`
	EnqueuedAt time.Time `json:"-"`
}

// jobPayload is the wire format stored in the stream.
type jobPayload struct {
	TaskID     string `json:"tid"`
	EnqueuedAt int64  `json:"t"` // Unix milliseconds
}

var errInvalidJob = errors.New("invalid render job")

// EncodeJob serializes a job for the stream.
func EncodeJob(job RenderJob) (string, error) {
	data, err := json.Marshal(jobPayload{TaskID: job.TaskID, EnqueuedAt: job.EnqueuedAt.UnixMilli()})
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	return string(data), nil
}

// DecodeJob parses and validates a stream message.
func DecodeJob(msg redis.XMessage) (RenderJob, error) {
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return RenderJob{}, fmt.Errorf("%w: payload field missing or not a string", errInvalidJob)
	}

	var p jobPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return RenderJob{}, fmt.Errorf("%w: %v", errInvalidJob, err)
	}
	if _, err := uuid.Parse(p.TaskID); err != nil {
		return RenderJob{}, fmt.Errorf("%w: task_id %q is not a UUID", errInvalidJob, p.TaskID)
	}

	return RenderJob{TaskID: p.TaskID, EnqueuedAt: time.UnixMilli(p.EnqueuedAt).UTC()}, nil
}

// Publisher enqueues render jobs to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new render job publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "queue.publisher"),
		metrics: recorder,
	}
}

// Publish adds a job to the stream and returns the stream entry ID.
func (p *Publisher) Publish(ctx context.Context, job RenderJob) (string, error) {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	payload, err := EncodeJob(job)
	if err != nil {
		return "", err
	}

	id, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true, // ~MAXLEN for performance
		ID:     "*",  // Auto-generate ID
		Values: map[string]interface{}{
			"payload": payload,
		},
	}).Result()
	if err != nil {
		p.metrics.IncJobPublished("failed")
		return "", fmt.Errorf("xadd: %w", err)
	}

	p.logger.Debug("render job published",
		"task_id", job.TaskID,
		"stream_id", id,
	)
	p.metrics.IncJobPublished("success")

	return id, nil
}
