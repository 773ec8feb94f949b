package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/animagen/animagen/internal/metrics"
)

const (
	// ConsumerGroup is the Redis consumer group name.
	ConsumerGroup = "render_workers"

	// DefaultBlockTimeout is how long to block waiting for messages.
	DefaultBlockTimeout = 5 * time.Second

	// DefaultMaxRetries is the number of retries after the first failed attempt.
	DefaultMaxRetries = 3

	// DefaultClaimInterval is how often to scan pending messages.
	DefaultClaimInterval = 10 * time.Second

	// DefaultClaimIdle is the idle time before reclaiming pending messages.
	DefaultClaimIdle = 6 * time.Minute

	// DefaultMetricsInterval is how often to refresh queue depth metrics.
	DefaultMetricsInterval = 5 * time.Second

	deadLetterMaxLen = 10000
)

// ErrPermanent marks a job failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent job failure")

// Permanent wraps err so the worker dead-letters the job without retrying.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// JobHandler runs the work behind a render job.
type JobHandler interface {
	// HandleJob processes a job. A nil error acknowledges it.
	HandleJob(ctx context.Context, job RenderJob) error
	// HandleDeadLetter is called once a job is given up on.
	HandleDeadLetter(ctx context.Context, job RenderJob, cause error)
}

// WorkerConfig tunes a Worker. Zero durations take the package defaults.
type WorkerConfig struct {
	ConsumerID      string
	BlockTimeout    time.Duration
	ClaimInterval   time.Duration
	ClaimIdle       time.Duration
	MetricsInterval time.Duration
	// MaxRetries is the retry count after the first attempt. Negative means none.
	MaxRetries int
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	def := func(d *time.Duration, v time.Duration) {
		if *d <= 0 {
			*d = v
		}
	}
	def(&c.BlockTimeout, DefaultBlockTimeout)
	def(&c.ClaimInterval, DefaultClaimInterval)
	def(&c.ClaimIdle, DefaultClaimIdle)
	def(&c.MetricsInterval, DefaultMetricsInterval)
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = DefaultMaxRetries
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	return c
}

// throttle lets an action through at most once per period.
type throttle struct {
	period time.Duration
	last   time.Time
}

func (t *throttle) ready(now time.Time) bool {
	if !t.last.IsZero() && now.Sub(t.last) < t.period {
		return false
	}
	t.last = now
	return true
}

// Worker consumes render jobs from the Redis stream one at a time.
type Worker struct {
	redis   *redis.Client
	handler JobHandler
	logger  *slog.Logger
	metrics metrics.Recorder
	cfg     WorkerConfig
	backoff func(attempt int) time.Duration

	claimCursor string
	claimEvery  throttle
	depthEvery  throttle

	started    bool
	draining   bool
	cancel     context.CancelFunc
	hardCancel context.CancelFunc
	done       chan struct{}
	mu         sync.Mutex
}

// NewWorker creates a render worker reading as cfg.ConsumerID.
func NewWorker(client *redis.Client, handler JobHandler, logger *slog.Logger, recorder metrics.Recorder, cfg WorkerConfig) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	cfg = cfg.withDefaults()
	return &Worker{
		redis:       client,
		handler:     handler,
		logger:      logger.With("component", "queue.worker", "consumer_id", cfg.ConsumerID),
		metrics:     recorder,
		cfg:         cfg,
		backoff:     exponentialBackoff,
		claimCursor: "0-0",
		claimEvery:  throttle{period: cfg.ClaimInterval},
		depthEvery:  throttle{period: cfg.MetricsInterval},
	}
}

func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

// ReclaimAfter is the idle time after which a pending job may be taken over
// when a single attempt can run for up to attempt. It spans every retry and
// the backoff between them, so a live consumer keeps its job.
func ReclaimAfter(attempt time.Duration, maxRetries int) time.Duration {
	if maxRetries < 0 {
		maxRetries = 0
	}
	total := time.Duration(maxRetries+1)*attempt + time.Minute
	for i := 1; i <= maxRetries; i++ {
		total += exponentialBackoff(i)
	}
	return max(total, DefaultClaimIdle)
}

// Run starts the worker loop. Blocks until the context is cancelled or
// Shutdown is called. A job in flight keeps running after ctx is cancelled;
// only Shutdown's deadline aborts it.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	if w.draining {
		close(w.done)
		w.mu.Unlock()
		return nil
	}
	readCtx, cancel := context.WithCancel(ctx)
	jobCtx, hardCancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel
	w.hardCancel = hardCancel
	w.mu.Unlock()

	defer close(w.done)
	defer hardCancel()
	defer cancel()

	if err := w.ensureConsumerGroup(readCtx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	w.logger.Info("render worker started")

	for {
		if w.isDraining() {
			w.logger.Info("render worker draining, stopping")
			return nil
		}

		select {
		case <-readCtx.Done():
			w.logger.Info("render worker stopping")
			return nil
		default:
			if err := w.processOnce(readCtx, jobCtx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("process error", "error", err)
				select {
				case <-readCtx.Done():
				case <-time.After(1 * time.Second):
				}
			}
		}
	}
}

// Shutdown stops reading new jobs and waits for the in-flight job to finish.
// When ctx expires first, the in-flight job is cancelled and left pending
// for another consumer to reclaim.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	w.draining = true
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	hardCancel := w.hardCancel
	done := w.done
	w.mu.Unlock()

	w.logger.Info("render worker shutdown initiated")

	if cancel != nil {
		cancel()
	}

	select {
	case <-done:
		w.logger.Info("render worker shutdown complete")
		return nil
	case <-ctx.Done():
		if hardCancel != nil {
			hardCancel()
		}
		w.logger.Warn("render worker shutdown timed out")
		return ctx.Err()
	}
}

func (w *Worker) isDraining() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draining
}

func (w *Worker) ensureConsumerGroup(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !isConsumerGroupExistsError(err) {
		return err
	}
	return nil
}

// processOnce reads and handles at most one job.
func (w *Worker) processOnce(readCtx, jobCtx context.Context) error {
	now := time.Now()
	if w.depthEvery.ready(now) {
		w.reportQueueDepth(readCtx)
	}

	var messages []redis.XMessage
	if w.claimEvery.ready(now) {
		var err error
		if messages, err = w.claimIdle(readCtx); err != nil {
			w.logger.Warn("failed to claim idle jobs", "error", err)
		}
	}

	if len(messages) == 0 {
		var err error
		if messages, err = w.readOne(readCtx); err != nil {
			return err
		}
	}

	for _, msg := range messages {
		if err := w.handleMessage(jobCtx, msg); err != nil {
			return err
		}
	}

	return nil
}

// handleMessage runs one stream message through the handler and acks it.
func (w *Worker) handleMessage(ctx context.Context, msg redis.XMessage) error {
	job, err := DecodeJob(msg)
	if err != nil {
		w.deadLetterMessage(ctx, msg, "invalid_payload", err.Error())
		return w.ack(ctx, msg.ID)
	}

	logger := w.logger.With("task_id", job.TaskID, "message_id", msg.ID)
	err = w.handleWithRetry(ctx, job)

	switch {
	case err == nil:
		w.metrics.IncJobProcessed("success")
	case errors.Is(err, ErrPermanent):
		logger.Error("job failed permanently", "error", err)
		w.deadLetterMessage(ctx, msg, "permanent_error", err.Error())
		w.handler.HandleDeadLetter(ctx, job, err)
	case ctx.Err() != nil:
		// Aborted by shutdown; the message stays pending and is reclaimed later.
		return ctx.Err()
	default:
		logger.Error("job failed after retries", "error", err)
		w.deadLetterMessage(ctx, msg, "retries_exhausted", err.Error())
		w.handler.HandleDeadLetter(ctx, job, err)
	}

	return w.ack(ctx, msg.ID)
}

// handleWithRetry attempts a job with exponential backoff between attempts.
func (w *Worker) handleWithRetry(ctx context.Context, job RenderJob) error {
	var lastErr error

	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.backoff(attempt)
			w.logger.Warn("job failed, retrying",
				"task_id", job.TaskID,
				"attempt", attempt,
				"backoff_seconds", backoff.Seconds(),
				"error", lastErr,
			)
			w.metrics.IncJobProcessed("retried")

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := w.handler.HandleJob(ctx, job)
		if err == nil || errors.Is(err, ErrPermanent) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
	}

	return lastErr
}

// claimIdle takes over one job that another consumer has held longer than
// ClaimIdle, typically because it crashed mid-render.
func (w *Worker) claimIdle(ctx context.Context) ([]redis.XMessage, error) {
	messages, next, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.cfg.ConsumerID,
		MinIdle:  w.cfg.ClaimIdle,
		Start:    w.claimCursor,
		Count:    1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if next != "" {
		w.claimCursor = next
	}
	for _, m := range messages {
		w.logger.Info("reclaimed idle job", "message_id", m.ID)
	}
	return messages, nil
}

// reportQueueDepth publishes pending plus undelivered entries for the group.
func (w *Worker) reportQueueDepth(ctx context.Context) {
	groups, err := w.redis.XInfoGroups(ctx, StreamKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		w.logger.Warn("stream group info unavailable", "error", err)
		return
	}
	for _, g := range groups {
		if g.Name == ConsumerGroup {
			w.metrics.SetQueueDepth(g.Pending + g.Lag)
			return
		}
	}
}

// readOne reads the next new message using XREADGROUP.
func (w *Worker) readOne(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.cfg.ConsumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    1,
		Block:    w.cfg.BlockTimeout,
	}).Result()

	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	if len(streams) == 0 {
		return nil, nil
	}

	return streams[0].Messages, nil
}

// deadLetterMessage copies a message to the dead-letter stream with the
// reason it was given up on. A failed copy is logged and the job is still acked.
func (w *Worker) deadLetterMessage(ctx context.Context, msg redis.XMessage, reason, detail string) {
	w.logger.Warn("dead-lettering render job", "message_id", msg.ID, "reason", reason, "detail", detail)
	w.metrics.IncJobProcessed("dead_lettered")

	err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: deadLetterMaxLen,
		Approx: true,
		Values: []any{
			"message_id", msg.ID,
			"reason", reason,
			"detail", detail,
			"payload", msg.Values["payload"],
			"failed_at", time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		w.logger.Error("dead-letter write failed", "message_id", msg.ID, "error", err)
	}
}

// ack acknowledges a handled message.
func (w *Worker) ack(ctx context.Context, messageID string) error {
	if _, err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, messageID).Result(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// isConsumerGroupExistsError reports the BUSYGROUP reply to XGROUP CREATE.
func isConsumerGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
