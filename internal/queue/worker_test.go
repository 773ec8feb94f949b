package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animagen/animagen/internal/metrics"
)

type fakeHandler struct {
	mu          sync.Mutex
	errs        []error
	calls       int
	deadLetters []RenderJob
	jobs        chan RenderJob
}

func (h *fakeHandler) HandleJob(_ context.Context, job RenderJob) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.jobs != nil {
		h.jobs <- job
	}
	if len(h.errs) == 0 {
		return nil
	}
	err := h.errs[0]
	h.errs = h.errs[1:]
	return err
}

func (h *fakeHandler) HandleDeadLetter(_ context.Context, job RenderJob, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deadLetters = append(h.deadLetters, job)
}

func newTestWorker(h JobHandler, rec metrics.Recorder) *Worker {
	w := NewWorker(nil, h, slog.New(slog.NewTextHandler(io.Discard, nil)), rec, WorkerConfig{ConsumerID: "test-consumer"})
	w.backoff = func(int) time.Duration { return time.Millisecond }
	return w
}

func TestWorker_HandleWithRetry_SucceedsAfterTransientErrors(t *testing.T) {
	t.Parallel()

	h := &fakeHandler{errs: []error{errors.New("db down"), errors.New("db down")}}
	rec := metrics.NewInMemory()
	w := newTestWorker(h, rec)

	err := w.handleWithRetry(context.Background(), RenderJob{TaskID: "t"})
	require.NoError(t, err)
	assert.Equal(t, 3, h.calls)
	assert.Equal(t, uint64(2), rec.Snapshot().JobsRetried)
}

func TestWorker_HandleWithRetry_GivesUp(t *testing.T) {
	t.Parallel()

	boom := errors.New("redis timeout")
	h := &fakeHandler{errs: []error{boom, boom, boom, boom, boom}}
	w := newTestWorker(h, nil)

	err := w.handleWithRetry(context.Background(), RenderJob{TaskID: "t"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, DefaultMaxRetries+1, h.calls)
}

func TestWorker_HandleWithRetry_PermanentStopsImmediately(t *testing.T) {
	t.Parallel()

	h := &fakeHandler{errs: []error{Permanent(errors.New("task vanished"))}}
	w := newTestWorker(h, nil)

	err := w.handleWithRetry(context.Background(), RenderJob{TaskID: "t"})
	assert.ErrorIs(t, err, ErrPermanent)
	assert.Contains(t, err.Error(), "task vanished")
	assert.Equal(t, 1, h.calls)
}

func TestWorker_HandleWithRetry_ContextCancelled(t *testing.T) {
	t.Parallel()

	h := &fakeHandler{errs: []error{errors.New("transient")}}
	w := newTestWorker(h, nil)
	w.backoff = func(int) time.Duration { return time.Hour }

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := w.handleWithRetry(ctx, RenderJob{TaskID: "t"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorker_ShutdownBeforeRun(t *testing.T) {
	t.Parallel()

	w := newTestWorker(&fakeHandler{}, nil)
	require.NoError(t, w.Shutdown(context.Background()))

	// A drained worker never touches Redis.
	require.NoError(t, w.Run(context.Background()))
}

func TestExponentialBackoff(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2*time.Second, exponentialBackoff(1))
	assert.Equal(t, 4*time.Second, exponentialBackoff(2))
	assert.Equal(t, 8*time.Second, exponentialBackoff(3))
}

func TestIsConsumerGroupExistsError(t *testing.T) {
	t.Parallel()

	assert.True(t, isConsumerGroupExistsError(errors.New("BUSYGROUP Consumer Group name already exists")))
	assert.False(t, isConsumerGroupExistsError(errors.New("NOGROUP")))
	assert.False(t, isConsumerGroupExistsError(nil))
}

func TestWorkerConfig_Defaults(t *testing.T) {
	cfg := WorkerConfig{ConsumerID: "c", ClaimIdle: time.Minute}.withDefaults()
	assert.Equal(t, DefaultBlockTimeout, cfg.BlockTimeout)
	assert.Equal(t, DefaultClaimInterval, cfg.ClaimInterval)
	assert.Equal(t, time.Minute, cfg.ClaimIdle)
	assert.Equal(t, DefaultMetricsInterval, cfg.MetricsInterval)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)

	assert.Zero(t, WorkerConfig{MaxRetries: -1}.withDefaults().MaxRetries)
}

func TestThrottle(t *testing.T) {
	th := throttle{period: 10 * time.Second}
	t0 := time.Unix(1_700_000_000, 0)

	assert.True(t, th.ready(t0), "first call passes")
	assert.False(t, th.ready(t0.Add(9*time.Second)))
	assert.True(t, th.ready(t0.Add(10*time.Second)))
	assert.False(t, th.ready(t0.Add(11*time.Second)))
}

func TestReclaimAfter(t *testing.T) {
	t.Parallel()

	attempt := 6 * time.Minute
	got := ReclaimAfter(attempt, DefaultMaxRetries)

	// Four attempts, the 2s+4s+8s backoffs and a minute of slack.
	assert.Equal(t, 4*attempt+14*time.Second+time.Minute, got)
	assert.Greater(t, got, (DefaultMaxRetries+1)*attempt)

	assert.Equal(t, DefaultClaimIdle, ReclaimAfter(time.Second, 0), "never below the default")
	assert.Equal(t, ReclaimAfter(attempt, 0), ReclaimAfter(attempt, -2))
}
