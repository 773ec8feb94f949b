package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	started  atomic.Int32
	stop     chan struct{}
	runErr   error
	drainFor time.Duration
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{stop: make(chan struct{})}
}

func (r *fakeRunner) Run(ctx context.Context) error {
	r.started.Add(1)
	if r.runErr != nil {
		return r.runErr
	}
	select {
	case <-r.stop:
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (r *fakeRunner) Shutdown(ctx context.Context) error {
	if r.drainFor > 0 {
		select {
		case <-time.After(r.drainFor):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	close(r.stop)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPool_StartAndShutdown(t *testing.T) {
	t.Parallel()

	r1, r2 := newFakeRunner(), newFakeRunner()
	p := NewPool(discardLogger(), r1, r2)
	assert.Equal(t, 2, p.Size())

	p.Start(context.Background())
	p.Start(context.Background()) // second call is ignored

	require.Eventually(t, func() bool {
		return r1.started.Load() == 1 && r2.started.Load() == 1
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
	require.NoError(t, p.Wait())
}

func TestPool_ShutdownTimeout(t *testing.T) {
	t.Parallel()

	slow := newFakeRunner()
	slow.drainFor = time.Hour
	p := NewPool(discardLogger(), slow)
	p.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The pool context is cancelled, so the runner still exits.
	require.NoError(t, p.Wait())
}

func TestPool_RunnerFailureCancelsOthers(t *testing.T) {
	t.Parallel()

	failing := newFakeRunner()
	failing.runErr = errors.New("ensure consumer group: NOAUTH")
	healthy := newFakeRunner()

	p := NewPool(discardLogger(), failing, healthy)
	p.Start(context.Background())

	err := p.Wait()
	assert.ErrorContains(t, err, "NOAUTH")
}

func TestPool_ShutdownWithoutStart(t *testing.T) {
	t.Parallel()

	p := NewPool(discardLogger(), newFakeRunner())
	assert.NoError(t, p.Shutdown(context.Background()))
}
