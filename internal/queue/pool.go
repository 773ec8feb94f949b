package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/animagen/animagen/internal/metrics"
)

// Runner is a long-running consumer that can be drained.
type Runner interface {
	Run(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Pool runs a fixed set of runners under one errgroup.
// If any runner fails, the others are cancelled.
type Pool struct {
	runners []Runner
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// NewPool creates a pool over the given runners.
func NewPool(logger *slog.Logger, runners ...Runner) *Pool {
	return &Pool{
		runners: runners,
		logger:  logger.With("component", "queue.pool"),
		done:    make(chan struct{}),
	}
}

// WorkerOptions tunes the workers created by NewWorkerPool.
type WorkerOptions struct {
	Concurrency int
	ClaimIdle   time.Duration
}

// NewWorkerPool creates opts.Concurrency render workers sharing one handler.
func NewWorkerPool(client *redis.Client, handler JobHandler, logger *slog.Logger, recorder metrics.Recorder, opts WorkerOptions) *Pool {
	n := opts.Concurrency
	if n < 1 {
		n = 1
	}

	base := NewConsumerID()
	runners := make([]Runner, 0, n)
	for i := 0; i < n; i++ {
		runners = append(runners, NewWorker(client, handler, logger, recorder, WorkerConfig{
			ConsumerID: fmt.Sprintf("%s-%d", base, i),
			ClaimIdle:  opts.ClaimIdle,
		}))
	}

	return NewPool(logger, runners...)
}

// Size returns the number of runners.
func (p *Pool) Size() int {
	return len(p.runners)
}

// Start launches every runner in the background. It is a no-op when called twice.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range p.runners {
		g.Go(func() error {
			return r.Run(gctx)
		})
	}

	go func() {
		err := g.Wait()
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		if err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Error("worker pool stopped with error", "error", err)
		}
		close(p.done)
	}()

	p.logger.Info("worker pool started", "workers", len(p.runners))
}

// Wait blocks until every runner has returned and reports the first error.
func (p *Pool) Wait() error {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Shutdown drains every runner in parallel, then waits for the pool to exit.
// It implements server.ShutdownFunc for integration with graceful shutdown.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	started := p.started
	cancel := p.cancel
	p.mu.Unlock()

	if !started {
		return nil
	}

	var g errgroup.Group
	for _, r := range p.runners {
		g.Go(func() error {
			return r.Shutdown(ctx)
		})
	}
	drainErr := g.Wait()

	select {
	case <-p.done:
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
	cancel()

	if drainErr != nil {
		return fmt.Errorf("drain workers: %w", drainErr)
	}

	p.logger.Info("worker pool stopped")
	return nil
}
