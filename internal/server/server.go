// Package server provides process lifecycle management.
// Includes graceful shutdown handling for the API and worker binaries.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc is a function that shuts down a component gracefully.
type ShutdownFunc func(ctx context.Context) error

// Lifecycle runs registered shutdown functions once the process is asked to stop.
type Lifecycle struct {
	shutdownTimeout time.Duration
	logger          *slog.Logger
	shutdownFuncs   []ShutdownFunc
	mu              sync.Mutex
}

// NewLifecycle creates a Lifecycle with no HTTP listener.
func NewLifecycle(shutdownTimeout time.Duration, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
	}
}

// OnShutdown registers a function to be called during graceful shutdown.
// Shutdown functions are called in reverse order (LIFO).
// Register long-lived dependencies first so they are stopped last.
func (l *Lifecycle) OnShutdown(name string, fn ShutdownFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shutdownFuncs = append(l.shutdownFuncs, func(ctx context.Context) error {
		l.logger.Info("shutting down component", "name", name)
		if err := fn(ctx); err != nil {
			l.logger.Error("component shutdown error", "name", name, "error", err)
			return fmt.Errorf("%s: %w", name, err)
		}
		l.logger.Info("component stopped", "name", name)
		return nil
	})
}

// Wait blocks until SIGINT, SIGTERM or ctx cancellation, then shuts down.
func (l *Lifecycle) Wait(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	l.logger.Info("shutdown signal received")
	return l.shutdownComponents(context.Background())
}

func (l *Lifecycle) shutdownComponents(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, l.shutdownTimeout)
	defer cancel()

	l.mu.Lock()
	funcs := l.shutdownFuncs
	l.mu.Unlock()

	l.logger.Info("stopping registered components", "count", len(funcs), "timeout", l.shutdownTimeout)

	var errs []error
	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		l.logger.Error("shutdown completed with errors", "error_count", len(errs))
		return errors.Join(errs...)
	}

	l.logger.Info("stopped gracefully")
	return nil
}

// Options configure the HTTP listener.
type Options struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server wraps http.Server with graceful shutdown.
type Server struct {
	*Lifecycle
	httpServer *http.Server
	ready      chan struct{}
	addr       net.Addr
}

// New creates a new Server instance.
func New(handler http.Handler, opts Options, logger *slog.Logger) *Server {
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = 2 * opts.WriteTimeout
	}
	return &Server{
		Lifecycle: NewLifecycle(opts.ShutdownTimeout, logger),
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", opts.Port),
			Handler:           handler,
			ReadTimeout:       opts.ReadTimeout,
			ReadHeaderTimeout: opts.ReadTimeout,
			WriteTimeout:      opts.WriteTimeout,
			IdleTimeout:       idle,
		},
		ready: make(chan struct{}),
	}
}

// Run starts the server and blocks until a shutdown signal is received or
// ctx is cancelled. The HTTP listener is stopped before registered components.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	s.addr = ln.Addr()
	close(s.ready)

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.addr.String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		_ = s.shutdownComponents(context.Background())
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
		return s.gracefulShutdown()
	}
}

// gracefulShutdown stops the listener, then all registered components.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info("phase 1: stopping HTTP server", "timeout", s.shutdownTimeout)
	s.httpServer.SetKeepAlivesEnabled(false)

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}
	s.logger.Info("HTTP server stopped")

	s.logger.Info("phase 2: stopping registered components")
	return s.shutdownComponents(context.Background())
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address once Ready is closed, else the configured one.
func (s *Server) Addr() string {
	select {
	case <-s.ready:
		return s.addr.String()
	default:
		return s.httpServer.Addr
	}
}
