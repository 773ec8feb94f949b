// Package main runs render workers without the HTTP API.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/animagen/animagen/internal/app"
	"github.com/animagen/animagen/internal/config"
	"github.com/animagen/animagen/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger, closer := app.NewLogger(cfg, os.Stdout)
	defer closer.Close()
	logger = logger.With("process", "worker")
	slog.SetDefault(logger)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		return 1
	}

	lc := server.NewLifecycle(cfg.ShutdownTimeout, logger)
	a.RegisterShutdown(lc)
	a.StartCleanupLoop(ctx, lc)
	pool := a.StartWorkers(ctx, lc)

	// Shut down as well if every worker exits on its own.
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		_ = pool.Wait()
		cancel()
	}()

	if err := lc.Wait(waitCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return 1
	}
	logger.Info("worker stopped")
	return 0
}
