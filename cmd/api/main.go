// Package main is the entrypoint for the animation API server.
package main

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/animagen/animagen/internal/app"
	"github.com/animagen/animagen/internal/config"
	"github.com/animagen/animagen/internal/gemini"
	"github.com/animagen/animagen/internal/handler"
	"github.com/animagen/animagen/internal/middleware"
	"github.com/animagen/animagen/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Initialize context
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	// Initialize logger
	logger, closer := app.NewLogger(cfg, os.Stdout)
	defer closer.Close()
	slog.SetDefault(logger)

	// Initialize database, cache and services
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		return 1
	}

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(a.Repo, a.Cache, handler.HealthOptions{
		Version:          handler.Version,
		GeminiConfigured: cfg.GeminiAPIKey != "",
		GeminiSDKVersion: gemini.SDKVersion(),
		Renderer:         a.Renderer,
		Files:            a.Store,
		Directories: map[string]string{
			"output":    cfg.OutputDir,
			"temp":      cfg.TempDir,
			"animation": cfg.AnimationDir,
		},
		Settings: map[string]any{
			"app_env":                 cfg.AppEnv,
			"gemini_model":            cfg.GeminiModel,
			"animation_quality":       cfg.AnimationQuality,
			"animation_format":        cfg.AnimationFormat,
			"max_animation_duration":  cfg.MaxAnimationDuration,
			"rate_limit_enabled":      cfg.RateLimitEnabled,
			"max_requests_per_minute": cfg.MaxRequestsPerMinute,
			"worker_enabled":          cfg.WorkerEnabled,
			"worker_concurrency":      cfg.WorkerConcurrency,
			"go_max_procs":            runtime.GOMAXPROCS(0),
		},
	})

	if cfg.AdminAPIKeyHash == "" {
		logger.Warn("ADMIN_API_KEY_HASH is not set, admin routes are open")
	}

	// Setup router
	r := setupRouter(routes{
		root:      handler.New(cfg.AppName, handler.Version),
		health:    healthHandler,
		animation: handler.NewAnimationHandler(a.Service, logger),
		metrics:   handler.NewMetricsHandler(a.Metrics),
		rateLimit: middleware.RateLimitConfig{
			Logger:  logger,
			Limiter: a.Cache,
			Metrics: a.Metrics,
			Enabled: cfg.RateLimitEnabled,
			Limit:   cfg.MaxRequestsPerMinute,
			Window:  time.Minute,
		},
		adminAuth: middleware.AdminAuthConfig{
			Logger:  logger,
			KeyHash: cfg.AdminAPIKeyHash,
			Cache:   a.Cache,
		},
		corsOrigins: cfg.GetCORSAllowedOrigins(),
		development: cfg.IsDevelopment(),
		maxBodySize: cfg.MaxRequestBodySize,
	}, logger)

	// Create server; components registered first are stopped last
	srv := server.New(r, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)
	a.RegisterShutdown(srv.Lifecycle)
	a.StartCleanupLoop(ctx, srv.Lifecycle)
	if cfg.WorkerEnabled {
		a.StartWorkers(ctx, srv.Lifecycle)
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
		"workers", cfg.WorkerEnabled,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		return 1
	}
	return 0
}
