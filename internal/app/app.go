// Package app wires the components shared by the API server and the worker.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/animagen/animagen/internal/cache"
	"github.com/animagen/animagen/internal/config"
	"github.com/animagen/animagen/internal/gemini"
	"github.com/animagen/animagen/internal/logging"
	"github.com/animagen/animagen/internal/metrics"
	"github.com/animagen/animagen/internal/model"
	"github.com/animagen/animagen/internal/prompt"
	"github.com/animagen/animagen/internal/queue"
	"github.com/animagen/animagen/internal/render"
	"github.com/animagen/animagen/internal/repository"
	"github.com/animagen/animagen/internal/server"
	"github.com/animagen/animagen/internal/service"
	"github.com/animagen/animagen/internal/storage"
	"github.com/animagen/animagen/internal/webhook"
)

// NewLogger builds the process logger from cfg, writing console records to
// stdout and rotating files under LOG_DIR when set.
func NewLogger(cfg *config.Config, stdout io.Writer) (*slog.Logger, io.Closer) {
	return logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Dir:    cfg.LogDir,
		Stdout: stdout,
	})
}

// App holds the long-lived components built from a Config.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Repo     *repository.Repository
	Cache    *cache.Cache
	Metrics  *metrics.InMemoryRecorder
	Renderer *render.Renderer
	Store    *storage.Store
	Notifier *webhook.Notifier
	Service  *service.AnimationService
}

// New connects to Postgres and Redis and builds the animation service.
// On error every connection opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.NewInMemory()}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	a.Repo, err = repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database",
			slog.String("error", logging.SanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", logging.RedactURL(cfg.DatabaseURL)),
		)
		return nil, fmt.Errorf("connect database: %s", logging.SanitizeError(err, cfg.DatabaseURL))
	}
	logger.Info("connected to database")

	if cfg.AutoMigrate {
		applied, err := a.Repo.Migrate(ctx)
		if err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("applied migrations", "versions", applied)
		}
	}

	workers := 0
	if cfg.WorkerEnabled {
		workers = cfg.WorkerConcurrency
	}
	a.Cache, err = cache.New(ctx, cfg.RedisURL, cache.Options{Workers: workers})
	if err != nil {
		logger.Error("failed to connect to Redis",
			slog.String("error", logging.SanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", logging.RedactURL(cfg.RedisURL)),
		)
		return nil, fmt.Errorf("connect redis: %s", logging.SanitizeError(err, cfg.RedisURL))
	}
	logger.Info("connected to Redis")

	prompts, err := prompt.Load(cfg.TemplateDir)
	if err != nil {
		return nil, fmt.Errorf("load prompt templates: %w", err)
	}

	generator, err := gemini.New(ctx, gemini.Config{
		APIKey:      cfg.GeminiAPIKey,
		Model:       cfg.GeminiModel,
		Temperature: cfg.GeminiTemperature,
		MaxTokens:   cfg.GeminiMaxTokens,
		Timeout:     cfg.GeminiTimeout,
	}, prompts, logger)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	a.Renderer = render.New(render.Config{
		Binary:       cfg.ManimBinary,
		TempDir:      cfg.TempDir,
		AnimationDir: cfg.AnimationDir,
		Timeout:      cfg.RenderTimeout,
	}, logger, a.Metrics)
	if !a.Renderer.Available() {
		logger.Warn("manim binary not found, renders will fail", "binary", cfg.ManimBinary)
	}

	a.Store = storage.New(cfg.AnimationDir, cfg.TempDir, logger)

	a.Notifier = webhook.NewNotifier(webhook.Options{
		BaseURL: cfg.BaseURL,
		Signer:  webhook.NewSigner(cfg.WebhookSigningSecret),

		BlockPrivateNetworks: cfg.IsProduction(),
	}, logger, a.Metrics)

	a.Service = service.NewAnimationService(service.Dependencies{
		Repo:      a.Repo,
		Cache:     a.Cache,
		Publisher: queue.NewPublisher(a.Cache.Client(), logger, a.Metrics),
		Generator: generator,
		Renderer:  a.Renderer,
		Store:     a.Store,
		Notifier:  a.Notifier,
		Metrics:   a.Metrics,
		Logger:    logger,
	}, service.Options{
		MaxDuration:     cfg.MaxAnimationDuration,
		StrictCallbacks: cfg.IsProduction(),
		Format:          cfg.AnimationFormat,
		DefaultQuality:  model.AnimationQuality(cfg.AnimationQuality),
	})

	return a, nil
}

// RegisterShutdown closes the repository, cache and notifier when lc shuts
// down. Register them before anything that depends on them.
func (a *App) RegisterShutdown(lc *server.Lifecycle) {
	lc.OnShutdown("repository", func(context.Context) error {
		a.Repo.Close()
		return nil
	})
	lc.OnShutdown("cache", func(context.Context) error {
		return a.Cache.Close()
	})
	lc.OnShutdown("webhook notifier", a.Notifier.Close)
}

// StartCleanupLoop runs scheduled cleanup until lc shuts down.
// It does nothing when CleanupInterval is zero.
func (a *App) StartCleanupLoop(ctx context.Context, lc *server.Lifecycle) {
	if a.Config.CleanupInterval <= 0 {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Service.RunCleanupLoop(loopCtx, a.Config.CleanupInterval, a.Config.TaskRetention)
	}()

	lc.OnShutdown("cleanup loop", func(ctx context.Context) error {
		cancel()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// StartWorkers starts WorkerConcurrency render workers and stops them first
// on shutdown.
func (a *App) StartWorkers(ctx context.Context, lc *server.Lifecycle) *queue.Pool {
	claimIdle := queue.ReclaimAfter(a.Config.GeminiTimeout+a.Config.RenderTimeout, queue.DefaultMaxRetries)

	pool := queue.NewWorkerPool(a.Cache.Client(), a.Service, a.Logger, a.Metrics, queue.WorkerOptions{
		Concurrency: a.Config.WorkerConcurrency,
		ClaimIdle:   claimIdle,
	})
	pool.Start(ctx)
	a.Logger.Info("render workers started", "concurrency", pool.Size())

	lc.OnShutdown("worker pool", pool.Shutdown)
	return pool
}

func (a *App) close() {
	if a.Cache != nil {
		_ = a.Cache.Close()
	}
	if a.Repo != nil {
		a.Repo.Close()
	}
}
