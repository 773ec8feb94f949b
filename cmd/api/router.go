package main

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/animagen/animagen/internal/handler"
	"github.com/animagen/animagen/internal/middleware"
)

type routes struct {
	root      *handler.Handler
	health    *handler.HealthHandler
	animation *handler.AnimationHandler
	metrics   *handler.MetricsHandler

	rateLimit middleware.RateLimitConfig
	adminAuth middleware.AdminAuthConfig

	corsOrigins []string
	development bool
	maxBodySize int64
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(rt routes, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	securityCfg := middleware.DefaultSecurityConfig()
	securityCfg.IsDevelopment = rt.development
	if rt.maxBodySize > 0 {
		securityCfg.MaxRequestBodySize = rt.maxBodySize
	}

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(securityCfg))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(rt.corsOrigins)))
	r.Use(middleware.MaxBodySize(securityCfg.MaxRequestBodySize))

	// Probes and metrics (no auth required)
	r.Get("/healthz", rt.health.Healthz)
	r.Get("/readyz", rt.health.Readyz)
	r.Get("/metrics", rt.metrics.Metrics)

	// Root info endpoint
	r.Get("/", rt.root.Hello)

	r.Route("/api/health", func(r chi.Router) {
		r.Get("/", rt.health.Health)
		r.Get("/detailed", rt.health.Detailed)
		r.Get("/ready", rt.health.Ready)
		r.Get("/live", rt.health.Live)
	})

	r.Route("/api/animations", func(r chi.Router) {
		r.With(middleware.RateLimitIP(rt.rateLimit)).Post("/generate", rt.animation.Generate)

		r.Group(func(r chi.Router) {
			r.Use(middleware.ValidateTaskID)
			r.Get("/status/{taskID}", rt.animation.Status)
			r.Get("/download/{taskID}", rt.animation.Download)
			r.Get("/refined-prompt/{taskID}", rt.animation.RefinedPrompt)
			r.Get("/events/{taskID}", rt.animation.Events)
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminAuth(rt.adminAuth))
			r.Get("/list", rt.animation.List)
			r.Delete("/cleanup", rt.animation.Cleanup)
			r.Get("/storage-stats", rt.animation.StorageStats)
		})
	})

	// 404 and 405 handlers
	r.NotFound(rt.root.NotFound)
	r.MethodNotAllowed(rt.root.MethodNotAllowed)

	return r
}
