// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles,
// with an optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8000"`
	AppName string `env:"APP_NAME" envDefault:"Animation Generator API"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`

	// Cache and job queue (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Public base URL, used for absolute links in callbacks
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8000"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	LogDir    string `env:"LOG_DIR" envDefault:""`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Gemini
	GeminiAPIKey      string        `env:"GEMINI_API_KEY,required"`
	GeminiModel       string        `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash"`
	GeminiTemperature float32       `env:"GEMINI_TEMPERATURE" envDefault:"0.7"`
	GeminiMaxTokens   int32         `env:"GEMINI_MAX_TOKENS" envDefault:"2048"`
	GeminiTimeout     time.Duration `env:"GEMINI_TIMEOUT" envDefault:"60s"`

	// File paths
	OutputDir    string `env:"OUTPUT_DIR" envDefault:"outputs"`
	TempDir      string `env:"TEMP_DIR" envDefault:"outputs/temp"`
	AnimationDir string `env:"ANIMATION_DIR" envDefault:"outputs/animations"`
	TemplateDir  string `env:"TEMPLATE_DIR" envDefault:"templates"`

	// Rendering
	AnimationQuality     string        `env:"ANIMATION_QUALITY" envDefault:"medium_quality"`
	AnimationFormat      string        `env:"ANIMATION_FORMAT" envDefault:"mp4"`
	MaxAnimationDuration int           `env:"MAX_ANIMATION_DURATION" envDefault:"30"`
	ManimBinary          string        `env:"MANIM_BINARY" envDefault:"manim"`
	RenderTimeout        time.Duration `env:"RENDER_TIMEOUT" envDefault:"5m"`

	// Rate limiting (per client IP, generate endpoint)
	RateLimitEnabled     bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	MaxRequestsPerMinute int  `env:"MAX_REQUESTS_PER_MINUTE" envDefault:"10"`

	// CORS configuration
	// Comma-separated list of allowed origins; "*" allows any origin.
	CORSOrigins string `env:"CORS_ORIGINS" envDefault:"*"`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`

	// Workers
	WorkerEnabled     bool `env:"WORKER_ENABLED" envDefault:"true"`
	WorkerConcurrency int  `env:"WORKER_CONCURRENCY" envDefault:"2"`

	// Retention
	TaskRetention   time.Duration `env:"TASK_RETENTION" envDefault:"24h"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`

	// Admin routes. Argon2id PHC hash of the admin key; empty leaves admin routes open.
	AdminAPIKeyHash string `env:"ADMIN_API_KEY_HASH" envDefault:""`

	// Completion callbacks
	WebhookSigningSecret string `env:"WEBHOOK_SIGNING_SECRET" envDefault:""`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// EnsureDirectories creates the output, temp, animation and template directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.OutputDir, c.TempDir, c.AnimationDir, c.TemplateDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Load reads an optional .env file, then parses environment variables into a Config.
// Variables already present in the environment take precedence over .env values.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}
	if cfg.MaxAnimationDuration <= 0 {
		cfg.MaxAnimationDuration = 30
	}
	switch cfg.AnimationQuality {
	case "low_quality", "medium_quality", "high_quality", "production_quality":
	default:
		return nil, fmt.Errorf("invalid ANIMATION_QUALITY %q", cfg.AnimationQuality)
	}

	return cfg, nil
}
