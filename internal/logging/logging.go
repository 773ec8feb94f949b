// Package logging builds the application slog logger.
// Records go to stdout and, when a log directory is configured, to rotating files.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/natefinch/lumberjack"
)

// Rotation settings for the file sinks.
const (
	appLogMaxSizeMB   = 10
	appLogMaxAgeDays  = 7
	errLogMaxSizeMB   = 5
	errLogMaxAgeDays  = 30
	logFileMaxBackups = 5
)

// Options configures New.
type Options struct {
	Level  string
	Format string // json or text
	Dir    string // empty disables file logs
	Stdout io.Writer
}

// New creates the logger and installs it as the slog default.
// The returned closer flushes and closes any rotating files.
func New(opts Options) (*slog.Logger, io.Closer) {
	level := ParseLevel(opts.Level)
	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var console slog.Handler
	if opts.Format == "json" {
		console = slog.NewJSONHandler(out, handlerOpts)
	} else {
		console = slog.NewTextHandler(out, handlerOpts)
	}

	handlers := []slog.Handler{console}
	closers := multiCloser{}

	if opts.Dir != "" {
		appWriter := &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, "app.log"),
			MaxSize:    appLogMaxSizeMB,
			MaxBackups: logFileMaxBackups,
			MaxAge:     appLogMaxAgeDays,
			Compress:   true,
		}
		errWriter := &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, "errors.log"),
			MaxSize:    errLogMaxSizeMB,
			MaxBackups: logFileMaxBackups,
			MaxAge:     errLogMaxAgeDays,
			Compress:   true,
		}

		appLevel := level
		if appLevel < slog.LevelInfo {
			appLevel = slog.LevelInfo
		}

		handlers = append(handlers,
			slog.NewJSONHandler(appWriter, &slog.HandlerOptions{Level: appLevel}),
			slog.NewJSONHandler(errWriter, &slog.HandlerOptions{Level: slog.LevelError}),
		)
		closers = append(closers, appWriter, errWriter)
	}

	var h slog.Handler = console
	if len(handlers) > 1 {
		h = NewFanout(handlers...)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger, closers
}

// ParseLevel converts string log level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Fanout is a slog.Handler that forwards each record to every child handler
// enabled for the record's level.
type Fanout struct {
	handlers []slog.Handler
}

// NewFanout returns a handler writing to all of hs.
func NewFanout(hs ...slog.Handler) *Fanout {
	return &Fanout{handlers: hs}
}

// Enabled reports whether any child handler accepts the level.
func (f *Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle forwards the record. Each child gets its own clone.
func (f *Fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithAttrs implements slog.Handler.
func (f *Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &Fanout{handlers: hs}
}

// WithGroup implements slog.Handler.
func (f *Fanout) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &Fanout{handlers: hs}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

// RedactURL strips the password from a connection URL.
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

// SanitizeError renders err with any of the given connection URLs redacted.
func SanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := RedactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
