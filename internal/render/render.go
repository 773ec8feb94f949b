// Package render executes Manim scene code and collects the resulting video.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/animagen/animagen/internal/metrics"
	"github.com/animagen/animagen/internal/model"
)

// Render errors.
var (
	ErrRenderFailed  = errors.New("manim execution failed")
	ErrRenderTimeout = errors.New("manim execution timed out")
	ErrOutputMissing = errors.New("animation file was not generated")
)

const (
	stderrTail    = 2000
	defaultFormat = "mp4"
)

// Config holds renderer settings.
type Config struct {
	Binary       string
	TempDir      string
	AnimationDir string
	Timeout      time.Duration
}

// Job is a single render request.
type Job struct {
	TaskID     string
	Code       string
	Quality    model.AnimationQuality
	Background string
	Format     string
}

// Result describes a rendered animation.
type Result struct {
	FilePath string
	FileSize int64
}

// Renderer runs the manim CLI.
type Renderer struct {
	cfg      Config
	logger   *slog.Logger
	recorder metrics.Recorder
}

// New creates a Renderer.
func New(cfg Config, logger *slog.Logger, recorder metrics.Recorder) *Renderer {
	if cfg.Binary == "" {
		cfg.Binary = "manim"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	// manim runs with TempDir as its working directory, so relative
	// paths would be resolved twice.
	cfg.TempDir = absPath(cfg.TempDir)
	cfg.AnimationDir = absPath(cfg.AnimationDir)
	return &Renderer{
		cfg:      cfg,
		logger:   logger.With("component", "renderer"),
		recorder: recorder,
	}
}

func absPath(dir string) string {
	if dir == "" {
		return dir
	}
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

// Render writes the scene script, runs manim and moves the video into the
// animation directory. The script and media directory are always removed.
func (r *Renderer) Render(ctx context.Context, job Job) (*Result, error) {
	start := time.Now()
	defer func() {
		r.recorder.ObserveRenderDuration(time.Since(start))
	}()

	format := job.Format
	if format == "" {
		format = defaultFormat
	}
	name := "animation_" + job.TaskID
	scriptPath := filepath.Join(r.cfg.TempDir, name+".py")
	mediaDir := filepath.Join(r.cfg.TempDir, "media_"+job.TaskID)

	defer func() {
		if err := os.Remove(scriptPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("failed to remove scene script", "path", scriptPath, "error", err)
		}
		if err := os.RemoveAll(mediaDir); err != nil {
			r.logger.Warn("failed to remove media dir", "path", mediaDir, "error", err)
		}
	}()

	script := PrepareScript(job.Code, job.Background)
	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write scene script: %w", err)
	}

	args := []string{
		scriptPath,
		"--format=" + format,
		"-q" + job.Quality.ManimFlag(),
		"-o", name,
		"--media_dir", mediaDir,
		"--disable_caching",
	}

	if err := r.run(ctx, args); err != nil {
		return nil, err
	}

	produced, err := findOutput(mediaDir, name, format, job.Quality.Resolution())
	if err != nil {
		return nil, err
	}

	dest := filepath.Join(r.cfg.AnimationDir, name+"."+format)
	if err := moveFile(produced, dest); err != nil {
		return nil, fmt.Errorf("failed to move animation: %w", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to stat animation: %w", err)
	}

	r.logger.Info("animation rendered", "task_id", job.TaskID, "path", dest, "size", info.Size())
	return &Result{FilePath: dest, FileSize: info.Size()}, nil
}

func (r *Renderer) run(ctx context.Context, args []string) error {
	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.cfg.Binary, args...)
	cmd.Dir = r.cfg.TempDir
	cmd.WaitDelay = 5 * time.Second

	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	r.logger.Info("executing manim", "binary", r.cfg.Binary, "args", strings.Join(args, " "))

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrRenderTimeout, r.cfg.Timeout)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	msg := tail(stderr.String(), stderrTail)
	if msg == "" {
		msg = err.Error()
	}
	r.logger.Error("manim execution failed", "error", err)
	return fmt.Errorf("%w: %s", ErrRenderFailed, msg)
}

// findOutput prefers the quality's resolution folder, then the newest
// matching file anywhere under the media directory.
func findOutput(mediaDir, name, format, resolution string) (string, error) {
	expected := filepath.Join(mediaDir, "videos", name, resolution, name+"."+format)
	if info, err := os.Stat(expected); err == nil && !info.IsDir() {
		return expected, nil
	}

	var (
		newest  string
		newestT time.Time
	)
	ext := "." + format
	err := filepath.WalkDir(mediaDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || filepath.Ext(path) != ext || strings.Contains(path, "partial_movie_files") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if newest == "" || info.ModTime().After(newestT) {
			newest, newestT = path, info.ModTime()
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to search media dir: %w", err)
	}
	if newest == "" {
		return "", ErrOutputMissing
	}
	return newest, nil
}

// moveFile renames src to dst, copying when they live on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Available reports whether the manim binary is on PATH.
func (r *Renderer) Available() bool {
	_, err := exec.LookPath(r.cfg.Binary)
	return err == nil
}

// Version returns the first line of `manim --version`.
func (r *Renderer) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, r.cfg.Binary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("manim --version: %w", err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line), nil
}
