// Package storage manages rendered animation files on local disk.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrFileNotFound is returned when no animation exists for a task.
var ErrFileNotFound = errors.New("animation file not found")

var videoExtensions = map[string]bool{".mp4": true, ".mov": true, ".avi": true}

// Stats summarises disk usage.
type Stats struct {
	AnimationCount  int     `json:"animation_count"`
	AnimationSizeMB float64 `json:"animation_size_mb"`
	TempFilesCount  int     `json:"temp_files_count"`
	TempSizeMB      float64 `json:"temp_size_mb"`
	TotalSizeMB     float64 `json:"total_size_mb"`
}

// Store locates and prunes animation and temp files.
type Store struct {
	animationDir string
	tempDir      string
	logger       *slog.Logger
	now          func() time.Time
}

// New creates a Store.
func New(animationDir, tempDir string, logger *slog.Logger) *Store {
	return &Store{
		animationDir: animationDir,
		tempDir:      tempDir,
		logger:       logger.With("component", "storage"),
		now:          time.Now,
	}
}

// AnimationDir returns the directory holding finished videos.
func (s *Store) AnimationDir() string {
	return s.animationDir
}

// FindAnimation returns the path of a task's video.
func (s *Store) FindAnimation(taskID string) (string, error) {
	if taskID == "" || strings.ContainsAny(taskID, `/\*?[`) {
		return "", ErrFileNotFound
	}

	expected := filepath.Join(s.animationDir, "animation_"+taskID+".mp4")
	if info, err := os.Stat(expected); err == nil && !info.IsDir() {
		return expected, nil
	}

	matches, err := filepath.Glob(filepath.Join(s.animationDir, "*"+taskID+"*"))
	if err != nil {
		return "", fmt.Errorf("failed to search animations: %w", err)
	}
	for _, path := range matches {
		if videoExtensions[strings.ToLower(filepath.Ext(path))] {
			return path, nil
		}
	}

	s.logger.Warn("animation file not found", "task_id", taskID)
	return "", ErrFileNotFound
}

// CleanupOldAnimations removes videos last modified more than maxAge ago.
func (s *Store) CleanupOldAnimations(maxAge time.Duration) (int, error) {
	files, err := filepath.Glob(filepath.Join(s.animationDir, "*.mp4"))
	if err != nil {
		return 0, fmt.Errorf("failed to list animations: %w", err)
	}

	cutoff := s.now().Add(-maxAge)
	cleaned := 0
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			s.logger.Warn("failed to delete old animation", "path", path, "error", err)
			continue
		}
		cleaned++
		s.logger.Info("deleted old animation", "file", filepath.Base(path))
	}

	s.logger.Info("cleaned up old animation files", "count", cleaned)
	return cleaned, nil
}

// CleanupTempFiles removes scripts and media dirs older than maxAge, leaving
// anything a running render may still be using.
func (s *Store) CleanupTempFiles(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list temp dir: %w", err)
	}

	cutoff := s.now().Add(-maxAge)
	cleaned := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.tempDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn("failed to delete temp file", "path", path, "error", err)
			continue
		}
		cleaned++
	}

	s.logger.Info("cleaned up temporary files", "count", cleaned)
	return cleaned, nil
}

// Stats reports file counts and sizes in megabytes.
func (s *Store) Stats() (Stats, error) {
	animations, err := filepath.Glob(filepath.Join(s.animationDir, "*.mp4"))
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list animations: %w", err)
	}

	var animSize int64
	for _, path := range animations {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			animSize += info.Size()
		}
	}

	var (
		tempCount int
		tempSize  int64
	)
	entries, err := os.ReadDir(s.tempDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Stats{}, fmt.Errorf("failed to list temp dir: %w", err)
	}
	for _, entry := range entries {
		tempCount++
		if info, err := entry.Info(); err == nil && !info.IsDir() {
			tempSize += info.Size()
		}
	}

	return Stats{
		AnimationCount:  len(animations),
		AnimationSizeMB: toMB(animSize),
		TempFilesCount:  tempCount,
		TempSizeMB:      toMB(tempSize),
		TotalSizeMB:     toMB(animSize + tempSize),
	}, nil
}

// Writable reports whether both directories accept new files.
func (s *Store) Writable() error {
	for _, dir := range []string{s.animationDir, s.tempDir} {
		f, err := os.CreateTemp(dir, ".probe-*")
		if err != nil {
			return fmt.Errorf("%s is not writable: %w", dir, err)
		}
		name := f.Name()
		f.Close()
		os.Remove(name)
	}
	return nil
}

func toMB(n int64) float64 {
	return math.Round(float64(n)/(1024*1024)*100) / 100
}
