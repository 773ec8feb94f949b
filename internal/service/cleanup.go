package service

import (
	"context"
	"fmt"
	"time"

	"github.com/animagen/animagen/internal/storage"
)

// CleanupResult reports what a cleanup run removed.
type CleanupResult struct {
	CleanedTasks          int    `json:"cleaned_tasks"`
	CleanedAnimationFiles int    `json:"cleaned_animation_files"`
	CleanedTempFiles      int    `json:"cleaned_temp_files"`
	Message               string `json:"message"`
}

// Cleanup removes tasks older than hours, animation files older than
// max(hours/24, 1) days, and stale scratch files.
func (s *AnimationService) Cleanup(ctx context.Context, hours int) (*CleanupResult, error) {
	if hours < 1 {
		return nil, fmt.Errorf("%w: hours must be at least 1", ErrValidation)
	}

	cutoff := s.now().Add(-time.Duration(hours) * time.Hour)
	ids, err := s.repo.DeleteTasksCreatedBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to delete old tasks: %w", err)
	}
	if len(ids) > 0 {
		if err := s.cache.DeleteTask(ctx, ids...); err != nil {
			s.logger.Warn("failed to evict cleaned tasks from cache", "count", len(ids), "error", err)
		}
	}

	days := hours / 24
	if days < 1 {
		days = 1
	}
	files, err := s.store.CleanupOldAnimations(time.Duration(days) * 24 * time.Hour)
	if err != nil {
		return nil, fmt.Errorf("failed to clean animation files: %w", err)
	}

	temp, err := s.store.CleanupTempFiles(s.opts.TempMaxAge)
	if err != nil {
		return nil, fmt.Errorf("failed to clean temp files: %w", err)
	}

	result := &CleanupResult{
		CleanedTasks:          len(ids),
		CleanedAnimationFiles: files,
		CleanedTempFiles:      temp,
		Message: fmt.Sprintf("Cleanup completed. Removed %d tasks, %d animation files, and %d temp files.",
			len(ids), files, temp),
	}

	s.logger.Info("cleanup completed",
		"hours", hours,
		"tasks", result.CleanedTasks,
		"animation_files", result.CleanedAnimationFiles,
		"temp_files", result.CleanedTempFiles,
	)
	return result, nil
}

// StorageStats reports disk usage of animations and scratch files.
func (s *AnimationService) StorageStats() (storage.Stats, error) {
	return s.store.Stats()
}

// RunCleanupLoop calls Cleanup every interval until ctx is cancelled.
func (s *AnimationService) RunCleanupLoop(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 {
		return
	}
	hours := int(retention / time.Hour)
	if hours < 1 {
		hours = 1
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("cleanup loop started", "interval", interval, "retention_hours", hours)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cleanup loop stopped")
			return
		case <-ticker.C:
			if _, err := s.Cleanup(ctx, hours); err != nil && ctx.Err() == nil {
				s.logger.Error("scheduled cleanup failed", "error", err)
			}
		}
	}
}
