package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/animagen/animagen/internal/model"
	"github.com/animagen/animagen/internal/queue"
	"github.com/animagen/animagen/internal/render"
	"github.com/animagen/animagen/internal/repository"
)

// Pipeline status messages.
const (
	msgRefining         = "Refining prompt with AI..."
	msgGenerating       = "Generating animation..."
	msgFinalizing       = "Finalizing animation..."
	msgCompleted        = "Animation generated successfully!"
	msgRenderFailed     = "Animation generation failed"
	msgUnexpectedFailed = "Processing failed due to unexpected error"
)

// HandleJob runs the generation pipeline for a queued task.
// Generation and render failures end the task as failed and acknowledge the
// job; storage errors are returned so the worker retries. A task finished by
// another consumer meanwhile acknowledges the job without further writes.
func (s *AnimationService) HandleJob(ctx context.Context, job queue.RenderJob) error {
	err := s.runJob(ctx, job)
	if errors.Is(err, repository.ErrTaskFinished) {
		s.logger.Warn("task finished elsewhere, dropping job", "task_id", job.TaskID)
		return nil
	}
	return err
}

func (s *AnimationService) runJob(ctx context.Context, job queue.RenderJob) error {
	task, err := s.loadTask(ctx, job.TaskID)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return queue.Permanent(err)
		}
		return err
	}

	logger := s.logger.With("task_id", task.ID)
	if task.Status.IsTerminal() {
		logger.Info("skipping job for finished task", "status", task.Status)
		return nil
	}
	if s.generator == nil || s.renderer == nil {
		return queue.Permanent(errors.New("pipeline is not configured"))
	}

	logger.Info("starting animation pipeline", "queued_for", time.Since(job.EnqueuedAt).Round(time.Millisecond))

	if err := s.transition(ctx, task, model.StateUpdate{Status: model.TaskStatusProcessing, Progress: 10, Message: msgRefining}); err != nil {
		return err
	}

	start := time.Now()
	refined, err := s.generator.Generate(ctx, task.Request.Prompt, task.Request.Style, task.Request.Duration)
	s.metrics.ObserveGenerationDuration(time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Error("prompt refinement failed", "error", err)
		return s.fail(ctx, task, msgUnexpectedFailed, "Unexpected error: "+err.Error())
	}
	if err := s.repo.SaveRefinedPrompt(ctx, task.ID, refined); err != nil {
		return fmt.Errorf("failed to save refined prompt: %w", err)
	}
	logger.Info("prompt refined", "estimated_duration", refined.EstimatedDuration)

	if err := s.transition(ctx, task, model.StateUpdate{Status: model.TaskStatusProcessing, Progress: 50, Message: msgGenerating}); err != nil {
		return err
	}

	result, err := s.renderer.Render(ctx, render.Job{
		TaskID:     task.ID,
		Code:       refined.ManimCode,
		Quality:    task.Request.Quality,
		Background: task.Request.BackgroundColor,
		Format:     s.opts.Format,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Error("animation render failed", "error", err)
		return s.fail(ctx, task, msgRenderFailed, err.Error())
	}

	if err := s.transition(ctx, task, model.StateUpdate{Status: model.TaskStatusProcessing, Progress: 90, Message: msgFinalizing}); err != nil {
		return err
	}

	err = s.transition(ctx, task, model.StateUpdate{
		Status:   model.TaskStatusCompleted,
		Progress: 100,
		Message:  msgCompleted,
		FilePath: result.FilePath,
		FileURL:  model.DownloadPath(task.ID),
	})
	if err != nil {
		return err
	}

	s.metrics.IncTaskCompleted()
	s.notifier.Notify(task)
	logger.Info("animation generation completed", "path", result.FilePath, "size", result.FileSize)
	return nil
}

// HandleDeadLetter fails a task whose job the worker gave up on.
func (s *AnimationService) HandleDeadLetter(ctx context.Context, job queue.RenderJob, cause error) {
	task, err := s.loadTask(ctx, job.TaskID)
	if err != nil {
		s.logger.Warn("dead-lettered job has no task", "task_id", job.TaskID, "error", err)
		return
	}
	if task.Status.IsTerminal() {
		return
	}

	detail := "Unexpected error"
	if cause != nil {
		detail = "Unexpected error: " + cause.Error()
	}
	if err := s.fail(ctx, task, msgUnexpectedFailed, detail); err != nil && !errors.Is(err, repository.ErrTaskFinished) {
		s.logger.Error("failed to mark dead-lettered task as failed", "task_id", task.ID, "error", err)
	}
}
