// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/animagen/animagen/internal/cache"
	"github.com/animagen/animagen/internal/gemini"
	"github.com/animagen/animagen/internal/metrics"
	"github.com/animagen/animagen/internal/model"
	"github.com/animagen/animagen/internal/queue"
	"github.com/animagen/animagen/internal/render"
	"github.com/animagen/animagen/internal/repository"
	"github.com/animagen/animagen/internal/storage"
	"github.com/animagen/animagen/internal/webhook"
)

// Service errors.
var (
	ErrValidation            = model.ErrValidation
	ErrTaskNotFound          = errors.New("task not found")
	ErrRefinedPromptNotReady = errors.New("task not found or prompt not yet processed")
	ErrTaskNotReady          = errors.New("animation is not ready")
	ErrFileNotFound          = errors.New("animation file not found")
	ErrQueueUnavailable      = errors.New("render queue unavailable")
	ErrInvalidCursor         = errors.New("invalid pagination cursor")
)

// NotReadyError reports the status of a task whose animation cannot be served yet.
type NotReadyError struct {
	Status model.TaskStatus
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("animation is not ready. current status: %s", e.Status)
}

func (e *NotReadyError) Unwrap() error {
	return ErrTaskNotReady
}

const (
	msgTaskCreated      = "Task created, waiting to start processing"
	msgQueueUnavailable = "Task could not be queued"
	defaultListLimit    = 50
	maxListLimit        = 200
)

// TaskRepository is the durable task store.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	UpdateTaskState(ctx context.Context, task *model.Task) error
	SaveRefinedPrompt(ctx context.Context, taskID string, rp *model.RefinedPrompt) error
	GetRefinedPrompt(ctx context.Context, taskID string) (*model.RefinedPrompt, error)
	ListTasks(ctx context.Context, cursor string, limit int) ([]*model.Task, string, error)
	CountTasks(ctx context.Context) (int64, error)
	DeleteTasksCreatedBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	InsertTaskEvent(ctx context.Context, event *model.TaskEvent) error
	ListTaskEvents(ctx context.Context, taskID string) ([]*model.TaskEvent, error)
}

// TaskCache holds the hot copy of task state.
type TaskCache interface {
	GetTask(ctx context.Context, id string) (*model.Task, error)
	SetTask(ctx context.Context, task *model.Task) error
	DeleteTask(ctx context.Context, ids ...string) error
}

// JobPublisher enqueues render jobs.
type JobPublisher interface {
	Publish(ctx context.Context, job queue.RenderJob) (string, error)
}

// Renderer turns scene code into a video file.
type Renderer interface {
	Render(ctx context.Context, job render.Job) (*render.Result, error)
}

// FileStore manages rendered animations and scratch files on disk.
type FileStore interface {
	FindAnimation(taskID string) (string, error)
	CleanupOldAnimations(maxAge time.Duration) (int, error)
	CleanupTempFiles(maxAge time.Duration) (int, error)
	Stats() (storage.Stats, error)
}

// Notifier delivers completion callbacks.
type Notifier interface {
	Notify(task *model.Task)
}

type noopNotifier struct{}

func (noopNotifier) Notify(*model.Task) {}

// Dependencies are the collaborators of AnimationService.
type Dependencies struct {
	Repo      TaskRepository
	Cache     TaskCache
	Publisher JobPublisher
	Generator gemini.Generator
	Renderer  Renderer
	Store     FileStore
	Notifier  Notifier
	Metrics   metrics.Recorder
	Logger    *slog.Logger
}

// Options tune AnimationService behaviour.
type Options struct {
	// MaxDuration caps requested durations, in seconds.
	MaxDuration int
	// StrictCallbacks rejects callback URLs that point at private or loopback hosts.
	StrictCallbacks bool
	// Format is the container format passed to the renderer.
	Format string
	// TempMaxAge is the age after which scratch files are removed by Cleanup.
	TempMaxAge time.Duration
	// DefaultQuality is used when a request names no quality.
	DefaultQuality model.AnimationQuality
}

// AnimationService orchestrates prompt refinement, rendering and task state.
type AnimationService struct {
	repo      TaskRepository
	cache     TaskCache
	publisher JobPublisher
	generator gemini.Generator
	renderer  Renderer
	store     FileStore
	notifier  Notifier
	metrics   metrics.Recorder
	logger    *slog.Logger
	opts      Options
	now       func() time.Time
}

// NewAnimationService creates a new AnimationService.
func NewAnimationService(deps Dependencies, opts Options) *AnimationService {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoop()
	}
	if deps.Notifier == nil {
		deps.Notifier = noopNotifier{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.MaxDuration <= 0 || opts.MaxDuration > model.MaxDuration {
		opts.MaxDuration = model.MaxDuration
	}
	if opts.TempMaxAge <= 0 {
		opts.TempMaxAge = time.Hour
	}
	return &AnimationService{
		repo:      deps.Repo,
		cache:     deps.Cache,
		publisher: deps.Publisher,
		generator: deps.Generator,
		renderer:  deps.Renderer,
		store:     deps.Store,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    deps.Logger.With("component", "service.animation"),
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateAnimation validates a request, stores a pending task and queues it for rendering.
func (s *AnimationService) CreateAnimation(ctx context.Context, req model.AnimationRequest) (*model.Task, error) {
	if req.Quality == "" {
		req.Quality = s.opts.DefaultQuality
	}
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Duration > s.opts.MaxDuration {
		req.Duration = s.opts.MaxDuration
	}
	if req.CallbackURL != "" {
		if err := webhook.ValidateCallbackURL(req.CallbackURL, s.opts.StrictCallbacks); err != nil {
			return nil, fmt.Errorf("%w: callback_url: %v", ErrValidation, err)
		}
	}

	now := s.now()
	task := &model.Task{
		ID:        uuid.NewString(),
		Status:    model.TaskStatusPending,
		Progress:  0,
		Message:   msgTaskCreated,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	s.metrics.IncTaskCreated()
	s.recordEvent(ctx, task)
	s.cacheTask(ctx, task)

	if _, err := s.publisher.Publish(ctx, queue.RenderJob{TaskID: task.ID, EnqueuedAt: now}); err != nil {
		s.logger.Error("failed to queue render job", "task_id", task.ID, "error", err)
		if ferr := s.fail(ctx, task, msgQueueUnavailable, "Render queue unavailable"); ferr != nil {
			s.logger.Error("failed to mark unqueued task as failed", "task_id", task.ID, "error", ferr)
		}
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	s.logger.Info("animation task created",
		"task_id", task.ID,
		"style", req.Style,
		"quality", req.Quality,
		"prompt", task.PromptPreview(),
	)
	return task, nil
}

// GetStatus returns the current state of a task, preferring the cache.
func (s *AnimationService) GetStatus(ctx context.Context, id string) (*model.Task, error) {
	cached, err := s.cache.GetTask(ctx, id)
	if err == nil {
		s.metrics.IncTaskCacheHit()
		return cached, nil
	}
	if errors.Is(err, cache.ErrCacheMiss) {
		s.metrics.IncTaskCacheMiss()
	} else {
		s.logger.Warn("task cache read failed", "task_id", id, "error", err)
	}

	task, err := s.loadTask(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheTask(ctx, task)
	return task, nil
}

// GetRefinedPrompt returns the refined prompt and scene code generated for a task.
func (s *AnimationService) GetRefinedPrompt(ctx context.Context, id string) (*model.RefinedPrompt, error) {
	if _, err := s.GetStatus(ctx, id); err != nil {
		return nil, err
	}

	rp, err := s.repo.GetRefinedPrompt(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrRefinedPromptNotFound) {
			return nil, ErrRefinedPromptNotReady
		}
		return nil, err
	}
	return rp, nil
}

// GetDownload returns the path of a completed task's animation.
func (s *AnimationService) GetDownload(ctx context.Context, id string) (string, error) {
	task, err := s.GetStatus(ctx, id)
	if err != nil {
		return "", err
	}
	if task.Status != model.TaskStatusCompleted {
		return "", &NotReadyError{Status: task.Status}
	}

	path, err := s.store.FindAnimation(id)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return "", ErrFileNotFound
		}
		return "", err
	}
	return path, nil
}

// ListTasksOutput is a page of tasks.
type ListTasksOutput struct {
	Tasks      []*model.Task
	Total      int64
	NextCursor string
}

// ListTasks returns tasks newest first.
func (s *AnimationService) ListTasks(ctx context.Context, cursor string, limit int) (*ListTasksOutput, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	tasks, next, err := s.repo.ListTasks(ctx, cursor, limit)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCursor) {
			return nil, ErrInvalidCursor
		}
		return nil, err
	}

	total, err := s.repo.CountTasks(ctx)
	if err != nil {
		return nil, err
	}

	return &ListTasksOutput{Tasks: tasks, Total: total, NextCursor: next}, nil
}

// ListEvents returns the recorded status changes of a task.
func (s *AnimationService) ListEvents(ctx context.Context, id string) ([]*model.TaskEvent, error) {
	if _, err := s.loadTask(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListTaskEvents(ctx, id)
}

func (s *AnimationService) loadTask(ctx context.Context, id string) (*model.Task, error) {
	task, err := s.repo.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

// transition applies a state update and persists it.
func (s *AnimationService) transition(ctx context.Context, task *model.Task, u model.StateUpdate) error {
	if err := task.Apply(u, s.now()); err != nil {
		return fmt.Errorf("task %s %s -> %s: %w", task.ID, task.Status, u.Status, err)
	}
	if err := s.repo.UpdateTaskState(ctx, task); err != nil {
		return fmt.Errorf("failed to persist task state: %w", err)
	}
	s.cacheTask(ctx, task)
	s.recordEvent(ctx, task)
	return nil
}

// fail moves a task to failed and schedules its callback.
func (s *AnimationService) fail(ctx context.Context, task *model.Task, message, detail string) error {
	err := s.transition(ctx, task, model.StateUpdate{
		Status:       model.TaskStatusFailed,
		Progress:     0,
		Message:      message,
		ErrorMessage: detail,
	})
	if err != nil {
		return err
	}
	s.metrics.IncTaskFailed()
	s.notifier.Notify(task)
	return nil
}

func (s *AnimationService) cacheTask(ctx context.Context, task *model.Task) {
	if err := s.cache.SetTask(ctx, task); err != nil {
		s.logger.Warn("failed to cache task", "task_id", task.ID, "error", err)
	}
}

func (s *AnimationService) recordEvent(ctx context.Context, task *model.Task) {
	err := s.repo.InsertTaskEvent(ctx, &model.TaskEvent{
		TaskID:    task.ID,
		Status:    task.Status,
		Progress:  task.Progress,
		Message:   task.Message,
		CreatedAt: task.UpdatedAt,
	})
	if err != nil {
		s.logger.Warn("failed to record task event", "task_id", task.ID, "error", err)
	}
}
