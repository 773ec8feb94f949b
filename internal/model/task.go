// Package model defines domain entities for the application.
package model

import (
	"errors"
	"time"
	"unicode/utf8"
)

// TaskStatus represents the lifecycle state of an animation task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid task status transition")

// IsValid checks if the status is a known value.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true for statuses that never change again.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// CanTransitionTo reports whether a task in status s may move to next.
// processing -> processing is allowed so progress can be reported.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusProcessing || next == TaskStatusFailed
	case TaskStatusProcessing:
		return next == TaskStatusProcessing || next == TaskStatusCompleted || next == TaskStatusFailed
	default:
		return false
	}
}

// DownloadPath returns the API path that serves a task's animation.
func DownloadPath(taskID string) string {
	return "/api/animations/download/" + taskID
}

// Task is a single prompt-to-animation job.
type Task struct {
	ID           string           `json:"id"`
	Status       TaskStatus       `json:"status"`
	Progress     int              `json:"progress"`
	Message      string           `json:"message"`
	Request      AnimationRequest `json:"request"`
	FilePath     string           `json:"-"`
	FileURL      string           `json:"file_url,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

// StateUpdate describes a status change applied to a task.
type StateUpdate struct {
	Status       TaskStatus
	Progress     int
	Message      string
	FilePath     string
	FileURL      string
	ErrorMessage string
}

// Apply validates and applies a state update to the task.
// completed_at is stamped when the task reaches a terminal status.
func (t *Task) Apply(u StateUpdate, now time.Time) error {
	if !t.Status.CanTransitionTo(u.Status) {
		return ErrInvalidTransition
	}

	progress := u.Progress
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if u.Status == TaskStatusCompleted {
		progress = 100
	} else if progress == 100 {
		progress = 99
	}

	t.Status = u.Status
	t.Progress = progress
	t.Message = u.Message
	t.UpdatedAt = now

	if u.FilePath != "" {
		t.FilePath = u.FilePath
	}
	if u.FileURL != "" {
		t.FileURL = u.FileURL
	}
	if u.ErrorMessage != "" {
		t.ErrorMessage = u.ErrorMessage
	}

	if u.Status.IsTerminal() {
		completed := now
		t.CompletedAt = &completed
	}

	return nil
}

// ProcessingTime returns the time from creation to completion.
// Returns nil while the task is still running.
func (t *Task) ProcessingTime() *time.Duration {
	if t.CompletedAt == nil {
		return nil
	}
	d := t.CompletedAt.Sub(t.CreatedAt)
	return &d
}

// promptPreviewLen is the number of characters kept by PromptPreview.
const promptPreviewLen = 100

// PromptPreview returns the first 100 characters of the prompt for listings,
// followed by "..." when it is longer.
func (t *Task) PromptPreview() string {
	p := t.Request.Prompt
	if utf8.RuneCountInString(p) <= promptPreviewLen {
		return p
	}
	return string([]rune(p)[:promptPreviewLen]) + "..."
}

// TaskEvent is a recorded status change for a task.
type TaskEvent struct {
	ID        string     `json:"id"` // ULID
	TaskID    string     `json:"task_id"`
	Status    TaskStatus `json:"status"`
	Progress  int        `json:"progress"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
}

// RefinedPrompt holds the AI-refined prompt and the generated scene code.
type RefinedPrompt struct {
	OriginalPrompt    string   `json:"original_prompt"`
	RefinedPrompt     string   `json:"refined_prompt"`
	ManimCode         string   `json:"manim_code"`
	Explanation       string   `json:"explanation"`
	EstimatedDuration int      `json:"estimated_duration"`
	KeyElements       []string `json:"key_elements,omitempty"`
}
