// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/animagen/animagen/internal/model"
)

// GenerateRequest is the request body for POST /api/animations/generate.
type GenerateRequest struct {
	Prompt          string `json:"prompt"`
	Style           string `json:"style,omitempty"`
	Quality         string `json:"quality,omitempty"`
	Duration        int    `json:"duration,omitempty"`
	BackgroundColor string `json:"background_color,omitempty"`
	IncludeAudio    bool   `json:"include_audio,omitempty"`
	CallbackURL     string `json:"callback_url,omitempty"`
}

// ToModel converts the request body to a domain request.
func (r GenerateRequest) ToModel() model.AnimationRequest {
	return model.AnimationRequest{
		Prompt:          r.Prompt,
		Style:           model.AnimationStyle(r.Style),
		Quality:         model.AnimationQuality(r.Quality),
		Duration:        r.Duration,
		BackgroundColor: r.BackgroundColor,
		IncludeAudio:    r.IncludeAudio,
		CallbackURL:     r.CallbackURL,
	}
}

// GenerateResponse acknowledges a queued animation.
type GenerateResponse struct {
	TaskID    string           `json:"task_id"`
	Status    model.TaskStatus `json:"status"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
}

// StatusResponse reports the state of a task.
type StatusResponse struct {
	TaskID         string           `json:"task_id"`
	Status         model.TaskStatus `json:"status"`
	Progress       int              `json:"progress"`
	Message        string           `json:"message"`
	FileURL        *string          `json:"file_url"`
	ErrorMessage   *string          `json:"error_message"`
	CreatedAt      time.Time        `json:"created_at"`
	CompletedAt    *time.Time       `json:"completed_at"`
	ProcessingTime *float64         `json:"processing_time"`
}

// ToStatusResponse converts a task to its status view.
func ToStatusResponse(task *model.Task) StatusResponse {
	resp := StatusResponse{
		TaskID:      task.ID,
		Status:      task.Status,
		Progress:    task.Progress,
		Message:     task.Message,
		FileURL:     optional(task.FileURL),
		CreatedAt:   task.CreatedAt,
		CompletedAt: task.CompletedAt,
	}
	resp.ErrorMessage = optional(task.ErrorMessage)
	if d := task.ProcessingTime(); d != nil {
		secs := d.Seconds()
		resp.ProcessingTime = &secs
	}
	return resp
}

// RefinedPromptResponse exposes the refined prompt and generated code.
type RefinedPromptResponse struct {
	OriginalPrompt    string   `json:"original_prompt"`
	RefinedPrompt     string   `json:"refined_prompt"`
	ManimCode         string   `json:"manim_code"`
	Explanation       string   `json:"explanation"`
	EstimatedDuration int      `json:"estimated_duration"`
	KeyElements       []string `json:"key_elements"`
}

// ToRefinedPromptResponse converts a refined prompt to its API view.
func ToRefinedPromptResponse(rp *model.RefinedPrompt) RefinedPromptResponse {
	keys := rp.KeyElements
	if keys == nil {
		keys = []string{}
	}
	return RefinedPromptResponse{
		OriginalPrompt:    rp.OriginalPrompt,
		RefinedPrompt:     rp.RefinedPrompt,
		ManimCode:         rp.ManimCode,
		Explanation:       rp.Explanation,
		EstimatedDuration: rp.EstimatedDuration,
		KeyElements:       keys,
	}
}

// EventResponse is one recorded status change.
type EventResponse struct {
	ID        string           `json:"id"`
	Status    model.TaskStatus `json:"status"`
	Progress  int              `json:"progress"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
}

// EventListResponse is the event history of a task.
type EventListResponse struct {
	TaskID string          `json:"task_id"`
	Events []EventResponse `json:"events"`
}

// ToEventListResponse converts task events to their API view.
func ToEventListResponse(taskID string, events []*model.TaskEvent) EventListResponse {
	out := EventListResponse{TaskID: taskID, Events: make([]EventResponse, 0, len(events))}
	for _, e := range events {
		out.Events = append(out.Events, EventResponse{
			ID:        e.ID,
			Status:    e.Status,
			Progress:  e.Progress,
			Message:   e.Message,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}

// TaskSummary is a task in the admin listing.
type TaskSummary struct {
	Status    model.TaskStatus `json:"status"`
	Progress  int              `json:"progress"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
	Prompt    string           `json:"prompt"`
}

// TaskListResponse is the admin listing keyed by task ID.
type TaskListResponse struct {
	TotalTasks int64                  `json:"total_tasks"`
	Tasks      map[string]TaskSummary `json:"tasks"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

// ToTaskListResponse converts a page of tasks to the admin listing.
func ToTaskListResponse(tasks []*model.Task, total int64, nextCursor string) TaskListResponse {
	out := TaskListResponse{
		TotalTasks: total,
		Tasks:      make(map[string]TaskSummary, len(tasks)),
		NextCursor: nextCursor,
	}
	for _, t := range tasks {
		out.Tasks[t.ID] = TaskSummary{
			Status:    t.Status,
			Progress:  t.Progress,
			Message:   t.Message,
			CreatedAt: t.CreatedAt,
			Prompt:    t.PromptPreview(),
		}
	}
	return out
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
