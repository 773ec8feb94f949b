package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// CachedTask represents task data stored in a Redis hash.
// Uses string types for Redis hash compatibility.
type CachedTask struct {
	Status       string `redis:"status"`
	Progress     string `redis:"progress"`
	Message      string `redis:"message"`
	Request      string `redis:"request"` // JSON-encoded AnimationRequest
	FilePath     string `redis:"file_path"`
	FileURL      string `redis:"file_url"`
	ErrorMessage string `redis:"error_message"`
	CreatedAt    string `redis:"created_at"`   // Unix milliseconds
	UpdatedAt    string `redis:"updated_at"`   // Unix milliseconds
	CompletedAt  string `redis:"completed_at"` // Unix milliseconds or empty
}

// ToCachedTask converts a Task to its cache representation.
func (t *Task) ToCachedTask() *CachedTask {
	req, _ := json.Marshal(t.Request)

	cached := &CachedTask{
		Status:       string(t.Status),
		Progress:     strconv.Itoa(t.Progress),
		Message:      t.Message,
		Request:      string(req),
		FilePath:     t.FilePath,
		FileURL:      t.FileURL,
		ErrorMessage: t.ErrorMessage,
		CreatedAt:    strconv.FormatInt(t.CreatedAt.UnixMilli(), 10),
		UpdatedAt:    strconv.FormatInt(t.UpdatedAt.UnixMilli(), 10),
	}
	if t.CompletedAt != nil {
		cached.CompletedAt = strconv.FormatInt(t.CompletedAt.UnixMilli(), 10)
	}
	return cached
}

// ToTask converts a CachedTask back to the domain model.
func (c *CachedTask) ToTask(id string) *Task {
	task := &Task{
		ID:           id,
		Status:       TaskStatus(c.Status),
		Message:      c.Message,
		FilePath:     c.FilePath,
		FileURL:      c.FileURL,
		ErrorMessage: c.ErrorMessage,
		CreatedAt:    parseMillis(c.CreatedAt),
		UpdatedAt:    parseMillis(c.UpdatedAt),
	}

	if p, err := strconv.Atoi(c.Progress); err == nil {
		task.Progress = p
	}
	if c.Request != "" {
		_ = json.Unmarshal([]byte(c.Request), &task.Request)
	}
	if c.CompletedAt != "" {
		completed := parseMillis(c.CompletedAt)
		task.CompletedAt = &completed
	}

	return task
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
