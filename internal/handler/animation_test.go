package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animagen/animagen/internal/handler/dto"
	"github.com/animagen/animagen/internal/middleware"
	"github.com/animagen/animagen/internal/model"
	"github.com/animagen/animagen/internal/service"
	"github.com/animagen/animagen/internal/storage"
)

const testTaskID = "0b8f7f0e-6c1e-4a8e-9a55-2f7c6f3b1d11"

type fakeAnimationService struct {
	task       *model.Task
	refined    *model.RefinedPrompt
	events     []*model.TaskEvent
	list       *service.ListTasksOutput
	cleanup    *service.CleanupResult
	path       string
	err        error
	gotRequest model.AnimationRequest
	gotHours   int
	gotLimit   int
	gotCursor  string
}

func (f *fakeAnimationService) CreateAnimation(ctx context.Context, req model.AnimationRequest) (*model.Task, error) {
	f.gotRequest = req
	return f.task, f.err
}

func (f *fakeAnimationService) GetStatus(ctx context.Context, id string) (*model.Task, error) {
	return f.task, f.err
}

func (f *fakeAnimationService) GetRefinedPrompt(ctx context.Context, id string) (*model.RefinedPrompt, error) {
	return f.refined, f.err
}

func (f *fakeAnimationService) GetDownload(ctx context.Context, id string) (string, error) {
	return f.path, f.err
}

func (f *fakeAnimationService) ListTasks(ctx context.Context, cursor string, limit int) (*service.ListTasksOutput, error) {
	f.gotCursor, f.gotLimit = cursor, limit
	return f.list, f.err
}

func (f *fakeAnimationService) ListEvents(ctx context.Context, id string) ([]*model.TaskEvent, error) {
	return f.events, f.err
}

func (f *fakeAnimationService) Cleanup(ctx context.Context, hours int) (*service.CleanupResult, error) {
	f.gotHours = hours
	return f.cleanup, f.err
}

func (f *fakeAnimationService) StorageStats() (storage.Stats, error) {
	return storage.Stats{AnimationCount: 4, TotalSizeMB: 12.5}, f.err
}

func newAnimationRouter(svc AnimationService) http.Handler {
	h := NewAnimationHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Route("/api/animations", func(r chi.Router) {
		r.Post("/generate", h.Generate)
		r.Get("/list", h.List)
		r.Delete("/cleanup", h.Cleanup)
		r.Get("/storage-stats", h.StorageStats)
		r.Group(func(r chi.Router) {
			r.Use(middleware.ValidateTaskID)
			r.Get("/status/{taskID}", h.Status)
			r.Get("/download/{taskID}", h.Download)
			r.Get("/refined-prompt/{taskID}", h.RefinedPrompt)
			r.Get("/events/{taskID}", h.Events)
		})
	})
	return r
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var resp dto.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func sampleTask() *model.Task {
	created := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	return &model.Task{
		ID:        testTaskID,
		Status:    model.TaskStatusPending,
		Message:   "Task created, waiting to start processing",
		Request:   model.AnimationRequest{Prompt: "Draw a sine wave that slowly grows"},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestAnimationHandler_Generate(t *testing.T) {
	svc := &fakeAnimationService{task: sampleTask()}
	router := newAnimationRouter(svc)

	rec := doRequest(t, router, http.MethodPost, "/api/animations/generate",
		`{"prompt":"Draw a sine wave that slowly grows","style":"mathematical","duration":12,"callback_url":"https://hooks.example.com/x"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp dto.GenerateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, testTaskID, resp.TaskID)
	assert.Equal(t, model.TaskStatusPending, resp.Status)
	assert.Equal(t, "Animation generation started. Use the task ID to check status.", resp.Message)

	assert.Equal(t, model.StyleMathematical, svc.gotRequest.Style)
	assert.Equal(t, 12, svc.gotRequest.Duration)
	assert.Equal(t, "https://hooks.example.com/x", svc.gotRequest.CallbackURL)
}

func TestAnimationHandler_GenerateErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid json", `{"prompt":`, nil, http.StatusBadRequest, "INVALID_JSON"},
		{"validation", `{"prompt":"x"}`, fmt.Errorf("%w: prompt must be between 10 and 2000 characters", model.ErrValidation), http.StatusBadRequest, "VALIDATION_FAILED"},
		{"queue down", `{"prompt":"Draw a sine wave that slowly grows"}`, fmt.Errorf("%w: dial tcp", service.ErrQueueUnavailable), http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE"},
		{"unexpected", `{"prompt":"Draw a sine wave that slowly grows"}`, errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newAnimationRouter(&fakeAnimationService{err: tt.err})
			rec := doRequest(t, router, http.MethodPost, "/api/animations/generate", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, resp.Code)
			if tt.wantCode == "VALIDATION_FAILED" {
				assert.Equal(t, "prompt must be between 10 and 2000 characters", resp.Error)
			}
		})
	}
}

func TestAnimationHandler_Status(t *testing.T) {
	task := sampleTask()
	completed := task.CreatedAt.Add(90 * time.Second)
	task.Status = model.TaskStatusCompleted
	task.Progress = 100
	task.FileURL = model.DownloadPath(task.ID)
	task.CompletedAt = &completed

	router := newAnimationRouter(&fakeAnimationService{task: task})
	rec := doRequest(t, router, http.MethodGet, "/api/animations/status/"+testTaskID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "completed", resp["status"])
	assert.Equal(t, float64(100), resp["progress"])
	assert.Equal(t, "/api/animations/download/"+testTaskID, resp["file_url"])
	assert.Equal(t, float64(90), resp["processing_time"])
	assert.Nil(t, resp["error_message"])
}

func TestAnimationHandler_StatusErrors(t *testing.T) {
	router := newAnimationRouter(&fakeAnimationService{err: service.ErrTaskNotFound})

	rec := doRequest(t, router, http.MethodGet, "/api/animations/status/"+testTaskID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "TASK_NOT_FOUND", decodeError(t, rec).Code)

	rec = doRequest(t, router, http.MethodGet, "/api/animations/status/short", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_TASK_ID", decodeError(t, rec).Code)
}

func TestAnimationHandler_Download(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "animation_"+testTaskID+".mp4")
	require.NoError(t, os.WriteFile(path, []byte("fake video bytes"), 0o644))

	router := newAnimationRouter(&fakeAnimationService{path: path})
	rec := doRequest(t, router, http.MethodGet, "/api/animations/download/"+testTaskID, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="animation_`+testTaskID+`.mp4"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "fake video bytes", rec.Body.String())
}

func TestAnimationHandler_DownloadErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		path       string
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"not ready", &service.NotReadyError{Status: model.TaskStatusProcessing}, "", http.StatusBadRequest, "NOT_READY", "Animation is not ready. Current status: processing"},
		{"missing file", service.ErrFileNotFound, "", http.StatusNotFound, "FILE_NOT_FOUND", "Animation file not found"},
		{"file removed after lookup", nil, "/nonexistent/animation.mp4", http.StatusNotFound, "FILE_NOT_FOUND", "Animation file not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newAnimationRouter(&fakeAnimationService{err: tt.err, path: tt.path})
			rec := doRequest(t, router, http.MethodGet, "/api/animations/download/"+testTaskID, "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, tt.wantMsg, resp.Error)
		})
	}
}

func TestAnimationHandler_RefinedPrompt(t *testing.T) {
	svc := &fakeAnimationService{refined: &model.RefinedPrompt{
		OriginalPrompt:    "Draw a sine wave that slowly grows",
		RefinedPrompt:     "A sine wave whose amplitude increases",
		ManimCode:         "class Wave(Scene): ...",
		Explanation:       "Plots sin(x)",
		EstimatedDuration: 12,
	}}
	router := newAnimationRouter(svc)

	rec := doRequest(t, router, http.MethodGet, "/api/animations/refined-prompt/"+testTaskID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.RefinedPromptResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 12, resp.EstimatedDuration)
	assert.Equal(t, []string{}, resp.KeyElements)

	svc.err = service.ErrRefinedPromptNotReady
	rec = doRequest(t, router, http.MethodGet, "/api/animations/refined-prompt/"+testTaskID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "PROMPT_NOT_READY", decodeError(t, rec).Code)
}

func TestAnimationHandler_Events(t *testing.T) {
	svc := &fakeAnimationService{events: []*model.TaskEvent{
		{ID: "01J0000000000000000000000A", TaskID: testTaskID, Status: model.TaskStatusPending},
		{ID: "01J0000000000000000000000B", TaskID: testTaskID, Status: model.TaskStatusProcessing, Progress: 10},
	}}
	rec := doRequest(t, newAnimationRouter(svc), http.MethodGet, "/api/animations/events/"+testTaskID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.EventListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, testTaskID, resp.TaskID)
	require.Len(t, resp.Events, 2)
	assert.Equal(t, 10, resp.Events[1].Progress)
}

func TestAnimationHandler_List(t *testing.T) {
	task := sampleTask()
	task.Request.Prompt = strings.Repeat("a", 150)
	svc := &fakeAnimationService{list: &service.ListTasksOutput{Tasks: []*model.Task{task}, Total: 7, NextCursor: "abc"}}
	router := newAnimationRouter(svc)

	rec := doRequest(t, router, http.MethodGet, "/api/animations/list?limit=1&cursor=xyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.gotLimit)
	assert.Equal(t, "xyz", svc.gotCursor)

	var resp dto.TaskListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(7), resp.TotalTasks)
	assert.Equal(t, "abc", resp.NextCursor)
	assert.Equal(t, strings.Repeat("a", 100)+"...", resp.Tasks[testTaskID].Prompt)

	rec = doRequest(t, router, http.MethodGet, "/api/animations/list?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnimationHandler_Cleanup(t *testing.T) {
	svc := &fakeAnimationService{cleanup: &service.CleanupResult{CleanedTasks: 2, Message: "Cleanup completed."}}
	router := newAnimationRouter(svc)

	rec := doRequest(t, router, http.MethodDelete, "/api/animations/cleanup", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 24, svc.gotHours)

	rec = doRequest(t, router, http.MethodDelete, "/api/animations/cleanup?hours=72", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 72, svc.gotHours)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, float64(2), resp["cleaned_tasks"])

	for _, bad := range []string{"0", "-3", "soon"} {
		rec = doRequest(t, router, http.MethodDelete, "/api/animations/cleanup?hours="+bad, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "hours=%s", bad)
		assert.Equal(t, "INVALID_HOURS", decodeError(t, rec).Code)
	}
}

func TestAnimationHandler_StorageStats(t *testing.T) {
	rec := doRequest(t, newAnimationRouter(&fakeAnimationService{}), http.MethodGet, "/api/animations/storage-stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats storage.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 4, stats.AnimationCount)
}
