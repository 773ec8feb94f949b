package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/animagen/animagen/internal/auth"
	"github.com/animagen/animagen/internal/handler/dto"
	"github.com/animagen/animagen/internal/middleware"
	"github.com/animagen/animagen/internal/model"
	"github.com/animagen/animagen/internal/service"
	"github.com/animagen/animagen/internal/storage"
)

const msgGenerateAccepted = "Animation generation started. Use the task ID to check status."

// AnimationService is the subset of service.AnimationService used by the HTTP layer.
type AnimationService interface {
	CreateAnimation(ctx context.Context, req model.AnimationRequest) (*model.Task, error)
	GetStatus(ctx context.Context, id string) (*model.Task, error)
	GetRefinedPrompt(ctx context.Context, id string) (*model.RefinedPrompt, error)
	GetDownload(ctx context.Context, id string) (string, error)
	ListTasks(ctx context.Context, cursor string, limit int) (*service.ListTasksOutput, error)
	ListEvents(ctx context.Context, id string) ([]*model.TaskEvent, error)
	Cleanup(ctx context.Context, hours int) (*service.CleanupResult, error)
	StorageStats() (storage.Stats, error)
}

// AnimationHandler handles HTTP requests for animation tasks.
type AnimationHandler struct {
	svc    AnimationService
	logger *slog.Logger
}

// NewAnimationHandler creates a new AnimationHandler.
func NewAnimationHandler(svc AnimationService, logger *slog.Logger) *AnimationHandler {
	return &AnimationHandler{
		svc:    svc,
		logger: logger.With("component", "handler.animation"),
	}
}

// Generate handles POST /api/animations/generate.
func (h *AnimationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req dto.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	task, err := h.svc.CreateAnimation(r.Context(), req.ToModel())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("animation_requested",
		"task_id", task.ID,
		"request_id", middleware.GetRequestID(r.Context()),
		"has_callback", task.Request.CallbackURL != "",
	)

	writeJSON(w, http.StatusAccepted, dto.GenerateResponse{
		TaskID:    task.ID,
		Status:    task.Status,
		Message:   msgGenerateAccepted,
		CreatedAt: task.CreatedAt,
	})
}

// Status handles GET /api/animations/status/{taskID}.
func (h *AnimationHandler) Status(w http.ResponseWriter, r *http.Request) {
	task, err := h.svc.GetStatus(r.Context(), chi.URLParam(r, middleware.TaskIDParam))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToStatusResponse(task))
}

// Download handles GET /api/animations/download/{taskID}.
func (h *AnimationHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, middleware.TaskIDParam)

	path, err := h.svc.GetDownload(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		h.logger.Warn("animation file vanished", "task_id", id, "path", path, "error", err)
		h.writeError(w, http.StatusNotFound, "FILE_NOT_FOUND", "Animation file not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	ext := strings.ToLower(filepath.Ext(path))
	name := "animation_" + id + ext

	w.Header().Set("Content-Type", videoContentType(ext))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Cache-Control", "private, max-age=3600")

	h.logger.Info("serving animation download", "task_id", id, "size", info.Size())
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// RefinedPrompt handles GET /api/animations/refined-prompt/{taskID}.
func (h *AnimationHandler) RefinedPrompt(w http.ResponseWriter, r *http.Request) {
	rp, err := h.svc.GetRefinedPrompt(r.Context(), chi.URLParam(r, middleware.TaskIDParam))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToRefinedPromptResponse(rp))
}

// Events handles GET /api/animations/events/{taskID}.
func (h *AnimationHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, middleware.TaskIDParam)

	events, err := h.svc.ListEvents(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToEventListResponse(id, events))
}

// List handles GET /api/animations/list.
func (h *AnimationHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 0
	if l := query.Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	out, err := h.svc.ListTasks(r.Context(), query.Get("cursor"), limit)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToTaskListResponse(out.Tasks, out.Total, out.NextCursor))
}

// Cleanup handles DELETE /api/animations/cleanup?hours=N.
func (h *AnimationHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "INVALID_HOURS", "hours must be a positive integer")
			return
		}
		hours = parsed
	}

	h.logger.Info("cleanup_requested", "hours", hours, "admin", auth.IsAdmin(r.Context()))

	result, err := h.svc.Cleanup(r.Context(), hours)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// StorageStats handles GET /api/animations/storage-stats.
func (h *AnimationHandler) StorageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.StorageStats()
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleServiceError maps service errors to HTTP responses.
func (h *AnimationHandler) handleServiceError(w http.ResponseWriter, err error) {
	var notReady *service.NotReadyError
	switch {
	case errors.Is(err, service.ErrValidation):
		h.writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", strings.TrimPrefix(err.Error(), service.ErrValidation.Error()+": "))
	case errors.Is(err, service.ErrTaskNotFound):
		h.writeError(w, http.StatusNotFound, "TASK_NOT_FOUND", "Task not found")
	case errors.Is(err, service.ErrRefinedPromptNotReady):
		h.writeError(w, http.StatusNotFound, "PROMPT_NOT_READY", "Task not found or prompt not yet processed")
	case errors.As(err, &notReady):
		h.writeError(w, http.StatusBadRequest, "NOT_READY", "Animation is not ready. Current status: "+string(notReady.Status))
	case errors.Is(err, service.ErrFileNotFound):
		h.writeError(w, http.StatusNotFound, "FILE_NOT_FOUND", "Animation file not found")
	case errors.Is(err, service.ErrInvalidCursor):
		h.writeError(w, http.StatusBadRequest, "INVALID_CURSOR", "Invalid pagination cursor")
	case errors.Is(err, service.ErrQueueUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "Animation queue is unavailable, please retry later")
	default:
		h.logger.Error("internal_error", "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

// writeError writes an error response.
func (h *AnimationHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func videoContentType(ext string) string {
	switch ext {
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	case ".webm":
		return "video/webm"
	case ".gif":
		return "image/gif"
	default:
		return "video/mp4"
	}
}
