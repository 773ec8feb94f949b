package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// TaskIDParam is the chi URL parameter carrying a task ID.
const TaskIDParam = "taskID"

// IsValidTaskID reports whether id is a canonical UUID.
func IsValidTaskID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// ValidateTaskID rejects requests whose {taskID} is not a UUID.
func ValidateTaskID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsValidTaskID(chi.URLParam(r, TaskIDParam)) {
			writeError(w, http.StatusBadRequest, "INVALID_TASK_ID", "Invalid task ID format")
			return
		}
		next.ServeHTTP(w, r)
	})
}
