// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/animagen/animagen/internal/handler/dto"
)

// Version is the API version reported by the root and health endpoints.
const Version = "1.0.0"

// Handler serves the service index and the router fallbacks.
type Handler struct {
	name    string
	version string
}

// New creates a new Handler instance.
func New(name, version string) *Handler {
	return &Handler{name: name, version: version}
}

// IndexResponse is the body of GET /.
type IndexResponse struct {
	Message   string            `json:"message"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// Hello reports the service name, version and entry points.
// GET /
func (h *Handler) Hello(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, IndexResponse{
		Message: h.name,
		Version: h.version,
		Endpoints: map[string]string{
			"generate": "POST /api/animations/generate",
			"status":   "GET /api/animations/status/{task_id}",
			"download": "GET /api/animations/download/{task_id}",
			"health":   "GET /api/health/",
		},
	})
}

// NotFound handles requests that match no route.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, dto.ErrorResponse{
		Error: "No route for " + r.Method + " " + r.URL.Path,
		Code:  "NOT_FOUND",
	})
}

// MethodNotAllowed handles a known path requested with the wrong method.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, dto.ErrorResponse{
		Error: "Method " + r.Method + " not allowed on " + r.URL.Path,
		Code:  "METHOD_NOT_ALLOWED",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
