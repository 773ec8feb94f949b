package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/animagen/animagen/internal/handler/dto"
)

func TestHandler_Hello(t *testing.T) {
	h := New("Animation Generator API", "1.0.0")

	rec := httptest.NewRecorder()
	h.Hello(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var resp IndexResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Message != "Animation Generator API" || resp.Version != "1.0.0" {
		t.Errorf("unexpected index: %+v", resp)
	}
	if resp.Endpoints["generate"] != "POST /api/animations/generate" {
		t.Errorf("generate endpoint = %q", resp.Endpoints["generate"])
	}
}

func TestHandler_Fallbacks(t *testing.T) {
	h := New("Animation Generator API", Version)

	tests := []struct {
		name       string
		serve      http.HandlerFunc
		method     string
		path       string
		wantStatus int
		wantCode   string
		wantError  string
	}{
		{"not found", h.NotFound, http.MethodGet, "/api/videos", http.StatusNotFound, "NOT_FOUND", "No route for GET /api/videos"},
		{"method not allowed", h.MethodNotAllowed, http.MethodPut, "/api/animations/generate", http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method PUT not allowed on /api/animations/generate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.serve(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var resp dto.ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Code != tt.wantCode || resp.Error != tt.wantError {
				t.Errorf("unexpected error body: %+v", resp)
			}
		})
	}
}
