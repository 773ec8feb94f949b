package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/animagen/animagen/internal/storage"
)

// mockHealthChecker is a mock implementation of HealthChecker for testing.
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) Ping(ctx context.Context) error {
	return m.err
}

func TestHealthHandler_Healthz(t *testing.T) {
	h := NewHealthHandler(nil, nil, HealthOptions{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	var response HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "ok" {
		t.Errorf("expected status 'ok', got %s", response.Status)
	}
}

func TestHealthHandler_Readyz_AllHealthy(t *testing.T) {
	db := &mockHealthChecker{}
	cache := &mockHealthChecker{}
	h := NewHealthHandler(db, cache, HealthOptions{})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	h.Readyz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	var response HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "ok" {
		t.Errorf("expected status 'ok', got %s", response.Status)
	}

	if response.Checks["postgres"] != "ok" {
		t.Errorf("expected postgres check 'ok', got %s", response.Checks["postgres"])
	}

	if response.Checks["redis"] != "ok" {
		t.Errorf("expected redis check 'ok', got %s", response.Checks["redis"])
	}
}

func TestHealthHandler_Readyz_DatabaseUnhealthy(t *testing.T) {
	db := &mockHealthChecker{err: errors.New("connection refused")}
	cache := &mockHealthChecker{}
	h := NewHealthHandler(db, cache, HealthOptions{})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}

	var response HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got %s", response.Status)
	}

	if response.Checks["postgres"] != "error: connection refused" {
		t.Errorf("unexpected postgres check: %s", response.Checks["postgres"])
	}
}

func TestHealthHandler_Readyz_NoDependencies(t *testing.T) {
	h := NewHealthHandler(nil, nil, HealthOptions{})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	h.Readyz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	var response HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Checks["postgres"] != "not configured" {
		t.Errorf("expected 'not configured', got %s", response.Checks["postgres"])
	}
}

type fakeRenderer struct {
	available bool
}

func (f fakeRenderer) Available() bool { return f.available }

func (f fakeRenderer) Version(ctx context.Context) (string, error) {
	if !f.available {
		return "", errors.New("not installed")
	}
	return "Manim Community v0.18.1", nil
}

type fakeFiles struct {
	writeErr error
}

func (f fakeFiles) Writable() error { return f.writeErr }

func (f fakeFiles) Stats() (storage.Stats, error) {
	return storage.Stats{AnimationCount: 2, TotalSizeMB: 3.25}, nil
}

func healthyOptions(t *testing.T) HealthOptions {
	t.Helper()
	return HealthOptions{
		GeminiConfigured: true,
		GeminiSDKVersion: "v1.37.0",
		Renderer:         fakeRenderer{available: true},
		Files:            fakeFiles{},
		Directories:      map[string]string{"output": t.TempDir()},
		Settings:         map[string]any{"max_animation_duration": 30},
	}
}

func TestHealthHandler_Health(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(o *HealthOptions)
		db         HealthChecker
		wantStatus string
		service    string
		wantValue  string
	}{
		{"all healthy", func(o *HealthOptions) {}, &mockHealthChecker{}, "healthy", "manim", "healthy"},
		{"no gemini key", func(o *HealthOptions) { o.GeminiConfigured = false }, &mockHealthChecker{}, "degraded", "gemini", "unhealthy: API key not configured"},
		{"no manim", func(o *HealthOptions) { o.Renderer = fakeRenderer{} }, &mockHealthChecker{}, "degraded", "manim", "unhealthy: manim binary not found"},
		{"read-only disk", func(o *HealthOptions) { o.Files = fakeFiles{writeErr: errors.New("read-only file system")} }, &mockHealthChecker{}, "degraded", "filesystem", "unhealthy: read-only file system"},
		{"postgres down", func(o *HealthOptions) {}, &mockHealthChecker{err: errors.New("connection refused")}, "degraded", "postgres", "unhealthy: connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := healthyOptions(t)
			tt.mutate(&opts)
			h := NewHealthHandler(tt.db, &mockHealthChecker{}, opts)

			rec := httptest.NewRecorder()
			h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health/", nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", rec.Code)
			}
			var response ServiceHealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", response.Status, tt.wantStatus)
			}
			if response.Services[tt.service] != tt.wantValue {
				t.Errorf("services[%s] = %q, want %q", tt.service, response.Services[tt.service], tt.wantValue)
			}
			if response.Version != Version {
				t.Errorf("version = %s", response.Version)
			}
		})
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	h := NewHealthHandler(&mockHealthChecker{}, &mockHealthChecker{}, healthyOptions(t))

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/api/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	opts := healthyOptions(t)
	opts.GeminiConfigured = false
	opts.Directories["output"] = filepath.Join(t.TempDir(), "missing")
	h = NewHealthHandler(&mockHealthChecker{}, &mockHealthChecker{err: errors.New("dial tcp: timeout")}, opts)

	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/api/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}

	var response ReadinessResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != "not ready" {
		t.Errorf("status = %s", response.Status)
	}
	want := []string{
		"Gemini API key not configured",
		"Output directory does not exist",
		"redis unavailable: dial tcp: timeout",
	}
	if strings.Join(response.Issues, "|") != strings.Join(want, "|") {
		t.Errorf("issues = %v, want %v", response.Issues, want)
	}
}

func TestHealthHandler_Detailed(t *testing.T) {
	h := NewHealthHandler(nil, nil, healthyOptions(t))

	rec := httptest.NewRecorder()
	h.Detailed(rec, httptest.NewRequest(http.MethodGet, "/api/health/detailed", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var response struct {
		SystemInfo      map[string]any    `json:"system_info"`
		ServiceVersions map[string]string `json:"service_versions"`
		Configuration   map[string]bool   `json:"configuration"`
		Storage         map[string]any    `json:"storage"`
		Settings        map[string]any    `json:"settings"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.ServiceVersions["manim"] != "Manim Community v0.18.1" {
		t.Errorf("manim version = %q", response.ServiceVersions["manim"])
	}
	if response.ServiceVersions["google.golang.org/genai"] != "v1.37.0" {
		t.Errorf("genai version = %q", response.ServiceVersions["google.golang.org/genai"])
	}
	if !response.Configuration["output_directory_exists"] || !response.Configuration["gemini_api_key_configured"] {
		t.Errorf("configuration = %v", response.Configuration)
	}
	if response.Storage["animation_count"] != float64(2) {
		t.Errorf("storage = %v", response.Storage)
	}
	if response.Settings["max_animation_duration"] != float64(30) {
		t.Errorf("settings = %v", response.Settings)
	}
	if _, ok := response.SystemInfo["goroutines"]; !ok {
		t.Errorf("system_info missing goroutines: %v", response.SystemInfo)
	}
}

func TestHealthHandler_Live(t *testing.T) {
	h := NewHealthHandler(nil, nil, HealthOptions{})

	rec := httptest.NewRecorder()
	h.Live(rec, httptest.NewRequest(http.MethodGet, "/api/health/live", nil))

	var response LivenessResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if rec.Code != http.StatusOK || response.Status != "alive" {
		t.Errorf("got %d %s", rec.Code, response.Status)
	}
}
