package handler

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/animagen/animagen/internal/storage"
)

// HealthChecker defines an interface for checking service health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RendererProbe reports whether the render toolchain is installed.
type RendererProbe interface {
	Available() bool
	Version(ctx context.Context) (string, error)
}

// FileProbe reports on the animation file store.
type FileProbe interface {
	Writable() error
	Stats() (storage.Stats, error)
}

// HealthOptions describe the non-network dependencies reported by health endpoints.
type HealthOptions struct {
	Version          string
	GeminiConfigured bool
	GeminiSDKVersion string
	Renderer         RendererProbe
	Files            FileProbe
	// Directories maps a short name ("output", "temp", "animation") to a path.
	Directories map[string]string
	// Settings are echoed by the detailed health endpoint.
	Settings map[string]any
}

// HealthHandler manages health check endpoints.
type HealthHandler struct {
	db    HealthChecker
	cache HealthChecker
	opts  HealthOptions
}

// NewHealthHandler creates a new HealthHandler.
// Pass nil for db or cache if they are not yet initialized.
func NewHealthHandler(db, cache HealthChecker, opts HealthOptions) *HealthHandler {
	if opts.Version == "" {
		opts.Version = Version
	}
	return &HealthHandler{
		db:    db,
		cache: cache,
		opts:  opts,
	}
}

// HealthResponse represents the probe response.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// ServiceHealthResponse is the body of GET /api/health/.
type ServiceHealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Services  map[string]string `json:"services"`
}

// DetailedHealthResponse is the body of GET /api/health/detailed.
type DetailedHealthResponse struct {
	Status          string            `json:"status"`
	Timestamp       time.Time         `json:"timestamp"`
	SystemInfo      map[string]any    `json:"system_info"`
	ServiceVersions map[string]string `json:"service_versions"`
	Configuration   map[string]bool   `json:"configuration"`
	Storage         any               `json:"storage"`
	Settings        map[string]any    `json:"settings"`
}

// ReadinessResponse is the body of GET /api/health/ready.
type ReadinessResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Issues    []string  `json:"issues,omitempty"`
}

// LivenessResponse is the body of GET /api/health/live.
type LivenessResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Healthz is a liveness probe endpoint.
// It returns 200 if the server is running.
// No dependency checks - this is for Kubernetes liveness probes.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status: "ok",
	}
	writeJSON(w, http.StatusOK, response)
}

// Readyz is a readiness probe endpoint.
// It checks all dependencies and returns 200 only if all are healthy.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	for name, dep := range map[string]HealthChecker{"postgres": h.db, "redis": h.cache} {
		if dep == nil {
			checks[name] = "not configured"
			continue
		}
		if err := dep.Ping(ctx); err != nil {
			checks[name] = "error: " + err.Error()
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}

	status := "ok"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, HealthResponse{
		Status: status,
		Checks: checks,
	})
}

// Health reports the state of every dependency.
// The overall status is "degraded" when any of them is not healthy.
//
// GET /api/health/
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services := map[string]string{
		"gemini":     "healthy",
		"manim":      "healthy",
		"filesystem": "healthy",
		"postgres":   pingStatus(ctx, h.db),
		"redis":      pingStatus(ctx, h.cache),
	}
	if !h.opts.GeminiConfigured {
		services["gemini"] = "unhealthy: API key not configured"
	}
	if h.opts.Renderer == nil || !h.opts.Renderer.Available() {
		services["manim"] = "unhealthy: manim binary not found"
	}
	if h.opts.Files == nil {
		services["filesystem"] = "unhealthy: not configured"
	} else if err := h.opts.Files.Writable(); err != nil {
		services["filesystem"] = "unhealthy: " + err.Error()
	}

	status := "healthy"
	for _, s := range services {
		if s != "healthy" {
			status = "degraded"
			break
		}
	}

	writeJSON(w, http.StatusOK, ServiceHealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Version:   h.opts.Version,
		Services:  services,
	})
}

// Detailed reports runtime, version and configuration information.
//
// GET /api/health/detailed
func (h *HealthHandler) Detailed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	systemInfo := map[string]any{
		"go_version":      runtime.Version(),
		"os":              runtime.GOOS,
		"arch":            runtime.GOARCH,
		"cpu_count":       runtime.NumCPU(),
		"goroutines":      runtime.NumGoroutine(),
		"memory_alloc_mb": bytesToMB(mem.Alloc),
		"memory_sys_mb":   bytesToMB(mem.Sys),
	}

	versions := map[string]string{
		"go":                      runtime.Version(),
		"google.golang.org/genai": h.opts.GeminiSDKVersion,
		"manim":                   "not available",
	}
	if versions["google.golang.org/genai"] == "" {
		versions["google.golang.org/genai"] = "unknown"
	}
	if h.opts.Renderer != nil && h.opts.Renderer.Available() {
		if v, err := h.opts.Renderer.Version(ctx); err == nil {
			versions["manim"] = v
		}
	}

	configuration := map[string]bool{
		"gemini_api_key_configured": h.opts.GeminiConfigured,
	}
	for name, dir := range h.opts.Directories {
		configuration[name+"_directory_exists"] = dirExists(dir)
	}

	var storageInfo any = map[string]string{"error": "file store not configured"}
	if h.opts.Files != nil {
		if stats, err := h.opts.Files.Stats(); err != nil {
			storageInfo = map[string]string{"error": err.Error()}
		} else {
			storageInfo = stats
		}
	}

	settings := h.opts.Settings
	if settings == nil {
		settings = map[string]any{}
	}

	writeJSON(w, http.StatusOK, DetailedHealthResponse{
		Status:          "healthy",
		Timestamp:       time.Now().UTC(),
		SystemInfo:      systemInfo,
		ServiceVersions: versions,
		Configuration:   configuration,
		Storage:         storageInfo,
		Settings:        settings,
	})
}

// Ready reports whether the service can accept animation requests.
//
// GET /api/health/ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var issues []string
	if !h.opts.GeminiConfigured {
		issues = append(issues, "Gemini API key not configured")
	}
	if dir, ok := h.opts.Directories["output"]; ok && !dirExists(dir) {
		issues = append(issues, "Output directory does not exist")
	}
	if h.opts.Renderer == nil || !h.opts.Renderer.Available() {
		issues = append(issues, "Renderer not available: manim binary not found")
	}
	for name, dep := range map[string]HealthChecker{"postgres": h.db, "redis": h.cache} {
		if dep == nil {
			continue
		}
		if err := dep.Ping(ctx); err != nil {
			issues = append(issues, name+" unavailable: "+err.Error())
		}
	}

	if len(issues) > 0 {
		sort.Strings(issues)
		writeJSON(w, http.StatusServiceUnavailable, ReadinessResponse{
			Status:    "not ready",
			Timestamp: time.Now().UTC(),
			Issues:    issues,
		})
		return
	}

	writeJSON(w, http.StatusOK, ReadinessResponse{Status: "ready", Timestamp: time.Now().UTC()})
}

// Live reports that the process is running.
//
// GET /api/health/live
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{Status: "alive", Timestamp: time.Now().UTC()})
}

func pingStatus(ctx context.Context, dep HealthChecker) string {
	if dep == nil {
		return "unhealthy: not configured"
	}
	if err := dep.Ping(ctx); err != nil {
		return "unhealthy: " + err.Error()
	}
	return "healthy"
}

func dirExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func bytesToMB(n uint64) float64 {
	return float64(n*100/(1024*1024)) / 100
}
