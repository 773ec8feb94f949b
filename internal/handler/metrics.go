package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/animagen/animagen/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// sample is one line of a metric family. label is `key="value"` or empty.
type sample struct {
	label string
	value string
}

type family struct {
	name    string
	kind    string // counter, gauge or summary
	help    string
	samples []sample
}

func count[T int64 | uint64](v T) string { return fmt.Sprint(v) }

func seconds(ns int64) string { return strconv.FormatFloat(float64(ns)/1e9, 'f', 6, 64) }

func families(s metrics.Snapshot) []family {
	return []family{
		{"animagen_tasks_created_total", "counter", "Animation tasks accepted by the API.",
			[]sample{{"", count(s.TasksCreated)}}},
		{"animagen_tasks_finished_total", "counter", "Tasks that reached a terminal status.",
			[]sample{{`status="completed"`, count(s.TasksCompleted)}, {`status="failed"`, count(s.TasksFailed)}}},
		{"animagen_task_cache_hits_total", "counter", "Status lookups served from Redis.",
			[]sample{{"", count(s.TaskCacheHits)}}},
		{"animagen_task_cache_misses_total", "counter", "Status lookups that fell back to Postgres.",
			[]sample{{"", count(s.TaskCacheMiss)}}},
		{"animagen_render_jobs_published_total", "counter", "Render jobs added to the stream.",
			[]sample{{`status="success"`, count(s.JobsPublished)}, {`status="failed"`, count(s.JobsPublishFailed)}}},
		{"animagen_render_jobs_processed_total", "counter", "Render jobs handled by workers, by outcome.",
			[]sample{
				{`status="success"`, count(s.JobsSucceeded)},
				{`status="retried"`, count(s.JobsRetried)},
				{`status="dead_lettered"`, count(s.JobsDeadLettered)},
				{`status="skipped"`, count(s.JobsSkipped)},
			}},
		{"animagen_render_queue_depth", "gauge", "Render jobs waiting in the stream.",
			[]sample{{"", count(s.QueueDepth)}}},
		{"animagen_generation_duration_seconds", "summary", "Time spent generating scene code with Gemini.",
			[]sample{{"_count", count(s.GenerationCount)}, {"_sum", seconds(s.GenerationTotalNs)}}},
		{"animagen_render_duration_seconds", "summary", "Time spent rendering with manim.",
			[]sample{{"_count", count(s.RenderCount)}, {"_sum", seconds(s.RenderTotalNs)}}},
		{"animagen_rate_limited_total", "counter", "Generate requests rejected by the rate limiter.",
			[]sample{{"", count(s.RateLimited)}}},
		{"animagen_callbacks_total", "counter", "Callback deliveries by final outcome.",
			[]sample{{`status="delivered"`, count(s.CallbacksDelivered)}, {`status="failed"`, count(s.CallbacksFailed)}}},
	}
}

// Metrics writes the snapshot in the Prometheus text exposition format.
// GET /metrics
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	var buf bytes.Buffer
	for _, f := range families(h.snapshotter.Snapshot()) {
		fmt.Fprintf(&buf, "# HELP %s %s\n# TYPE %s %s\n", f.name, f.help, f.name, f.kind)
		for _, s := range f.samples {
			switch {
			case s.label == "":
				fmt.Fprintf(&buf, "%s %s\n", f.name, s.value)
			case s.label[0] == '_':
				// summary suffix
				fmt.Fprintf(&buf, "%s%s %s\n", f.name, s.label, s.value)
			default:
				fmt.Fprintf(&buf, "%s{%s} %s\n", f.name, s.label, s.value)
			}
		}
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = w.Write(buf.Bytes())
}
