// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Task lifecycle metrics
	IncTaskCreated()
	IncTaskCompleted()
	IncTaskFailed()
	IncTaskCacheHit()
	IncTaskCacheMiss()

	// Render queue metrics
	IncJobPublished(status string) // status: "success" or "failed"
	IncJobProcessed(status string) // status: "success", "retried", "dead_lettered", "skipped"
	SetQueueDepth(depth int64)

	// Pipeline stage durations
	ObserveGenerationDuration(duration time.Duration)
	ObserveRenderDuration(duration time.Duration)

	// Edge metrics
	IncRateLimited()
	IncCallbackDelivery(status string) // status: "delivered" or "failed"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
