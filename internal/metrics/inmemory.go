package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	TasksCreated   uint64
	TasksCompleted uint64
	TasksFailed    uint64
	TaskCacheHits  uint64
	TaskCacheMiss  uint64

	JobsPublished     uint64
	JobsPublishFailed uint64
	JobsSucceeded     uint64
	JobsRetried       uint64
	JobsDeadLettered  uint64
	JobsSkipped       uint64
	QueueDepth        int64

	GenerationCount   uint64
	GenerationTotalNs int64
	RenderCount       uint64
	RenderTotalNs     int64

	RateLimited        uint64
	CallbacksDelivered uint64
	CallbacksFailed    uint64
}

// InMemoryRecorder stores metrics in memory using atomic counters.
type InMemoryRecorder struct {
	tasksCreated   uint64
	tasksCompleted uint64
	tasksFailed    uint64
	taskCacheHits  uint64
	taskCacheMiss  uint64

	jobsPublished     uint64
	jobsPublishFailed uint64
	jobsSucceeded     uint64
	jobsRetried       uint64
	jobsDeadLettered  uint64
	jobsSkipped       uint64
	queueDepth        int64

	generationCount   uint64
	generationTotalNs int64
	renderCount       uint64
	renderTotalNs     int64

	rateLimited        uint64
	callbacksDelivered uint64
	callbacksFailed    uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		TasksCreated:       atomic.LoadUint64(&m.tasksCreated),
		TasksCompleted:     atomic.LoadUint64(&m.tasksCompleted),
		TasksFailed:        atomic.LoadUint64(&m.tasksFailed),
		TaskCacheHits:      atomic.LoadUint64(&m.taskCacheHits),
		TaskCacheMiss:      atomic.LoadUint64(&m.taskCacheMiss),
		JobsPublished:      atomic.LoadUint64(&m.jobsPublished),
		JobsPublishFailed:  atomic.LoadUint64(&m.jobsPublishFailed),
		JobsSucceeded:      atomic.LoadUint64(&m.jobsSucceeded),
		JobsRetried:        atomic.LoadUint64(&m.jobsRetried),
		JobsDeadLettered:   atomic.LoadUint64(&m.jobsDeadLettered),
		JobsSkipped:        atomic.LoadUint64(&m.jobsSkipped),
		QueueDepth:         atomic.LoadInt64(&m.queueDepth),
		GenerationCount:    atomic.LoadUint64(&m.generationCount),
		GenerationTotalNs:  atomic.LoadInt64(&m.generationTotalNs),
		RenderCount:        atomic.LoadUint64(&m.renderCount),
		RenderTotalNs:      atomic.LoadInt64(&m.renderTotalNs),
		RateLimited:        atomic.LoadUint64(&m.rateLimited),
		CallbacksDelivered: atomic.LoadUint64(&m.callbacksDelivered),
		CallbacksFailed:    atomic.LoadUint64(&m.callbacksFailed),
	}
}

// IncTaskCreated increments the created task counter.
func (m *InMemoryRecorder) IncTaskCreated() {
	atomic.AddUint64(&m.tasksCreated, 1)
}

// IncTaskCompleted increments the completed task counter.
func (m *InMemoryRecorder) IncTaskCompleted() {
	atomic.AddUint64(&m.tasksCompleted, 1)
}

// IncTaskFailed increments the failed task counter.
func (m *InMemoryRecorder) IncTaskFailed() {
	atomic.AddUint64(&m.tasksFailed, 1)
}

// IncTaskCacheHit increments the status cache hit counter.
func (m *InMemoryRecorder) IncTaskCacheHit() {
	atomic.AddUint64(&m.taskCacheHits, 1)
}

// IncTaskCacheMiss increments the status cache miss counter.
func (m *InMemoryRecorder) IncTaskCacheMiss() {
	atomic.AddUint64(&m.taskCacheMiss, 1)
}

// IncJobPublished counts publish attempts by outcome.
func (m *InMemoryRecorder) IncJobPublished(status string) {
	if status == "success" {
		atomic.AddUint64(&m.jobsPublished, 1)
		return
	}
	atomic.AddUint64(&m.jobsPublishFailed, 1)
}

// IncJobProcessed counts consumed jobs by outcome.
func (m *InMemoryRecorder) IncJobProcessed(status string) {
	switch status {
	case "success":
		atomic.AddUint64(&m.jobsSucceeded, 1)
	case "retried":
		atomic.AddUint64(&m.jobsRetried, 1)
	case "dead_lettered":
		atomic.AddUint64(&m.jobsDeadLettered, 1)
	case "skipped":
		atomic.AddUint64(&m.jobsSkipped, 1)
	}
}

// SetQueueDepth records pending plus undelivered jobs.
func (m *InMemoryRecorder) SetQueueDepth(depth int64) {
	atomic.StoreInt64(&m.queueDepth, depth)
}

// ObserveGenerationDuration records a Gemini call.
func (m *InMemoryRecorder) ObserveGenerationDuration(duration time.Duration) {
	atomic.AddUint64(&m.generationCount, 1)
	atomic.AddInt64(&m.generationTotalNs, duration.Nanoseconds())
}

// ObserveRenderDuration records a manim render.
func (m *InMemoryRecorder) ObserveRenderDuration(duration time.Duration) {
	atomic.AddUint64(&m.renderCount, 1)
	atomic.AddInt64(&m.renderTotalNs, duration.Nanoseconds())
}

// IncRateLimited increments the rejected request counter.
func (m *InMemoryRecorder) IncRateLimited() {
	atomic.AddUint64(&m.rateLimited, 1)
}

// IncCallbackDelivery counts callback outcomes.
func (m *InMemoryRecorder) IncCallbackDelivery(status string) {
	if status == "delivered" {
		atomic.AddUint64(&m.callbacksDelivered, 1)
		return
	}
	atomic.AddUint64(&m.callbacksFailed, 1)
}
