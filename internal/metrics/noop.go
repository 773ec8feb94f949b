package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncTaskCreated is a no-op.
func (n *NoopRecorder) IncTaskCreated() {}

// IncTaskCompleted is a no-op.
func (n *NoopRecorder) IncTaskCompleted() {}

// IncTaskFailed is a no-op.
func (n *NoopRecorder) IncTaskFailed() {}

// IncTaskCacheHit is a no-op.
func (n *NoopRecorder) IncTaskCacheHit() {}

// IncTaskCacheMiss is a no-op.
func (n *NoopRecorder) IncTaskCacheMiss() {}

// IncJobPublished is a no-op.
func (n *NoopRecorder) IncJobPublished(status string) {}

// IncJobProcessed is a no-op.
func (n *NoopRecorder) IncJobProcessed(status string) {}

// SetQueueDepth is a no-op.
func (n *NoopRecorder) SetQueueDepth(depth int64) {}

// ObserveGenerationDuration is a no-op.
func (n *NoopRecorder) ObserveGenerationDuration(duration time.Duration) {}

// ObserveRenderDuration is a no-op.
func (n *NoopRecorder) ObserveRenderDuration(duration time.Duration) {}

// IncRateLimited is a no-op.
func (n *NoopRecorder) IncRateLimited() {}

// IncCallbackDelivery is a no-op.
func (n *NoopRecorder) IncCallbackDelivery(status string) {}
