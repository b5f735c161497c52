package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncBorrow(string)                             {}
func (n *NoopRecorder) IncReturn(string)                             {}
func (n *NoopRecorder) ObserveLendingDuration(string, time.Duration) {}
func (n *NoopRecorder) IncBookCreated()                              {}
func (n *NoopRecorder) IncBookUpdated()                              {}
func (n *NoopRecorder) IncAuthCacheHit()                             {}
func (n *NoopRecorder) IncAuthCacheMiss()                            {}
func (n *NoopRecorder) IncDriftPublished(string)                     {}
func (n *NoopRecorder) IncDriftReconciled(string)                    {}
func (n *NoopRecorder) SetDriftQueueDepth(int64)                     {}
