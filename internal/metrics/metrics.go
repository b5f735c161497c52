// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Lending operation names used as duration labels.
const (
	OpBorrow     = "borrow"
	OpReturn     = "return"
	OpListLoans  = "list_borrowed"
	OpBookDetail = "book_detail"
)

// Recorder captures metric events for the application.
type Recorder interface {
	// Lending outcomes, labelled by result ("borrowed", "out_of_stock", ...).
	IncBorrow(outcome string)
	IncReturn(outcome string)
	ObserveLendingDuration(op string, duration time.Duration)

	// Catalog writes
	IncBookCreated()
	IncBookUpdated()

	// Credential verification
	IncAuthCacheHit()
	IncAuthCacheMiss()

	// Drift pipeline
	IncDriftPublished(status string) // "success" or "dropped"
	IncDriftReconciled(outcome string)
	SetDriftQueueDepth(depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
