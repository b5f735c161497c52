package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// DurationStat is a count/sum pair for one duration series.
type DurationStat struct {
	Count   uint64
	TotalNs int64
}

// Snapshot captures current in-memory counters. Map fields are copies.
type Snapshot struct {
	Borrows          map[string]uint64
	Returns          map[string]uint64
	LendingDurations map[string]DurationStat
	BooksCreated     uint64
	BooksUpdated     uint64
	AuthCacheHits    uint64
	AuthCacheMisses  uint64
	DriftPublished   map[string]uint64
	DriftReconciled  map[string]uint64
	DriftQueueDepth  int64
}

// InMemoryRecorder stores metrics in memory. It backs the /metrics
// endpoint and is used directly in tests.
type InMemoryRecorder struct {
	booksCreated    uint64
	booksUpdated    uint64
	authCacheHits   uint64
	authCacheMisses uint64
	driftQueueDepth int64

	mu               sync.Mutex
	borrows          map[string]uint64
	returns          map[string]uint64
	lendingDurations map[string]DurationStat
	driftPublished   map[string]uint64
	driftReconciled  map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		borrows:          make(map[string]uint64),
		returns:          make(map[string]uint64),
		lendingDurations: make(map[string]DurationStat),
		driftPublished:   make(map[string]uint64),
		driftReconciled:  make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	durations := make(map[string]DurationStat, len(m.lendingDurations))
	for k, v := range m.lendingDurations {
		durations[k] = v
	}

	return Snapshot{
		Borrows:          copyCounts(m.borrows),
		Returns:          copyCounts(m.returns),
		LendingDurations: durations,
		BooksCreated:     atomic.LoadUint64(&m.booksCreated),
		BooksUpdated:     atomic.LoadUint64(&m.booksUpdated),
		AuthCacheHits:    atomic.LoadUint64(&m.authCacheHits),
		AuthCacheMisses:  atomic.LoadUint64(&m.authCacheMisses),
		DriftPublished:   copyCounts(m.driftPublished),
		DriftReconciled:  copyCounts(m.driftReconciled),
		DriftQueueDepth:  atomic.LoadInt64(&m.driftQueueDepth),
	}
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (m *InMemoryRecorder) inc(counter map[string]uint64, label string) {
	m.mu.Lock()
	counter[label]++
	m.mu.Unlock()
}

// IncBorrow counts a borrow attempt by outcome.
func (m *InMemoryRecorder) IncBorrow(outcome string) {
	m.inc(m.borrows, outcome)
}

// IncReturn counts a return attempt by outcome.
func (m *InMemoryRecorder) IncReturn(outcome string) {
	m.inc(m.returns, outcome)
}

// ObserveLendingDuration records how long a coordinator operation took.
func (m *InMemoryRecorder) ObserveLendingDuration(op string, duration time.Duration) {
	m.mu.Lock()
	stat := m.lendingDurations[op]
	stat.Count++
	stat.TotalNs += duration.Nanoseconds()
	m.lendingDurations[op] = stat
	m.mu.Unlock()
}

// IncBookCreated increments the book created counter.
func (m *InMemoryRecorder) IncBookCreated() {
	atomic.AddUint64(&m.booksCreated, 1)
}

// IncBookUpdated increments the book updated counter.
func (m *InMemoryRecorder) IncBookUpdated() {
	atomic.AddUint64(&m.booksUpdated, 1)
}

// IncAuthCacheHit increments the credential cache hit counter.
func (m *InMemoryRecorder) IncAuthCacheHit() {
	atomic.AddUint64(&m.authCacheHits, 1)
}

// IncAuthCacheMiss increments the credential cache miss counter.
func (m *InMemoryRecorder) IncAuthCacheMiss() {
	atomic.AddUint64(&m.authCacheMisses, 1)
}

// IncDriftPublished counts drift records handed to the stream.
func (m *InMemoryRecorder) IncDriftPublished(status string) {
	m.inc(m.driftPublished, status)
}

// IncDriftReconciled counts drift records processed by outcome.
func (m *InMemoryRecorder) IncDriftReconciled(outcome string) {
	m.inc(m.driftReconciled, outcome)
}

// SetDriftQueueDepth records the pending drift backlog.
func (m *InMemoryRecorder) SetDriftQueueDepth(depth int64) {
	atomic.StoreInt64(&m.driftQueueDepth, depth)
}
