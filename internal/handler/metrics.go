package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/booknest/booknest/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeLabeled(w, "booknest_borrows_total", "outcome", snap.Borrows)
	writeLabeled(w, "booknest_returns_total", "outcome", snap.Returns)

	for _, op := range sortedKeys(snap.LendingDurations) {
		d := snap.LendingDurations[op]
		writeMetric(w, "booknest_lending_duration_seconds_count{op=%q} %d\n", op, d.Count)
		writeMetric(w, "booknest_lending_duration_seconds_sum{op=%q} %.6f\n", op, float64(d.TotalNs)/1e9)
	}

	writeMetric(w, "booknest_books_created_total %d\n", snap.BooksCreated)
	writeMetric(w, "booknest_books_updated_total %d\n", snap.BooksUpdated)

	writeMetric(w, "booknest_auth_cache_hits_total %d\n", snap.AuthCacheHits)
	writeMetric(w, "booknest_auth_cache_misses_total %d\n", snap.AuthCacheMisses)

	writeLabeled(w, "booknest_drift_published_total", "status", snap.DriftPublished)
	writeLabeled(w, "booknest_drift_reconciled_total", "outcome", snap.DriftReconciled)
	writeMetric(w, "booknest_drift_queue_depth %d\n", snap.DriftQueueDepth)
}

func writeLabeled(w http.ResponseWriter, name, label string, counts map[string]uint64) {
	for _, k := range sortedKeys(counts) {
		writeMetric(w, "%s{%s=%q} %d\n", name, label, k, counts[k])
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
