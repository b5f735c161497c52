package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/booknest/booknest/internal/reconcile"
)

// DriftQueue exposes the reconciler's backlog and a manual pass.
type DriftQueue interface {
	QueueDepth(ctx context.Context) (int64, error)
	RunOnce(ctx context.Context) (reconcile.Stats, error)
}

// AdminHandler provides admin-only endpoints for operating the reconciler.
type AdminHandler struct {
	drift  DriftQueue
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(drift DriftQueue, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{drift: drift, logger: logger}
}

// DriftStatusResponse reports the reconciler backlog.
type DriftStatusResponse struct {
	QueueDepth int64 `json:"queue_depth"`
}

// DriftRunResponse summarizes a manual reconcile pass.
type DriftRunResponse struct {
	Read         int `json:"read"`
	Repaired     int `json:"repaired"`
	Consistent   int `json:"already_consistent"`
	Skipped      int `json:"skipped"`
	DeadLettered int `json:"dead_lettered"`
	Pending      int `json:"pending"`
}

// DriftStatus handles GET /api/v1/admin/drift
func (h *AdminHandler) DriftStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	depth, err := h.drift.QueueDepth(ctx)
	if err != nil {
		h.logger.Error("failed to read drift queue depth", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Drift queue unavailable")
		return
	}
	writeJSON(w, http.StatusOK, DriftStatusResponse{QueueDepth: depth})
}

// RunReconcile handles POST /api/v1/admin/drift/reconcile
// It processes at most one batch.
func (h *AdminHandler) RunReconcile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	stats, err := h.drift.RunOnce(ctx)
	if err != nil {
		h.logger.Error("manual reconcile pass failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Reconcile pass failed")
		return
	}

	h.logger.Info("manual reconcile pass",
		slog.Int("read", stats.Read),
		slog.Int("repaired", stats.Repaired),
		slog.Int("dead_lettered", stats.DeadLettered),
	)
	writeJSON(w, http.StatusOK, DriftRunResponse{
		Read:         stats.Read,
		Repaired:     stats.Repaired,
		Consistent:   stats.Consistent,
		Skipped:      stats.Skipped,
		DeadLettered: stats.DeadLettered,
		Pending:      stats.Pending,
	})
}
