package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/booknest/booknest/internal/lending"
	"github.com/booknest/booknest/internal/model"
)

// Repairer applies the repair for one drift.
type Repairer interface {
	Repair(ctx context.Context, d model.Drift) (model.ReconcileOutcome, error)
}

// Markers records which drifts have been repaired.
type Markers interface {
	RepairedOutcome(ctx context.Context, driftID string) (string, error)
	MarkRepaired(ctx context.Context, driftID, outcome string) error
}

// Dead-letter reasons.
const (
	ReasonInvalidFormat    = "invalid_format"
	ReasonDecodeError      = "decode_error"
	ReasonUnrepairable     = "unrepairable"
	ReasonRetriesExhausted = "retries_exhausted"
	ReasonRepairError      = "repair_error"
)

// decision is what the worker does with one stream entry.
type decision struct {
	Drift      model.Drift
	Outcome    model.ReconcileOutcome
	Skipped    bool   // already repaired by an earlier delivery
	DeadLetter string // reason, empty if the entry is not dead-lettered
	Detail     string
	// Pending leaves the entry unacknowledged for redelivery.
	Pending bool
}

type processor struct {
	repairer    Repairer
	markers     Markers
	logger      *slog.Logger
	maxAttempts int
	backoff     func(attempt int) time.Duration
}

func (p *processor) handle(ctx context.Context, raw any) decision {
	payload, ok := raw.(string)
	if !ok {
		return decision{DeadLetter: ReasonInvalidFormat, Detail: "payload field missing or not a string"}
	}
	d, err := decodeDrift(payload)
	if err != nil {
		return decision{DeadLetter: ReasonDecodeError, Detail: err.Error()}
	}

	if done, err := p.markers.RepairedOutcome(ctx, d.ID); err != nil {
		// Without the marker a repair could be applied twice.
		p.logger.Warn("failed to read repair marker", slog.String("drift_id", d.ID), slog.String("error", err.Error()))
		return decision{Drift: d, Pending: true}
	} else if done != "" {
		return decision{Drift: d, Outcome: model.ReconcileOutcome(done), Skipped: true}
	}

	outcome, err := p.repairWithRetry(ctx, d)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return decision{Drift: d, Pending: true}
		case lending.KindOf(err) == lending.KindStoreUnavailable:
			return decision{Drift: d, DeadLetter: ReasonRetriesExhausted, Detail: err.Error()}
		default:
			return decision{Drift: d, DeadLetter: ReasonRepairError, Detail: err.Error()}
		}
	}

	if err := p.markers.MarkRepaired(ctx, d.ID, string(outcome)); err != nil {
		p.logger.Error("failed to write repair marker",
			slog.String("drift_id", d.ID),
			slog.String("outcome", string(outcome)),
			slog.String("error", err.Error()),
		)
	}

	dec := decision{Drift: d, Outcome: outcome}
	if outcome == model.ReconcileUnrepairable {
		dec.DeadLetter = ReasonUnrepairable
		dec.Detail = "no stock left to take back; needs manual review"
	}
	return dec
}

func (p *processor) repairWithRetry(ctx context.Context, d model.Drift) (model.ReconcileOutcome, error) {
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		outcome, err := p.repairer.Repair(ctx, d)
		if err == nil {
			return outcome, nil
		}
		lastErr = err

		var le *lending.Error
		if !errors.As(err, &le) || !le.Retryable() || attempt == p.maxAttempts-1 {
			break
		}

		delay := p.backoff(attempt)
		p.logger.Warn("repair failed, retrying",
			slog.String("drift_id", d.ID),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "", lastErr
}
