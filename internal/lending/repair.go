package lending

import (
	"context"
	"errors"
	"fmt"

	"github.com/booknest/booknest/internal/model"
	"github.com/booknest/booknest/internal/repository"
)

// Repair brings stock and ledger back in line for one recorded drift.
// Store errors come back as KindStoreUnavailable and the drift should be
// retried. Repair is not idempotent for orphan decrements and orphan
// increments: callers must not apply the same drift twice.
func (c *Coordinator) Repair(ctx context.Context, d model.Drift) (outcome model.ReconcileOutcome, err error) {
	defer func() {
		if err == nil {
			c.metrics.IncDriftReconciled(string(outcome))
		} else {
			c.metrics.IncDriftReconciled("error")
		}
	}()

	switch d.Kind {
	case model.DriftOrphanDecrement:
		return c.repairOrphanDecrement(ctx, d)
	case model.DriftStaleLoan:
		return c.repairStaleLoan(ctx, d)
	case model.DriftOrphanIncrement:
		return c.repairOrphanIncrement(ctx, d)
	default:
		return "", fmt.Errorf("unknown drift kind %q", d.Kind)
	}
}

// The loan insert may have committed even though it reported an error.
func (c *Coordinator) repairOrphanDecrement(ctx context.Context, d model.Drift) (model.ReconcileOutcome, error) {
	if d.LoanID != "" {
		_, err := c.ledger.GetLoan(ctx, d.LoanID)
		if err == nil {
			return model.ReconcileAlreadyConsistent, nil
		}
		if !errors.Is(err, repository.ErrLoanNotFound) {
			return "", storeUnavailable(EntityLoan, d.LoanID, err)
		}
	}

	if _, err := c.catalog.IncrementQuantity(ctx, d.BookID); err != nil {
		if errors.Is(err, repository.ErrBookNotFound) {
			return model.ReconcileBookMissing, nil
		}
		return "", storeUnavailable(EntityBook, d.BookID, err)
	}
	return model.ReconcileRepaired, nil
}

// Only the loan the return tried to close is removed. The borrower may hold
// a newer loan of the same book by now, and that one must survive.
func (c *Coordinator) repairStaleLoan(ctx context.Context, d model.Drift) (model.ReconcileOutcome, error) {
	if d.LoanID == "" {
		return model.ReconcileUnrepairable, nil
	}
	if _, err := c.ledger.DeleteLoanByID(ctx, d.LoanID); err != nil {
		if errors.Is(err, repository.ErrLoanNotFound) {
			return model.ReconcileAlreadyConsistent, nil
		}
		return "", storeUnavailable(EntityLoan, d.LoanID, err)
	}
	return model.ReconcileRepaired, nil
}

func (c *Coordinator) repairOrphanIncrement(ctx context.Context, d model.Drift) (model.ReconcileOutcome, error) {
	if _, err := c.catalog.DecrementQuantity(ctx, d.BookID); err != nil {
		switch {
		case errors.Is(err, repository.ErrBookNotFound):
			return model.ReconcileBookMissing, nil
		case errors.Is(err, repository.ErrOutOfStock):
			// The extra copy has since been lent out; only an operator can
			// tell which loan it belongs to.
			return model.ReconcileUnrepairable, nil
		}
		return "", storeUnavailable(EntityBook, d.BookID, err)
	}
	return model.ReconcileRepaired, nil
}
