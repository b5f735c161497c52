package lending

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/booknest/booknest/internal/metrics"
	"github.com/booknest/booknest/internal/model"
	"github.com/booknest/booknest/internal/repository"
)

// BorrowRequest names the book and the borrower the caller claims to be.
type BorrowRequest struct {
	BookID        string
	BorrowerEmail string
}

// Outcome is the business result of a borrow that did not fail.
type Outcome string

const (
	OutcomeBorrowed      Outcome = "borrowed"
	OutcomeLimitExceeded Outcome = "limit_exceeded"
)

// BorrowResult reports a completed borrow attempt. A borrower at the cap
// gets OutcomeLimitExceeded with a nil Loan; that is a declined request,
// not an error.
type BorrowResult struct {
	Outcome     Outcome
	Loan        *model.Loan
	ActiveLoans int
	Limit       int
}

// Declined reports whether the borrow was refused by the loan cap.
func (r *BorrowResult) Declined() bool {
	return r.Outcome == OutcomeLimitExceeded
}

// Err returns the declined outcome as an error for callers that prefer one.
func (r *BorrowResult) Err() error {
	if !r.Declined() {
		return nil
	}
	return newError(KindLimitExceeded, EntityBorrower, "", nil)
}

// BorrowBook checks a copy out to the verified borrower.
//
// Steps: confirm the claimed borrower is the verified identity, check the
// cap (advisory, see package doc), take one copy with an atomic
// decrement-if-positive, then record the loan. If recording fails the copy
// stays off the shelf, a drift is recorded and KindPartialFailure returned.
func (c *Coordinator) BorrowBook(ctx context.Context, requestedBy model.Identity, req BorrowRequest) (res *BorrowResult, err error) {
	start := time.Now()
	defer func() {
		c.observe(metrics.OpBorrow, start)
		c.metrics.IncBorrow(borrowLabel(res, err))
	}()

	email, err := authorize(requestedBy, req.BorrowerEmail)
	if err != nil {
		return nil, err
	}
	bookID := strings.TrimSpace(req.BookID)
	if bookID == "" {
		return nil, newError(KindNotFound, EntityBook, "", nil)
	}

	active, err := c.ledger.CountLoansByBorrower(ctx, email)
	if err != nil {
		return nil, storeUnavailable(EntityLoan, "", err)
	}
	if active >= c.limit {
		return &BorrowResult{Outcome: OutcomeLimitExceeded, ActiveLoans: active, Limit: c.limit}, nil
	}

	if _, err = c.catalog.DecrementQuantity(ctx, bookID); err != nil {
		return nil, stockError(bookID, err)
	}

	loan := &model.Loan{
		ID:            c.newID(),
		BookID:        bookID,
		BorrowerEmail: email,
		BorrowedAt:    c.now(),
	}
	if err = c.ledger.CreateLoan(ctx, loan); err != nil {
		c.recordDrift(ctx, model.Drift{
			Kind:          model.DriftOrphanDecrement,
			BookID:        bookID,
			BorrowerEmail: email,
			LoanID:        loan.ID,
			Detail:        err.Error(),
		})
		return nil, newError(KindPartialFailure, EntityBook, bookID, err)
	}

	return &BorrowResult{Outcome: OutcomeBorrowed, Loan: loan, ActiveLoans: active + 1, Limit: c.limit}, nil
}

// ReturnBook checks the caller's copy of bookID back in and returns the
// closed loan. Only a loan held by the verified identity can be closed.
//
// Stock is incremented first, then the caller's loan is looked up and
// deleted by its ID. If the caller holds no loan for the book, or the
// ledger cannot be read, the increment is taken back and stock is left as
// it was. If the delete or that compensation fails, a drift is recorded
// and KindPartialFailure returned.
func (c *Coordinator) ReturnBook(ctx context.Context, requestedBy model.Identity, bookID string) (loan *model.Loan, err error) {
	start := time.Now()
	defer func() {
		c.observe(metrics.OpReturn, start)
		c.metrics.IncReturn(returnLabel(err))
	}()

	email, err := authorize(requestedBy, requestedBy.Email)
	if err != nil {
		return nil, err
	}
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return nil, newError(KindNotFound, EntityBook, "", nil)
	}

	if _, err = c.catalog.IncrementQuantity(ctx, bookID); err != nil {
		return nil, stockError(bookID, err)
	}

	held, err := c.ledger.FindLoan(ctx, bookID, email)
	if err != nil {
		if errors.Is(err, repository.ErrLoanNotFound) {
			return nil, c.undoIncrement(ctx, bookID, email, newError(KindNoActiveLoan, EntityBook, bookID, nil))
		}
		return nil, c.undoIncrement(ctx, bookID, email, storeUnavailable(EntityLoan, "", err))
	}

	loan, err = c.ledger.DeleteLoanByID(ctx, held.ID)
	switch {
	case err == nil:
		return loan, nil
	case errors.Is(err, repository.ErrLoanNotFound):
		// A concurrent return closed the same loan first.
		return nil, c.undoIncrement(ctx, bookID, email, newError(KindNoActiveLoan, EntityBook, bookID, nil))
	}

	// The delete may still have committed, so the drift names the loan and
	// repair never touches any other loan of the same borrower.
	c.recordDrift(ctx, model.Drift{
		Kind:          model.DriftStaleLoan,
		BookID:        bookID,
		BorrowerEmail: email,
		LoanID:        held.ID,
		Detail:        err.Error(),
	})
	return nil, newError(KindPartialFailure, EntityLoan, held.ID, err)
}

// undoIncrement takes back a copy put on the shelf by a return that closed
// no loan, and returns cause. If the copy cannot be taken back it records
// an orphan increment and reports a partial failure instead.
func (c *Coordinator) undoIncrement(ctx context.Context, bookID, email string, cause error) error {
	if _, err := c.catalog.DecrementQuantity(ctx, bookID); err != nil {
		c.recordDrift(ctx, model.Drift{
			Kind:          model.DriftOrphanIncrement,
			BookID:        bookID,
			BorrowerEmail: email,
			Detail:        err.Error(),
		})
		return newError(KindPartialFailure, EntityBook, bookID, err)
	}
	return cause
}

// stockError maps a catalog stock update failure to a lending error.
func stockError(bookID string, err error) error {
	switch {
	case errors.Is(err, repository.ErrBookNotFound):
		return newError(KindNotFound, EntityBook, bookID, nil)
	case errors.Is(err, repository.ErrOutOfStock):
		return newError(KindOutOfStock, EntityBook, bookID, nil)
	default:
		return storeUnavailable(EntityBook, bookID, err)
	}
}

func borrowLabel(res *BorrowResult, err error) string {
	if err != nil {
		return errorLabel(err)
	}
	return string(res.Outcome)
}

func returnLabel(err error) string {
	if err != nil {
		return errorLabel(err)
	}
	return "returned"
}

func errorLabel(err error) string {
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
