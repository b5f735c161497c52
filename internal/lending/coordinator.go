// Package lending keeps book stock and the loan ledger consistent while
// borrowers check copies in and out.
//
// Borrow and return are two-step sagas over single-row atomic store
// operations: borrow decrements stock then records a loan, return
// increments stock then removes the loan. When the second step fails the
// first is not rolled back in the request path. The coordinator reports
// KindPartialFailure and hands a model.Drift to its DriftRecorder so the
// reconciler can repair stock and ledger later.
//
// The per-borrower cap is checked by counting loans before the stock
// update. The count and the update are not atomic, so two concurrent
// borrows by the same borrower at the boundary may both succeed and
// leave them one loan over the cap. Stock itself can never go negative.
//
// A return by a borrower holding no loan puts the copy back and then takes
// it off again with a second decrement. Between the two a concurrent
// borrow can lend out the extra copy. The decrement then fails, an orphan
// increment is recorded, and the reconciler dead-letters it as
// unrepairable because stock is already at zero. Such entries need an
// operator to compare stock with the ledger for that book.
package lending

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/booknest/booknest/internal/metrics"
	"github.com/booknest/booknest/internal/model"
)

// DefaultLoanLimit is the number of active loans a borrower may hold.
const DefaultLoanLimit = 3

// Drift is recorded even if the request context is already done.
const driftRecordTimeout = 5 * time.Second

// Catalog is the book store as the coordinator needs it.
type Catalog interface {
	GetBook(ctx context.Context, id string) (*model.Book, error)
	GetBooksByIDs(ctx context.Context, ids []string) (map[string]*model.Book, error)
	// DecrementQuantity must take one copy only if quantity > 0, in a
	// single atomic statement.
	DecrementQuantity(ctx context.Context, id string) (int, error)
	IncrementQuantity(ctx context.Context, id string) (int, error)
}

// Ledger is the active-loan store.
type Ledger interface {
	CreateLoan(ctx context.Context, loan *model.Loan) error
	GetLoan(ctx context.Context, id string) (*model.Loan, error)
	CountLoansByBorrower(ctx context.Context, email string) (int, error)
	ListLoansByBorrower(ctx context.Context, email string) ([]*model.Loan, error)
	FindLoan(ctx context.Context, bookID, email string) (*model.Loan, error)
	DeleteLoanByID(ctx context.Context, id string) (*model.Loan, error)
}

// DriftRecorder receives stock/ledger inconsistencies for later repair.
type DriftRecorder interface {
	RecordDrift(ctx context.Context, drift model.Drift) error
}

// Config holds the coordinator's collaborators and tunables.
type Config struct {
	LoanLimit int
	Drift     DriftRecorder
	Metrics   metrics.Recorder
	Logger    *slog.Logger

	// Clock and ID source, replaceable in tests.
	Now   func() time.Time
	NewID func() string
}

// Coordinator runs borrow, return and the loan projections.
type Coordinator struct {
	catalog Catalog
	ledger  Ledger
	drift   DriftRecorder
	metrics metrics.Recorder
	logger  *slog.Logger
	limit   int
	now     func() time.Time
	newID   func() string
}

// New creates a Coordinator. Zero Config fields get defaults.
func New(catalog Catalog, ledger Ledger, cfg Config) *Coordinator {
	c := &Coordinator{
		catalog: catalog,
		ledger:  ledger,
		drift:   cfg.Drift,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		limit:   cfg.LoanLimit,
		now:     cfg.Now,
		newID:   cfg.NewID,
	}
	if c.drift == nil {
		c.drift = logDrift{}
	}
	if c.metrics == nil {
		c.metrics = metrics.NewNoop()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.limit <= 0 {
		c.limit = DefaultLoanLimit
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	if c.newID == nil {
		c.newID = func() string { return ulid.Make().String() }
	}
	return c
}

// LoanLimit returns the per-borrower cap in force.
func (c *Coordinator) LoanLimit() int {
	return c.limit
}

// NormalizeEmail canonicalizes an email for comparison and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// authorize checks that claimed names the verified identity and returns
// the canonical email.
func authorize(requestedBy model.Identity, claimed string) (string, error) {
	verified := NormalizeEmail(requestedBy.Email)
	if verified == "" {
		return "", unauthorized("no verified identity")
	}
	if NormalizeEmail(claimed) != verified {
		return "", unauthorized("claimed borrower does not match verified identity")
	}
	return verified, nil
}

func (c *Coordinator) observe(op string, start time.Time) {
	c.metrics.ObserveLendingDuration(op, time.Since(start))
}

// recordDrift reports an inconsistency. A recorder failure is logged with
// the full drift so an operator can still repair it by hand.
func (c *Coordinator) recordDrift(ctx context.Context, d model.Drift) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), driftRecordTimeout)
	defer cancel()

	d.ID = c.newID()
	d.DetectedAt = c.now()

	c.logger.Error("stock and ledger out of sync",
		slog.String("drift_id", d.ID),
		slog.String("kind", string(d.Kind)),
		slog.String("book_id", d.BookID),
		slog.String("borrower", d.BorrowerEmail),
		slog.String("detail", d.Detail),
	)

	if err := c.drift.RecordDrift(ctx, d); err != nil {
		c.logger.Error("failed to record drift",
			slog.String("drift_id", d.ID),
			slog.String("error", err.Error()),
		)
	}
}

// logDrift is used when no recorder is configured; recordDrift already logs.
type logDrift struct{}

func (logDrift) RecordDrift(context.Context, model.Drift) error { return nil }
