package model

import "time"

// DriftKind identifies which half of a borrow or return went missing.
type DriftKind string

const (
	// DriftOrphanDecrement: a copy was taken from stock but the loan insert
	// failed. LoanID is the ID the insert used.
	DriftOrphanDecrement DriftKind = "orphan_decrement"
	// DriftStaleLoan: a copy was put back but removing the loan failed.
	// LoanID is the loan the return tried to close.
	DriftStaleLoan DriftKind = "stale_loan"
	// DriftOrphanIncrement: a copy was put back for a borrower holding no
	// loan and taking it back off the shelf failed.
	DriftOrphanIncrement DriftKind = "orphan_increment"
)

// IsValid reports whether k is a known drift kind.
func (k DriftKind) IsValid() bool {
	switch k {
	case DriftOrphanDecrement, DriftStaleLoan, DriftOrphanIncrement:
		return true
	}
	return false
}

// Drift describes stock and ledger state left inconsistent by a partial failure.
type Drift struct {
	ID            string    `json:"id"`
	Kind          DriftKind `json:"kind"`
	BookID        string    `json:"book_id"`
	BorrowerEmail string    `json:"borrower_email"`
	LoanID        string    `json:"loan_id,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	DetectedAt    time.Time `json:"detected_at"`
}

// ReconcileOutcome is the result of repairing one drift.
type ReconcileOutcome string

const (
	ReconcileRepaired          ReconcileOutcome = "repaired"
	ReconcileAlreadyConsistent ReconcileOutcome = "already_consistent"
	ReconcileBookMissing       ReconcileOutcome = "book_missing"
	ReconcileUnrepairable      ReconcileOutcome = "unrepairable"
)
