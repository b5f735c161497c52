// Package reconcile carries lending drift from the request path to a
// background worker that repairs stock and ledger.
//
// The coordinator publishes each model.Drift to a Redis stream. Workers in
// one consumer group read the stream, call the coordinator's Repair, record
// a done-marker per drift ID and acknowledge the entry. Entries that cannot
// be decoded, cannot be repaired or keep failing go to a dead-letter stream
// for an operator.
package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/booknest/booknest/internal/model"
)

const maxDetailLength = 1000

// driftPayload is the stream form of a model.Drift.
type driftPayload struct {
	ID         string `json:"id"`
	Kind       string `json:"k"`
	BookID     string `json:"b"`
	Borrower   string `json:"e,omitempty"`
	LoanID     string `json:"l,omitempty"`
	Detail     string `json:"d,omitempty"`
	DetectedAt int64  `json:"t"` // Unix milliseconds
}

func encodeDrift(d model.Drift) (string, error) {
	detail := d.Detail
	if len(detail) > maxDetailLength {
		detail = detail[:maxDetailLength]
	}
	data, err := json.Marshal(driftPayload{
		ID:         d.ID,
		Kind:       string(d.Kind),
		BookID:     d.BookID,
		Borrower:   d.BorrowerEmail,
		LoanID:     d.LoanID,
		Detail:     detail,
		DetectedAt: d.DetectedAt.UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal drift: %w", err)
	}
	return string(data), nil
}

func decodeDrift(raw string) (model.Drift, error) {
	var p driftPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return model.Drift{}, fmt.Errorf("unmarshal drift: %w", err)
	}
	d := model.Drift{
		ID:            p.ID,
		Kind:          model.DriftKind(p.Kind),
		BookID:        p.BookID,
		BorrowerEmail: p.Borrower,
		LoanID:        p.LoanID,
		Detail:        p.Detail,
		DetectedAt:    time.UnixMilli(p.DetectedAt).UTC(),
	}
	if err := ValidateDrift(d); err != nil {
		return model.Drift{}, err
	}
	return d, nil
}

// ValidateDrift checks the fields each drift kind needs for repair.
func ValidateDrift(d model.Drift) error {
	if d.ID == "" {
		return errors.New("id is required")
	}
	if !d.Kind.IsValid() {
		return fmt.Errorf("unknown kind %q", d.Kind)
	}
	if d.BookID == "" {
		return errors.New("book_id is required")
	}
	switch d.Kind {
	case model.DriftOrphanDecrement:
		if d.LoanID == "" {
			return errors.New("loan_id is required for orphan_decrement")
		}
	case model.DriftStaleLoan:
		if d.BorrowerEmail == "" {
			return errors.New("borrower_email is required for stale_loan")
		}
		if d.LoanID == "" {
			return errors.New("loan_id is required for stale_loan")
		}
	}
	return nil
}
