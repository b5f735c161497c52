package lending

import (
	"errors"
	"fmt"
)

// Kind classifies a lending failure.
type Kind string

const (
	KindUnauthorized     Kind = "unauthorized"
	KindNotFound         Kind = "not_found"
	KindOutOfStock       Kind = "out_of_stock"
	KindLimitExceeded    Kind = "limit_exceeded"
	KindNoActiveLoan     Kind = "no_active_loan"
	KindPartialFailure   Kind = "partial_failure"
	KindStoreUnavailable Kind = "store_unavailable"
)

// Entity names used in errors.
const (
	EntityBook     = "book"
	EntityLoan     = "loan"
	EntityBorrower = "borrower"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrUnauthorized     = &Error{Kind: KindUnauthorized}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrOutOfStock       = &Error{Kind: KindOutOfStock}
	ErrLimitExceeded    = &Error{Kind: KindLimitExceeded}
	ErrNoActiveLoan     = &Error{Kind: KindNoActiveLoan}
	ErrPartialFailure   = &Error{Kind: KindPartialFailure}
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable}
)

// Error is a lending failure: what went wrong and which entity it concerns.
type Error struct {
	Kind   Kind
	Entity string
	ID     string
	Err    error
}

func (e *Error) Error() string {
	msg := "lending: " + string(e.Kind)
	if e.Entity != "" {
		msg += ": " + e.Entity
		if e.ID != "" {
			msg += " " + e.ID
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Entity == "" && t.ID == "" && t.Err == nil
}

// Retryable reports whether the caller may repeat the request unchanged.
// Only infrastructure errors raised before any mutation qualify; a partial
// failure must go through reconciliation instead.
func (e *Error) Retryable() bool {
	return e.Kind == KindStoreUnavailable
}

// KindOf returns the kind of a lending error, or "" for foreign errors.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

func newError(kind Kind, entity, id string, cause error) *Error {
	return &Error{Kind: kind, Entity: entity, ID: id, Err: cause}
}

func unauthorized(format string, args ...any) *Error {
	return newError(KindUnauthorized, EntityBorrower, "", fmt.Errorf(format, args...))
}

func storeUnavailable(entity, id string, cause error) *Error {
	return newError(KindStoreUnavailable, entity, id, cause)
}
