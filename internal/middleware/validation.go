package middleware

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
)

// MaxEmailLength matches loans.borrower_email.
const MaxEmailLength = 320

var (
	ErrEmailTooLong = errors.New("email exceeds maximum length")
	ErrEmailInvalid = errors.New("email is not a valid address")
)

// ValidateID reports whether id is a canonical ULID, the only form book,
// loan and key IDs take.
func ValidateID(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}

// ValidateEmail checks that email is a bare address with no display name.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if len(email) > MaxEmailLength {
		return ErrEmailTooLong
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || !strings.EqualFold(addr.Address, email) {
		return ErrEmailInvalid
	}
	return nil
}

// ValidPathID answers 404 for requests whose URL parameter param cannot
// name a stored entity, before any handler or store work happens.
func ValidPathID(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ValidateID(chi.URLParam(r, param)) {
				writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
