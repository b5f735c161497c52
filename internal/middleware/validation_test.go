package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"ulid", ulid.Make().String(), true},
		{"lowercase ulid", strings.ToLower(ulid.Make().String()), true},
		{"empty", "", false},
		{"too short", "01HV", false},
		{"uuid", "3f1c2b9e-8d4a-4c6b-9f2e-1a7d5c3b8e90", false},
		{"invalid char", "01HVZ8Q6XKJ3M4N5P6Q7R8S9TU", false},
		{"sql", "'; DROP TABLE books; --", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateID(tt.id); got != tt.want {
				t.Errorf("ValidateID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr error
	}{
		{"simple", "alice@example.com", nil},
		{"plus tag", "alice+books@example.com", nil},
		{"surrounding space", "  alice@example.com ", nil},
		{"missing at", "alice.example.com", ErrEmailInvalid},
		{"display name", "Alice <alice@example.com>", ErrEmailInvalid},
		{"empty", "", ErrEmailInvalid},
		{"too long", strings.Repeat("a", 320) + "@example.com", ErrEmailTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateEmail(tt.email); err != tt.wantErr {
				t.Errorf("ValidateEmail(%q) = %v, want %v", tt.email, err, tt.wantErr)
			}
		})
	}
}

func TestValidPathID(t *testing.T) {
	r := chi.NewRouter()
	r.With(ValidPathID("id")).Get("/books/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/books/"+ulid.Make().String(), nil))
	if rec.Code != http.StatusOK {
		t.Errorf("valid id: status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/books/not-an-id", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("invalid id: status = %d, want 404", rec.Code)
	}
}
