package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/booknest/booknest/internal/auth"
	"github.com/booknest/booknest/internal/handler/dto"
	"github.com/booknest/booknest/internal/lending"
	"github.com/booknest/booknest/internal/middleware"
	"github.com/booknest/booknest/internal/model"
)

// Lending is the coordinator surface the loan endpoints use.
type Lending interface {
	BorrowBook(ctx context.Context, requestedBy model.Identity, req lending.BorrowRequest) (*lending.BorrowResult, error)
	ReturnBook(ctx context.Context, requestedBy model.Identity, bookID string) (*model.Loan, error)
	ListBorrowedBooks(ctx context.Context, requestedBy model.Identity, filterEmail string) ([]model.BorrowedBook, error)
}

// LoanHandler handles borrow, return and loan listing.
type LoanHandler struct {
	lending Lending
	logger  *slog.Logger
}

// NewLoanHandler creates a new LoanHandler.
func NewLoanHandler(l Lending, logger *slog.Logger) *LoanHandler {
	return &LoanHandler{lending: l, logger: logger}
}

// List handles GET /api/v1/loans?email=
// email defaults to the caller's own.
func (h *LoanHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := requestIdentity(r)
	email := r.URL.Query().Get("email")
	if email == "" {
		email = identity.Email
	} else if !checkEmail(w, email) {
		return
	}

	items, err := h.lending.ListBorrowedBooks(r.Context(), identity, email)
	if err != nil {
		handleLendingError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToBorrowedListResponse(items))
}

// Borrow handles POST /api/v1/loans
// A borrower at the loan limit gets 200 with outcome limit_exceeded.
func (h *LoanHandler) Borrow(w http.ResponseWriter, r *http.Request) {
	var req dto.BorrowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if req.BookID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_BOOK_ID", "book_id is required")
		return
	}

	identity := requestIdentity(r)
	if req.BorrowerEmail == "" {
		req.BorrowerEmail = identity.Email
	} else if !checkEmail(w, req.BorrowerEmail) {
		return
	}

	res, err := h.lending.BorrowBook(r.Context(), identity, lending.BorrowRequest{
		BookID:        req.BookID,
		BorrowerEmail: req.BorrowerEmail,
	})
	if err != nil {
		handleLendingError(w, h.logger, err)
		return
	}

	resp := dto.BorrowResponse{
		Outcome:     string(res.Outcome),
		ActiveLoans: res.ActiveLoans,
		Limit:       res.Limit,
	}
	if res.Declined() {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.Loan = dto.ToLoanResponse(res.Loan)
	writeJSON(w, http.StatusCreated, resp)
}

// Return handles DELETE /api/v1/loans/{bookId}
func (h *LoanHandler) Return(w http.ResponseWriter, r *http.Request) {
	loan, err := h.lending.ReturnBook(r.Context(), requestIdentity(r), chi.URLParam(r, "bookId"))
	if err != nil {
		handleLendingError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToLoanResponse(loan))
}

// checkEmail writes 400 INVALID_EMAIL for a malformed client-supplied email.
func checkEmail(w http.ResponseWriter, email string) bool {
	if err := middleware.ValidateEmail(email); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_EMAIL", err.Error())
		return false
	}
	return true
}

// requestIdentity returns the verified caller, or the zero Identity which
// the coordinator rejects as unauthorized.
func requestIdentity(r *http.Request) model.Identity {
	if id := auth.IdentityFromContext(r.Context()); id != nil {
		return *id
	}
	return model.Identity{}
}
