package dto

import (
	"time"

	"github.com/booknest/booknest/internal/model"
)

// BorrowRequest represents the request body for borrowing a book.
type BorrowRequest struct {
	BookID        string `json:"book_id"`
	BorrowerEmail string `json:"borrower_email"`
}

// LoanResponse represents a loan in API responses.
type LoanResponse struct {
	ID            string    `json:"id"`
	BookID        string    `json:"book_id"`
	BorrowerEmail string    `json:"borrower_email"`
	BorrowedAt    time.Time `json:"borrowed_at"`
}

// BorrowResponse reports a borrow attempt. Loan is absent when the
// borrower is at the loan limit.
type BorrowResponse struct {
	Outcome     string        `json:"outcome"`
	Loan        *LoanResponse `json:"loan,omitempty"`
	ActiveLoans int           `json:"active_loans"`
	Limit       int           `json:"limit"`
}

// BorrowedBookResponse is a loan with its book, if the book still exists.
type BorrowedBookResponse struct {
	LoanResponse
	Book *model.BookSummary `json:"book,omitempty"`
}

// BorrowedListResponse wraps a borrower's active loans.
type BorrowedListResponse struct {
	Data []BorrowedBookResponse `json:"data"`
}

// ToLoanResponse converts a Loan model to LoanResponse DTO.
func ToLoanResponse(l *model.Loan) *LoanResponse {
	return &LoanResponse{
		ID:            l.ID,
		BookID:        l.BookID,
		BorrowerEmail: l.BorrowerEmail,
		BorrowedAt:    l.BorrowedAt,
	}
}

// ToBorrowedListResponse converts the borrowed-books projection.
func ToBorrowedListResponse(items []model.BorrowedBook) BorrowedListResponse {
	data := make([]BorrowedBookResponse, 0, len(items))
	for i := range items {
		data = append(data, BorrowedBookResponse{
			LoanResponse: *ToLoanResponse(&items[i].Loan),
			Book:         items[i].Book,
		})
	}
	return BorrowedListResponse{Data: data}
}
