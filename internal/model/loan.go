package model

import "time"

// Loan records that one borrower holds one copy of a book.
type Loan struct {
	ID            string    `json:"id"`
	BookID        string    `json:"book_id"`
	BorrowerEmail string    `json:"borrower_email"`
	BorrowedAt    time.Time `json:"borrowed_at"`
}

// BorrowedBook is a loan joined with its book. Book is nil when the book
// has since been removed from the catalog.
type BorrowedBook struct {
	Loan
	Book *BookSummary `json:"book,omitempty"`
}

// BookSummary is the subset of book fields shown next to a loan.
type BookSummary struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	Category string `json:"category"`
	Quantity int    `json:"quantity"`
}

// Summary returns the loan-facing view of a book.
func (b *Book) Summary() *BookSummary {
	return &BookSummary{
		Title:    b.Title,
		Author:   b.Author,
		Category: b.Category,
		Quantity: b.Quantity,
	}
}
