package model

import (
	"strings"
	"time"
)

// Book is a catalog entry. Quantity is the number of copies on the shelf
// and never drops below zero.
type Book struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Category  string    `json:"category"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Available reports whether at least one copy can be borrowed.
func (b *Book) Available() bool {
	return b.Quantity > 0
}

// BookFilter narrows a catalog listing. Zero values match everything.
type BookFilter struct {
	Category      string
	AvailableOnly bool
	Limit         int
	Offset        int
}

// Normalize trims text fields and clamps paging.
func (f BookFilter) Normalize() BookFilter {
	f.Category = strings.TrimSpace(f.Category)
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// BookUpdate holds optional catalog edits. Nil fields are left unchanged.
type BookUpdate struct {
	Title    *string
	Author   *string
	Category *string
	Quantity *int
}

// IsEmpty reports whether no field is set.
func (u BookUpdate) IsEmpty() bool {
	return u.Title == nil && u.Author == nil && u.Category == nil && u.Quantity == nil
}

// BookDetail is a book as seen by one (optional) borrower.
// IsBorrowed is nil for anonymous lookups.
type BookDetail struct {
	Book
	IsBorrowed *bool `json:"is_borrowed,omitempty"`
}
