package dto

import (
	"time"

	"github.com/booknest/booknest/internal/model"
)

// CreateBookRequest represents the request body for adding a book.
type CreateBookRequest struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	Category string `json:"category,omitempty"`
	Quantity int    `json:"quantity"`
}

// UpdateBookRequest represents a partial book edit.
type UpdateBookRequest struct {
	Title    *string `json:"title,omitempty"`
	Author   *string `json:"author,omitempty"`
	Category *string `json:"category,omitempty"`
	Quantity *int    `json:"quantity,omitempty"`
}

// BookResponse represents a book in API responses.
type BookResponse struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	Category   string    `json:"category"`
	Quantity   int       `json:"quantity"`
	Available  bool      `json:"available"`
	IsBorrowed *bool     `json:"is_borrowed,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BookListResponse wraps a list of books.
type BookListResponse struct {
	Data []BookResponse `json:"data"`
}

// ToBookResponse converts a Book model to BookResponse DTO.
func ToBookResponse(b *model.Book) BookResponse {
	return BookResponse{
		ID:        b.ID,
		Title:     b.Title,
		Author:    b.Author,
		Category:  b.Category,
		Quantity:  b.Quantity,
		Available: b.Available(),
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

// ToBookDetailResponse converts a BookDetail, keeping IsBorrowed.
func ToBookDetailResponse(d *model.BookDetail) BookResponse {
	resp := ToBookResponse(&d.Book)
	resp.IsBorrowed = d.IsBorrowed
	return resp
}

// ToBookListResponse converts a slice of books.
func ToBookListResponse(books []*model.Book) BookListResponse {
	data := make([]BookResponse, 0, len(books))
	for _, b := range books {
		data = append(data, ToBookResponse(b))
	}
	return BookListResponse{Data: data}
}
