// Package service provides catalog and credential business logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/booknest/booknest/internal/metrics"
	"github.com/booknest/booknest/internal/model"
	"github.com/booknest/booknest/internal/repository"
)

// Catalog errors.
var (
	ErrBookNotFound    = errors.New("book not found")
	ErrTitleRequired   = errors.New("title is required")
	ErrAuthorRequired  = errors.New("author is required")
	ErrFieldTooLong    = errors.New("field too long")
	ErrNegativeStock   = errors.New("quantity must not be negative")
	ErrNothingToUpdate = errors.New("no fields to update")
	ErrInvalidBook     = errors.New("book violates catalog constraints")
)

const (
	maxTitleLength    = 300
	maxAuthorLength   = 200
	maxCategoryLength = 100
)

// BookStore is the catalog persistence the service needs.
type BookStore interface {
	CreateBook(ctx context.Context, book *model.Book) error
	GetBook(ctx context.Context, id string) (*model.Book, error)
	ListBooks(ctx context.Context, filter model.BookFilter) ([]*model.Book, error)
	UpdateBook(ctx context.Context, id string, update model.BookUpdate, now time.Time) (*model.Book, error)
}

// CatalogService handles plain catalog CRUD. Stock changes from lending go
// through the lending coordinator, not through here.
type CatalogService struct {
	store   BookStore
	metrics metrics.Recorder
	now     func() time.Time
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(store BookStore, recorder metrics.Recorder) *CatalogService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &CatalogService{
		store:   store,
		metrics: recorder,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateBookInput defines input for adding a book.
type CreateBookInput struct {
	Title    string
	Author   string
	Category string
	Quantity int
}

// CreateBook validates and stores a new catalog entry.
func (s *CatalogService) CreateBook(ctx context.Context, input CreateBookInput) (*model.Book, error) {
	title := strings.TrimSpace(input.Title)
	author := strings.TrimSpace(input.Author)
	category := strings.TrimSpace(input.Category)

	if err := validateText(title, maxTitleLength, ErrTitleRequired); err != nil {
		return nil, fmt.Errorf("title: %w", err)
	}
	if err := validateText(author, maxAuthorLength, ErrAuthorRequired); err != nil {
		return nil, fmt.Errorf("author: %w", err)
	}
	if utf8.RuneCountInString(category) > maxCategoryLength {
		return nil, fmt.Errorf("category: %w", ErrFieldTooLong)
	}
	if input.Quantity < 0 {
		return nil, ErrNegativeStock
	}

	now := s.now()
	book := &model.Book{
		ID:        ulid.Make().String(),
		Title:     title,
		Author:    author,
		Category:  category,
		Quantity:  input.Quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateBook(ctx, book); err != nil {
		if errors.Is(err, repository.ErrInvalidBook) {
			return nil, ErrInvalidBook
		}
		return nil, fmt.Errorf("failed to create book: %w", err)
	}

	s.metrics.IncBookCreated()
	return book, nil
}

// GetBook retrieves a book by ID.
func (s *CatalogService) GetBook(ctx context.Context, id string) (*model.Book, error) {
	book, err := s.store.GetBook(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrBookNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	return book, nil
}

// ListBooks returns books matching filter, oldest first.
func (s *CatalogService) ListBooks(ctx context.Context, filter model.BookFilter) ([]*model.Book, error) {
	return s.store.ListBooks(ctx, filter.Normalize())
}

// ListAvailable returns books with at least one copy on the shelf.
func (s *CatalogService) ListAvailable(ctx context.Context, filter model.BookFilter) ([]*model.Book, error) {
	filter.AvailableOnly = true
	return s.ListBooks(ctx, filter)
}

// UpdateBookInput holds optional edits. Nil fields are left unchanged.
type UpdateBookInput struct {
	Title    *string
	Author   *string
	Category *string
	Quantity *int
}

// UpdateBook applies a partial edit. Quantity is set directly; it does not
// interact with outstanding loans.
func (s *CatalogService) UpdateBook(ctx context.Context, id string, input UpdateBookInput) (*model.Book, error) {
	update := model.BookUpdate{Quantity: input.Quantity}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if err := validateText(title, maxTitleLength, ErrTitleRequired); err != nil {
			return nil, fmt.Errorf("title: %w", err)
		}
		update.Title = &title
	}
	if input.Author != nil {
		author := strings.TrimSpace(*input.Author)
		if err := validateText(author, maxAuthorLength, ErrAuthorRequired); err != nil {
			return nil, fmt.Errorf("author: %w", err)
		}
		update.Author = &author
	}
	if input.Category != nil {
		category := strings.TrimSpace(*input.Category)
		if utf8.RuneCountInString(category) > maxCategoryLength {
			return nil, fmt.Errorf("category: %w", ErrFieldTooLong)
		}
		update.Category = &category
	}
	if input.Quantity != nil && *input.Quantity < 0 {
		return nil, ErrNegativeStock
	}
	if update.IsEmpty() {
		return nil, ErrNothingToUpdate
	}

	book, err := s.store.UpdateBook(ctx, id, update, s.now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrBookNotFound):
			return nil, ErrBookNotFound
		case errors.Is(err, repository.ErrInvalidBook):
			return nil, ErrInvalidBook
		case errors.Is(err, repository.ErrNothingToApply):
			return nil, ErrNothingToUpdate
		}
		return nil, fmt.Errorf("failed to update book: %w", err)
	}

	s.metrics.IncBookUpdated()
	return book, nil
}

func validateText(v string, max int, empty error) error {
	if v == "" {
		return empty
	}
	if utf8.RuneCountInString(v) > max {
		return ErrFieldTooLong
	}
	return nil
}
