package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"

	"github.com/booknest/booknest/internal/model"
)

// Common errors for book repository operations.
var (
	ErrBookNotFound   = errors.New("book not found")
	ErrOutOfStock     = errors.New("book out of stock")
	ErrInvalidBook    = errors.New("book violates catalog constraints")
	ErrNothingToApply = errors.New("no fields to update")
)

const booksTable = "books"

var bookColumns = []any{"id", "title", "author", "category", "quantity", "created_at", "updated_at"}

var pg = goqu.Dialect("postgres")

// CreateBook inserts a new catalog entry.
func (r *Repository) CreateBook(ctx context.Context, book *model.Book) error {
	query := `
		INSERT INTO books (id, title, author, category, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		book.ID,
		book.Title,
		book.Author,
		book.Category,
		book.Quantity,
		book.CreatedAt,
		book.UpdatedAt,
	)
	if err != nil {
		if isCheckViolation(err) {
			return ErrInvalidBook
		}
		return fmt.Errorf("failed to create book: %w", err)
	}

	return nil
}

// GetBook retrieves a book by its ID.
func (r *Repository) GetBook(ctx context.Context, id string) (*model.Book, error) {
	query := `
		SELECT id, title, author, category, quantity, created_at, updated_at
		FROM books
		WHERE id = $1
	`

	book, err := scanBook(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return book, nil
}

// GetBooksByIDs fetches several books in one round trip. Missing IDs are
// absent from the returned map.
func (r *Repository) GetBooksByIDs(ctx context.Context, ids []string) (map[string]*model.Book, error) {
	books := make(map[string]*model.Book, len(ids))
	if len(ids) == 0 {
		return books, nil
	}

	query := `
		SELECT id, title, author, category, quantity, created_at, updated_at
		FROM books
		WHERE id = ANY($1)
	`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get books by IDs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books[book.ID] = book
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating books: %w", err)
	}

	return books, nil
}

// ListBooks returns catalog entries matching filter, oldest first.
func (r *Repository) ListBooks(ctx context.Context, filter model.BookFilter) ([]*model.Book, error) {
	query, args, err := listBooksQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to build book list query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	books := make([]*model.Book, 0)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating books: %w", err)
	}

	return books, nil
}

func listBooksQuery(filter model.BookFilter) (string, []any, error) {
	filter = filter.Normalize()

	ds := pg.From(booksTable).
		Select(bookColumns...).
		Order(goqu.I("created_at").Asc(), goqu.I("id").Asc()).
		Limit(uint(filter.Limit)).
		Offset(uint(filter.Offset))

	if filter.Category != "" {
		ds = ds.Where(goqu.Ex{"category": filter.Category})
	}
	if filter.AvailableOnly {
		ds = ds.Where(goqu.C("quantity").Gt(0))
	}

	return ds.Prepared(true).ToSQL()
}

// UpdateBook applies a partial catalog edit and returns the stored row.
func (r *Repository) UpdateBook(ctx context.Context, id string, update model.BookUpdate, now time.Time) (*model.Book, error) {
	query, args, err := updateBookQuery(id, update, now)
	if err != nil {
		return nil, err
	}

	book, err := scanBook(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, ErrBookNotFound
		case isCheckViolation(err):
			return nil, ErrInvalidBook
		}
		return nil, fmt.Errorf("failed to update book: %w", err)
	}
	return book, nil
}

func updateBookQuery(id string, update model.BookUpdate, now time.Time) (string, []any, error) {
	if update.IsEmpty() {
		return "", nil, ErrNothingToApply
	}

	record := goqu.Record{"updated_at": now}
	if update.Title != nil {
		record["title"] = *update.Title
	}
	if update.Author != nil {
		record["author"] = *update.Author
	}
	if update.Category != nil {
		record["category"] = *update.Category
	}
	if update.Quantity != nil {
		record["quantity"] = *update.Quantity
	}

	query, args, err := pg.Update(booksTable).
		Set(record).
		Where(goqu.Ex{"id": id}).
		Returning(bookColumns...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build book update query: %w", err)
	}
	return query, args, nil
}

// DecrementQuantity takes one copy off the shelf if any is left and returns
// the remaining quantity. The check and the write are one statement, so
// concurrent callers can never drive quantity below zero.
func (r *Repository) DecrementQuantity(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE books
		SET quantity = quantity - 1, updated_at = NOW()
		WHERE id = $1 AND quantity > 0
		RETURNING quantity
	`

	var remaining int
	err := r.pool.QueryRow(ctx, query, id).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to decrement quantity: %w", err)
	}

	exists, err := r.BookExists(ctx, id)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrBookNotFound
	}
	return 0, ErrOutOfStock
}

// IncrementQuantity puts one copy back on the shelf and returns the new quantity.
func (r *Repository) IncrementQuantity(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE books
		SET quantity = quantity + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING quantity
	`

	var quantity int
	if err := r.pool.QueryRow(ctx, query, id).Scan(&quantity); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrBookNotFound
		}
		return 0, fmt.Errorf("failed to increment quantity: %w", err)
	}
	return quantity, nil
}

// BookExists reports whether a book with id is in the catalog.
func (r *Repository) BookExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM books WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check book existence: %w", err)
	}
	return exists, nil
}

func scanBook(row pgx.Row) (*model.Book, error) {
	var book model.Book
	err := row.Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&book.Category,
		&book.Quantity,
		&book.CreatedAt,
		&book.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &book, nil
}
