package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/booknest/booknest/internal/model"
)

// Common errors for loan ledger operations.
var (
	ErrLoanNotFound = errors.New("loan not found")
	ErrLoanExists   = errors.New("loan already exists")
)

// CreateLoan records an active loan.
func (r *Repository) CreateLoan(ctx context.Context, loan *model.Loan) error {
	query := `
		INSERT INTO loans (id, book_id, borrower_email, borrowed_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.pool.Exec(ctx, query,
		loan.ID,
		loan.BookID,
		loan.BorrowerEmail,
		loan.BorrowedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrLoanExists
		}
		return fmt.Errorf("failed to create loan: %w", err)
	}

	return nil
}

// CountLoansByBorrower returns the number of active loans held by email.
func (r *Repository) CountLoansByBorrower(ctx context.Context, email string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM loans WHERE borrower_email = $1`, email).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count loans: %w", err)
	}
	return count, nil
}

// ListLoansByBorrower returns the active loans held by email, oldest first.
func (r *Repository) ListLoansByBorrower(ctx context.Context, email string) ([]*model.Loan, error) {
	query := `
		SELECT id, book_id, borrower_email, borrowed_at
		FROM loans
		WHERE borrower_email = $1
		ORDER BY borrowed_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	loans := make([]*model.Loan, 0)
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating loans: %w", err)
	}

	return loans, nil
}

// GetLoan retrieves a loan by its ID.
func (r *Repository) GetLoan(ctx context.Context, id string) (*model.Loan, error) {
	query := `
		SELECT id, book_id, borrower_email, borrowed_at
		FROM loans
		WHERE id = $1
	`

	loan, err := scanLoan(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// FindLoan returns the oldest active loan of bookID held by email.
func (r *Repository) FindLoan(ctx context.Context, bookID, email string) (*model.Loan, error) {
	query := `
		SELECT id, book_id, borrower_email, borrowed_at
		FROM loans
		WHERE book_id = $1 AND borrower_email = $2
		ORDER BY borrowed_at ASC, id ASC
		LIMIT 1
	`

	loan, err := scanLoan(r.pool.QueryRow(ctx, query, bookID, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to find loan: %w", err)
	}
	return loan, nil
}

// DeleteLoanByID removes one loan and returns it.
func (r *Repository) DeleteLoanByID(ctx context.Context, id string) (*model.Loan, error) {
	query := `
		DELETE FROM loans
		WHERE id = $1
		RETURNING id, book_id, borrower_email, borrowed_at
	`

	loan, err := scanLoan(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to delete loan: %w", err)
	}
	return loan, nil
}

func scanLoan(row pgx.Row) (*model.Loan, error) {
	var loan model.Loan
	if err := row.Scan(&loan.ID, &loan.BookID, &loan.BorrowerEmail, &loan.BorrowedAt); err != nil {
		return nil, err
	}
	return &loan, nil
}
