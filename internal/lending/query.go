package lending

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/booknest/booknest/internal/metrics"
	"github.com/booknest/booknest/internal/model"
	"github.com/booknest/booknest/internal/repository"
)

// ListBorrowedBooks returns the active loans of filterEmail joined with
// their books, in ledger order. Only the borrower may list their loans.
// A loan whose book is gone is returned without book fields.
func (c *Coordinator) ListBorrowedBooks(ctx context.Context, requestedBy model.Identity, filterEmail string) ([]model.BorrowedBook, error) {
	defer c.observe(metrics.OpListLoans, time.Now())

	email, err := authorize(requestedBy, filterEmail)
	if err != nil {
		return nil, err
	}

	loans, err := c.ledger.ListLoansByBorrower(ctx, email)
	if err != nil {
		return nil, storeUnavailable(EntityLoan, "", err)
	}

	result := make([]model.BorrowedBook, 0, len(loans))
	if len(loans) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(loans))
	seen := make(map[string]struct{}, len(loans))
	for _, l := range loans {
		if _, ok := seen[l.BookID]; !ok {
			seen[l.BookID] = struct{}{}
			ids = append(ids, l.BookID)
		}
	}

	books, err := c.catalog.GetBooksByIDs(ctx, ids)
	if err != nil {
		return nil, storeUnavailable(EntityBook, "", err)
	}

	for _, l := range loans {
		entry := model.BorrowedBook{Loan: *l}
		if book, ok := books[l.BookID]; ok {
			entry.Book = book.Summary()
		}
		result = append(result, entry)
	}
	return result, nil
}

// GetBookDetail returns a book and, for an identified caller, whether they
// hold a copy. forEmail, when given, must be the caller's own email and is
// checked before the store is touched. Without forEmail the caller's own
// identity is used if present; anonymous lookups get no IsBorrowed flag.
func (c *Coordinator) GetBookDetail(ctx context.Context, requestedBy *model.Identity, bookID, forEmail string) (*model.BookDetail, error) {
	defer c.observe(metrics.OpBookDetail, time.Now())

	var email string
	switch {
	case strings.TrimSpace(forEmail) != "":
		if requestedBy == nil {
			return nil, unauthorized("email given without a verified identity")
		}
		verified, err := authorize(*requestedBy, forEmail)
		if err != nil {
			return nil, err
		}
		email = verified
	case requestedBy != nil:
		email = NormalizeEmail(requestedBy.Email)
	}

	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return nil, newError(KindNotFound, EntityBook, "", nil)
	}

	book, err := c.catalog.GetBook(ctx, bookID)
	if err != nil {
		if errors.Is(err, repository.ErrBookNotFound) {
			return nil, newError(KindNotFound, EntityBook, bookID, nil)
		}
		return nil, storeUnavailable(EntityBook, bookID, err)
	}

	detail := &model.BookDetail{Book: *book}
	if email == "" {
		return detail, nil
	}

	borrowed := true
	if _, err := c.ledger.FindLoan(ctx, bookID, email); err != nil {
		if !errors.Is(err, repository.ErrLoanNotFound) {
			return nil, storeUnavailable(EntityLoan, "", err)
		}
		borrowed = false
	}
	detail.IsBorrowed = &borrowed
	return detail, nil
}
