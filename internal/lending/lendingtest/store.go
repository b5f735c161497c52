// Package lendingtest provides an in-memory catalog and ledger for tests.
package lendingtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/booknest/booknest/internal/model"
	"github.com/booknest/booknest/internal/repository"
)

// Store implements the coordinator's Catalog and Ledger, and the catalog
// service's BookStore, in memory with the same error contract as the
// PostgreSQL repository. Fail* hooks, when set,
// run before the named operation and abort it with their error.
// FailDeleteAfterCommit lets the delete happen and then reports its error,
// like a commit whose acknowledgement was lost.
type Store struct {
	mu    sync.Mutex
	books map[string]*model.Book
	loans []*model.Loan

	FailCount     error
	FailDecrement error
	FailIncrement error
	FailCreate    error
	FailDelete    error
	FailFind      error
	FailList      error
	FailGet       error

	FailDeleteAfterCommit error

	// Mutations counts every successful write, for no-mutation assertions.
	Mutations int
}

// NewStore returns a Store seeded with books.
func NewStore(books ...*model.Book) *Store {
	s := &Store{books: make(map[string]*model.Book)}
	for _, b := range books {
		cp := *b
		s.books[b.ID] = &cp
	}
	return s
}

// AddBook inserts or replaces a book.
func (s *Store) AddBook(b *model.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.books[b.ID] = &cp
}

// RemoveBook deletes a book out-of-band.
func (s *Store) RemoveBook(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.books, id)
}

// Quantity returns a book's stock, or -1 if it does not exist.
func (s *Store) Quantity(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.books[id]; ok {
		return b.Quantity
	}
	return -1
}

// Loans returns a copy of the ledger.
func (s *Store) Loans() []model.Loan {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Loan, 0, len(s.loans))
	for _, l := range s.loans {
		out = append(out, *l)
	}
	return out
}

// SeedLoan inserts a loan without touching stock.
func (s *Store) SeedLoan(l *model.Loan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.loans = append(s.loans, &cp)
}

func (s *Store) GetBook(_ context.Context, id string) (*model.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailGet != nil {
		return nil, s.FailGet
	}
	b, ok := s.books[id]
	if !ok {
		return nil, repository.ErrBookNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *Store) GetBooksByIDs(_ context.Context, ids []string) (map[string]*model.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailGet != nil {
		return nil, s.FailGet
	}
	out := make(map[string]*model.Book, len(ids))
	for _, id := range ids {
		if b, ok := s.books[id]; ok {
			cp := *b
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *Store) CreateBook(_ context.Context, b *model.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.Quantity < 0 {
		return repository.ErrInvalidBook
	}
	cp := *b
	s.books[b.ID] = &cp
	s.Mutations++
	return nil
}

// ListBooks filters and orders like the repository: oldest first.
func (s *Store) ListBooks(_ context.Context, filter model.BookFilter) ([]*model.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailGet != nil {
		return nil, s.FailGet
	}
	filter = filter.Normalize()
	out := make([]*model.Book, 0, len(s.books))
	for _, b := range s.books {
		if filter.Category != "" && b.Category != filter.Category {
			continue
		}
		if filter.AvailableOnly && b.Quantity <= 0 {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Offset >= len(out) {
		return []*model.Book{}, nil
	}
	out = out[filter.Offset:]
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) UpdateBook(_ context.Context, id string, u model.BookUpdate, now time.Time) (*model.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.IsEmpty() {
		return nil, repository.ErrNothingToApply
	}
	b, ok := s.books[id]
	if !ok {
		return nil, repository.ErrBookNotFound
	}
	if u.Quantity != nil && *u.Quantity < 0 {
		return nil, repository.ErrInvalidBook
	}
	if u.Title != nil {
		b.Title = *u.Title
	}
	if u.Author != nil {
		b.Author = *u.Author
	}
	if u.Category != nil {
		b.Category = *u.Category
	}
	if u.Quantity != nil {
		b.Quantity = *u.Quantity
	}
	b.UpdatedAt = now
	s.Mutations++
	cp := *b
	return &cp, nil
}

func (s *Store) DecrementQuantity(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDecrement != nil {
		return 0, s.FailDecrement
	}
	b, ok := s.books[id]
	if !ok {
		return 0, repository.ErrBookNotFound
	}
	if b.Quantity <= 0 {
		return 0, repository.ErrOutOfStock
	}
	b.Quantity--
	s.Mutations++
	return b.Quantity, nil
}

func (s *Store) IncrementQuantity(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailIncrement != nil {
		return 0, s.FailIncrement
	}
	b, ok := s.books[id]
	if !ok {
		return 0, repository.ErrBookNotFound
	}
	b.Quantity++
	s.Mutations++
	return b.Quantity, nil
}

func (s *Store) CreateLoan(_ context.Context, loan *model.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreate != nil {
		return s.FailCreate
	}
	for _, l := range s.loans {
		if l.ID == loan.ID {
			return repository.ErrLoanExists
		}
	}
	cp := *loan
	s.loans = append(s.loans, &cp)
	s.Mutations++
	return nil
}

func (s *Store) GetLoan(_ context.Context, id string) (*model.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.loans {
		if l.ID == id {
			cp := *l
			return &cp, nil
		}
	}
	return nil, repository.ErrLoanNotFound
}

func (s *Store) CountLoansByBorrower(_ context.Context, email string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCount != nil {
		return 0, s.FailCount
	}
	n := 0
	for _, l := range s.loans {
		if l.BorrowerEmail == email {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListLoansByBorrower(_ context.Context, email string) ([]*model.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailList != nil {
		return nil, s.FailList
	}
	out := make([]*model.Loan, 0)
	for _, l := range s.loans {
		if l.BorrowerEmail == email {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].BorrowedAt.Before(out[j].BorrowedAt)
	})
	return out, nil
}

func (s *Store) FindLoan(_ context.Context, bookID, email string) (*model.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailFind != nil {
		return nil, s.FailFind
	}
	if i := s.indexOf(bookID, email); i >= 0 {
		cp := *s.loans[i]
		return &cp, nil
	}
	return nil, repository.ErrLoanNotFound
}

func (s *Store) DeleteLoanByID(_ context.Context, id string) (*model.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDelete != nil {
		return nil, s.FailDelete
	}
	for i, l := range s.loans {
		if l.ID != id {
			continue
		}
		s.loans = append(s.loans[:i], s.loans[i+1:]...)
		s.Mutations++
		if s.FailDeleteAfterCommit != nil {
			return nil, s.FailDeleteAfterCommit
		}
		return l, nil
	}
	return nil, repository.ErrLoanNotFound
}

func (s *Store) indexOf(bookID, email string) int {
	for i, l := range s.loans {
		if l.BookID == bookID && l.BorrowerEmail == email {
			return i
		}
	}
	return -1
}

// DriftLog records drifts in memory.
type DriftLog struct {
	mu     sync.Mutex
	drifts []model.Drift
	Fail   error
}

func (d *DriftLog) RecordDrift(_ context.Context, drift model.Drift) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Fail != nil {
		return d.Fail
	}
	d.drifts = append(d.drifts, drift)
	return nil
}

// Drifts returns a copy of the recorded drifts.
func (d *DriftLog) Drifts() []model.Drift {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.Drift(nil), d.drifts...)
}
