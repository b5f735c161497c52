package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/booknest/booknest/internal/auth"
	"github.com/booknest/booknest/internal/handler/dto"
	"github.com/booknest/booknest/internal/model"
	"github.com/booknest/booknest/internal/service"
)

// Catalog is the book CRUD the handlers need.
type Catalog interface {
	CreateBook(ctx context.Context, input service.CreateBookInput) (*model.Book, error)
	ListBooks(ctx context.Context, filter model.BookFilter) ([]*model.Book, error)
	ListAvailable(ctx context.Context, filter model.BookFilter) ([]*model.Book, error)
	UpdateBook(ctx context.Context, id string, input service.UpdateBookInput) (*model.Book, error)
}

// BookDetails resolves a book together with the caller's loan state.
type BookDetails interface {
	GetBookDetail(ctx context.Context, requestedBy *model.Identity, bookID, forEmail string) (*model.BookDetail, error)
}

// BookHandler handles catalog endpoints.
type BookHandler struct {
	catalog Catalog
	details BookDetails
	logger  *slog.Logger
}

// NewBookHandler creates a new BookHandler.
func NewBookHandler(catalog Catalog, details BookDetails, logger *slog.Logger) *BookHandler {
	return &BookHandler{catalog: catalog, details: details, logger: logger}
}

// List handles GET /api/v1/books?category=&limit=&offset=
func (h *BookHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseBookFilter(w, r)
	if !ok {
		return
	}
	books, err := h.catalog.ListBooks(r.Context(), filter)
	if err != nil {
		handleCatalogError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToBookListResponse(books))
}

// ListAvailable handles GET /api/v1/books/available
func (h *BookHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseBookFilter(w, r)
	if !ok {
		return
	}
	books, err := h.catalog.ListAvailable(r.Context(), filter)
	if err != nil {
		handleCatalogError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToBookListResponse(books))
}

// Get handles GET /api/v1/books/{id}?email=
// Authentication is optional; is_borrowed is only reported to a verified
// caller, and only for their own email.
func (h *BookHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	forEmail := r.URL.Query().Get("email")
	identity := auth.IdentityFromContext(r.Context())

	if forEmail != "" && identity == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required to query loan state")
		return
	}
	if forEmail != "" && !checkEmail(w, forEmail) {
		return
	}

	detail, err := h.details.GetBookDetail(r.Context(), identity, id, forEmail)
	if err != nil {
		handleLendingError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToBookDetailResponse(detail))
}

// Create handles POST /api/v1/books
func (h *BookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateBookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	book, err := h.catalog.CreateBook(r.Context(), service.CreateBookInput{
		Title:    req.Title,
		Author:   req.Author,
		Category: req.Category,
		Quantity: req.Quantity,
	})
	if err != nil {
		handleCatalogError(w, h.logger, err)
		return
	}

	h.logger.Info("book created",
		slog.String("book_id", book.ID),
		slog.Int("quantity", book.Quantity),
	)
	writeJSON(w, http.StatusCreated, dto.ToBookResponse(book))
}

// Update handles PUT /api/v1/books/{id}
func (h *BookHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req dto.UpdateBookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	book, err := h.catalog.UpdateBook(r.Context(), id, service.UpdateBookInput{
		Title:    req.Title,
		Author:   req.Author,
		Category: req.Category,
		Quantity: req.Quantity,
	})
	if err != nil {
		handleCatalogError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToBookResponse(book))
}

func parseBookFilter(w http.ResponseWriter, r *http.Request) (model.BookFilter, bool) {
	q := r.URL.Query()
	filter := model.BookFilter{Category: q.Get("category")}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return filter, false
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "INVALID_OFFSET", "offset must be a non-negative integer")
			return filter, false
		}
		filter.Offset = n
	}
	return filter, true
}
