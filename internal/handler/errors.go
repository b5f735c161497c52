package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/booknest/booknest/internal/handler/dto"
	"github.com/booknest/booknest/internal/lending"
	"github.com/booknest/booknest/internal/service"
)

// handleLendingError maps coordinator errors to HTTP responses. The body
// names the entity the failure concerns.
func handleLendingError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var le *lending.Error
	if !errors.As(err, &le) {
		logger.Error("unexpected lending error", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	status, code, message := http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred"
	switch le.Kind {
	case lending.KindUnauthorized:
		status, code, message = http.StatusForbidden, "FORBIDDEN", "Not allowed to act for this "+entityOr(le.Entity, "resource")
		if le.Entity == lending.EntityBorrower {
			message = "Borrower does not match the authenticated identity"
		}
	case lending.KindNotFound:
		status, code, message = http.StatusNotFound, notFoundCode(le.Entity), capitalize(entityOr(le.Entity, "resource"))+" not found"
	case lending.KindOutOfStock:
		status, code, message = http.StatusConflict, "OUT_OF_STOCK", "No copies available"
	case lending.KindLimitExceeded:
		status, code, message = http.StatusConflict, "LOAN_LIMIT_EXCEEDED", "Loan limit reached"
	case lending.KindNoActiveLoan:
		status, code, message = http.StatusNotFound, "NO_ACTIVE_LOAN", "No active loan for this book"
	case lending.KindPartialFailure:
		logger.Error("lending operation partially applied", slog.String("error", err.Error()))
		code, message = "PARTIAL_FAILURE", "The operation was partially applied and will be reconciled"
	case lending.KindStoreUnavailable:
		logger.Error("lending store unavailable", slog.String("error", err.Error()))
		w.Header().Set("Retry-After", "1")
		status, code, message = http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service temporarily unavailable"
	default:
		logger.Error("unexpected lending error", slog.String("error", err.Error()))
	}

	writeJSON(w, status, dto.ErrorResponse{Error: dto.ErrorDetail{
		Code:    code,
		Message: message,
		Entity:  le.Entity,
		ID:      le.ID,
	}})
}

func notFoundCode(entity string) string {
	switch entity {
	case lending.EntityBook:
		return "BOOK_NOT_FOUND"
	case lending.EntityLoan:
		return "LOAN_NOT_FOUND"
	}
	return "NOT_FOUND"
}

func entityOr(entity, fallback string) string {
	if entity == "" {
		return fallback
	}
	return entity
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// handleCatalogError maps catalog service errors to HTTP responses.
func handleCatalogError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrBookNotFound):
		writeError(w, http.StatusNotFound, "BOOK_NOT_FOUND", "Book not found")
	case errors.Is(err, service.ErrTitleRequired),
		errors.Is(err, service.ErrAuthorRequired),
		errors.Is(err, service.ErrFieldTooLong),
		errors.Is(err, service.ErrNegativeStock),
		errors.Is(err, service.ErrInvalidBook):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, service.ErrNothingToUpdate):
		writeError(w, http.StatusBadRequest, "NO_FIELDS", "No fields to update")
	default:
		logger.Error("catalog operation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
