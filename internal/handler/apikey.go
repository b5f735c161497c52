package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/booknest/booknest/internal/auth"
	"github.com/booknest/booknest/internal/model"
	"github.com/booknest/booknest/internal/service"
)

// KeyManager is the API key management the handlers need.
type KeyManager interface {
	IssueKey(ctx context.Context, input service.IssueKeyInput) (*service.IssuedKey, error)
	ListKeys(ctx context.Context, userID string) ([]*model.APIKey, error)
	RevokeKey(ctx context.Context, userID, keyID string) error
	RotateKey(ctx context.Context, userID, keyID string) (*service.RotationResult, error)
}

// APIKeyHandler handles API key management endpoints. Keys belong to
// users, so every endpoint requires an API key credential; JWT callers
// have no user record.
type APIKeyHandler struct {
	keys   KeyManager
	logger *slog.Logger
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(keys KeyManager, logger *slog.Logger) *APIKeyHandler {
	return &APIKeyHandler{keys: keys, logger: logger}
}

// Create handles POST /api/v1/api-keys
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.keyOwner(w, r)
	if !ok {
		return
	}

	var req model.APIKeyCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	issued, err := h.keys.IssueKey(r.Context(), service.IssueKeyInput{
		UserID: userID,
		Name:   req.Name,
		Scopes: req.Scopes,
	})
	if err != nil {
		h.handleKeyError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, issued.Response())
}

// List handles GET /api/v1/api-keys
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.keyOwner(w, r)
	if !ok {
		return
	}

	keys, err := h.keys.ListKeys(r.Context(), userID)
	if err != nil {
		h.handleKeyError(w, err)
		return
	}

	responses := make([]model.APIKeyResponse, 0, len(keys))
	for _, key := range keys {
		responses = append(responses, key.ToResponse())
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": responses})
}

// Revoke handles DELETE /api/v1/api-keys/{id}
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.keyOwner(w, r)
	if !ok {
		return
	}

	if err := h.keys.RevokeKey(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		h.handleKeyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Rotate handles POST /api/v1/api-keys/{id}/rotate
func (h *APIKeyHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.keyOwner(w, r)
	if !ok {
		return
	}

	res, err := h.keys.RotateKey(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.handleKeyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.APIKeyRotateResponse{
		OldKeyID:        res.OldKeyID,
		OldKeyRevokedAt: res.RevokedAt,
		NewKey:          res.NewKey.Response(),
	})
}

func (h *APIKeyHandler) keyOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return "", false
	}
	if authCtx.UserID == "" {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Key management requires an API key credential")
		return "", false
	}
	return authCtx.UserID, true
}

func (h *APIKeyHandler) handleKeyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrKeyNotFound):
		writeError(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found or already revoked")
	case errors.Is(err, service.ErrInvalidScope):
		writeError(w, http.StatusBadRequest, "INVALID_SCOPE", err.Error()+"; valid scopes: read, write, admin")
	default:
		h.logger.Error("API key operation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
