package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/booknest/booknest/internal/auth"
	"github.com/booknest/booknest/internal/handler"
	"github.com/booknest/booknest/internal/lending"
	"github.com/booknest/booknest/internal/lending/lendingtest"
	"github.com/booknest/booknest/internal/metrics"
	"github.com/booknest/booknest/internal/middleware"
	"github.com/booknest/booknest/internal/model"
	"github.com/booknest/booknest/internal/service"
)

type tokenVerifier map[string]*model.AuthContext

func (v tokenVerifier) Verify(_ context.Context, credential string) (*model.AuthContext, error) {
	if a, ok := v[credential]; ok {
		return a, nil
	}
	return nil, auth.ErrInvalidCredential
}

var tokens = tokenVerifier{
	"alice-rw": {Method: model.AuthMethodJWT, Email: "alice@example.com", Scopes: []string{model.ScopeRead, model.ScopeWrite}},
	"bob-ro":   {Method: model.AuthMethodJWT, Email: "bob@example.com", Scopes: []string{model.ScopeRead}},
}

type routerFixture struct {
	store  *lendingtest.Store
	bookID string
	mux    http.Handler
}

func newRouterFixture(t *testing.T, withAdmin bool) *routerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bookID := ulid.Make().String()
	store := lendingtest.NewStore(&model.Book{ID: bookID, Title: "Dune", Author: "Frank Herbert", Quantity: 1, CreatedAt: time.Now()})
	rec := metrics.NewInMemory()
	coord := lending.New(store, store, lending.Config{Metrics: rec, Logger: logger})

	h := Handlers{
		Root:    handler.New(),
		Health:  handler.NewHealthHandler(nil, nil),
		Metrics: handler.NewMetricsHandler(rec),
		Books:   handler.NewBookHandler(service.NewCatalogService(store, rec), coord, logger),
		Loans:   handler.NewLoanHandler(coord, logger),
		APIKeys: handler.NewAPIKeyHandler(service.NewKeyService(nil, nil, auth.EnvTest, logger), logger),
	}
	if withAdmin {
		h.Admin = handler.NewAdminHandler(nil, logger)
	}

	mux := NewRouter(h, RouterConfig{
		Logger:      logger,
		Auth:        middleware.AuthConfig{Logger: logger, Verifier: tokens, MinDuration: -1},
		RateLimit:   middleware.RateLimitConfig{Logger: logger},
		CORS:        middleware.DefaultCORSConfig(),
		Security:    middleware.SecurityConfig{IsDevelopment: true},
		MaxBodySize: 1 << 20,
	})
	return &routerFixture{store: store, bookID: bookID, mux: mux}
}

func (f *routerFixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error.Code
}

func TestRouter_PublicEndpoints(t *testing.T) {
	f := newRouterFixture(t, false)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/readyz", "", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/metrics", "", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/books", "", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/books/available", "", "").Code)

	rec := f.do(t, http.MethodGet, "/api/v1/books/"+f.bookID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "is_borrowed")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_AuthAndScopes(t *testing.T) {
	f := newRouterFixture(t, false)
	borrow := `{"book_id":"` + f.bookID + `"}`

	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		body     string
		wantCode int
		wantErr  string
	}{
		{"borrow_anonymous", http.MethodPost, "/api/v1/loans", "", borrow, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"borrow_bad_token", http.MethodPost, "/api/v1/loans", "nope", borrow, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"borrow_read_only", http.MethodPost, "/api/v1/loans", "bob-ro", borrow, http.StatusForbidden, "FORBIDDEN"},
		{"create_book_read_only", http.MethodPost, "/api/v1/books", "bob-ro", `{"title":"T","author":"A"}`, http.StatusForbidden, "FORBIDDEN"},
		{"detail_bad_token", http.MethodGet, "/api/v1/books/" + ulid.Make().String(), "nope", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"malformed_book_id", http.MethodGet, "/api/v1/books/not-a-ulid", "", "", http.StatusNotFound, "NOT_FOUND"},
		{"malformed_return_id", http.MethodDelete, "/api/v1/loans/xyz", "alice-rw", "", http.StatusNotFound, "NOT_FOUND"},
		{"admin_unregistered", http.MethodGet, "/api/v1/admin/drift", "alice-rw", "", http.StatusNotFound, "NOT_FOUND"},
		{"key_admin_needs_admin", http.MethodPost, "/api/v1/api-keys", "alice-rw", `{}`, http.StatusForbidden, "FORBIDDEN"},
		{"unknown_route", http.MethodGet, "/nowhere", "", "", http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.token, tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantErr, errorCode(t, rec))
		})
	}
	assert.Equal(t, 1, f.store.Quantity(f.bookID), "rejected requests must not touch stock")
}

func TestRouter_AdminRequiresAdminScope(t *testing.T) {
	f := newRouterFixture(t, true)

	rec := f.do(t, http.MethodGet, "/api/v1/admin/drift", "alice-rw", "")

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_BorrowDetailReturn(t *testing.T) {
	f := newRouterFixture(t, false)
	detail := "/api/v1/books/" + f.bookID + "?email=alice@example.com"

	rec := f.do(t, http.MethodPost, "/api/v1/loans", "alice-rw", `{"book_id":"`+f.bookID+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 0, f.store.Quantity(f.bookID))

	rec = f.do(t, http.MethodGet, detail, "alice-rw", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_borrowed":true`)

	rec = f.do(t, http.MethodGet, detail, "bob-ro", "")
	assert.Equal(t, http.StatusForbidden, rec.Code, "bob cannot ask about alice")

	rec = f.do(t, http.MethodGet, "/api/v1/loans", "alice-rw", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Dune"`)

	rec = f.do(t, http.MethodPost, "/api/v1/loans", "alice-rw", `{"book_id":"`+f.bookID+`"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "OUT_OF_STOCK", errorCode(t, rec))

	rec = f.do(t, http.MethodDelete, "/api/v1/loans/"+f.bookID, "alice-rw", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.store.Quantity(f.bookID))
	assert.Empty(t, f.store.Loans())
}

func TestRouter_CreateAndUpdateBook(t *testing.T) {
	f := newRouterFixture(t, false)

	rec := f.do(t, http.MethodPost, "/api/v1/books", "alice-rw", `{"title":"Emma","author":"Jane Austen","category":"classics","quantity":2}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	rec = f.do(t, http.MethodPut, "/api/v1/books/"+created.ID, "alice-rw", `{"quantity":5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 5, f.store.Quantity(created.ID))

	rec = f.do(t, http.MethodGet, "/api/v1/books?category=classics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Emma")
	assert.NotContains(t, rec.Body.String(), "Dune")
}
