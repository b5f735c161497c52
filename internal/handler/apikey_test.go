package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/booknest/booknest/internal/auth"
	"github.com/booknest/booknest/internal/model"
	"github.com/booknest/booknest/internal/service"
)

type fakeKeyManager struct {
	keys    map[string]*model.APIKey
	revoked []string
	err     error
}

func (m *fakeKeyManager) IssueKey(_ context.Context, in service.IssueKeyInput) (*service.IssuedKey, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, s := range in.Scopes {
		if s == "superuser" {
			return nil, fmt.Errorf("%w: %q", service.ErrInvalidScope, s)
		}
	}
	key := &model.APIKey{ID: fmt.Sprintf("k%d", len(m.keys)+1), UserID: in.UserID, Name: in.Name, Scopes: in.Scopes, CreatedAt: time.Now()}
	m.keys[key.ID] = key
	return &service.IssuedKey{Key: key, Plaintext: "bn_test_abcdef_" + strings.Repeat("0", 32)}, nil
}

func (m *fakeKeyManager) ListKeys(_ context.Context, userID string) ([]*model.APIKey, error) {
	var out []*model.APIKey
	for _, k := range m.keys {
		if k.UserID == userID {
			out = append(out, k)
		}
	}
	return out, m.err
}

func (m *fakeKeyManager) RevokeKey(_ context.Context, userID, keyID string) error {
	k, ok := m.keys[keyID]
	if !ok || k.UserID != userID {
		return service.ErrKeyNotFound
	}
	m.revoked = append(m.revoked, keyID)
	return nil
}

func (m *fakeKeyManager) RotateKey(ctx context.Context, userID, keyID string) (*service.RotationResult, error) {
	if err := m.RevokeKey(ctx, userID, keyID); err != nil {
		return nil, err
	}
	issued, err := m.IssueKey(ctx, service.IssueKeyInput{UserID: userID})
	if err != nil {
		return nil, err
	}
	return &service.RotationResult{OldKeyID: keyID, RevokedAt: time.Now(), NewKey: issued}, nil
}

func newKeyRouter(m *fakeKeyManager) chi.Router {
	h := NewAPIKeyHandler(m, discardLogger())
	r := chi.NewRouter()
	r.Get("/api-keys", h.List)
	r.Post("/api-keys", h.Create)
	r.Delete("/api-keys/{id}", h.Revoke)
	r.Post("/api-keys/{id}/rotate", h.Rotate)
	return r
}

func serveAs(r http.Handler, authCtx *model.AuthContext, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if authCtx != nil {
		req = req.WithContext(auth.ContextWithAuth(req.Context(), authCtx))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func keyUser(id string) *model.AuthContext {
	return &model.AuthContext{Method: model.AuthMethodAPIKey, UserID: id, Email: id + "@example.com", Scopes: []string{model.ScopeAdmin}}
}

func TestAPIKeyHandler_CreateAndList(t *testing.T) {
	m := &fakeKeyManager{keys: map[string]*model.APIKey{}}
	r := newKeyRouter(m)

	rec := serveAs(r, keyUser("u1"), http.MethodPost, "/api-keys", `{"name":"ci","scopes":["read"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created model.APIKeyCreateResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !auth.LooksLikeAPIKey(created.Key) {
		t.Errorf("plaintext key missing from create response: %q", created.Key)
	}

	rec = serveAs(r, keyUser("u1"), http.MethodGet, "/api-keys", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), created.Key) {
		t.Error("list response leaks the plaintext key")
	}
	var listed struct {
		Keys []model.APIKeyResponse `json:"keys"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(listed.Keys) != 1 || listed.Keys[0].Name != "ci" {
		t.Errorf("unexpected keys: %+v", listed.Keys)
	}
}

func TestAPIKeyHandler_Errors(t *testing.T) {
	jwtCaller := &model.AuthContext{Method: model.AuthMethodJWT, Email: "a@example.com", Scopes: []string{model.ScopeAdmin}}

	tests := []struct {
		name     string
		authCtx  *model.AuthContext
		method   string
		path     string
		body     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"anonymous", nil, http.MethodGet, "/api-keys", "", nil, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"jwt_caller", jwtCaller, http.MethodGet, "/api-keys", "", nil, http.StatusForbidden, "FORBIDDEN"},
		{"bad_scope", keyUser("u1"), http.MethodPost, "/api-keys", `{"scopes":["superuser"]}`, nil, http.StatusBadRequest, "INVALID_SCOPE"},
		{"bad_json", keyUser("u1"), http.MethodPost, "/api-keys", `[`, nil, http.StatusBadRequest, "INVALID_JSON"},
		{"store_error", keyUser("u1"), http.MethodPost, "/api-keys", `{}`, errors.New("db down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"revoke_foreign", keyUser("u2"), http.MethodDelete, "/api-keys/k1", "", nil, http.StatusNotFound, "KEY_NOT_FOUND"},
		{"rotate_missing", keyUser("u1"), http.MethodPost, "/api-keys/zzz/rotate", "", nil, http.StatusNotFound, "KEY_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeKeyManager{keys: map[string]*model.APIKey{"k1": {ID: "k1", UserID: "u1"}}, err: tt.err}

			rec := serveAs(newKeyRouter(m), tt.authCtx, tt.method, tt.path, tt.body)

			if rec.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if got := decodeError(t, rec).Code; got != tt.wantErr {
				t.Errorf("expected code %s, got %s", tt.wantErr, got)
			}
		})
	}
}

func TestAPIKeyHandler_RevokeAndRotate(t *testing.T) {
	m := &fakeKeyManager{keys: map[string]*model.APIKey{
		"k1": {ID: "k1", UserID: "u1"},
		"k2": {ID: "k2", UserID: "u1"},
	}}
	r := newKeyRouter(m)

	rec := serveAs(r, keyUser("u1"), http.MethodDelete, "/api-keys/k1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}

	rec = serveAs(r, keyUser("u1"), http.MethodPost, "/api-keys/k2/rotate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var rotated model.APIKeyRotateResponse
	if err := json.NewDecoder(rec.Body).Decode(&rotated); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if rotated.OldKeyID != "k2" || rotated.NewKey.Key == "" {
		t.Errorf("unexpected rotation: %+v", rotated)
	}
	if len(m.revoked) != 2 {
		t.Errorf("revoked = %v, want k1 and k2", m.revoked)
	}
}
