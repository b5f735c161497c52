//go:build integration

package repository

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/booknest/booknest/internal/model"
	"github.com/booknest/booknest/internal/testutil"
)

func TestIntegrationAPIKeyRepository_CreateAndGet(t *testing.T) {
	ctx, repo := newTestEnv(t)

	user := &model.User{ID: testutil.UniqueID("user"), Email: testutil.UniqueEmail("owner")}
	if _, err := repo.GetOrCreateUser(ctx, user); err != nil {
		t.Fatalf("GetOrCreateUser failed: %v", err)
	}

	key := testutil.NewTestAPIKey(t, user.ID)
	if err := repo.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	got, err := repo.GetAPIKeyByID(ctx, key.ID)
	if err != nil {
		t.Fatalf("GetAPIKeyByID failed: %v", err)
	}
	if got.OwnerEmail != user.Email {
		t.Errorf("OwnerEmail = %q, want %q", got.OwnerEmail, user.Email)
	}
	if got.KeyHash != key.KeyHash {
		t.Errorf("KeyHash mismatch: got %q, want %q", got.KeyHash, key.KeyHash)
	}
	if !slices.Equal(got.Scopes, key.Scopes) {
		t.Errorf("Scopes = %v, want %v", got.Scopes, key.Scopes)
	}
}

func TestIntegrationAPIKeyRepository_GetByID_NotFound(t *testing.T) {
	ctx, repo := newTestEnv(t)

	_, err := repo.GetAPIKeyByID(ctx, "nonexistent-key-id")
	if !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("Expected ErrAPIKeyNotFound, got: %v", err)
	}
}

func TestIntegrationAPIKeyRepository_GetByPrefix_ExcludesRevoked(t *testing.T) {
	ctx, repo := newTestEnv(t)

	userID := testutil.UniqueID("user")
	active := testutil.NewTestAPIKey(t, userID)
	active.KeyPrefix = "pk_test_abc123"
	revoked := testutil.NewTestAPIKey(t, userID)
	revoked.KeyPrefix = "pk_test_abc123"

	for _, k := range []*model.APIKey{active, revoked} {
		if err := repo.CreateAPIKey(ctx, k); err != nil {
			t.Fatalf("CreateAPIKey failed: %v", err)
		}
	}
	if err := repo.RevokeAPIKey(ctx, revoked.ID); err != nil {
		t.Fatalf("RevokeAPIKey failed: %v", err)
	}

	keys, err := repo.GetAPIKeysByPrefix(ctx, "pk_test_abc123")
	if err != nil {
		t.Fatalf("GetAPIKeysByPrefix failed: %v", err)
	}
	if len(keys) != 1 || keys[0].ID != active.ID {
		t.Fatalf("expected only the active key, got %d keys", len(keys))
	}
	if keys[0].OwnerEmail != "" {
		t.Errorf("key without a user row should have empty OwnerEmail, got %q", keys[0].OwnerEmail)
	}

	if err := repo.RevokeAPIKey(ctx, revoked.ID); !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("double revoke: expected ErrAPIKeyNotFound, got %v", err)
	}
}

func TestIntegrationAPIKeyRepository_UpdateLastUsed(t *testing.T) {
	ctx, repo := newTestEnv(t)

	key := testutil.NewTestAPIKey(t, testutil.UniqueID("user"))
	if err := repo.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	before := time.Now().Add(-time.Second)
	if err := repo.UpdateAPIKeyLastUsed(ctx, key.ID); err != nil {
		t.Fatalf("UpdateAPIKeyLastUsed failed: %v", err)
	}

	got, err := repo.GetAPIKeyByID(ctx, key.ID)
	if err != nil {
		t.Fatalf("GetAPIKeyByID failed: %v", err)
	}
	if got.LastUsedAt == nil || got.LastUsedAt.Before(before) {
		t.Errorf("LastUsedAt not updated: %v", got.LastUsedAt)
	}
}
