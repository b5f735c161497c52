package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/booknest/booknest/internal/auth"
	"github.com/booknest/booknest/internal/model"
	"github.com/booknest/booknest/internal/repository"
)

type fakeKeyStore struct {
	mu        sync.Mutex
	keys      map[string]*model.APIKey
	users     map[string]*model.User
	revokeErr error
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{keys: map[string]*model.APIKey{}, users: map[string]*model.User{}}
}

func (s *fakeKeyStore) CreateAPIKey(_ context.Context, k *model.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *k
	s.keys[k.ID] = &cp
	return nil
}

func (s *fakeKeyStore) GetAPIKeyByID(_ context.Context, id string) (*model.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return nil, repository.ErrAPIKeyNotFound
	}
	cp := *k
	return &cp, nil
}

func (s *fakeKeyStore) ListAPIKeysByUserID(_ context.Context, userID string) ([]*model.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.APIKey
	for _, k := range s.keys {
		if k.UserID == userID {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeKeyStore) RevokeAPIKey(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revokeErr != nil {
		return s.revokeErr
	}
	k, ok := s.keys[id]
	if !ok || k.IsRevoked() {
		return repository.ErrAPIKeyNotFound
	}
	now := time.Now()
	k.RevokedAt = &now
	return nil
}

func (s *fakeKeyStore) GetOrCreateUser(_ context.Context, u *model.User) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.users[u.Email]; ok {
		return existing, nil
	}
	cp := *u
	s.users[u.Email] = &cp
	return &cp, nil
}

type fakeRevocations struct {
	ids []string
}

func (r *fakeRevocations) MarkKeyRevoked(_ context.Context, keyID string) error {
	r.ids = append(r.ids, keyID)
	return nil
}

func TestIssueKey(t *testing.T) {
	store := newFakeKeyStore()
	svc := NewKeyService(store, nil, auth.EnvTest, nil)

	issued, err := svc.IssueKey(context.Background(), IssueKeyInput{
		UserID: "user-1",
		Name:   " ci ",
		Scopes: []string{"Write", "read", "write"},
	})
	require.NoError(t, err)

	parsed, err := auth.ParseAPIKey(issued.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, auth.EnvTest, parsed.Env)
	assert.Equal(t, parsed.Prefix, issued.Key.KeyPrefix)
	assert.Equal(t, []string{model.ScopeWrite, model.ScopeRead}, issued.Key.Scopes)
	assert.Equal(t, model.TierFree, issued.Key.RateLimitTier)
	assert.Equal(t, "ci", issued.Key.Name)

	ok, err := auth.VerifySecret(issued.Plaintext, store.keys[issued.Key.ID].KeyHash)
	require.NoError(t, err)
	assert.True(t, ok, "stored hash must verify the plaintext")

	resp := issued.Response()
	assert.Equal(t, issued.Plaintext, resp.Key)
}

func TestIssueKey_DefaultAndInvalidScopes(t *testing.T) {
	svc := NewKeyService(newFakeKeyStore(), nil, "", nil)

	issued, err := svc.IssueKey(context.Background(), IssueKeyInput{UserID: "u"})
	require.NoError(t, err)
	assert.Equal(t, []string{model.ScopeRead}, issued.Key.Scopes)

	_, err = svc.IssueKey(context.Background(), IssueKeyInput{UserID: "u", Scopes: []string{"owner"}})
	assert.ErrorIs(t, err, ErrInvalidScope)
}

func TestBootstrap(t *testing.T) {
	store := newFakeKeyStore()
	svc := NewKeyService(store, nil, auth.EnvLive, nil)

	user, issued, err := svc.Bootstrap(context.Background(), " Alice@Example.com ", IssueKeyInput{Scopes: []string{"admin"}})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, user.ID, issued.Key.UserID)

	again, _, err := svc.Bootstrap(context.Background(), "alice@example.com", IssueKeyInput{})
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID, "existing user is reused")

	_, _, err = svc.Bootstrap(context.Background(), "not-an-email", IssueKeyInput{})
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestRevokeKey(t *testing.T) {
	store := newFakeKeyStore()
	revs := &fakeRevocations{}
	svc := NewKeyService(store, revs, auth.EnvTest, nil)
	ctx := context.Background()

	issued, err := svc.IssueKey(ctx, IssueKeyInput{UserID: "owner"})
	require.NoError(t, err)

	err = svc.RevokeKey(ctx, "intruder", issued.Key.ID)
	assert.ErrorIs(t, err, ErrKeyNotFound, "foreign keys look missing")

	require.NoError(t, svc.RevokeKey(ctx, "owner", issued.Key.ID))
	assert.Equal(t, []string{issued.Key.ID}, revs.ids)

	err = svc.RevokeKey(ctx, "owner", issued.Key.ID)
	assert.ErrorIs(t, err, ErrKeyNotFound, "second revoke")

	err = svc.RevokeKey(ctx, "owner", "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestRotateKey(t *testing.T) {
	store := newFakeKeyStore()
	svc := NewKeyService(store, &fakeRevocations{}, auth.EnvTest, nil)
	ctx := context.Background()

	old, err := svc.IssueKey(ctx, IssueKeyInput{UserID: "owner", Name: "deploy", Scopes: []string{"write"}, Tier: model.TierPro})
	require.NoError(t, err)

	res, err := svc.RotateKey(ctx, "owner", old.Key.ID)
	require.NoError(t, err)
	assert.Equal(t, old.Key.ID, res.OldKeyID)
	assert.NotEqual(t, old.Key.ID, res.NewKey.Key.ID)
	assert.Equal(t, "deploy", res.NewKey.Key.Name)
	assert.Equal(t, []string{model.ScopeWrite}, res.NewKey.Key.Scopes)
	assert.Equal(t, model.TierPro, res.NewKey.Key.RateLimitTier)
	assert.True(t, store.keys[old.Key.ID].IsRevoked())
}

func TestRotateKey_RevokeFailureKeepsNewKey(t *testing.T) {
	store := newFakeKeyStore()
	svc := NewKeyService(store, nil, auth.EnvTest, nil)
	ctx := context.Background()

	old, err := svc.IssueKey(ctx, IssueKeyInput{UserID: "owner"})
	require.NoError(t, err)
	store.revokeErr = errors.New("db down")

	res, err := svc.RotateKey(ctx, "owner", old.Key.ID)
	require.NoError(t, err)
	assert.NotNil(t, res.NewKey)
	assert.Len(t, store.keys, 2)
}
