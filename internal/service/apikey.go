package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/booknest/booknest/internal/auth"
	"github.com/booknest/booknest/internal/model"
	"github.com/booknest/booknest/internal/repository"
)

// Key errors.
var (
	ErrKeyNotFound  = errors.New("API key not found or already revoked")
	ErrInvalidScope = errors.New("invalid scope")
	ErrInvalidEmail = errors.New("invalid email")
)

// KeyStore is the credential persistence the service needs.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	GetAPIKeyByID(ctx context.Context, id string) (*model.APIKey, error)
	ListAPIKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
	GetOrCreateUser(ctx context.Context, user *model.User) (*model.User, error)
}

// Revocations flags revoked keys so cached auth contexts stop working.
type Revocations interface {
	MarkKeyRevoked(ctx context.Context, keyID string) error
}

// KeyService issues and manages API keys.
type KeyService struct {
	store   KeyStore
	revoked Revocations
	env     string
	logger  *slog.Logger
	now     func() time.Time
}

// NewKeyService creates a KeyService. revoked may be nil, in which case
// revoked keys stay usable until their cached context expires.
func NewKeyService(store KeyStore, revoked Revocations, env string, logger *slog.Logger) *KeyService {
	if env == "" {
		env = auth.EnvLive
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyService{
		store:   store,
		revoked: revoked,
		env:     env,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// IssueKeyInput defines input for creating a key.
type IssueKeyInput struct {
	UserID string
	Name   string
	Scopes []string
	Tier   string
}

// IssuedKey is a stored key together with its plaintext, which is never
// persisted and cannot be recovered later.
type IssuedKey struct {
	Key       *model.APIKey
	Plaintext string
}

// Response returns the one-time creation response.
func (k *IssuedKey) Response() model.APIKeyCreateResponse {
	return model.APIKeyCreateResponse{
		ID:            k.Key.ID,
		Key:           k.Plaintext,
		Name:          k.Key.Name,
		KeyPrefix:     k.Key.KeyPrefix,
		Scopes:        k.Key.Scopes,
		RateLimitTier: k.Key.RateLimitTier,
		CreatedAt:     k.Key.CreatedAt,
	}
}

// IssueKey generates and stores a new key. Scopes default to read.
func (s *KeyService) IssueKey(ctx context.Context, input IssueKeyInput) (*IssuedKey, error) {
	scopes, err := normalizeScopes(input.Scopes)
	if err != nil {
		return nil, err
	}
	tier := input.Tier
	if _, ok := model.TierConfigs[tier]; !ok {
		tier = model.TierFree
	}

	generated, err := auth.GenerateAPIKey(s.env)
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}

	key := &model.APIKey{
		ID:            ulid.Make().String(),
		UserID:        input.UserID,
		KeyHash:       generated.Hash,
		KeyPrefix:     generated.Prefix,
		Scopes:        scopes,
		RateLimitTier: tier,
		Name:          strings.TrimSpace(input.Name),
		CreatedAt:     s.now(),
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to create API key: %w", err)
	}

	s.logger.Info("API key created",
		slog.String("key_id", key.ID),
		slog.String("key_prefix", key.KeyPrefix),
		slog.String("user_id", key.UserID),
	)
	return &IssuedKey{Key: key, Plaintext: generated.Plaintext}, nil
}

// Bootstrap finds or creates the user for email and issues them a key.
func (s *KeyService) Bootstrap(ctx context.Context, email string, input IssueKeyInput) (*model.User, *IssuedKey, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, nil, ErrInvalidEmail
	}

	user, err := s.store.GetOrCreateUser(ctx, &model.User{ID: ulid.Make().String(), Email: email})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get or create user: %w", err)
	}

	input.UserID = user.ID
	issued, err := s.IssueKey(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return user, issued, nil
}

// ListKeys returns a user's keys, newest first.
func (s *KeyService) ListKeys(ctx context.Context, userID string) ([]*model.APIKey, error) {
	return s.store.ListAPIKeysByUserID(ctx, userID)
}

// RevokeKey revokes one of the user's keys. Keys owned by someone else
// look the same as missing ones.
func (s *KeyService) RevokeKey(ctx context.Context, userID, keyID string) error {
	if _, err := s.activeKey(ctx, userID, keyID); err != nil {
		return err
	}
	if err := s.revoke(ctx, keyID); err != nil {
		return err
	}

	s.logger.Info("API key revoked",
		slog.String("key_id", keyID),
		slog.String("user_id", userID),
	)
	return nil
}

// RotationResult reports a completed rotation.
type RotationResult struct {
	OldKeyID  string
	RevokedAt time.Time
	NewKey    *IssuedKey
}

// RotateKey issues a replacement with the same name, scopes and tier, then
// revokes the old key. If revocation fails the new key is still returned.
func (s *KeyService) RotateKey(ctx context.Context, userID, keyID string) (*RotationResult, error) {
	old, err := s.activeKey(ctx, userID, keyID)
	if err != nil {
		return nil, err
	}

	issued, err := s.IssueKey(ctx, IssueKeyInput{
		UserID: old.UserID,
		Name:   old.Name,
		Scopes: old.Scopes,
		Tier:   old.RateLimitTier,
	})
	if err != nil {
		return nil, err
	}

	if err := s.revoke(ctx, old.ID); err != nil {
		s.logger.Error("failed to revoke old API key during rotation",
			slog.String("key_id", old.ID),
			slog.String("error", err.Error()),
		)
	}

	return &RotationResult{OldKeyID: old.ID, RevokedAt: s.now(), NewKey: issued}, nil
}

func (s *KeyService) activeKey(ctx context.Context, userID, keyID string) (*model.APIKey, error) {
	key, err := s.store.GetAPIKeyByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	if key.UserID != userID || key.IsRevoked() {
		return nil, ErrKeyNotFound
	}
	return key, nil
}

func (s *KeyService) revoke(ctx context.Context, keyID string) error {
	if err := s.store.RevokeAPIKey(ctx, keyID); err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return ErrKeyNotFound
		}
		return fmt.Errorf("failed to revoke API key: %w", err)
	}
	if s.revoked != nil {
		if err := s.revoked.MarkKeyRevoked(ctx, keyID); err != nil {
			s.logger.Warn("failed to flag revoked key in cache",
				slog.String("key_id", keyID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func normalizeScopes(scopes []string) ([]string, error) {
	if len(scopes) == 0 {
		return []string{model.ScopeRead}, nil
	}
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		scope = strings.ToLower(strings.TrimSpace(scope))
		if !slices.Contains(model.ValidScopes, scope) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
		}
		if !slices.Contains(out, scope) {
			out = append(out, scope)
		}
	}
	return out, nil
}
