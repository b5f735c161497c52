package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/booknest/booknest/internal/metrics"
	"github.com/booknest/booknest/internal/model"
)

// KeyStore is the persistence the API key verifier reads from.
type KeyStore interface {
	GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
}

// AuthCache caches verified contexts by CacheKey. A nil context from Get is
// a miss.
type AuthCache interface {
	GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error)
	SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error
	IsKeyRevoked(ctx context.Context, keyID string) (bool, error)
}

// APIKeyVerifier verifies bn_ keys against their Argon2id hashes.
type APIKeyVerifier struct {
	store   KeyStore
	cache   AuthCache
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewAPIKeyVerifier creates an APIKeyVerifier. cache and recorder may be nil.
func NewAPIKeyVerifier(store KeyStore, cache AuthCache, recorder metrics.Recorder, logger *slog.Logger) *APIKeyVerifier {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &APIKeyVerifier{store: store, cache: cache, metrics: recorder, logger: logger}
}

// Verify implements Verifier.
func (v *APIKeyVerifier) Verify(ctx context.Context, credential string) (*model.AuthContext, error) {
	parsed, err := ParseAPIKey(credential)
	if err != nil {
		return nil, ErrInvalidCredential
	}

	cacheKey := CacheKey(credential)
	if v.cache != nil {
		if cached, _ := v.cache.GetAuthContext(ctx, cacheKey); cached != nil {
			v.metrics.IncAuthCacheHit()
			// On a lookup error fall through to the store, which filters
			// revoked keys itself.
			revoked, err := v.cache.IsKeyRevoked(ctx, cached.KeyID)
			if err == nil {
				if revoked {
					return nil, ErrInvalidCredential
				}
				return cached, nil
			}
		}
		v.metrics.IncAuthCacheMiss()
	}

	keys, err := v.store.GetAPIKeysByPrefix(ctx, parsed.Prefix)
	if err != nil {
		return nil, fmt.Errorf("lookup api key: %w", err)
	}

	// Prefixes can collide; check every candidate.
	var matched *model.APIKey
	for _, k := range keys {
		ok, err := VerifySecret(credential, k.KeyHash)
		if err != nil {
			continue
		}
		if ok {
			matched = k
			break
		}
	}
	if matched == nil {
		return nil, ErrInvalidCredential
	}

	authCtx := &model.AuthContext{
		Method:        model.AuthMethodAPIKey,
		KeyID:         matched.ID,
		KeyPrefix:     matched.KeyPrefix,
		UserID:        matched.UserID,
		Email:         strings.ToLower(strings.TrimSpace(matched.OwnerEmail)),
		Scopes:        matched.Scopes,
		RateLimitTier: matched.RateLimitTier,
	}

	if v.cache != nil {
		if err := v.cache.SetAuthContext(ctx, cacheKey, authCtx); err != nil {
			v.logger.Warn("failed to cache auth context",
				slog.String("key_id", matched.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	go func(id string) {
		bg := context.WithoutCancel(ctx)
		if err := v.store.UpdateAPIKeyLastUsed(bg, id); err != nil {
			v.logger.Debug("failed to update last_used_at",
				slog.String("key_id", id),
				slog.String("error", err.Error()),
			)
		}
	}(matched.ID)

	return authCtx, nil
}
