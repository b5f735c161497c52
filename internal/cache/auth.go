package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/booknest/booknest/internal/model"
)

const (
	authCachePrefix   = "auth:ctx:"
	authRevokedPrefix = "auth:revoked:"
	authCacheTTL      = 5 * time.Minute
)

// CachedAuthContext is the Redis form of a verified API key context.
type CachedAuthContext struct {
	Method        string   `json:"method"`
	KeyID         string   `json:"key_id"`
	KeyPrefix     string   `json:"key_prefix"`
	UserID        string   `json:"user_id"`
	Email         string   `json:"email"`
	Scopes        []string `json:"scopes"`
	RateLimitTier string   `json:"rate_limit_tier"`
}

// GetAuthContext retrieves a cached auth context by cache key.
// Returns nil if not found (cache miss).
func (c *Cache) GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error) {
	data, err := c.client.Get(ctx, authCachePrefix+cacheKey).Bytes()
	if err != nil {
		return nil, nil //nolint:nilerr
	}

	var cached CachedAuthContext
	if err := json.Unmarshal(data, &cached); err != nil {
		// Corrupted entry, treat as miss.
		return nil, nil //nolint:nilerr
	}
	return cached.toModel(), nil
}

// SetAuthContext caches an auth context.
func (c *Cache) SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error {
	data, err := json.Marshal(fromModel(auth))
	if err != nil {
		return fmt.Errorf("marshal auth context: %w", err)
	}
	return c.client.Set(ctx, authCachePrefix+cacheKey, data, authCacheTTL).Err()
}

// MarkKeyRevoked flags a key ID so cached contexts for it are rejected.
// Contexts are cached by credential hash, which is unknown at revocation
// time, so the flag outlives any context cached before it was set.
func (c *Cache) MarkKeyRevoked(ctx context.Context, keyID string) error {
	return c.client.Set(ctx, authRevokedPrefix+keyID, "1", authCacheTTL).Err()
}

// IsKeyRevoked reports whether MarkKeyRevoked was called for keyID within
// the cache TTL.
func (c *Cache) IsKeyRevoked(ctx context.Context, keyID string) (bool, error) {
	n, err := c.client.Exists(ctx, authRevokedPrefix+keyID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func fromModel(a *model.AuthContext) CachedAuthContext {
	return CachedAuthContext{
		Method:        string(a.Method),
		KeyID:         a.KeyID,
		KeyPrefix:     a.KeyPrefix,
		UserID:        a.UserID,
		Email:         a.Email,
		Scopes:        a.Scopes,
		RateLimitTier: a.RateLimitTier,
	}
}

func (c CachedAuthContext) toModel() *model.AuthContext {
	method := model.AuthMethod(c.Method)
	if method == "" {
		method = model.AuthMethodAPIKey
	}
	return &model.AuthContext{
		Method:        method,
		KeyID:         c.KeyID,
		KeyPrefix:     c.KeyPrefix,
		UserID:        c.UserID,
		Email:         c.Email,
		Scopes:        c.Scopes,
		RateLimitTier: c.RateLimitTier,
	}
}
