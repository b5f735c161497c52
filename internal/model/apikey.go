package model

import (
	"slices"
	"time"
)

// Scopes carried by API keys and tokens. Members hold read and write,
// kiosks read only, librarians admin.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
	ScopeAdmin = "admin"
)

var ValidScopes = []string{ScopeRead, ScopeWrite, ScopeAdmin}

// Rate limit tiers assigned to keys at issue time.
const (
	TierFree      = "free"
	TierPro       = "pro"
	TierUnlimited = "unlimited"
)

// RateLimitConfig is a token bucket shape. Zero RequestsPerMinute disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

var TierConfigs = map[string]RateLimitConfig{
	TierFree:      {RequestsPerMinute: 60, Burst: 10},
	TierPro:       {RequestsPerMinute: 600, Burst: 50},
	TierUnlimited: {},
}

// APIKey is a long-lived credential owned by a user.
type APIKey struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	OwnerEmail    string     `json:"-"`
	KeyHash       string     `json:"-"`
	KeyPrefix     string     `json:"key_prefix"`
	Scopes        []string   `json:"scopes"`
	RateLimitTier string     `json:"rate_limit_tier"`
	Name          string     `json:"name,omitempty"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (k *APIKey) IsRevoked() bool { return k.RevokedAt != nil }

// HasScope reports whether the key grants scope. Admin grants everything.
func (k *APIKey) HasScope(scope string) bool { return hasScope(k.Scopes, scope) }

// GetRateLimitConfig falls back to the free tier for unknown tier names.
func (k *APIKey) GetRateLimitConfig() RateLimitConfig {
	if cfg, ok := TierConfigs[k.RateLimitTier]; ok {
		return cfg
	}
	return TierConfigs[TierFree]
}

// AuthMethod names the credential type that produced an AuthContext.
type AuthMethod string

const (
	AuthMethodAPIKey AuthMethod = "api_key"
	AuthMethodJWT    AuthMethod = "jwt"
)

// AuthContext is the verified caller attached to a request by the auth
// middleware. Email is the subject claim every lending operation binds to.
type AuthContext struct {
	Method        AuthMethod
	KeyID         string
	KeyPrefix     string
	UserID        string
	Email         string
	Scopes        []string
	RateLimitTier string
}

func (a *AuthContext) HasScope(scope string) bool { return hasScope(a.Scopes, scope) }

// Identity returns the subject of the verified credential.
func (a *AuthContext) Identity() Identity {
	return Identity{Email: a.Email}
}

// Identity is the authenticated subject of a request.
type Identity struct {
	Email string
}

func hasScope(scopes []string, scope string) bool {
	if slices.Contains(scopes, ScopeAdmin) {
		return true
	}
	return slices.Contains(scopes, scope)
}

// APIKeyCreateRequest is the body of POST /api-keys.
type APIKeyCreateRequest struct {
	Name   string   `json:"name,omitempty"`
	Scopes []string `json:"scopes"`
}

// APIKeyResponse is the listing view of a key. The hash and owner email
// never leave the server.
type APIKeyResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	KeyPrefix     string     `json:"key_prefix"`
	Scopes        []string   `json:"scopes"`
	RateLimitTier string     `json:"rate_limit_tier"`
	CreatedAt     time.Time  `json:"created_at"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	Revoked       bool       `json:"revoked"`
}

func (k *APIKey) ToResponse() APIKeyResponse {
	return APIKeyResponse{
		ID:            k.ID,
		Name:          k.Name,
		KeyPrefix:     k.KeyPrefix,
		Scopes:        k.Scopes,
		RateLimitTier: k.RateLimitTier,
		CreatedAt:     k.CreatedAt,
		LastUsedAt:    k.LastUsedAt,
		Revoked:       k.IsRevoked(),
	}
}

// APIKeyCreateResponse carries the plaintext key. It is returned once and
// never stored.
type APIKeyCreateResponse struct {
	ID            string    `json:"id"`
	Key           string    `json:"key"`
	Name          string    `json:"name,omitempty"`
	KeyPrefix     string    `json:"key_prefix"`
	Scopes        []string  `json:"scopes"`
	RateLimitTier string    `json:"rate_limit_tier"`
	CreatedAt     time.Time `json:"created_at"`
}

// APIKeyRotateResponse pairs the revoked key with its replacement.
type APIKeyRotateResponse struct {
	OldKeyID        string               `json:"old_key_id"`
	OldKeyRevokedAt time.Time            `json:"old_key_revoked_at"`
	NewKey          APIKeyCreateResponse `json:"new_key"`
}
