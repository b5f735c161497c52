package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/booknest/booknest/internal/model"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewTokens_Validation(t *testing.T) {
	_, err := NewTokens("short", "booknest", time.Hour)
	assert.Error(t, err)

	_, err = NewTokens(testSecret, "booknest", 0)
	assert.Error(t, err)
}

func TestTokens_IssueVerify(t *testing.T) {
	tokens, err := NewTokens(testSecret, "booknest", time.Hour)
	require.NoError(t, err)

	signed, err := tokens.Issue(" Alice@Example.com", nil)
	require.NoError(t, err)

	got, err := tokens.Verify(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, model.AuthMethodJWT, got.Method)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.True(t, got.HasScope(model.ScopeWrite))
	assert.False(t, got.HasScope(model.ScopeAdmin))
}

func TestTokens_Expired(t *testing.T) {
	tokens, err := NewTokens(testSecret, "booknest", time.Minute)
	require.NoError(t, err)
	issuedAt := time.Now().Add(-time.Hour)
	tokens.now = func() time.Time { return issuedAt }

	signed, err := tokens.Issue("alice@example.com", nil)
	require.NoError(t, err)

	tokens.now = time.Now
	_, err = tokens.Verify(context.Background(), signed)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestTokens_Rejects(t *testing.T) {
	tokens, err := NewTokens(testSecret, "booknest", time.Hour)
	require.NoError(t, err)

	otherIssuer, err := NewTokens(testSecret, "someone-else", time.Hour)
	require.NoError(t, err)
	foreign, err := otherIssuer.Issue("alice@example.com", nil)
	require.NoError(t, err)

	otherSecret, err := NewTokens("fedcba9876543210fedcba9876543210", "booknest", time.Hour)
	require.NoError(t, err)
	forged, err := otherSecret.Issue("alice@example.com", nil)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		Email:            "alice@example.com",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "booknest", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noEmail, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "booknest", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	for name, credential := range map[string]string{
		"wrong issuer": foreign,
		"wrong secret": forged,
		"alg none":     none,
		"no email":     noEmail,
		"garbage":      "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tokens.Verify(context.Background(), credential)
			assert.ErrorIs(t, err, ErrInvalidCredential)
		})
	}
}

func TestTokens_IssueRequiresEmail(t *testing.T) {
	tokens, err := NewTokens(testSecret, "booknest", time.Hour)
	require.NoError(t, err)

	_, err = tokens.Issue("  ", nil)
	assert.Error(t, err)
}
