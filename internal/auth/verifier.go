package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/booknest/booknest/internal/model"
)

// ErrInvalidCredential is returned for every rejected credential. Callers
// must not distinguish between unknown, revoked, expired and malformed.
var ErrInvalidCredential = errors.New("invalid credential")

// Verifier turns a presented credential into a verified AuthContext.
type Verifier interface {
	Verify(ctx context.Context, credential string) (*model.AuthContext, error)
}

// Dispatcher routes bn_ credentials to the API key verifier and everything
// else to the JWT verifier. A nil JWT verifier disables token auth.
type Dispatcher struct {
	APIKeys Verifier
	Tokens  Verifier
}

// Verify implements Verifier.
func (d *Dispatcher) Verify(ctx context.Context, credential string) (*model.AuthContext, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, ErrInvalidCredential
	}
	if LooksLikeAPIKey(credential) {
		if d.APIKeys == nil {
			return nil, ErrInvalidCredential
		}
		return d.APIKeys.Verify(ctx, credential)
	}
	if d.Tokens == nil {
		return nil, ErrInvalidCredential
	}
	return d.Tokens.Verify(ctx, credential)
}
