package auth

import (
	"context"

	"github.com/booknest/booknest/internal/model"
)

type authKey struct{}

// ContextWithAuth attaches the verified caller to ctx.
func ContextWithAuth(ctx context.Context, ac *model.AuthContext) context.Context {
	return context.WithValue(ctx, authKey{}, ac)
}

// AuthFromContext returns the verified caller, or nil on anonymous requests.
func AuthFromContext(ctx context.Context) *model.AuthContext {
	ac, _ := ctx.Value(authKey{}).(*model.AuthContext)
	return ac
}

// IdentityFromContext returns the lending subject of the request. It is nil
// for anonymous requests and for credentials that carry no email.
func IdentityFromContext(ctx context.Context) *model.Identity {
	ac := AuthFromContext(ctx)
	if ac == nil || ac.Email == "" {
		return nil
	}
	id := ac.Identity()
	return &id
}
