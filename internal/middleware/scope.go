package middleware

import (
	"net/http"

	"github.com/booknest/booknest/internal/auth"
	"github.com/booknest/booknest/internal/model"
)

// RequireScope rejects requests whose credential holds none of required.
// Admin holds every scope. Apply it after Authenticate.
func RequireScope(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := auth.AuthFromContext(r.Context())
			if authCtx == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}

			for _, scope := range required {
				if authCtx.HasScope(scope) {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions. Required scope: "+required[0])
		})
	}
}

func RequireRead() func(http.Handler) http.Handler  { return RequireScope(model.ScopeRead) }
func RequireWrite() func(http.Handler) http.Handler { return RequireScope(model.ScopeWrite) }
func RequireAdmin() func(http.Handler) http.Handler { return RequireScope(model.ScopeAdmin) }
