package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/booknest/booknest/internal/auth"
)

// DefaultMinAuthDuration pads every credential check so that failures and
// successes take the same time.
const DefaultMinAuthDuration = 200 * time.Millisecond

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger   *slog.Logger
	Verifier auth.Verifier
	// MinDuration overrides DefaultMinAuthDuration. Negative disables padding.
	MinDuration time.Duration
}

func (c AuthConfig) minDuration() time.Duration {
	switch {
	case c.MinDuration < 0:
		return 0
	case c.MinDuration == 0:
		return DefaultMinAuthDuration
	}
	return c.MinDuration
}

// Authenticate rejects requests without a valid API key or bearer token and
// attaches the verified AuthContext to the rest.
func Authenticate(cfg AuthConfig) func(http.Handler) http.Handler {
	return authenticate(cfg, true)
}

// OptionalAuth verifies a credential when one is presented and lets
// anonymous requests through. A presented but invalid credential is still
// rejected.
func OptionalAuth(cfg AuthConfig) func(http.Handler) http.Handler {
	return authenticate(cfg, false)
}

func authenticate(cfg AuthConfig, required bool) func(http.Handler) http.Handler {
	floor := cfg.minDuration()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := extractCredential(r)
			if credential == "" && !required {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			pad := func() {
				if elapsed := time.Since(start); elapsed < floor {
					time.Sleep(floor - elapsed)
				}
			}

			logAttrs := []any{
				slog.String("ip", getClientIP(r)),
				slog.String("endpoint", r.Method+" "+r.URL.Path),
				slog.String("request_id", GetRequestID(r.Context())),
			}

			if credential == "" {
				pad()
				cfg.Logger.Warn("authentication failed", append(logAttrs, slog.String("reason", "missing_credential"))...)
				writeAuthError(w)
				return
			}

			authCtx, err := cfg.Verifier.Verify(r.Context(), credential)
			if err != nil {
				pad()
				if errors.Is(err, auth.ErrInvalidCredential) {
					cfg.Logger.Warn("authentication failed", append(logAttrs, slog.String("reason", "invalid_credential"))...)
				} else {
					cfg.Logger.Error("credential lookup failed", append(logAttrs, slog.String("error", err.Error()))...)
				}
				writeAuthError(w)
				return
			}
			pad()

			cfg.Logger.Debug("authentication successful", append(logAttrs,
				slog.String("method", string(authCtx.Method)),
				slog.String("key_id", authCtx.KeyID),
				slog.String("user_id", authCtx.UserID),
			)...)

			ctx := auth.ContextWithAuth(r.Context(), authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractCredential reads "Authorization: Bearer <credential>" or, for API
// keys, the X-API-Key header.
func extractCredential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// writeAuthError uses one message for every failure to prevent enumeration.
func writeAuthError(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing credential")
}
