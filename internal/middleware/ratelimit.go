package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/booknest/booknest/internal/auth"
	"github.com/booknest/booknest/internal/cache"
	"github.com/booknest/booknest/internal/model"
)

// RateLimiter is the token bucket store behind the rate limit middleware.
type RateLimiter interface {
	CheckCredentialRateLimit(ctx context.Context, subject string, perMinute, burst int) (*cache.RateLimitResult, error)
	CheckIPRateLimit(ctx context.Context, ip string, perSecond, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter RateLimiter

	// Per credential, by tier.
	CredentialEnabled bool

	// Per client address, for anonymous requests.
	IPEnabled bool
	IPRPS     int
	IPBurst   int
}

// RateLimit applies the credential bucket to authenticated requests and the
// IP bucket to anonymous ones. Apply it after Authenticate or OptionalAuth.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := auth.AuthFromContext(r.Context())

			var (
				result *cache.RateLimitResult
				limit  int
				err    error
				kind   string
			)
			switch {
			case authCtx != nil && cfg.CredentialEnabled:
				tier, ok := model.TierConfigs[authCtx.RateLimitTier]
				if !ok {
					tier = model.TierConfigs[model.TierFree]
				}
				if tier.RequestsPerMinute == 0 {
					next.ServeHTTP(w, r)
					return
				}
				kind, limit = "credential", tier.RequestsPerMinute
				result, err = cfg.Limiter.CheckCredentialRateLimit(r.Context(), rateLimitSubject(authCtx), tier.RequestsPerMinute, tier.Burst)
			case authCtx == nil && cfg.IPEnabled:
				kind = "ip"
				result, err = cfg.Limiter.CheckIPRateLimit(r.Context(), getClientIP(r), cfg.IPRPS, cfg.IPBurst)
			default:
				next.ServeHTTP(w, r)
				return
			}

			if err != nil {
				cfg.Logger.Error("rate limit check failed",
					slog.String("type", kind),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, limit, result.Remaining, result.ResetAt)

			if !result.Allowed {
				retry := int(result.RetryAfter.Seconds())
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("type", kind),
					slog.String("ip", getClientIP(r)),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.Int("retry_after_seconds", retry),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED",
					fmt.Sprintf("Rate limit exceeded. Retry after %d seconds.", retry))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitSubject keys API keys by ID and tokens by a hash of their email.
func rateLimitSubject(a *model.AuthContext) string {
	if a.KeyID != "" {
		return "key:" + a.KeyID
	}
	sum := sha256.Sum256([]byte(a.Email))
	return "sub:" + hex.EncodeToString(sum[:8])
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, remaining int64, resetAt time.Time) {
	if limit <= 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

// getClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then
// the connection address without its port.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
