package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/booknest/booknest/internal/auth"
	"github.com/booknest/booknest/internal/cache"
	"github.com/booknest/booknest/internal/model"
)

type fakeLimiter struct {
	allow     bool
	err       error
	subjects  []string
	ips       []string
	perMinute int
}

func (f *fakeLimiter) CheckCredentialRateLimit(_ context.Context, subject string, perMinute, burst int) (*cache.RateLimitResult, error) {
	f.subjects = append(f.subjects, subject)
	f.perMinute = perMinute
	return f.result(burst)
}

func (f *fakeLimiter) CheckIPRateLimit(_ context.Context, ip string, _, burst int) (*cache.RateLimitResult, error) {
	f.ips = append(f.ips, ip)
	return f.result(burst)
}

func (f *fakeLimiter) result(burst int) (*cache.RateLimitResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.allow {
		return &cache.RateLimitResult{Allowed: true, Remaining: int64(burst - 1), ResetAt: time.Now().Add(time.Second)}, nil
	}
	return &cache.RateLimitResult{Allowed: false, RetryAfter: 3 * time.Second, ResetAt: time.Now().Add(3 * time.Second)}, nil
}

func rateLimited(l RateLimiter) http.Handler {
	cfg := RateLimitConfig{
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		Limiter:           l,
		CredentialEnabled: true,
		IPEnabled:         true,
		IPRPS:             5,
		IPBurst:           10,
	}
	return RateLimit(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func withAuth(r *http.Request, a *model.AuthContext) *http.Request {
	return r.WithContext(auth.ContextWithAuth(r.Context(), a))
}

func TestRateLimit_Credential(t *testing.T) {
	l := &fakeLimiter{allow: true}
	req := withAuth(httptest.NewRequest(http.MethodGet, "/", nil), &model.AuthContext{KeyID: "k1", RateLimitTier: model.TierPro})
	rec := httptest.NewRecorder()

	rateLimited(l).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"key:k1"}, l.subjects)
	assert.Equal(t, model.TierConfigs[model.TierPro].RequestsPerMinute, l.perMinute)
	assert.Equal(t, "600", rec.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimit_TokenSubjectIsHashed(t *testing.T) {
	l := &fakeLimiter{allow: true}
	req := withAuth(httptest.NewRequest(http.MethodGet, "/", nil), &model.AuthContext{Email: "alice@example.com", RateLimitTier: model.TierFree})

	rateLimited(l).ServeHTTP(httptest.NewRecorder(), req)

	if assert.Len(t, l.subjects, 1) {
		assert.NotContains(t, l.subjects[0], "alice")
	}
}

func TestRateLimit_Exceeded(t *testing.T) {
	l := &fakeLimiter{allow: false}
	req := withAuth(httptest.NewRequest(http.MethodGet, "/", nil), &model.AuthContext{KeyID: "k1", RateLimitTier: model.TierFree})
	rec := httptest.NewRecorder()

	rateLimited(l).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
}

func TestRateLimit_UnlimitedTierSkipsBucket(t *testing.T) {
	l := &fakeLimiter{allow: false}
	req := withAuth(httptest.NewRequest(http.MethodGet, "/", nil), &model.AuthContext{KeyID: "k1", RateLimitTier: model.TierUnlimited})
	rec := httptest.NewRecorder()

	rateLimited(l).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, l.subjects)
}

func TestRateLimit_AnonymousUsesIP(t *testing.T) {
	l := &fakeLimiter{allow: true}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.9:4444"

	rateLimited(l).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, []string{"192.0.2.9"}, l.ips)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	l := &fakeLimiter{err: errors.New("redis down")}
	req := withAuth(httptest.NewRequest(http.MethodGet, "/", nil), &model.AuthContext{KeyID: "k1", RateLimitTier: model.TierFree})
	rec := httptest.NewRecorder()

	rateLimited(l).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
