package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// Bucket namespaces. Credential buckets are keyed by API key ID or, for
// tokens, by a hash of the subject email.
const (
	bucketCredentialPrefix = "ratelimit:cred:"
	bucketIPPrefix         = "ratelimit:ip:"

	credentialBucketTTL = 120 * time.Second
	ipBucketTTL         = 10 * time.Second
)

// RateLimitResult is the outcome of taking one token from a bucket.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// takeToken refills and takes from a token bucket in one round trip.
// Returns {allowed, retry_after_seconds, remaining}.
var takeToken = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1]) or burst
local ts = tonumber(state[2]) or now

tokens = math.min(burst, tokens + (now - ts) * rate)

local allowed = 0
local wait = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
else
	wait = math.ceil((1 - tokens) / rate)
end

redis.call('HSET', key, 'tokens', tokens, 'ts', now)
redis.call('EXPIRE', key, ttl)

return {allowed, wait, math.floor(tokens)}
`)

// CheckCredentialRateLimit takes a token for a credential. A zero
// perMinute is the unlimited tier.
func (c *Cache) CheckCredentialRateLimit(ctx context.Context, subject string, perMinute, burst int) (*RateLimitResult, error) {
	if perMinute == 0 {
		return unlimited(burst), nil
	}
	return c.take(ctx, bucketCredentialPrefix+subject, float64(perMinute)/60.0, burst, credentialBucketTTL)
}

// CheckIPRateLimit takes a token for a client address. Addresses are
// stored hashed.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, perSecond, burst int) (*RateLimitResult, error) {
	return c.take(ctx, bucketIPPrefix+hashIP(ip), float64(perSecond), burst, ipBucketTTL)
}

// take fails open: a Redis error admits the request.
func (c *Cache) take(ctx context.Context, key string, rate float64, burst int, ttl time.Duration) (*RateLimitResult, error) {
	res, err := takeToken.Run(ctx, c.client, []string{key}, rate, burst, time.Now().Unix(), int(ttl.Seconds())).Int64Slice()
	if err != nil || len(res) != 3 {
		return unlimited(burst), nil //nolint:nilerr
	}

	return &RateLimitResult{
		Allowed:    res[0] == 1,
		Remaining:  res[2],
		ResetAt:    time.Now().Add(time.Duration(float64(time.Second) / rate)),
		RetryAfter: time.Duration(res[1]) * time.Second,
	}, nil
}

func unlimited(burst int) *RateLimitResult {
	return &RateLimitResult{Allowed: true, Remaining: int64(burst), ResetAt: time.Now().Add(time.Minute)}
}

// hashIP returns the first 8 bytes of SHA-256(ip) as hex.
func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
