// Package limiter provides fixed-window rate limiting backed by Redis.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	redispkg "github.com/dnspotify/server/pkg/redis"
)

// atomicIncrExpire increments a counter and sets its TTL on the first hit,
// in one round trip.
var atomicIncrExpire = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return current
`)

// RateLimiter provides rate limiting using Redis.
type RateLimiter struct {
	client *redispkg.Client
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(client *redispkg.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow counts one hit against key and reports whether it is within limit.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	result, err := atomicIncrExpire.Run(ctx, rl.client.Universal(), []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return result <= limit, nil
}

// Remaining returns the number of hits left in the current window.
func (rl *RateLimiter) Remaining(ctx context.Context, key string, limit int64) (int64, error) {
	count, err := rl.client.Get(ctx, key)
	if errors.Is(err, redispkg.ErrKeyNotFound) {
		return limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get counter: %w", err)
	}
	current, err := strconv.ParseInt(count, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid counter value: %w", err)
	}
	if remaining := limit - current; remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

// Reset clears the counter for key.
func (rl *RateLimiter) Reset(ctx context.Context, key string) error {
	if err := rl.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to reset counter: %w", err)
	}
	return nil
}

// SignInLimiter caps sign-in attempts per account identifier.
type SignInLimiter struct {
	limiter *RateLimiter
	limit   int64
	window  time.Duration
}

// NewSignInLimiter creates a sign-in limiter.
func NewSignInLimiter(client *redispkg.Client, limit int64, window time.Duration) *SignInLimiter {
	return &SignInLimiter{limiter: NewRateLimiter(client), limit: limit, window: window}
}

func signInKey(identifier string) string {
	return redispkg.RateLimitKey("signin", strings.ToLower(strings.TrimSpace(identifier)), "window")
}

// Allow records an attempt for identifier.
func (l *SignInLimiter) Allow(ctx context.Context, identifier string) (bool, error) {
	return l.limiter.Allow(ctx, signInKey(identifier), l.limit, l.window)
}

// Reset clears attempts after a successful sign-in.
func (l *SignInLimiter) Reset(ctx context.Context, identifier string) error {
	return l.limiter.Reset(ctx, signInKey(identifier))
}
