package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	apperrors "github.com/dnspotify/server/pkg/errors"
	"github.com/dnspotify/server/pkg/httputil"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is an in-process token bucket per client IP and, once a
// request is authenticated, per user.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	ipRate    rate.Limit
	ipBurst   int
	userRate  rate.Limit
	userBurst int

	idleTTL     time.Duration
	lastCleanup time.Time
	now         func() time.Time
}

// NewRateLimiter creates a limiter. A non-positive rate disables that
// dimension.
func NewRateLimiter(ipPerSecond float64, ipBurst int, userPerSecond float64, userBurst int) *RateLimiter {
	return &RateLimiter{
		visitors:    make(map[string]*visitor),
		ipRate:      rate.Limit(ipPerSecond),
		ipBurst:     ipBurst,
		userRate:    rate.Limit(userPerSecond),
		userBurst:   userBurst,
		idleTTL:     10 * time.Minute,
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// allow takes one token from the bucket under key.
func (rl *RateLimiter) allow(key string, r rate.Limit, burst int) bool {
	if r <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.cleanupLocked(now)
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(r, burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// cleanupLocked drops buckets that have been idle longer than idleTTL.
func (rl *RateLimiter) cleanupLocked(now time.Time) {
	if now.Sub(rl.lastCleanup) < rl.idleTTL {
		return
	}
	for k, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.idleTTL {
			delete(rl.visitors, k)
		}
	}
	rl.lastCleanup = now
}

// Len returns the number of tracked buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// Limit rejects requests over either budget with RATE_LIMITED.
func (rl *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allowIP(c) || !rl.allowUser(c) {
			httputil.ErrorResponse(c, apperrors.ErrRateLimited)
			return
		}
		c.Next()
	}
}

// LimitIP applies only the per-IP budget. Use it before authentication.
func (rl *RateLimiter) LimitIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allowIP(c) {
			httputil.ErrorResponse(c, apperrors.ErrRateLimited)
			return
		}
		c.Next()
	}
}

// LimitUser applies only the per-user budget. It must run after Auth.
func (rl *RateLimiter) LimitUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allowUser(c) {
			httputil.ErrorResponse(c, apperrors.ErrRateLimited)
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allowIP(c *gin.Context) bool {
	return rl.allow("ip:"+c.ClientIP(), rl.ipRate, rl.ipBurst)
}

func (rl *RateLimiter) allowUser(c *gin.Context) bool {
	uid := c.GetString(UserIDKey)
	if uid == "" {
		return true
	}
	return rl.allow("user:"+uid, rl.userRate, rl.userBurst)
}
