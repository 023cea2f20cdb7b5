package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// CodeRateLimited is the error code of a 429 response.
const CodeRateLimited = "too_many_requests"

const (
	bucketIdle    = 10 * time.Minute
	maxRetryAfter = 3600 // seconds
)

// KeyFunc maps a request to the identity its bucket is keyed on.
type KeyFunc func(*gin.Context) string

// KeyBySessionOrIP keys on the caller's session ID and falls back to the
// client IP for anonymous requests.
func KeyBySessionOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if sid := SessionIDFrom(c); sid != "" {
			return "session:" + sid
		}
		return "ip:" + c.ClientIP()
	}
}

// KeyByIP keys on the client IP only. Routes called before a session exists
// (sending an OTP) use it so rotating session IDs cannot reset the bucket.
func KeyByIP() KeyFunc {
	return func(c *gin.Context) string { return "ip:" + c.ClientIP() }
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter is a process-local token bucket per key. Buckets idle for
// longer than the idle window are dropped during lookups.
type RateLimiter struct {
	name  string
	limit rate.Limit
	burst int
	key   KeyFunc
	idle  time.Duration
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	swept   time.Time
}

// NewRateLimiter builds a limiter refilling rps tokens per second up to
// burst (at least 1). name labels its rejections in metrics.
func NewRateLimiter(name string, rps float64, burst int, key KeyFunc) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		name:    name,
		limit:   rate.Limit(rps),
		burst:   burst,
		key:     key,
		idle:    bucketIdle,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Len reports how many buckets are live.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

func (rl *RateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.swept) >= rl.idle {
		for k, b := range rl.buckets {
			if now.Sub(b.seen) >= rl.idle {
				delete(rl.buckets, k)
			}
		}
		rl.swept = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.seen = now
	return b.lim
}

// IsRateBypass reports whether IdempotencyValidator flagged the request as
// a replay that must not spend a token.
func IsRateBypass(c *gin.Context) bool {
	return c.GetBool(ctxKeyRateBypass)
}

// Handler enforces the limit. A rejected request gets 429 with Retry-After
// set to the whole seconds until its bucket refills.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		now := rl.now()
		lim := rl.limiter(rl.key(c), now)
		if lim.AllowN(now, 1) {
			c.Next()
			return
		}

		rateLimited.WithLabelValues(rl.name).Inc()
		c.Header("Retry-After", strconv.Itoa(retryAfter(lim, now)))
		abort(c, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded")
	}
}

// retryAfter returns the seconds until lim grants one token, clamped to
// [1, maxRetryAfter]. The trial reservation is returned to the bucket.
func retryAfter(lim *rate.Limiter, now time.Time) int {
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return maxRetryAfter
	}
	d := r.DelayFrom(now)
	r.CancelAt(now)

	secs := int(math.Ceil(d.Seconds()))
	switch {
	case secs < 1:
		return 1
	case secs > maxRetryAfter:
		return maxRetryAfter
	}
	return secs
}
