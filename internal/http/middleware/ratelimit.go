// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements a lightweight, in-memory, token-bucket rate limiter
// with per-client buckets and opportunistic garbage collection, sized for a
// single-process archive server.
//
// Features:
//   - Per-key token buckets using golang.org/x/time/rate
//   - Pluggable identity function (client IP by default)
//   - Exempt routes for health checks and metric scrapes
//   - Retry-After computed from the bucket's current token deficit
//
// Notes:
//   - This limiter is process-local; several replicas each enforce their own
//     budget.
//   - It is edge-level abuse control, not an authorization mechanism.
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

// KeyFunc maps a request to the identity whose bucket is charged.
type KeyFunc func(*gin.Context) string

// KeyByIP keys buckets by client address. The archive API is anonymous, so
// the address is the only identity available.
func KeyByIP() KeyFunc {
	return func(c *gin.Context) string { return "ip:" + c.ClientIP() }
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a process-local, per-key token-bucket limiter built on
// golang.org/x/time/rate. Idle buckets are swept after ttl on every
// sweepEvery-th lookup. It is safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn KeyFunc

	mu      sync.Mutex
	buckets map[string]*bucket
	exempt  map[string]struct{}
	lookups uint64

	ttl        time.Duration
	sweepEvery uint64
	now        func() time.Time
}

// NewRateLimiter returns a limiter refilling rps tokens per second with the
// given burst (coerced to at least 1). Requests whose route pattern or path
// is listed in exempt are never limited, which keeps checks such as /health
// and /metrics reachable under load.
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc, exempt ...string) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	if keyFn == nil {
		keyFn = KeyByIP()
	}
	ex := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		ex[p] = struct{}{}
	}
	return &RateLimiter{
		rps:        rate.Limit(rps),
		burst:      burst,
		keyFn:      keyFn,
		buckets:    make(map[string]*bucket),
		exempt:     ex,
		ttl:        10 * time.Minute,
		sweepEvery: 5000,
		now:        time.Now,
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Sweep before the lookup so a stale bucket for key is replaced too.
	rl.lookups++
	if rl.lookups >= rl.sweepEvery {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.ttl {
				delete(rl.buckets, k)
			}
		}
		rl.lookups = 0
	}

	if b, ok := rl.buckets[key]; ok {
		b.lastSeen = now
		return b.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.buckets[key] = &bucket{limiter: lim, lastSeen: now}
	return lim
}

func (rl *RateLimiter) isExempt(c *gin.Context) bool {
	if _, ok := rl.exempt[c.FullPath()]; ok {
		return true
	}
	_, ok := rl.exempt[c.Request.URL.Path]
	return ok
}

// retryAfter estimates the whole seconds until one token is available.
func (rl *RateLimiter) retryAfter(lim *rate.Limiter) int {
	if rl.rps <= 0 {
		return 60
	}
	missing := 1 - lim.Tokens()
	if missing <= 0 {
		return 1
	}
	secs := int(math.Ceil(missing / float64(rl.rps)))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Handler enforces the limit. Rejected requests get 429 with a Retry-After
// header and the standard error envelope.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.isExempt(c) {
			c.Next()
			return
		}
		lim := rl.limiterFor(rl.keyFn(c))
		if lim.Allow() {
			c.Next()
			return
		}

		c.Header("Retry-After", strconv.Itoa(rl.retryAfter(lim)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
