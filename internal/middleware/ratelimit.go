package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/examina/examina-backend/internal/response"
)

// RateLimiter implements a simple token bucket rate limiter keyed by a
// caller-supplied function (client IP by default, session token for
// in-session endpoints so one noisy client cannot starve a shared NAT).
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	rate     int           // Tokens per interval
	interval time.Duration // Refill interval
	keyFunc  func(c *gin.Context) string
}

type bucket struct {
	tokens   int
	lastSeen time.Time
}

// NewRateLimiter creates a per-IP RateLimiter (e.g., 30 requests per minute).
func NewRateLimiter(rate int, interval time.Duration) *RateLimiter {
	return newRateLimiter(rate, interval, func(c *gin.Context) string {
		return c.ClientIP()
	})
}

// NewSessionRateLimiter creates a RateLimiter keyed by session token,
// falling back to client IP before the token middleware has run.
func NewSessionRateLimiter(rate int, interval time.Duration) *RateLimiter {
	return newRateLimiter(rate, interval, func(c *gin.Context) string {
		if token := GetSessionToken(c); token != "" {
			return token
		}
		return c.ClientIP()
	})
}

func newRateLimiter(rate int, interval time.Duration, keyFunc func(c *gin.Context) string) *RateLimiter {
	rl := &RateLimiter{
		buckets:  make(map[string]*bucket),
		rate:     rate,
		interval: interval,
		keyFunc:  keyFunc,
	}

	// Cleanup stale buckets every minute.
	go func() {
		for range time.Tick(time.Minute) {
			rl.cleanup()
		}
	}()

	return rl
}

// Middleware returns a Gin middleware enforcing the limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rl.keyFunc(c)

		rl.mu.Lock()
		b, exists := rl.buckets[key]
		if !exists {
			b = &bucket{tokens: rl.rate, lastSeen: time.Now()}
			rl.buckets[key] = b
		}

		// Refill tokens based on elapsed time.
		elapsed := time.Since(b.lastSeen)
		refill := int(elapsed/rl.interval) * rl.rate
		if refill > 0 {
			b.tokens += refill
			if b.tokens > rl.rate {
				b.tokens = rl.rate
			}
			b.lastSeen = time.Now()
		}

		if b.tokens <= 0 {
			rl.mu.Unlock()
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}

		b.tokens--
		rl.mu.Unlock()
		c.Next()
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, b := range rl.buckets {
		if time.Since(b.lastSeen) > 3*time.Minute {
			delete(rl.buckets, key)
		}
	}
}
