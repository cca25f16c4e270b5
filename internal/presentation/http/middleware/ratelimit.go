package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter enforces a sliding-window submission limit per client IP.
// State is in-process; a multi-instance deployment needs sticky routing
// or a shared store in front of this.
type RateLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	limit     int
	history   map[string][]time.Time
	lastSweep time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per window.
func NewRateLimiter(window time.Duration, limit int) *RateLimiter {
	return &RateLimiter{
		window:  window,
		limit:   limit,
		history: make(map[string][]time.Time),
	}
}

// Allow records an attempt for the key and reports whether it is within
// the window limit.
func (rl *RateLimiter) Allow(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.window)
	if now.Sub(rl.lastSweep) >= rl.window {
		rl.sweepLocked(cutoff)
		rl.lastSweep = now
	}

	kept := rl.history[key][:0]
	for _, t := range rl.history[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= rl.limit {
		rl.history[key] = kept
		return false
	}

	rl.history[key] = append(kept, now)
	return true
}

// sweepLocked drops keys whose every entry fell out of the window, so
// one-off client IPs do not accumulate. Caller holds rl.mu.
func (rl *RateLimiter) sweepLocked(cutoff time.Time) {
	for key, times := range rl.history {
		kept := times[:0]
		for _, t := range times {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			delete(rl.history, key)
		} else {
			rl.history[key] = kept
		}
	}
}

// Middleware rejects over-limit requests with 429 and a Retry-After hint.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP(), time.Now().UTC()) {
			c.Header("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
