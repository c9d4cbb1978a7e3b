package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	// IdleTTL evicts limiters of keys not seen for this long. Zero keeps them.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns the per-session defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		Burst:             40,
		IdleTTL:           10 * time.Minute,
	}
}

// KeyFunc derives the rate limiting key of a request.
type KeyFunc func(c *gin.Context) string

// SessionKey limits by the :id route parameter and falls back to the
// client IP on routes without one.
func SessionKey(c *gin.Context) string {
	if id := c.Param("id"); id != "" {
		return "session:" + id
	}
	return "ip:" + c.ClientIP()
}

// ClientIPKey limits by client IP.
func ClientIPKey(c *gin.Context) string {
	return c.ClientIP()
}

// RateLimit creates a keyed token bucket middleware.
func RateLimit(cfg RateLimitConfig, key KeyFunc) gin.HandlerFunc {
	if key == nil {
		key = ClientIPKey
	}

	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	var (
		mu        sync.Mutex
		clients   = make(map[string]*client)
		lastSweep = time.Now()
	)

	return func(c *gin.Context) {
		k := key(c)
		now := time.Now()

		mu.Lock()
		if cfg.IdleTTL > 0 && now.Sub(lastSweep) > cfg.IdleTTL {
			for id, cl := range clients {
				if now.Sub(cl.lastSeen) > cfg.IdleTTL {
					delete(clients, id)
				}
			}
			lastSweep = now
		}
		cl, exists := clients[k]
		if !exists {
			cl = &client{
				limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
			}
			clients[k] = cl
		}
		cl.lastSeen = now
		limiter := cl.limiter
		mu.Unlock()

		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}

// GlobalRateLimit creates a global rate limiting middleware.
func GlobalRateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
