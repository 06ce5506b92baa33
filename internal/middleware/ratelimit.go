package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/response"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client key.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration
	keyFunc  func(*gin.Context) string
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a RateLimiter allowing rps requests per second with
// the given burst, keyed by client IP.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		idle:     3 * time.Minute,
		keyFunc:  func(c *gin.Context) string { return c.ClientIP() },
	}
}

// ByPrincipal keys buckets by the authenticated user, falling back to IP.
// Use it behind a JWT middleware.
func (rl *RateLimiter) ByPrincipal() *RateLimiter {
	rl.keyFunc = func(c *gin.Context) string {
		if claims := GetClaims(c); claims != nil {
			return string(claims.TokenType) + ":" + claims.UserID.String()
		}
		return c.ClientIP()
	}
	return rl
}

// Middleware returns a Gin middleware that rejects requests over the limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(rl.keyFunc(c)) {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

// Allow reports whether key may proceed. Used by the WebSocket loop where
// there is no HTTP request per message.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.allow(key)
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

// Cleanup drops visitors idle for longer than the idle window. Run it
// periodically from the server's worker group.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, v := range rl.visitors {
		if time.Since(v.lastSeen) > rl.idle {
			delete(rl.visitors, key)
		}
	}
}
