package transporthttp

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RequestLogger logs one line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Info("request")
	}
}

// APIKeyAuth allows an optional list of API keys; if the list is empty, auth is bypassed.
// Keys are expected in header: X-API-Key.
func APIKeyAuth(allowed map[string]struct{}) gin.HandlerFunc {
	if len(allowed) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if _, ok := allowed[key]; !ok {
			WriteProblem(c, http.StatusUnauthorized, "unauthorized", "invalid or missing API key", nil)
			return
		}
		c.Next()
	}
}

// rateState is a token bucket shared by every request through one limiter.
type rateState struct {
	mu             sync.Mutex
	tokens         float64
	lastRefillNano int64
}

// RateLimitPerMinute is a global token bucket; limitPerMin <= 0 disables it.
func RateLimitPerMinute(limitPerMin int, clock func() time.Time) gin.HandlerFunc {
	if limitPerMin <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	state := &rateState{tokens: float64(limitPerMin), lastRefillNano: clock().UnixNano()}
	capacity := float64(limitPerMin)
	refillPerSec := float64(limitPerMin) / 60.0
	retryAfter := strconv.Itoa(max(1, int(60/limitPerMin)))

	return func(c *gin.Context) {
		state.mu.Lock()
		now := clock()
		elapsed := float64(now.UnixNano()-state.lastRefillNano) / 1e9
		state.lastRefillNano = now.UnixNano()

		state.tokens += elapsed * refillPerSec
		if state.tokens > capacity {
			state.tokens = capacity
		}
		allowed := state.tokens >= 1.0
		if allowed {
			state.tokens -= 1.0
		}
		state.mu.Unlock()

		if !allowed {
			c.Header("Retry-After", retryAfter)
			WriteProblem(c, http.StatusTooManyRequests, "rate limit exceeded", "try again later", nil)
			return
		}
		c.Next()
	}
}
