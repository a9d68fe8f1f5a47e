package gateway

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter returns a Gin middleware enforcing a per-key token-bucket
// rate limit, keyed by keyFn(c) (the peer's node id on /delegation/*
// routes, the client IP everywhere else). rps is the steady-state
// requests per second; burst is the maximum burst size. Stale entries are
// swept every 5 minutes.
func RateLimiter(rps, burst int, keyFn func(c *gin.Context) string) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := make(map[string]*keyedLimiter)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			mu.Lock()
			for key, l := range limiters {
				if time.Since(l.lastSeen) > 10*time.Minute {
					delete(limiters, key)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		key := keyFn(c)

		mu.Lock()
		l, ok := limiters[key]
		if !ok {
			l = &keyedLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
			limiters[key] = l
		}
		l.lastSeen = time.Now()
		mu.Unlock()

		if !l.limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// peerOrIPKey keys by the declared origin/executor node id on delegation
// wire routes (so one noisy peer can't starve another's budget), falling
// back to the client IP for every other route.
func peerOrIPKey(c *gin.Context) string {
	if nodeID := c.GetString(ctxPeerNodeID); nodeID != "" && strings.HasPrefix(c.Request.URL.Path, "/delegation/") {
		return nodeID
	}
	return c.ClientIP()
}
