package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter keeps one token bucket per client key.
type KeyedRateLimiter struct {
	clients map[string]*client
	mu      sync.Mutex
	r       rate.Limit
	b       int
	idle    time.Duration
	now     func() time.Time
}

// NewKeyedRateLimiter creates a limiter; buckets unused for idle are
// dropped by Prune.
func NewKeyedRateLimiter(r rate.Limit, b int, idle time.Duration) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		clients: make(map[string]*client),
		r:       r,
		b:       b,
		idle:    idle,
		now:     time.Now,
	}
}

// Allow reports whether key may make a request now.
func (k *KeyedRateLimiter) Allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	c, ok := k.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(k.r, k.b)}
		k.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Prune drops buckets idle for longer than the idle window and returns
// how many remain.
func (k *KeyedRateLimiter) Prune() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	cutoff := k.now().Add(-k.idle)
	for key, c := range k.clients {
		if c.lastSeen.Before(cutoff) {
			delete(k.clients, key)
		}
	}
	return len(k.clients)
}

// ByClientIP keys requests by the caller's address.
func ByClientIP(c *gin.Context) string { return c.ClientIP() }

// RateLimiter rejects requests over the per-key rate with 429. Idle
// buckets are pruned on every thousandth request.
func RateLimiter(limiter *KeyedRateLimiter, key func(*gin.Context) string) gin.HandlerFunc {
	var n uint64
	var mu sync.Mutex
	return func(c *gin.Context) {
		mu.Lock()
		n++
		prune := n%1000 == 0
		mu.Unlock()
		if prune {
			limiter.Prune()
		}

		if !limiter.Allow(key(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "code": "rate_limited"})
			return
		}
		c.Next()
	}
}
