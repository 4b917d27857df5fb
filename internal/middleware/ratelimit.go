package middleware

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// clientEntry holds the token bucket for a single client
type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitInfo contains rate limit status information
type RateLimitInfo struct {
	Allowed   bool
	Limit     int
	Remaining int
}

// RateLimiter applies a per-client token bucket to API requests.
// Buckets for idle clients are dropped by a janitor goroutine.
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientEntry
	rps      rate.Limit
	burst    int
	idleTTL  time.Duration
	stopChan chan struct{}
}

// NewRateLimiter creates a rate limiter allowing rps requests per
// second with the given burst per client.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		clients:  make(map[string]*clientEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
		idleTTL:  15 * time.Minute,
		stopChan: make(chan struct{}),
	}

	go rl.cleanup()
	return rl
}

// cleanup periodically removes buckets for clients not seen recently
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(2 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-rl.idleTTL)
			rl.mu.Lock()
			for key, entry := range rl.clients {
				if entry.lastSeen.Before(cutoff) {
					delete(rl.clients, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopChan:
			return
		}
	}
}

// Stop stops the rate limiter
func (rl *RateLimiter) Stop() {
	close(rl.stopChan)
}

// limiterFor returns the client's bucket, creating it on first sight
func (rl *RateLimiter) limiterFor(clientKey string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if entry, ok := rl.clients[clientKey]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	limiter := rate.NewLimiter(rl.rps, rl.burst)
	rl.clients[clientKey] = &clientEntry{limiter: limiter, lastSeen: now}
	return limiter
}

// Allow checks if a request is allowed
func (rl *RateLimiter) Allow(clientKey string) bool {
	return rl.limiterFor(clientKey).Allow()
}

// Check consumes a token and returns detailed info for headers
func (rl *RateLimiter) Check(clientKey string) RateLimitInfo {
	limiter := rl.limiterFor(clientKey)
	allowed := limiter.Allow()

	remaining := int(limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}

	return RateLimitInfo{
		Allowed:   allowed,
		Limit:     rl.burst,
		Remaining: remaining,
	}
}

// getClientKey returns the client identifier
func getClientKey(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// RateLimitMiddleware creates a rate limit middleware for the given limiter
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil {
			c.Next()
			return
		}

		clientKey := getClientKey(c)
		info := rl.Check(clientKey)

		if info.Limit > 0 {
			c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
			c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		}

		if !info.Allowed {
			log.Printf("🚫 [Rate Limit] Client %s exceeded request limit", clientKey)
			// Bucket refills within a second at the configured rates
			c.Header("Retry-After", "1")
			c.JSON(429, gin.H{
				"error":   "Too Many Requests",
				"message": "Request rate limit exceeded, please try again later",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// authFailureThreshold maps a failure count to a block duration
type authFailureThreshold struct {
	failures     int
	blockMinutes int
}

// defaultAuthFailureThresholds escalate blocks on repeated bad keys
var defaultAuthFailureThresholds = []authFailureThreshold{
	{failures: 5, blockMinutes: 1},
	{failures: 10, blockMinutes: 5},
	{failures: 20, blockMinutes: 30},
}

// AuthFailureRateLimiter handles rate limiting for authentication failures
type AuthFailureRateLimiter struct {
	mu         sync.RWMutex
	failures   map[string]*authFailureEntry
	thresholds []authFailureThreshold
	stopChan   chan struct{}
}

type authFailureEntry struct {
	count    int
	blockEnd time.Time
	lastFail time.Time
}

// NewAuthFailureRateLimiter creates an auth failure rate limiter
func NewAuthFailureRateLimiter() *AuthFailureRateLimiter {
	arl := &AuthFailureRateLimiter{
		failures:   make(map[string]*authFailureEntry),
		thresholds: defaultAuthFailureThresholds,
		stopChan:   make(chan struct{}),
	}

	go arl.cleanup()
	return arl
}

// cleanup removes expired entries
func (arl *AuthFailureRateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			arl.mu.Lock()
			now := time.Now()
			for key, entry := range arl.failures {
				if now.Sub(entry.lastFail) > 1*time.Hour {
					delete(arl.failures, key)
				}
			}
			arl.mu.Unlock()
		case <-arl.stopChan:
			return
		}
	}
}

// Stop stops the limiter
func (arl *AuthFailureRateLimiter) Stop() {
	close(arl.stopChan)
}

// RecordFailure records an authentication failure
func (arl *AuthFailureRateLimiter) RecordFailure(clientIP string) {
	arl.mu.Lock()
	defer arl.mu.Unlock()

	now := time.Now()
	entry, exists := arl.failures[clientIP]

	if !exists {
		arl.failures[clientIP] = &authFailureEntry{
			count:    1,
			lastFail: now,
		}
		return
	}

	entry.count++
	entry.lastFail = now

	// Apply thresholds (sorted by failures descending for proper matching)
	for i := len(arl.thresholds) - 1; i >= 0; i-- {
		threshold := arl.thresholds[i]
		if entry.count >= threshold.failures {
			entry.blockEnd = now.Add(time.Duration(threshold.blockMinutes) * time.Minute)
			log.Printf("🔒 [Brute Force Protection] IP %s blocked for %d minutes (failures: %d)",
				clientIP, threshold.blockMinutes, entry.count)
			break
		}
	}
}

// IsBlocked checks if an IP is blocked
func (arl *AuthFailureRateLimiter) IsBlocked(clientIP string) bool {
	arl.mu.RLock()
	defer arl.mu.RUnlock()

	entry, exists := arl.failures[clientIP]
	if !exists {
		return false
	}

	return time.Now().Before(entry.blockEnd)
}

// ClearFailures clears failure records for an IP (called on successful auth)
func (arl *AuthFailureRateLimiter) ClearFailures(clientIP string) {
	arl.mu.Lock()
	defer arl.mu.Unlock()
	delete(arl.failures, clientIP)
}
