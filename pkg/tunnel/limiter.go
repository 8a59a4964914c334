// limiter.go implements the receive-path rate limiter and the secondary
// per-source-IP concurrent-session limiter described in SPEC_FULL.md §4.6.
package tunnel

import (
	"sync"
	"time"

	"github.com/cryprq/cryprq/internal/constants"
)

// IPRateLimiter tracks and bounds the number of concurrently tracked peer
// endpoints per source IP. This is the ambient secondary limiter mentioned
// in §4.6, separate from the per-datagram token bucket below.
type IPRateLimiter struct {
	mu          sync.Mutex
	connections map[string]int
	maxPerIP    int
}

// NewIPRateLimiter creates a new IPRateLimiter. maxPerIP <= 0 disables the limit.
func NewIPRateLimiter(maxPerIP int) *IPRateLimiter {
	return &IPRateLimiter{
		connections: make(map[string]int),
		maxPerIP:    maxPerIP,
	}
}

// AllowConnection checks if the IP is allowed to establish a new connection.
// If allowed, it increments the connection count.
func (l *IPRateLimiter) AllowConnection(ip string) bool {
	if l.maxPerIP <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connections[ip] >= l.maxPerIP {
		return false
	}
	l.connections[ip]++
	return true
}

// ReleaseConnection decrements the connection count for the IP.
func (l *IPRateLimiter) ReleaseConnection(ip string) {
	if l.maxPerIP <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connections[ip] > 0 {
		l.connections[ip]--
		if l.connections[ip] == 0 {
			delete(l.connections, ip)
		}
	}
}

// RateLimiter is a token bucket bounding the rate of accepted inbound
// datagrams, per SPEC_FULL.md §4.6: refill tokens = min(c, tokens +
// elapsed*r), then accept and consume one token if tokens >= 1.
type RateLimiter struct {
	mu         sync.Mutex
	rate       float64 // tokens per second
	burst      int     // bucket capacity
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a token-bucket rate limiter with the given sustained
// rate and burst capacity.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastRefill: time.Now(),
	}
}

// NewDefaultRateLimiter creates a rate limiter using the SPEC_FULL.md §4.6
// defaults (r=1000, c=2000).
func NewDefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(constants.DefaultRateLimiterRate, constants.DefaultRateLimiterBurst)
}

// Allow refills the bucket for elapsed time and, if at least one token is
// available, consumes it and returns true. Otherwise it returns false.
func (l *RateLimiter) Allow() bool {
	if l.rate <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()

	l.tokens += elapsed * l.rate
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}
	l.lastRefill = now

	if l.tokens >= 1.0 {
		l.tokens -= 1.0
		return true
	}
	return false
}
