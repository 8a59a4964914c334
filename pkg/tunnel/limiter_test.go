package tunnel

import (
	"testing"
	"time"
)

func TestIPRateLimiter(t *testing.T) {
	// Allow 2 connections per IP
	limiter := NewIPRateLimiter(2)

	ip := "192.0.2.1"
	otherIP := "192.0.2.2"

	// 1. First connection allowed
	if !limiter.AllowConnection(ip) {
		t.Error("expected first connection to be allowed")
	}

	// 2. Second connection allowed
	if !limiter.AllowConnection(ip) {
		t.Error("expected second connection to be allowed")
	}

	// 3. Third connection blocked
	if limiter.AllowConnection(ip) {
		t.Error("expected third connection to be blocked")
	}

	// 4. Other IP allowed
	if !limiter.AllowConnection(otherIP) {
		t.Error("expected connection from other IP to be allowed")
	}

	// 5. Release one from first IP
	limiter.ReleaseConnection(ip)

	// 6. Should be allowed again
	if !limiter.AllowConnection(ip) {
		t.Error("expected connection to be allowed after release")
	}

	// 7. Test no limit
	noLimit := NewIPRateLimiter(0)
	for i := 0; i < 100; i++ {
		if !noLimit.AllowConnection(ip) {
			t.Error("expected connection to always be allowed with no limit")
		}
	}
}

func TestRateLimiter(t *testing.T) {
	// Rate: 10/sec, Burst: 2
	limiter := NewRateLimiter(10, 2)

	// 1. Consume burst
	if !limiter.Allow() {
		t.Error("expected 1st datagram (burst) to be allowed")
	}
	if !limiter.Allow() {
		t.Error("expected 2nd datagram (burst) to be allowed")
	}

	// 2. Should be blocked immediately
	if limiter.Allow() {
		t.Error("expected 3rd datagram (burst exceeded) to be blocked")
	}

	// 3. Wait for refill (1 token takes 0.1s)
	// We wait slightly more to be safe
	time.Sleep(110 * time.Millisecond)

	if !limiter.Allow() {
		t.Error("expected datagram to be allowed after token refill")
	}

	// 4. Test no limit
	noLimit := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !noLimit.Allow() {
			t.Error("expected datagram to always be allowed with no limit")
		}
	}
}

func TestNewDefaultRateLimiter(t *testing.T) {
	limiter := NewDefaultRateLimiter()
	for i := 0; i < 2000; i++ {
		if !limiter.Allow() {
			t.Fatalf("expected default burst of 2000 to be consumable, failed at %d", i)
		}
	}
	if limiter.Allow() {
		t.Error("expected default bucket to be exhausted after 2000 consumes")
	}
}
