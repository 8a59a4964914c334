package tunnel

import (
	"os"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig() should validate: %v", err)
	}
}

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	defaults := DefaultConfig()
	if cfg.RekeyInterval != defaults.RekeyInterval {
		t.Errorf("RekeyInterval = %v, want %v", cfg.RekeyInterval, defaults.RekeyInterval)
	}
	if cfg.MaxInboundConnections != defaults.MaxInboundConnections {
		t.Errorf("MaxInboundConnections = %d, want %d", cfg.MaxInboundConnections, defaults.MaxInboundConnections)
	}
	if cfg.RateLimiterBurst != defaults.RateLimiterBurst {
		t.Errorf("RateLimiterBurst = %d, want %d", cfg.RateLimiterBurst, defaults.RateLimiterBurst)
	}
	if cfg.BufferPoolCapacity != defaults.BufferPoolCapacity {
		t.Errorf("BufferPoolCapacity = %d, want %d", cfg.BufferPoolCapacity, defaults.BufferPoolCapacity)
	}
}

func TestValidateRejectsInconsistentBackoff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InboundBackoffBase = 30 * time.Second
	cfg.InboundBackoffMax = 1 * time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when backoff base exceeds max")
	}
}

func TestValidateRejectsNegativeFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiterBurst = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative RateLimiterBurst")
	}
}

func TestIsPeerAllowed(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.IsPeerAllowed([]byte("anyone")) {
		t.Error("empty allow-list should permit all peers")
	}

	cfg.AllowedPeerIdentities["friend"] = true
	if cfg.IsPeerAllowed([]byte("stranger")) {
		t.Error("non-empty allow-list should reject unlisted peers")
	}
	if !cfg.IsPeerAllowed([]byte("friend")) {
		t.Error("non-empty allow-list should permit listed peers")
	}
}

func TestLoadFromEnvOverridesFields(t *testing.T) {
	os.Setenv("CRYPRQ_REKEY_INTERVAL_SECONDS", "60")
	os.Setenv("CRYPRQ_RATE_LIMITER_BURST", "5000")
	os.Setenv("CRYPRQ_METRICS_ADDR", "127.0.0.1:9000")
	defer os.Unsetenv("CRYPRQ_REKEY_INTERVAL_SECONDS")
	defer os.Unsetenv("CRYPRQ_RATE_LIMITER_BURST")
	defer os.Unsetenv("CRYPRQ_METRICS_ADDR")

	cfg := DefaultConfig()
	LoadFromEnv(&cfg)

	if cfg.RekeyInterval != 60*time.Second {
		t.Errorf("RekeyInterval = %v, want 60s", cfg.RekeyInterval)
	}
	if cfg.RateLimiterBurst != 5000 {
		t.Errorf("RateLimiterBurst = %d, want 5000", cfg.RateLimiterBurst)
	}
	if cfg.MetricsAddr != "127.0.0.1:9000" {
		t.Errorf("MetricsAddr = %q, want 127.0.0.1:9000", cfg.MetricsAddr)
	}
}
