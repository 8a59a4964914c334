package tunnel

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/cryprq/cryprq/internal/constants"
)

// Config holds every tunable parameter for a Tunnel, per SPEC_FULL.md §6/§10.
// Zero-valued fields are filled in by applyDefaults.
type Config struct {
	// RekeyInterval is the cadence at which the local epoch is advanced and
	// fresh directional keys are derived from the existing master secret.
	// Default: 300 seconds.
	RekeyInterval time.Duration

	// AllowedPeerIdentities is the set of remote identity public keys (raw
	// bytes, as a string map key) permitted to establish a session. An empty
	// map permits all peers.
	AllowedPeerIdentities map[string]bool

	// MetricsAddr is the socket address the metrics/health endpoint listens
	// on. Empty disables the endpoint.
	MetricsAddr string

	// InboundBackoffBase is the initial backoff applied to a misbehaving
	// inbound peer endpoint. Default: 500ms.
	InboundBackoffBase time.Duration

	// InboundBackoffMax caps the exponential backoff above. Default: 30s.
	InboundBackoffMax time.Duration

	// MaxInboundConnections bounds the number of concurrently tracked peer
	// endpoints. Default: 64.
	MaxInboundConnections int

	// RateLimiterRate is the receive-path token-bucket sustained refill rate,
	// in tokens per second. Default: 1000.
	RateLimiterRate float64

	// RateLimiterBurst is the receive-path token-bucket capacity. Default: 2000.
	RateLimiterBurst int

	// BufferPoolCapacity bounds the number of pooled receive buffers.
	// Default: 256.
	BufferPoolCapacity int

	// Observer receives tunnel lifecycle, metrics, and tracing events.
	// Optional; if nil and ObserverFactory is also nil, events are dropped.
	Observer Observer

	// ObserverFactory builds a per-session Observer. Takes precedence over
	// Observer when set.
	ObserverFactory ObserverFactory
}

// DefaultConfig returns a Config with the SPEC_FULL.md §6 defaults applied.
func DefaultConfig() Config {
	return Config{
		RekeyInterval:         constants.DefaultRekeyIntervalSeconds * time.Second,
		AllowedPeerIdentities: make(map[string]bool),
		InboundBackoffBase:    constants.DefaultInboundBackoffBaseMillis * time.Millisecond,
		InboundBackoffMax:     constants.DefaultInboundBackoffMaxMillis * time.Millisecond,
		MaxInboundConnections: constants.DefaultMaxInboundConnections,
		RateLimiterRate:       constants.DefaultRateLimiterRate,
		RateLimiterBurst:      constants.DefaultRateLimiterBurst,
		BufferPoolCapacity:    constants.DefaultBufferPoolCapacity,
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.RekeyInterval < 0 {
		return errors.New("tunnel: RekeyInterval cannot be negative")
	}
	if c.InboundBackoffBase < 0 {
		return errors.New("tunnel: InboundBackoffBase cannot be negative")
	}
	if c.InboundBackoffMax < 0 {
		return errors.New("tunnel: InboundBackoffMax cannot be negative")
	}
	if c.InboundBackoffMax > 0 && c.InboundBackoffBase > c.InboundBackoffMax {
		return errors.New("tunnel: InboundBackoffBase cannot exceed InboundBackoffMax")
	}
	if c.MaxInboundConnections < 0 {
		return errors.New("tunnel: MaxInboundConnections cannot be negative")
	}
	if c.RateLimiterRate < 0 {
		return errors.New("tunnel: RateLimiterRate cannot be negative")
	}
	if c.RateLimiterBurst < 0 {
		return errors.New("tunnel: RateLimiterBurst cannot be negative")
	}
	if c.BufferPoolCapacity < 0 {
		return errors.New("tunnel: BufferPoolCapacity cannot be negative")
	}
	return nil
}

// applyDefaults fills in zero values with the SPEC_FULL.md §6 defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.RekeyInterval == 0 {
		c.RekeyInterval = defaults.RekeyInterval
	}
	if c.AllowedPeerIdentities == nil {
		c.AllowedPeerIdentities = defaults.AllowedPeerIdentities
	}
	if c.InboundBackoffBase == 0 {
		c.InboundBackoffBase = defaults.InboundBackoffBase
	}
	if c.InboundBackoffMax == 0 {
		c.InboundBackoffMax = defaults.InboundBackoffMax
	}
	if c.MaxInboundConnections == 0 {
		c.MaxInboundConnections = defaults.MaxInboundConnections
	}
	if c.RateLimiterRate == 0 {
		c.RateLimiterRate = defaults.RateLimiterRate
	}
	if c.RateLimiterBurst == 0 {
		c.RateLimiterBurst = defaults.RateLimiterBurst
	}
	if c.BufferPoolCapacity == 0 {
		c.BufferPoolCapacity = defaults.BufferPoolCapacity
	}
}

// IsPeerAllowed reports whether the given raw peer identity public key is
// permitted to establish a session. An empty allow-list permits all peers.
func (c *Config) IsPeerAllowed(identityPK []byte) bool {
	if len(c.AllowedPeerIdentities) == 0 {
		return true
	}
	return c.AllowedPeerIdentities[string(identityPK)]
}

// LoadFromEnv applies CRYPRQ_* environment variable overrides to cfg. It is
// a thin layer over Config, not a config-file parser: the spec carries no
// config-file format.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("CRYPRQ_REKEY_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RekeyInterval = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("CRYPRQ_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("CRYPRQ_INBOUND_BACKOFF_BASE_MILLIS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.InboundBackoffBase = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("CRYPRQ_INBOUND_BACKOFF_MAX_MILLIS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.InboundBackoffMax = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("CRYPRQ_MAX_INBOUND_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxInboundConnections = n
		}
	}
	if v := os.Getenv("CRYPRQ_RATE_LIMITER_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimiterRate = f
		}
	}
	if v := os.Getenv("CRYPRQ_RATE_LIMITER_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimiterBurst = n
		}
	}
	if v := os.Getenv("CRYPRQ_BUFFER_POOL_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BufferPoolCapacity = n
		}
	}
}
