package tunnel

import (
	"errors"
	"time"
)

// PoolConfig holds configuration for a Pool of outbound tunnels. Limits
// apply per peer: each distinct peer address gets its own idle/in-use set
// bounded by MinConnsPerPeer/MaxConnsPerPeer, since a CrypRQ tunnel is a
// one-shot session bound to a single peer identity, unlike a stateless TCP
// connection that can be handed to any caller.
type PoolConfig struct {
	// MinConnsPerPeer is the number of idle tunnels the pool tries to keep
	// warm for each peer listed in Peers at Start.
	// Default: 1
	MinConnsPerPeer int

	// MaxConnsPerPeer caps the number of tunnels (idle + in-use) held open
	// to a single peer. 0 means unlimited.
	// Default: 4
	MaxConnsPerPeer int

	// IdleTimeout closes idle tunnels after this duration. 0 disables it.
	// Default: 5 minutes
	IdleTimeout time.Duration

	// MaxLifetime closes tunnels older than this when Acquire or the health
	// check next finds them idle; in-use tunnels are not interrupted.
	// 0 disables it.
	// Default: 30 minutes
	MaxLifetime time.Duration

	// HealthCheckInterval is the interval between health checks. 0 disables
	// periodic checks (on-acquire checks still run).
	// Default: 30 seconds
	HealthCheckInterval time.Duration

	// WaitTimeout is how long Acquire waits for a tunnel to a peer whose
	// pool is at MaxConnsPerPeer. 0 returns ErrPoolExhausted immediately.
	// Default: 30 seconds
	WaitTimeout time.Duration

	// DialTimeout bounds the bootstrap+handshake performed by DialFunc.
	// Default: 10 seconds
	DialTimeout time.Duration

	// TunnelConfig is not read by the Pool itself; each Tunnel is built by
	// the DialFunc with whatever Config it chooses.
	TunnelConfig Config

	// Peers lists the peer addresses to pre-warm with MinConnsPerPeer
	// tunnels at Start. Optional; Acquire dials on demand for any peer.
	Peers []string

	// Observer receives pool lifecycle and statistics events. Optional.
	Observer PoolObserver
}

// DefaultPoolConfig returns a PoolConfig with sensible defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MinConnsPerPeer:     1,
		MaxConnsPerPeer:     4,
		IdleTimeout:         5 * time.Minute,
		MaxLifetime:         30 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
		WaitTimeout:         30 * time.Second,
		DialTimeout:         10 * time.Second,
		TunnelConfig:        DefaultConfig(),
	}
}

// Validate checks the configuration for errors.
func (c *PoolConfig) Validate() error {
	if c.MinConnsPerPeer < 0 {
		return errors.New("pool: MinConnsPerPeer cannot be negative")
	}
	if c.MaxConnsPerPeer < 0 {
		return errors.New("pool: MaxConnsPerPeer cannot be negative")
	}
	if c.MaxConnsPerPeer > 0 && c.MinConnsPerPeer > c.MaxConnsPerPeer {
		return errors.New("pool: MinConnsPerPeer cannot exceed MaxConnsPerPeer")
	}
	if c.IdleTimeout < 0 {
		return errors.New("pool: IdleTimeout cannot be negative")
	}
	if c.MaxLifetime < 0 {
		return errors.New("pool: MaxLifetime cannot be negative")
	}
	if c.HealthCheckInterval < 0 {
		return errors.New("pool: HealthCheckInterval cannot be negative")
	}
	if c.WaitTimeout < 0 {
		return errors.New("pool: WaitTimeout cannot be negative")
	}
	if c.DialTimeout < 0 {
		return errors.New("pool: DialTimeout cannot be negative")
	}
	return nil
}

// applyDefaults fills in MinConnsPerPeer and DialTimeout when they are zero.
// The other fields keep a zero value, which has the meaning documented on
// each field.
func (c *PoolConfig) applyDefaults() {
	defaults := DefaultPoolConfig()

	if c.MinConnsPerPeer == 0 {
		c.MinConnsPerPeer = defaults.MinConnsPerPeer
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaults.DialTimeout
	}
}
