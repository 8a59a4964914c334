package tunnel

import (
	"sync"
	"sync/atomic"
	"time"
)

// pooledConn is an internal representation of a tunnel held by the pool,
// tagged with the peer address it was dialed to.
type pooledConn struct {
	tunnel    *Tunnel
	pool      *Pool
	peer      string
	createdAt time.Time
	lastUsed  time.Time
	useMu     sync.Mutex
	inUse     atomic.Bool
	unhealthy atomic.Bool
}

func newPooledConn(tunnel *Tunnel, pool *Pool, peer string) *pooledConn {
	now := time.Now()
	return &pooledConn{
		tunnel:    tunnel,
		pool:      pool,
		peer:      peer,
		createdAt: now,
		lastUsed:  now,
	}
}

func (pc *pooledConn) markUsed() {
	pc.useMu.Lock()
	pc.lastUsed = time.Now()
	pc.useMu.Unlock()
}

func (pc *pooledConn) getLastUsed() time.Time {
	pc.useMu.Lock()
	defer pc.useMu.Unlock()
	return pc.lastUsed
}

func (pc *pooledConn) age() time.Duration {
	return time.Since(pc.createdAt)
}

func (pc *pooledConn) idleTime() time.Duration {
	return time.Since(pc.getLastUsed())
}

// PoolConn is the public handle returned to callers from Pool.Acquire. It
// wraps a Tunnel and must be returned with Release (healthy) or Close
// (unhealthy/erroring) so the pool can reuse or discard it.
type PoolConn struct {
	pc       *pooledConn
	released atomic.Bool
}

func newPoolConn(pc *pooledConn) *PoolConn {
	return &PoolConn{pc: pc}
}

// Tunnel returns the underlying Tunnel, or nil once released.
func (c *PoolConn) Tunnel() *Tunnel {
	if c.released.Load() {
		return nil
	}
	return c.pc.tunnel
}

// Peer returns the peer address this connection was dialed to.
func (c *PoolConn) Peer() string {
	return c.pc.peer
}

// Release returns the tunnel to the pool for reuse by a future Acquire
// for the same peer.
func (c *PoolConn) Release() error {
	if !c.released.CompareAndSwap(false, true) {
		return nil
	}
	c.pc.markUsed()
	return c.pc.pool.release(c.pc)
}

// Close marks the tunnel unhealthy and removes it from the pool. Use this
// instead of Release when the tunnel encountered an error.
func (c *PoolConn) Close() error {
	if !c.released.CompareAndSwap(false, true) {
		return nil
	}
	c.pc.unhealthy.Store(true)
	return c.pc.pool.release(c.pc)
}

// Session returns the underlying Session, or nil once released.
func (c *PoolConn) Session() *Session {
	if c.released.Load() {
		return nil
	}
	return c.pc.tunnel.Session()
}

// CreatedAt returns when the tunnel was established.
func (c *PoolConn) CreatedAt() time.Time {
	return c.pc.createdAt
}

// ErrConnReleased is returned when an operation is attempted on a
// already-released PoolConn.
var ErrConnReleased = &poolError{msg: "pool: connection already released"}

type poolError struct {
	msg string
}

func (e *poolError) Error() string {
	return e.msg
}
