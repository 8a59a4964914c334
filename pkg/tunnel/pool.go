// pool.go adapts the teacher's TCP connection pool into a pool of reusable
// outbound CrypRQ tunnels to a set of peers, per SPEC_FULL.md §9's
// "connection pooling adapted to a UDP tunnel-pool" ambient addition. Each
// peer address gets its own idle/in-use set, since a tunnel is bound to a
// single established Session rather than being a fungible byte stream.
package tunnel

import (
	"context"
	"sync"
	"time"

	qerrors "github.com/cryprq/cryprq/internal/errors"
)

// DialFunc establishes a new Tunnel to peer. It is supplied by the caller
// because the bootstrap that obtains the peer's identity/KEM public keys
// and performs InitiatorEstablish is ambient/demo plumbing (see
// cmd/cryprq/bootstrap.go), not part of the pool itself.
type DialFunc func(ctx context.Context, peer string) (*Tunnel, error)

type peerConns struct {
	conns   []*pooledConn
	idle    []*pooledConn
	waiters []chan *pooledConn
}

// Pool manages reusable outbound Tunnels to a fixed or on-demand peer set.
type Pool struct {
	dial   DialFunc
	config PoolConfig

	mu     sync.Mutex
	peers  map[string]*peerConns
	closed bool
	stats  *PoolStats

	healthCtx    context.Context
	healthCancel context.CancelFunc
	healthWg     sync.WaitGroup
}

// NewPool creates a tunnel pool that dials peers using dial. The pool is
// not started until Start is called.
func NewPool(dial DialFunc, config PoolConfig) (*Pool, error) {
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Pool{
		dial:   dial,
		config: config,
		peers:  make(map[string]*peerConns),
		stats:  newPoolStats(),
	}, nil
}

func (p *Pool) peerState(peer string) *peerConns {
	ps, ok := p.peers[peer]
	if !ok {
		ps = &peerConns{}
		p.peers[peer] = ps
	}
	return ps
}

// Start pre-warms MinConnsPerPeer tunnels for each peer in config.Peers and
// starts the background health checker if configured.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return qerrors.ErrPoolClosed
	}
	p.mu.Unlock()

	for _, peer := range p.config.Peers {
		for i := 0; i < p.config.MinConnsPerPeer; i++ {
			pc, err := p.createConn(ctx, peer)
			if err != nil {
				continue
			}
			p.mu.Lock()
			ps := p.peerState(peer)
			ps.conns = append(ps.conns, pc)
			ps.idle = append(ps.idle, pc)
			p.stats.setTotalCount(int64(p.totalConnsLocked()))
			p.mu.Unlock()
		}
	}

	if p.config.HealthCheckInterval > 0 {
		p.healthCtx, p.healthCancel = context.WithCancel(context.Background())
		p.healthWg.Add(1)
		go p.healthChecker()
	}

	return nil
}

func (p *Pool) totalConnsLocked() int {
	n := 0
	for _, ps := range p.peers {
		n += len(ps.conns)
	}
	return n
}

func (p *Pool) idleConnsLocked() int {
	n := 0
	for _, ps := range p.peers {
		n += len(ps.idle)
	}
	return n
}

// Close closes all pooled tunnels and prevents further Acquire calls.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	if p.healthCancel != nil {
		p.healthCancel()
	}

	var allConns []*pooledConn
	for _, ps := range p.peers {
		for _, ch := range ps.waiters {
			close(ch)
		}
		allConns = append(allConns, ps.conns...)
	}
	p.peers = make(map[string]*peerConns)
	p.mu.Unlock()

	p.healthWg.Wait()

	for _, pc := range allConns {
		_ = pc.tunnel.Close()
		if p.config.Observer != nil {
			p.config.Observer.OnConnectionClosed("pool_closed")
		}
	}

	return nil
}

// Acquire gets a tunnel to peer, dialing a new one if none is idle and the
// per-peer limit allows it, or waiting up to WaitTimeout otherwise. The
// returned PoolConn must be released with Release or Close.
func (p *Pool) Acquire(ctx context.Context, peer string) (*PoolConn, error) {
	startTime := time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, qerrors.ErrPoolClosed
	}

	ps := p.peerState(peer)
	for len(ps.idle) > 0 {
		pc := ps.idle[len(ps.idle)-1]
		ps.idle = ps.idle[:len(ps.idle)-1]

		if p.isHealthy(pc) {
			pc.inUse.Store(true)
			p.stats.recordAcquire(time.Since(startTime), true)
			p.mu.Unlock()
			if p.config.Observer != nil {
				p.config.Observer.OnAcquire(time.Since(startTime), true)
			}
			return newPoolConn(pc), nil
		}

		p.removeConnLocked(ps, pc)
		go p.closeUnhealthy(pc, "unhealthy")
	}

	if p.config.MaxConnsPerPeer == 0 || len(ps.conns) < p.config.MaxConnsPerPeer {
		p.mu.Unlock()
		return p.createAndAcquire(ctx, peer, startTime)
	}

	if p.config.WaitTimeout == 0 {
		p.mu.Unlock()
		p.stats.recordAcquireTimeout()
		if p.config.Observer != nil {
			p.config.Observer.OnAcquireTimeout()
		}
		return nil, qerrors.ErrPoolExhausted
	}

	ch := make(chan *pooledConn, 1)
	ps.waiters = append(ps.waiters, ch)
	p.stats.incrementWaiting()
	p.mu.Unlock()

	timeout := p.config.WaitTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case pc := <-ch:
		p.stats.decrementWaiting()
		if pc == nil {
			return nil, qerrors.ErrPoolClosed
		}
		if !p.isHealthy(pc) {
			p.mu.Lock()
			p.removeConnLocked(ps, pc)
			p.mu.Unlock()
			go p.closeUnhealthy(pc, "unhealthy")
			return p.Acquire(ctx, peer)
		}
		pc.inUse.Store(true)
		p.stats.recordAcquire(time.Since(startTime), true)
		if p.config.Observer != nil {
			p.config.Observer.OnAcquire(time.Since(startTime), true)
		}
		return newPoolConn(pc), nil

	case <-timer.C:
		p.mu.Lock()
		p.removeWaiterLocked(ps, ch)
		p.mu.Unlock()
		p.stats.decrementWaiting()
		p.stats.recordAcquireTimeout()
		if p.config.Observer != nil {
			p.config.Observer.OnAcquireTimeout()
		}
		return nil, qerrors.ErrPoolTimeout

	case <-ctx.Done():
		p.mu.Lock()
		p.removeWaiterLocked(ps, ch)
		p.mu.Unlock()
		p.stats.decrementWaiting()
		p.stats.recordAcquireTimeout()
		if p.config.Observer != nil {
			p.config.Observer.OnAcquireTimeout()
		}
		return nil, ctx.Err()
	}
}

func (p *Pool) closeUnhealthy(pc *pooledConn, reason string) {
	_ = pc.tunnel.Close()
	if p.config.Observer != nil {
		p.config.Observer.OnConnectionClosed(reason)
	}
}

// Stats returns the current pool-wide statistics.
func (p *Pool) Stats() PoolStatsSnapshot {
	return p.stats.Snapshot()
}

// Size returns the total number of tunnels (idle + in-use) to peer.
func (p *Pool) Size(peer string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ps, ok := p.peers[peer]; ok {
		return len(ps.conns)
	}
	return 0
}

// release returns a tunnel to the pool.
func (p *Pool) release(pc *pooledConn) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		go func() { _ = pc.tunnel.Close() }()
		return nil
	}

	ps := p.peerState(pc.peer)
	pc.inUse.Store(false)

	if pc.unhealthy.Load() {
		p.removeConnLocked(ps, pc)
		p.stats.recordConnectionClosed(false)
		go p.closeUnhealthy(pc, "marked_unhealthy")
		return nil
	}

	if len(ps.waiters) > 0 {
		ch := ps.waiters[0]
		ps.waiters = ps.waiters[1:]
		pc.inUse.Store(true)
		ch <- pc
		return nil
	}

	ps.idle = append(ps.idle, pc)
	p.stats.recordRelease()

	if p.config.Observer != nil {
		p.config.Observer.OnRelease()
	}

	return nil
}

func (p *Pool) createAndAcquire(ctx context.Context, peer string, startTime time.Time) (*PoolConn, error) {
	pc, err := p.createConn(ctx, peer)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = pc.tunnel.Close()
		return nil, qerrors.ErrPoolClosed
	}

	ps := p.peerState(peer)
	pc.inUse.Store(true)
	ps.conns = append(ps.conns, pc)
	p.stats.setTotalCount(int64(p.totalConnsLocked()))
	p.stats.recordAcquire(time.Since(startTime), false)
	p.mu.Unlock()

	if p.config.Observer != nil {
		p.config.Observer.OnAcquire(time.Since(startTime), false)
	}

	return newPoolConn(pc), nil
}

func (p *Pool) createConn(ctx context.Context, peer string) (*pooledConn, error) {
	dialStart := time.Now()

	dialCtx := ctx
	var cancel context.CancelFunc
	if p.config.DialTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, p.config.DialTimeout)
		defer cancel()
	}

	tun, err := p.dial(dialCtx, peer)
	if err != nil {
		return nil, err
	}

	pc := newPooledConn(tun, p, peer)

	dialDuration := time.Since(dialStart)
	p.stats.recordConnectionCreated(dialDuration)
	if p.config.Observer != nil {
		p.config.Observer.OnConnectionCreated(dialDuration)
	}

	return pc, nil
}

// isHealthy performs a quick health check on a pooled tunnel.
func (p *Pool) isHealthy(pc *pooledConn) bool {
	if pc.unhealthy.Load() {
		return false
	}
	if p.config.MaxLifetime > 0 && pc.age() > p.config.MaxLifetime {
		return false
	}
	if p.config.IdleTimeout > 0 && pc.idleTime() > p.config.IdleTimeout {
		return false
	}

	session := pc.tunnel.Session()
	if session == nil {
		return false
	}
	return session.State() == SessionStateEstablished
}

func (p *Pool) removeConnLocked(ps *peerConns, pc *pooledConn) {
	for i, c := range ps.conns {
		if c == pc {
			ps.conns = append(ps.conns[:i], ps.conns[i+1:]...)
			break
		}
	}
	for i, c := range ps.idle {
		if c == pc {
			ps.idle = append(ps.idle[:i], ps.idle[i+1:]...)
			break
		}
	}
	p.stats.setTotalCount(int64(p.totalConnsLocked()))
	p.stats.setIdleCount(int64(p.idleConnsLocked()))
}

func (p *Pool) removeWaiterLocked(ps *peerConns, ch chan *pooledConn) {
	for i, w := range ps.waiters {
		if w == ch {
			ps.waiters = append(ps.waiters[:i], ps.waiters[i+1:]...)
			return
		}
	}
}

func (p *Pool) healthChecker() {
	defer p.healthWg.Done()

	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.healthCtx.Done():
			return
		case <-ticker.C:
			p.runHealthCheck()
		}
	}
}

func (p *Pool) runHealthCheck() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}

	type closedEntry struct {
		pc   *pooledConn
		peer string
	}
	var unhealthy []closedEntry

	for peer, ps := range p.peers {
		newIdle := make([]*pooledConn, 0, len(ps.idle))
		for _, pc := range ps.idle {
			healthy := p.isHealthy(pc)
			if p.config.Observer != nil {
				p.config.Observer.OnHealthCheck(healthy)
			}
			p.stats.recordHealthCheck(healthy)

			if healthy {
				newIdle = append(newIdle, pc)
			} else {
				unhealthy = append(unhealthy, closedEntry{pc: pc, peer: peer})
			}
		}
		ps.idle = newIdle
	}

	for _, entry := range unhealthy {
		p.removeConnLocked(p.peers[entry.peer], entry.pc)
	}
	p.stats.setIdleCount(int64(p.idleConnsLocked()))

	deficits := make(map[string]int, len(p.config.Peers))
	for _, peer := range p.config.Peers {
		ps := p.peerState(peer)
		if d := p.config.MinConnsPerPeer - len(ps.conns); d > 0 {
			deficits[peer] = d
		}
	}
	p.mu.Unlock()

	for _, entry := range unhealthy {
		p.closeUnhealthy(entry.pc, "health_check_failed")
	}

	if len(deficits) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), p.config.DialTimeout)
		defer cancel()

		for peer, deficit := range deficits {
			for i := 0; i < deficit; i++ {
				pc, err := p.createConn(ctx, peer)
				if err != nil {
					break
				}
				p.mu.Lock()
				if p.closed {
					p.mu.Unlock()
					_ = pc.tunnel.Close()
					return
				}
				ps := p.peerState(peer)
				ps.conns = append(ps.conns, pc)
				ps.idle = append(ps.idle, pc)
				p.stats.setTotalCount(int64(p.totalConnsLocked()))
				p.stats.setIdleCount(int64(p.idleConnsLocked()))
				p.mu.Unlock()
			}
		}
	}

	if p.config.Observer != nil {
		p.config.Observer.OnPoolStats(p.stats.Snapshot())
	}
}
