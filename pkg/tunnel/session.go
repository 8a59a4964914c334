// Package tunnel implements the CrypRQ tunnel runtime: the hybrid handshake
// driver, the per-epoch key schedule, sequence counters, the anti-replay
// window, the receive-path rate limiter, and the datagram runtime that ties
// them all to a socket.
//
// The tunnel provides:
//   - Hybrid post-quantum + classical authenticated key exchange
//   - Authenticated encryption via the record codec (pkg/protocol)
//   - Epoch-scoped directional keys with periodic rekeying
//   - Per-class sequence counters and a sliding anti-replay window
//   - A bounded receive-buffer pool and a token-bucket rate limiter
package tunnel

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	qerrors "github.com/cryprq/cryprq/internal/errors"
	"github.com/cryprq/cryprq/pkg/crypto"
)

// SessionState represents the current lifecycle state of a tunnel session.
type SessionState int32

const (
	// SessionStateEstablished indicates the tunnel is ready for data.
	SessionStateEstablished SessionState = iota
	// SessionStateClosed indicates the session has been torn down.
	SessionStateClosed
)

// String returns a human-readable name for the session state.
func (s SessionState) String() string {
	switch s {
	case SessionStateEstablished:
		return "Established"
	case SessionStateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Role indicates whether this endpoint initiated or responded to the
// handshake. It determines which derived epoch keys are outbound vs inbound.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

// String returns a human-readable name for the role.
func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// Session is a live CrypRQ session: the data model described in
// SPEC_FULL.md §3. It survives for the process's hold on it and is
// destroyed by explicit Close or process exit.
type Session struct {
	Role Role

	// RemoteIdentityPK is the raw Ed25519 identity public key of the remote
	// peer this session was established with.
	RemoteIdentityPK []byte

	state atomic.Int32

	// masterSecret survives the whole session; every epoch's directional
	// keys are re-derived from it. Guarded by mu for zeroization on Close.
	mu           sync.Mutex
	masterSecret []byte

	// bundle publishes the current (epoch, outbound, inbound) triple for
	// lock-free reads on the send/receive hot paths.
	bundle keyBundleHolder

	// seqOut holds this direction's per-class send counters.
	seqOut SeqCounters

	// replay tracks inbound sequence numbers for the current epoch. It is
	// replaced wholesale (not mutated) on every epoch rotation, so it is
	// guarded by its own lock separate from the key bundle swap.
	replayMu sync.RWMutex
	replay   *ReplayWindow

	// retired holds the just-retired epoch's inbound keys during the
	// post-rekey grace window described in SPEC_FULL.md §9: the receiver
	// may decrypt under either the new or the immediately prior epoch until
	// the new epoch has been observed once, at which point retired is
	// cleared and zeroized.
	retiredMu    sync.Mutex
	retired      *crypto.DirectionalKeys
	retiredEpoch uint8

	limiter *RateLimiter

	// peerEndpoint is single-writer-last-wins: updated on every successful
	// receive, read by the send path.
	peerEndpoint atomic.Value // net.Addr

	observer Observer

	CreatedAt     time.Time
	EstablishedAt time.Time

	BytesSent     atomic.Uint64
	BytesReceived atomic.Uint64
	PacketsSent   atomic.Uint64
	PacketsRecv   atomic.Uint64
}

// newSession builds a freshly-established session (epoch 0) around a
// master secret already produced by the handshake driver. It is not
// exported: callers reach it only through InitiatorEstablish/
// ResponderEstablish.
func newSession(role Role, remoteIdentityPK, masterSecret []byte, limiter *RateLimiter) (*Session, error) {
	ir, ri, err := crypto.DeriveEpochKeys(masterSecret, 0)
	if err != nil {
		return nil, err
	}

	var outbound, inbound crypto.DirectionalKeys
	if role == RoleInitiator {
		outbound, inbound = *ir, *ri
	} else {
		outbound, inbound = *ri, *ir
	}

	s := &Session{
		Role:             role,
		RemoteIdentityPK: append([]byte(nil), remoteIdentityPK...),
		masterSecret:     append([]byte(nil), masterSecret...),
		replay:           NewReplayWindow(),
		limiter:          limiter,
		CreatedAt:        time.Now(),
		EstablishedAt:    time.Now(),
	}
	s.state.Store(int32(SessionStateEstablished))
	s.bundle.Store(&KeyBundle{Epoch: 0, Outbound: outbound, Inbound: inbound})

	return s, nil
}

// State returns the current session state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// SetObserver sets an observer for session lifecycle and metrics hooks.
// Should be called before any data is sent or received.
func (s *Session) SetObserver(observer Observer) {
	s.observer = observer
}

// KeyBundle returns the current epoch's directional keys.
func (s *Session) KeyBundle() *KeyBundle {
	return s.bundle.Load()
}

// CurrentEpoch returns the currently active epoch.
func (s *Session) CurrentEpoch() uint8 {
	return s.bundle.Load().Epoch
}

// SeqCounters returns this session's outbound sequence counters.
func (s *Session) SeqCounters() *SeqCounters {
	return &s.seqOut
}

// Replay returns the session's current replay window.
func (s *Session) Replay() *ReplayWindow {
	s.replayMu.RLock()
	defer s.replayMu.RUnlock()
	return s.replay
}

// RateLimiter returns the session's receive-path rate limiter.
func (s *Session) RateLimiter() *RateLimiter {
	return s.limiter
}

// PeerEndpoint returns the most recently observed source address for the
// peer, or nil if no datagram has been received yet.
func (s *Session) PeerEndpoint() net.Addr {
	v := s.peerEndpoint.Load()
	if v == nil {
		return nil
	}
	return v.(net.Addr)
}

// SetPeerEndpoint records the source address of the most recent successful
// receive. Single-writer-last-wins: concurrent receivers may race, and the
// most recent write stands.
func (s *Session) SetPeerEndpoint(addr net.Addr) {
	s.peerEndpoint.Store(addr)
}

// rekey advances the epoch by one (wrapping modulo 256), re-derives
// directional keys from the unchanged master secret, publishes them
// atomically, and resets the sequence counters and replay window, per
// SPEC_FULL.md §4.8/§9. It is invoked by the tunnel's rekey task, never
// directly by send/receive.
func (s *Session) rekey() error {
	s.mu.Lock()
	masterSecret := append([]byte(nil), s.masterSecret...)
	s.mu.Unlock()

	oldBundle := s.bundle.Load()
	newEpoch := s.CurrentEpoch() + 1 // uint8 wraps modulo 256 automatically

	ir, ri, err := crypto.DeriveEpochKeys(masterSecret, newEpoch)
	crypto.Zeroize(masterSecret)
	if err != nil {
		return err
	}

	var outbound, inbound crypto.DirectionalKeys
	if s.Role == RoleInitiator {
		outbound, inbound = *ir, *ri
	} else {
		outbound, inbound = *ri, *ir
	}

	s.retiredMu.Lock()
	if s.retired != nil {
		s.retired.Zeroize()
	}
	if oldBundle != nil {
		retired := oldBundle.Inbound
		s.retired = &retired
		s.retiredEpoch = oldBundle.Epoch
	}
	s.retiredMu.Unlock()

	s.bundle.Store(&KeyBundle{Epoch: newEpoch, Outbound: outbound, Inbound: inbound})
	s.seqOut.Reset()

	s.replayMu.Lock()
	s.replay = NewReplayWindow()
	s.replayMu.Unlock()

	return nil
}

// RetiredInbound returns the just-retired epoch's inbound keys and epoch
// number, if a grace window is currently open.
func (s *Session) RetiredInbound() (*crypto.DirectionalKeys, uint8, bool) {
	s.retiredMu.Lock()
	defer s.retiredMu.Unlock()
	if s.retired == nil {
		return nil, 0, false
	}
	return s.retired, s.retiredEpoch, true
}

// ClearRetiredInbound closes the post-rekey grace window, zeroizing the
// retired epoch's inbound keys. Called once a record under the current
// epoch has been successfully decrypted.
func (s *Session) ClearRetiredInbound() {
	s.retiredMu.Lock()
	if s.retired != nil {
		s.retired.Zeroize()
	}
	s.retired = nil
	s.retiredEpoch = 0
	s.retiredMu.Unlock()
}

// Close tears down the session and zeroizes its master secret and current
// key bundle.
func (s *Session) Close() {
	s.state.Store(int32(SessionStateClosed))

	s.mu.Lock()
	crypto.Zeroize(s.masterSecret)
	s.masterSecret = nil
	s.mu.Unlock()

	s.bundle.Store(nil)
}

// Stats is a point-in-time snapshot of session traffic counters.
type Stats struct {
	BytesSent     uint64
	BytesReceived uint64
	PacketsSent   uint64
	PacketsRecv   uint64
	Epoch         uint8
	Duration      time.Duration
	State         SessionState
}

// Stats returns the current session statistics.
func (s *Session) Stats() Stats {
	return Stats{
		BytesSent:     s.BytesSent.Load(),
		BytesReceived: s.BytesReceived.Load(),
		PacketsSent:   s.PacketsSent.Load(),
		PacketsRecv:   s.PacketsRecv.Load(),
		Epoch:         s.CurrentEpoch(),
		Duration:      time.Since(s.CreatedAt),
		State:         s.State(),
	}
}

// checkClosed returns ErrTunnelClosed if the session has been closed.
func (s *Session) checkClosed() error {
	if s.State() == SessionStateClosed {
		return qerrors.ErrTunnelClosed
	}
	return nil
}
