// tunnel.go implements the datagram runtime described in SPEC_FULL.md §4.8:
// a UDP socket bound to a single established Session, a Send path that
// encrypts under the session's current outbound epoch keys, and a
// ReceiveAndDispatch loop that rate-limits, decrypts, replay-checks, and
// dispatches inbound records by message type.
package tunnel

import (
	"context"
	"crypto/cipher"
	"net"
	"sync"
	"time"

	qerrors "github.com/cryprq/cryprq/internal/errors"
	"github.com/cryprq/cryprq/pkg/crypto"
	"github.com/cryprq/cryprq/pkg/filetransfer"
	"github.com/cryprq/cryprq/pkg/protocol"
)

// receivePollQuantum bounds how long a single blocking ReadFrom call may run
// before readFrom re-checks ctx/closed, so cancellation never waits on a read
// that might not return for a long time.
const receivePollQuantum = 200 * time.Millisecond

// DeviceSink receives decrypted VPN_PACKET payloads for delivery to a local
// virtual network device. Optional: a Tunnel constructed without one simply
// drops VPN_PACKET records.
type DeviceSink interface {
	WritePacket(payload []byte) error
}

// RecordHandler receives a decrypted DATA or CONTROL record for delivery to
// whatever session_receive consumer the caller wires up. The record/tunnel
// layer has no opinion on the contents of these message types; it only
// routes them.
type RecordHandler func(header protocol.Header, payload []byte)

// Tunnel ties a Session to a UDP socket, a buffer pool, a file-transfer
// manager, and an optional virtual-device sink.
type Tunnel struct {
	conn    net.PacketConn
	session *Session
	pool    *BufferPool
	files   *filetransfer.Manager
	device  DeviceSink
	config  Config
	observer Observer

	// SinkFactory opens the output sink for a newly announced incoming file
	// transfer. If nil, FILE_META records are observed but no transfer is
	// started, and subsequent FILE_CHUNK records for that stream are
	// dropped as unknown-stream.
	SinkFactory func(metadata protocol.FileMetadata) (filetransfer.Sink, error)

	// Handler delivers decrypted DATA/CONTROL records to the caller. If nil,
	// these records are dropped after decryption and replay-checking (the
	// "(or drop)" case SPEC_FULL.md §4.8 permits when nothing consumes them).
	Handler RecordHandler

	aeadMu       sync.Mutex
	aeadEpoch    uint8
	outboundAEAD cipher.AEAD
	inboundAEAD  cipher.AEAD

	retiredAEADMu sync.Mutex
	retiredEpoch  uint8
	retiredAEAD   cipher.AEAD

	closeOnce sync.Once
	closed    chan struct{}
}

// New wraps an already-established Session around conn. cfg supplies the
// buffer pool capacity, rate limiter defaults, and observer; pass
// DefaultConfig() for spec defaults.
func New(conn net.PacketConn, session *Session, cfg Config, device DeviceSink) *Tunnel {
	cfg.applyDefaults()
	t := &Tunnel{
		conn:    conn,
		session: session,
		pool:    NewBufferPool(cfg.BufferPoolCapacity),
		files:   filetransfer.NewManager(),
		device:  device,
		config:  cfg,
		observer: observerFromConfig(cfg, session),
		closed:  make(chan struct{}),
	}
	session.SetObserver(t.observer)
	return t
}

// Files returns the tunnel's file-transfer manager.
func (t *Tunnel) Files() *filetransfer.Manager { return t.files }

// Session returns the tunnel's underlying session.
func (t *Tunnel) Session() *Session { return t.session }

// LocalAddr returns the local address of the tunnel's UDP socket.
func (t *Tunnel) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// RemoteAddr returns the most recently observed peer address, or nil if
// no datagram from the peer has been observed yet.
func (t *Tunnel) RemoteAddr() net.Addr { return t.session.PeerEndpoint() }

// outboundCipher returns a cipher.AEAD for the session's current outbound
// epoch, rebuilding it only when the epoch has advanced since the last call.
func (t *Tunnel) outboundCipher() (cipher.AEAD, *KeyBundle, error) {
	bundle := t.session.KeyBundle()
	if bundle == nil {
		return nil, nil, qerrors.ErrTunnelClosed
	}

	t.aeadMu.Lock()
	defer t.aeadMu.Unlock()
	if t.outboundAEAD == nil || t.aeadEpoch != bundle.Epoch {
		aead, err := crypto.NewAEADCipher(crypto.ActiveCipherSuite(), bundle.Outbound.Key[:])
		if err != nil {
			return nil, nil, err
		}
		inboundAEAD, err := crypto.NewAEADCipher(crypto.ActiveCipherSuite(), bundle.Inbound.Key[:])
		if err != nil {
			return nil, nil, err
		}
		t.outboundAEAD = aead
		t.inboundAEAD = inboundAEAD
		t.aeadEpoch = bundle.Epoch
	}
	return t.outboundAEAD, bundle, nil
}

// Send encrypts payload under the session's current outbound epoch keys and
// class-appropriate sequence counter and writes it to the peer's last-known
// endpoint. If no peer endpoint has been observed yet, Send silently drops
// the datagram, per SPEC_FULL.md §4.8.
func (t *Tunnel) Send(messageType protocol.MessageType, streamID uint32, flags uint8, payload []byte) error {
	if err := t.session.checkClosed(); err != nil {
		return err
	}

	peer := t.session.PeerEndpoint()
	if peer == nil {
		return nil // silent drop: no peer endpoint known yet
	}

	aead, bundle, err := t.outboundCipher()
	if err != nil {
		return err
	}

	seq, err := t.nextSequence(messageType)
	if err != nil {
		t.observer.OnProtocolError(err)
		return err
	}

	ctx, done := t.observer.OnEncrypt(context.Background(), len(payload))
	_ = ctx
	record, err := protocol.Encrypt(aead, messageType, flags, bundle.Epoch, streamID, seq, payload, bundle.Outbound.StaticIV[:])
	done(err)
	if err != nil {
		return err
	}

	if _, err := t.conn.WriteTo(record, peer); err != nil {
		return qerrors.NewTunnelError(peer.String(), err)
	}

	t.session.BytesSent.Add(uint64(len(payload)))
	t.session.PacketsSent.Add(1)
	return nil
}

func (t *Tunnel) nextSequence(messageType protocol.MessageType) (uint64, error) {
	switch messageType {
	case protocol.MessageTypeVPNPacket:
		return t.session.seqOut.NextVPN()
	case protocol.MessageTypeFileMeta, protocol.MessageTypeFileChunk, protocol.MessageTypeFileAck:
		return t.session.seqOut.NextFile()
	default:
		return t.session.seqOut.NextData()
	}
}

// ReceiveAndDispatch blocks for a single inbound datagram, rate-limits,
// decrypts, replay-checks, and dispatches it by message type. It returns a
// non-nil error only for fatal conditions (closed tunnel, context
// cancellation, or socket I/O failure); protocol-level problems (bad
// decrypt, replay, rate limit) are recovered locally and reported to the
// observer, per SPEC_FULL.md §7.
func (t *Tunnel) ReceiveAndDispatch(ctx context.Context) error {
	if err := t.session.checkClosed(); err != nil {
		return err
	}

	buf := t.pool.Get()
	defer t.pool.Put(buf)

	n, addr, err := t.readFrom(ctx, buf)
	if err != nil {
		return err
	}

	if !t.session.RateLimiter().Allow() {
		t.observer.OnProtocolError(qerrors.ErrRateLimitExceeded)
		return nil
	}

	record, err := protocol.Decode(buf[:n])
	if err != nil {
		t.observer.OnProtocolError(err)
		return nil
	}

	plaintext, epoch, err := t.decrypt(record)
	if err != nil {
		t.observer.OnAuthFailure()
		t.observer.OnProtocolError(err)
		return nil
	}

	t.session.replayMu.RLock()
	window := t.session.replay
	t.session.replayMu.RUnlock()
	if !window.CheckAndUpdate(record.Header.SequenceNumber) {
		t.observer.OnReplayDetected()
		return nil
	}

	if epoch == t.session.CurrentEpoch() {
		t.session.ClearRetiredInbound()
	}

	t.session.SetPeerEndpoint(addr)
	t.session.BytesReceived.Add(uint64(len(plaintext)))
	t.session.PacketsRecv.Add(1)

	t.dispatch(record.Header, plaintext)
	return nil
}

// readFrom blocks until a datagram arrives, ctx is cancelled, or the tunnel
// closes. Cancellation is driven by repeatedly setting a short read
// deadline rather than racing a detached goroutine against ctx: ReadFrom
// always returns (with data or a timeout) before this function does, so buf
// is never touched again once readFrom returns and the caller's
// pool.Put(buf) is safe immediately.
func (t *Tunnel) readFrom(ctx context.Context, buf []byte) (int, net.Addr, error) {
	for {
		select {
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		case <-t.closed:
			return 0, nil, qerrors.ErrTunnelClosed
		default:
		}

		deadline := time.Now().Add(receivePollQuantum)
		if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
			deadline = ctxDeadline
		}
		if err := t.conn.SetReadDeadline(deadline); err != nil {
			return 0, nil, qerrors.NewTunnelError("", err)
		}

		n, addr, err := t.conn.ReadFrom(buf)
		if err == nil {
			return n, addr, nil
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			continue
		}
		return 0, nil, qerrors.NewTunnelError("", err)
	}
}

// decrypt tries the current inbound epoch first, then (if present) the
// just-retired epoch's keys, implementing the post-rekey grace window from
// SPEC_FULL.md §9.
func (t *Tunnel) decrypt(record protocol.Record) (plaintext []byte, epoch uint8, err error) {
	_, bundle, err := t.outboundCipher()
	if err != nil {
		return nil, 0, err
	}

	if record.Header.Epoch == bundle.Epoch {
		plaintext, err = protocol.Decrypt(t.inboundAEAD, record, bundle.Inbound.StaticIV[:])
		if err == nil {
			return plaintext, bundle.Epoch, nil
		}
	}

	if retired, retiredEpoch, ok := t.session.RetiredInbound(); ok && record.Header.Epoch == retiredEpoch {
		aead, aeadErr := t.retiredCipher(retiredEpoch, retired)
		if aeadErr != nil {
			return nil, 0, aeadErr
		}
		plaintext, err = protocol.Decrypt(aead, record, retired.StaticIV[:])
		if err == nil {
			return plaintext, retiredEpoch, nil
		}
	}

	return nil, 0, qerrors.ErrDecryptFailed
}

func (t *Tunnel) retiredCipher(epoch uint8, keys *crypto.DirectionalKeys) (cipher.AEAD, error) {
	t.retiredAEADMu.Lock()
	defer t.retiredAEADMu.Unlock()
	if t.retiredAEAD == nil || t.retiredEpoch != epoch {
		aead, err := crypto.NewAEADCipher(crypto.ActiveCipherSuite(), keys.Key[:])
		if err != nil {
			return nil, err
		}
		t.retiredAEAD = aead
		t.retiredEpoch = epoch
	}
	return t.retiredAEAD, nil
}

// dispatch routes a decrypted record by message type. Unknown types and
// file-transfer/VPN errors are recovered locally per SPEC_FULL.md §7: a
// failed file transfer aborts only that transfer, not the tunnel.
func (t *Tunnel) dispatch(header protocol.Header, payload []byte) {
	switch header.MessageType {
	case protocol.MessageTypeVPNPacket:
		if t.device != nil {
			_ = t.device.WritePacket(payload)
		}
	case protocol.MessageTypeFileMeta:
		meta, err := protocol.DecodeFileMetadata(payload)
		if err != nil {
			t.observer.OnProtocolError(err)
			return
		}
		if t.SinkFactory == nil {
			return
		}
		sink, err := t.SinkFactory(meta)
		if err != nil {
			t.observer.OnProtocolError(err)
			return
		}
		if err := t.files.StartIncoming(header.StreamID, meta, sink); err != nil {
			t.observer.OnProtocolError(err)
		}
	case protocol.MessageTypeFileChunk:
		_ = t.files.WriteChunk(header.StreamID, payload)
	case protocol.MessageTypeFileAck:
		_ = t.files.HandleAck(header.StreamID, payload)
	case protocol.MessageTypeData, protocol.MessageTypeControl:
		if t.Handler != nil {
			t.Handler(header, payload)
		}
	}
}

// Close tears down the tunnel: it closes the socket, stops any in-flight
// ReceiveAndDispatch call, and closes the underlying session.
func (t *Tunnel) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.conn.Close()
		t.session.Close()
	})
	return err
}
