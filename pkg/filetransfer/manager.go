// Package filetransfer implements the stream-multiplexed file-transfer
// layer described in SPEC_FULL.md §4.9: each transfer is assigned a stream
// id (distinct from stream id 1, reserved for VPN traffic), opened with a
// FILE_META record, carried by a sequence of FILE_CHUNK records, and
// verified against its SHA-256 hash once all bytes have arrived.
//
// File-transfer delivery is best-effort: chunks are written to the sink in
// arrival order and there is no reordering or retransmission buffer. A
// transfer that completes with a hash mismatch is discarded rather than
// retried.
package filetransfer

import (
	"crypto/sha256"
	"sync"
	"sync/atomic"

	"github.com/cryprq/cryprq/internal/constants"
	qerrors "github.com/cryprq/cryprq/internal/errors"
	"github.com/cryprq/cryprq/pkg/protocol"
)

// Sink receives the bytes of an incoming file transfer. Close is called
// exactly once, when the transfer completes (successfully or not); a
// failed transfer's sink is discarded by calling Discard instead of Close
// if the sink implements it.
type Sink interface {
	Write(p []byte) (int, error)
	Close() error
}

// Discarder is implemented by sinks that can delete their own output
// instead of merely closing it, for use on a hash-verification failure.
type Discarder interface {
	Discard() error
}

// Source supplies the bytes of an outgoing file transfer, read in
// constants.FileChunkSize pieces.
type Source interface {
	Read(p []byte) (int, error)
	Close() error
}

type incomingTransfer struct {
	mu            sync.Mutex
	metadata      protocol.FileMetadata
	sink          Sink
	hasher        interface{ Write([]byte) (int, error) }
	sum           func() [constants.FileHashSize]byte
	bytesReceived uint64
	done          bool
}

type outgoingTransfer struct {
	metadata    protocol.FileMetadata
	source      Source
	chunksSent  uint32
	totalChunks uint32
	bytesSent   uint64
}

// Manager tracks concurrent incoming and outgoing file transfers
// multiplexed by stream id over a single tunnel session.
type Manager struct {
	nextStreamID atomic.Uint32

	inMu     sync.Mutex
	incoming map[uint32]*incomingTransfer

	outMu    sync.Mutex
	outgoing map[uint32]*outgoingTransfer
}

// NewManager creates a Manager with the stream-id allocator starting at
// constants.FirstUserStreamID (stream id 1 is reserved for VPN traffic).
func NewManager() *Manager {
	m := &Manager{
		incoming: make(map[uint32]*incomingTransfer),
		outgoing: make(map[uint32]*outgoingTransfer),
	}
	m.nextStreamID.Store(constants.FirstUserStreamID)
	return m
}

// AllocStreamID returns a fresh stream id for a new outgoing transfer.
func (m *Manager) AllocStreamID() uint32 {
	return m.nextStreamID.Add(1) - 1
}

// StartIncoming registers a new incoming transfer for streamID, opened by a
// FILE_META record, writing chunk bytes to sink as they arrive.
func (m *Manager) StartIncoming(streamID uint32, metadata protocol.FileMetadata, sink Sink) error {
	h := sha256.New()
	t := &incomingTransfer{
		metadata: metadata,
		sink:     sink,
		hasher:   h,
		sum: func() [constants.FileHashSize]byte {
			var out [constants.FileHashSize]byte
			copy(out[:], h.Sum(nil))
			return out
		},
	}

	m.inMu.Lock()
	m.incoming[streamID] = t
	m.inMu.Unlock()
	return nil
}

// WriteChunk appends chunk data to the incoming transfer on streamID. Once
// the declared file size has been received, the accumulated hash is
// compared against metadata.SHA256Hash: on mismatch the sink is discarded
// (or closed, if it cannot discard) and ErrFileHashMismatch is returned; on
// match the sink is closed normally and the transfer is removed from
// tracking either way.
func (m *Manager) WriteChunk(streamID uint32, chunk []byte) error {
	m.inMu.Lock()
	t, ok := m.incoming[streamID]
	m.inMu.Unlock()
	if !ok {
		return qerrors.ErrUnknownStream
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return qerrors.ErrUnknownStream
	}

	if _, err := t.sink.Write(chunk); err != nil {
		return err
	}
	if _, err := t.hasher.Write(chunk); err != nil {
		return err
	}
	t.bytesReceived += uint64(len(chunk))

	if t.bytesReceived < t.metadata.FileSize {
		return nil
	}

	t.done = true
	m.inMu.Lock()
	delete(m.incoming, streamID)
	m.inMu.Unlock()

	if t.sum() != t.metadata.SHA256Hash {
		discardOrClose(t.sink)
		return qerrors.ErrFileHashMismatch
	}

	return t.sink.Close()
}

// HandleAck processes a FILE_ACK record for streamID. Retransmission and
// congestion control are out of scope per SPEC_FULL.md §4.9; the ack is
// observed but does not drive any retransmission logic.
func (m *Manager) HandleAck(streamID uint32, _ []byte) error {
	m.outMu.Lock()
	_, ok := m.outgoing[streamID]
	m.outMu.Unlock()
	if !ok {
		return qerrors.ErrUnknownStream
	}
	return nil
}

// RegisterOutgoing registers a new outgoing transfer for streamID, computing
// the total chunk count from metadata.FileSize and constants.FileChunkSize.
func (m *Manager) RegisterOutgoing(streamID uint32, metadata protocol.FileMetadata, source Source) {
	totalChunks := uint32((metadata.FileSize + constants.FileChunkSize - 1) / constants.FileChunkSize)
	m.outMu.Lock()
	m.outgoing[streamID] = &outgoingTransfer{
		metadata:    metadata,
		source:      source,
		totalChunks: totalChunks,
	}
	m.outMu.Unlock()
}

// NextChunk reads the next outgoing chunk for streamID into buf and reports
// its length, or reports done=true once the source is exhausted. The
// caller is responsible for sending the bytes as a FILE_CHUNK record and
// for closing the source (via Close) once done.
func (m *Manager) NextChunk(streamID uint32, buf []byte) (n int, done bool, err error) {
	m.outMu.Lock()
	t, ok := m.outgoing[streamID]
	m.outMu.Unlock()
	if !ok {
		return 0, false, qerrors.ErrUnknownStream
	}

	n, err = t.source.Read(buf)
	if n > 0 {
		t.chunksSent++
		t.bytesSent += uint64(n)
	}
	if t.bytesSent >= t.metadata.FileSize {
		m.outMu.Lock()
		delete(m.outgoing, streamID)
		m.outMu.Unlock()
		return n, true, nil
	}
	return n, false, err
}

// OutgoingMetadata returns the FileMetadata record to send as the FILE_META
// opening an outgoing transfer.
func OutgoingMetadata(filename string, fileSize uint64, hash [constants.FileHashSize]byte) protocol.FileMetadata {
	return protocol.FileMetadata{
		Filename:   filename,
		FileSize:   fileSize,
		SHA256Hash: hash,
	}
}

func discardOrClose(sink Sink) {
	if d, ok := sink.(Discarder); ok {
		_ = d.Discard()
		return
	}
	_ = sink.Close()
}
