package filetransfer

import (
	"bytes"
	"crypto/sha256"
	"testing"

	qerrors "github.com/cryprq/cryprq/internal/errors"
	"github.com/cryprq/cryprq/pkg/protocol"
)

type memSink struct {
	buf       bytes.Buffer
	closed    bool
	discarded bool
}

func (m *memSink) Write(p []byte) (int, error) { return m.buf.Write(p) }
func (m *memSink) Close() error                 { m.closed = true; return nil }
func (m *memSink) Discard() error               { m.discarded = true; return nil }

func TestStreamIDAllocationStartsAtFirstUserStream(t *testing.T) {
	m := NewManager()
	first := m.AllocStreamID()
	second := m.AllocStreamID()
	if first != 2 || second != 3 {
		t.Fatalf("got stream ids %d, %d; want 2, 3", first, second)
	}
}

func TestWriteChunkCompletesOnMatchingHash(t *testing.T) {
	m := NewManager()
	data := []byte("hello, cryprq")
	hash := sha256.Sum256(data)
	meta := protocol.FileMetadata{Filename: "f.txt", FileSize: uint64(len(data)), SHA256Hash: hash}

	sink := &memSink{}
	if err := m.StartIncoming(10, meta, sink); err != nil {
		t.Fatalf("StartIncoming: %v", err)
	}

	if err := m.WriteChunk(10, data[:5]); err != nil {
		t.Fatalf("WriteChunk partial: %v", err)
	}
	if sink.closed {
		t.Fatal("sink closed before transfer complete")
	}

	if err := m.WriteChunk(10, data[5:]); err != nil {
		t.Fatalf("WriteChunk final: %v", err)
	}
	if !sink.closed || sink.discarded {
		t.Fatal("expected sink closed (not discarded) on hash match")
	}
	if !bytes.Equal(sink.buf.Bytes(), data) {
		t.Fatalf("sink contents = %q, want %q", sink.buf.Bytes(), data)
	}

	if err := m.WriteChunk(10, []byte("x")); !qerrors.Is(err, qerrors.ErrUnknownStream) {
		t.Fatalf("expected ErrUnknownStream after completion, got %v", err)
	}
}

func TestWriteChunkDiscardsOnHashMismatch(t *testing.T) {
	m := NewManager()
	data := []byte("tampered payload")
	wrongHash := sha256.Sum256([]byte("something else"))
	meta := protocol.FileMetadata{Filename: "f.txt", FileSize: uint64(len(data)), SHA256Hash: wrongHash}

	sink := &memSink{}
	if err := m.StartIncoming(11, meta, sink); err != nil {
		t.Fatalf("StartIncoming: %v", err)
	}

	err := m.WriteChunk(11, data)
	if !qerrors.Is(err, qerrors.ErrFileHashMismatch) {
		t.Fatalf("expected ErrFileHashMismatch, got %v", err)
	}
	if !sink.discarded {
		t.Fatal("expected sink to be discarded on hash mismatch")
	}
}

func TestWriteChunkUnknownStreamRejected(t *testing.T) {
	m := NewManager()
	if err := m.WriteChunk(99, []byte("x")); !qerrors.Is(err, qerrors.ErrUnknownStream) {
		t.Fatalf("expected ErrUnknownStream, got %v", err)
	}
}

type memSource struct {
	r *bytes.Reader
}

func (s *memSource) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s *memSource) Close() error               { return nil }

func TestNextChunkIteratesToCompletion(t *testing.T) {
	m := NewManager()
	data := make([]byte, 150)
	for i := range data {
		data[i] = byte(i)
	}
	hash := sha256.Sum256(data)
	meta := protocol.FileMetadata{Filename: "out.bin", FileSize: uint64(len(data)), SHA256Hash: hash}
	src := &memSource{r: bytes.NewReader(data)}
	m.RegisterOutgoing(20, meta, src)

	var collected []byte
	buf := make([]byte, 64)
	for {
		n, done, err := m.NextChunk(20, buf)
		if err != nil {
			t.Fatalf("NextChunk: %v", err)
		}
		collected = append(collected, buf[:n]...)
		if done {
			break
		}
	}
	if !bytes.Equal(collected, data) {
		t.Fatal("reassembled outgoing data does not match source")
	}

	if _, _, err := m.NextChunk(20, buf); !qerrors.Is(err, qerrors.ErrUnknownStream) {
		t.Fatalf("expected ErrUnknownStream after outgoing transfer completes, got %v", err)
	}
}

func TestHandleAckUnknownStream(t *testing.T) {
	m := NewManager()
	if err := m.HandleAck(123, nil); !qerrors.Is(err, qerrors.ErrUnknownStream) {
		t.Fatalf("expected ErrUnknownStream, got %v", err)
	}
}
