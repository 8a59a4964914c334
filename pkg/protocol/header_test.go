package protocol

import (
	"bytes"
	"testing"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/cryprq/cryprq/internal/constants"
	qerrors "github.com/cryprq/cryprq/internal/errors"
)

func newTestAEAD(t *testing.T) interface {
	Overhead() int
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
} {
	t.Helper()
	key := bytes.Repeat([]byte{0x42}, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		t.Fatalf("chacha20poly1305.New: %v", err)
	}
	return aead
}

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{
		Version:          constants.RecordVersion,
		MessageType:      MessageTypeData,
		Flags:            0,
		Epoch:            3,
		StreamID:         constants.StreamIDVPN,
		SequenceNumber:   12345,
		CiphertextLength: 48,
	}
	encoded := h.Encode()
	if len(encoded) != HeaderSize {
		t.Fatalf("encoded header length = %d, want %d", len(encoded), HeaderSize)
	}

	decoded, err := DecodeHeader(encoded)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if decoded != h {
		t.Fatalf("decoded header %+v != original %+v", decoded, h)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	aead := newTestAEAD(t)
	staticIV := bytes.Repeat([]byte{0x01}, constants.AEADStaticIVSize)
	plaintext := []byte("hello cryprq")

	wire, err := Encrypt(aead, MessageTypeData, 0, 0, constants.StreamIDVPN, 7, plaintext, staticIV)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	record, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if record.Header.SequenceNumber != 7 {
		t.Fatalf("sequence = %d, want 7", record.Header.SequenceNumber)
	}

	got, err := Decrypt(aead, record, staticIV)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("decrypted = %q, want %q", got, plaintext)
	}
}

func TestDecryptFailsOnHeaderBitFlip(t *testing.T) {
	aead := newTestAEAD(t)
	staticIV := bytes.Repeat([]byte{0x01}, constants.AEADStaticIVSize)
	plaintext := []byte("hello cryprq")

	wire, err := Encrypt(aead, MessageTypeData, 0, 0, constants.StreamIDVPN, 7, plaintext, staticIV)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	wire[2] ^= 0x01 // flip a flags bit, covered by AAD

	record, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if _, err := Decrypt(aead, record, staticIV); !qerrors.Is(err, qerrors.ErrDecryptFailed) {
		t.Fatalf("Decrypt after header bit flip = %v, want ErrDecryptFailed", err)
	}
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	h := Header{Version: 0x99, MessageType: MessageTypeData, CiphertextLength: 0}
	buf := h.Encode()

	if _, err := Decode(buf); !qerrors.Is(err, qerrors.ErrUnsupportedVersion) {
		t.Fatalf("Decode with bad version = %v, want ErrUnsupportedVersion", err)
	}
}

func TestDecodeRejectsTruncatedRecord(t *testing.T) {
	h := Header{Version: constants.RecordVersion, MessageType: MessageTypeData, CiphertextLength: 10}
	buf := append(h.Encode(), []byte("short")...) // only 5 of 10 expected bytes

	if _, err := Decode(buf); !qerrors.Is(err, qerrors.ErrInvalidRecord) {
		t.Fatalf("Decode with truncated body = %v, want ErrInvalidRecord", err)
	}
}
