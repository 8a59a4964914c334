// Package errors defines the error taxonomy for the CrypRQ transport.
// Sentinel values support errors.Is; typed wrappers carry operation context
// while still unwrapping to a sentinel via errors.As.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for cryptographic primitives.
var (
	// ErrInvalidKeySize indicates that a key has an incorrect size.
	ErrInvalidKeySize = errors.New("crypto: invalid key size")

	// ErrInvalidCiphertext indicates that ciphertext is malformed or invalid.
	ErrInvalidCiphertext = errors.New("crypto: invalid ciphertext")

	// ErrDecapsulationFailed indicates that KEM decapsulation failed.
	ErrDecapsulationFailed = errors.New("crypto: decapsulation failed")

	// ErrKeyGenerationFailed indicates that key generation failed.
	ErrKeyGenerationFailed = errors.New("crypto: key generation failed")

	// ErrEncapsulationFailed indicates that KEM encapsulation failed.
	ErrEncapsulationFailed = errors.New("crypto: encapsulation failed")

	// ErrInvalidPublicKey indicates that a public key is invalid.
	ErrInvalidPublicKey = errors.New("crypto: invalid public key")

	// ErrInvalidPrivateKey indicates that a private key is invalid.
	ErrInvalidPrivateKey = errors.New("crypto: invalid private key")

	// ErrInvalidPeerIdentity indicates the signature over a remote peer's KEM
	// public key failed to verify under its claimed identity key.
	ErrInvalidPeerIdentity = errors.New("crypto: peer identity signature invalid")
)

// Sentinel errors for AEAD operations.
var (
	// ErrDecryptFailed indicates AEAD authentication/decryption failed.
	ErrDecryptFailed = errors.New("aead: decryption failed")

	// ErrInvalidNonce indicates the nonce size is incorrect.
	ErrInvalidNonce = errors.New("aead: invalid nonce size")

	// ErrCiphertextTooShort indicates ciphertext is too short to be valid.
	ErrCiphertextTooShort = errors.New("aead: ciphertext too short")

	// ErrNonceOverflow indicates a sequence counter is within its overflow
	// guard of wrapping and a rekey must occur before it is used again.
	ErrNonceOverflow = errors.New("aead: sequence counter approaching overflow, rekey required")
)

// Sentinel errors for the handshake driver.
var (
	// ErrHandshakeFailed indicates a KEM/DH primitive failure during establish.
	ErrHandshakeFailed = errors.New("handshake: failed")
)

// Sentinel errors for the record codec.
var (
	// ErrInvalidRecord indicates a record header is malformed or truncated.
	ErrInvalidRecord = errors.New("record: invalid record")

	// ErrUnsupportedVersion indicates an unsupported record version byte.
	ErrUnsupportedVersion = errors.New("record: unsupported version")

	// ErrMessageTooLarge indicates a payload exceeds the maximum record size.
	ErrMessageTooLarge = errors.New("record: message too large")

	// ErrUnsupportedCipherSuite indicates an unsupported cipher suite was requested.
	ErrUnsupportedCipherSuite = errors.New("record: unsupported cipher suite")

	// ErrCipherSuiteNotFIPSApproved indicates a cipher suite is disallowed in FIPS mode.
	ErrCipherSuiteNotFIPSApproved = errors.New("record: cipher suite not FIPS 140-3 approved")
)

// Sentinel errors for tunnel-runtime operations.
var (
	// ErrTunnelClosed indicates the tunnel has been closed.
	ErrTunnelClosed = errors.New("tunnel: closed")

	// ErrReplayDetected indicates a sequence number was rejected by the replay window.
	ErrReplayDetected = errors.New("tunnel: replay detected")

	// ErrRateLimitExceeded indicates the receive-path token bucket was empty.
	ErrRateLimitExceeded = errors.New("tunnel: rate limit exceeded")

	// ErrLockPoisoned indicates an internal invariant was violated; treated as fatal.
	ErrLockPoisoned = errors.New("tunnel: internal lock invariant violated")

	// ErrNoPeerEndpoint indicates a send was attempted before any peer endpoint
	// was observed; the caller is not notified, this is used internally to
	// implement the silent-drop behavior.
	ErrNoPeerEndpoint = errors.New("tunnel: no peer endpoint known")

	// ErrUnknownStream indicates a file-transfer record referenced an unknown stream id.
	ErrUnknownStream = errors.New("tunnel: unknown stream id")

	// ErrFileHashMismatch indicates a completed file transfer failed hash verification.
	ErrFileHashMismatch = errors.New("tunnel: file transfer hash mismatch")

	// ErrPSKExpired indicates a pre-shared-key store entry has expired.
	ErrPSKExpired = errors.New("psk: entry expired")
)

// Sentinel errors for connection pool operations.
var (
	// ErrPoolClosed indicates the pool has been closed.
	ErrPoolClosed = errors.New("pool: pool is closed")

	// ErrPoolTimeout indicates a pool acquire operation timed out.
	ErrPoolTimeout = errors.New("pool: acquire timed out")

	// ErrPoolExhausted indicates the pool has no available connections.
	ErrPoolExhausted = errors.New("pool: no connections available")
)

// CryptoError wraps a cryptographic error with operation context.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *CryptoError) Unwrap() error { return e.Err }

// NewCryptoError creates a new CryptoError.
func NewCryptoError(op string, err error) *CryptoError {
	return &CryptoError{Op: op, Err: err}
}

// ProtocolError wraps a record/protocol error with phase context.
type ProtocolError struct {
	Phase string
	Err   error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("protocol %s: %v", e.Phase, e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }

// NewProtocolError creates a new ProtocolError.
func NewProtocolError(phase string, err error) *ProtocolError {
	return &ProtocolError{Phase: phase, Err: err}
}

// TunnelError wraps a tunnel-runtime error with the peer endpoint involved.
type TunnelError struct {
	Endpoint string
	Err      error
}

func (e *TunnelError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("tunnel: %v", e.Err)
	}
	return fmt.Sprintf("tunnel[%s]: %v", e.Endpoint, e.Err)
}
func (e *TunnelError) Unwrap() error { return e.Err }

// NewTunnelError creates a new TunnelError.
func NewTunnelError(endpoint string, err error) *TunnelError {
	return &TunnelError{Endpoint: endpoint, Err: err}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool { return errors.As(err, target) }
