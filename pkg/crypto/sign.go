// sign.go implements Ed25519 identity-key signing and verification.
//
// Every peer has a long-lived Ed25519 identity key pair, distinct from its
// ephemeral or semi-static X25519/ML-KEM handshake keys. The handshake
// driver (pkg/tunnel) uses this package to verify that a remote peer's
// offered ML-KEM public key was signed by the identity key the caller
// already trusts for that peer, binding the post-quantum KEM key to a
// stable peer identity.
package crypto

import (
	"crypto/ed25519"

	"github.com/cryprq/cryprq/internal/constants"
	qerrors "github.com/cryprq/cryprq/internal/errors"
)

// Ed25519KeyPair represents a long-lived peer identity key pair.
type Ed25519KeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateEd25519KeyPair generates a new Ed25519 identity key pair.
func GenerateEd25519KeyPair() (*Ed25519KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(Reader)
	if err != nil {
		return nil, qerrors.NewCryptoError("Ed25519KeyPair.Generate", err)
	}
	return &Ed25519KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// NewEd25519KeyPairFromSeed derives an Ed25519 key pair from a 32-byte seed.
func NewEd25519KeyPairFromSeed(seed []byte) (*Ed25519KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, qerrors.ErrInvalidKeySize
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Ed25519KeyPair{PublicKey: priv.Public().(ed25519.PublicKey), PrivateKey: priv}, nil
}

// Ed25519Sign signs message with the identity signing key.
func Ed25519Sign(kp *Ed25519KeyPair, message []byte) ([]byte, error) {
	if kp == nil || len(kp.PrivateKey) != ed25519.PrivateKeySize {
		return nil, qerrors.ErrInvalidPrivateKey
	}
	return ed25519.Sign(kp.PrivateKey, message), nil
}

// Ed25519Verify verifies a signature over message under the given identity
// verifying key. It returns ErrInvalidPeerIdentity (not a raw bool) so that
// callers in the handshake path can propagate a single sentinel error.
func Ed25519Verify(publicKey, message, signature []byte) error {
	if len(publicKey) != constants.Ed25519PublicKeySize {
		return qerrors.ErrInvalidPublicKey
	}
	if len(signature) != constants.Ed25519SignatureSize {
		return qerrors.ErrInvalidPeerIdentity
	}
	if !ed25519.Verify(ed25519.PublicKey(publicKey), message, signature) {
		return qerrors.ErrInvalidPeerIdentity
	}
	return nil
}

// PublicKeyBytes returns the raw 32-byte identity public key.
func (kp *Ed25519KeyPair) PublicKeyBytes() []byte {
	return []byte(kp.PublicKey)
}

// Zeroize erases the private key material.
func (kp *Ed25519KeyPair) Zeroize() {
	if kp.PrivateKey != nil {
		Zeroize(kp.PrivateKey)
	}
	kp.PrivateKey = nil
	kp.PublicKey = nil
}
