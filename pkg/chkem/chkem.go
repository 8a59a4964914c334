// Package chkem implements the hybrid key-encapsulation combiner used by the
// CrypRQ handshake driver: an X25519 classical Diffie-Hellman exchange
// alongside an ML-KEM-768 post-quantum encapsulation, each carried in a
// single wire-visible public key and ciphertext.
//
// Unlike a KEM combiner that produces one mixed shared secret internally,
// this package deliberately keeps the two shared secrets separate
// (ssKem, ssDH) and returns both to the caller. SPEC_FULL.md §4.1/§4.2
// concatenates them itself (ikm = ss_kem || ss_dh) and runs the result
// through its own HKDF-SHA256 extract-then-expand schedule
// (pkg/crypto.DeriveHandshakeKeys); mixing them here with an independent
// hash would duplicate that domain separation and make the two schedules
// harder to reason about together.
package chkem

import (
	"crypto/ecdh"

	"github.com/cryprq/cryprq/internal/constants"
	qerrors "github.com/cryprq/cryprq/internal/errors"
	"github.com/cryprq/cryprq/pkg/crypto"
)

// KeyPair is a long-term or semi-static hybrid key pair: one X25519 key pair
// for the classical DH leg, one ML-KEM-768 key pair for the post-quantum leg.
type KeyPair struct {
	x25519Public  *ecdh.PublicKey
	x25519Private *ecdh.PrivateKey
	mlkemPublic   *crypto.MLKEMPublicKey
	mlkemPrivate  *crypto.MLKEMPrivateKey
}

// PublicKey is the serializable public half of a KeyPair: the value a peer
// signs with its identity key and distributes out of band.
type PublicKey struct {
	x25519 *ecdh.PublicKey
	mlkem  *crypto.MLKEMPublicKey
}

// Ciphertext is the combined hybrid ciphertext produced by Encapsulate: an
// ephemeral X25519 public key (for the DH leg) alongside an ML-KEM-768
// ciphertext (for the KEM leg).
type Ciphertext struct {
	x25519Ephemeral []byte
	mlkemCiphertext []byte
}

// GenerateKeyPair generates a new hybrid key pair.
func GenerateKeyPair() (*KeyPair, error) {
	x25519KP, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		return nil, qerrors.NewCryptoError("chkem.GenerateKeyPair", err)
	}

	mlkemKP, err := crypto.GenerateMLKEMKeyPair()
	if err != nil {
		return nil, qerrors.NewCryptoError("chkem.GenerateKeyPair", err)
	}

	return &KeyPair{
		x25519Public:  x25519KP.PublicKey,
		x25519Private: x25519KP.PrivateKey,
		mlkemPublic:   mlkemKP.EncapsulationKey,
		mlkemPrivate:  mlkemKP.DecapsulationKey,
	}, nil
}

// PublicKey returns the public component of kp.
func (kp *KeyPair) PublicKey() *PublicKey {
	return &PublicKey{x25519: kp.x25519Public, mlkem: kp.mlkemPublic}
}

// Encapsulate performs the initiator side of the hybrid exchange against a
// remote peer's public key: an ephemeral X25519 DH and an ML-KEM-768
// encapsulation. It returns the ciphertext to send to the peer and the two
// shared secrets (ssKem, ssDH), each 32 bytes, undifferentiated so the
// caller can apply its own key schedule.
func Encapsulate(remotePublic *PublicKey) (ct *Ciphertext, ssKem, ssDH []byte, err error) {
	if remotePublic == nil || remotePublic.x25519 == nil || remotePublic.mlkem == nil {
		return nil, nil, nil, qerrors.ErrInvalidPublicKey
	}

	ephemeral, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		return nil, nil, nil, qerrors.NewCryptoError("chkem.Encapsulate", err)
	}

	ssDH, err = crypto.X25519(ephemeral.PrivateKey, remotePublic.x25519)
	if err != nil {
		return nil, nil, nil, qerrors.NewCryptoError("chkem.Encapsulate", err)
	}

	mlkemCiphertext, mlkemSecret, err := crypto.MLKEMEncapsulate(remotePublic.mlkem)
	if err != nil {
		return nil, nil, nil, qerrors.NewCryptoError("chkem.Encapsulate", err)
	}

	ct = &Ciphertext{
		x25519Ephemeral: ephemeral.PublicKeyBytes(),
		mlkemCiphertext: mlkemCiphertext,
	}

	return ct, mlkemSecret, ssDH, nil
}

// Decapsulate performs the responder side of the hybrid exchange: it
// completes the X25519 DH against the ciphertext's ephemeral public key and
// decapsulates the ML-KEM-768 ciphertext against the local key pair,
// producing the same (ssKem, ssDH) pair the initiator derived.
func Decapsulate(ct *Ciphertext, kp *KeyPair) (ssKem, ssDH []byte, err error) {
	if ct == nil || len(ct.x25519Ephemeral) == 0 || len(ct.mlkemCiphertext) == 0 {
		return nil, nil, qerrors.ErrInvalidCiphertext
	}
	if kp == nil || kp.x25519Private == nil || kp.mlkemPrivate == nil {
		return nil, nil, qerrors.ErrInvalidPrivateKey
	}

	ephemeralPublic, err := crypto.ParseX25519PublicKey(ct.x25519Ephemeral)
	if err != nil {
		return nil, nil, qerrors.NewCryptoError("chkem.Decapsulate", err)
	}

	ssDH, err = crypto.X25519(kp.x25519Private, ephemeralPublic)
	if err != nil {
		return nil, nil, qerrors.NewCryptoError("chkem.Decapsulate", err)
	}

	mlkemSecret, err := crypto.MLKEMDecapsulate(kp.mlkemPrivate, ct.mlkemCiphertext)
	if err != nil {
		return nil, nil, qerrors.NewCryptoError("chkem.Decapsulate", err)
	}

	return mlkemSecret, ssDH, nil
}

// Bytes serializes the public key as X25519 public key || ML-KEM-768
// encapsulation key.
func (pk *PublicKey) Bytes() []byte {
	out := make([]byte, constants.CHKEMPublicKeySize)
	copy(out[:constants.X25519PublicKeySize], pk.x25519.Bytes())
	copy(out[constants.X25519PublicKeySize:], pk.mlkem.Bytes())
	return out
}

// ParsePublicKey parses a hybrid public key produced by Bytes.
func ParsePublicKey(data []byte) (*PublicKey, error) {
	if len(data) != constants.CHKEMPublicKeySize {
		return nil, qerrors.ErrInvalidPublicKey
	}
	x25519Public, err := crypto.ParseX25519PublicKey(data[:constants.X25519PublicKeySize])
	if err != nil {
		return nil, err
	}
	mlkemPublic, err := crypto.ParseMLKEMPublicKey(data[constants.X25519PublicKeySize:])
	if err != nil {
		return nil, err
	}
	return &PublicKey{x25519: x25519Public, mlkem: mlkemPublic}, nil
}

// Bytes serializes the ciphertext as X25519 ephemeral public key || ML-KEM-768 ciphertext.
func (ct *Ciphertext) Bytes() []byte {
	out := make([]byte, constants.CHKEMCiphertextSize)
	copy(out[:constants.X25519PublicKeySize], ct.x25519Ephemeral)
	copy(out[constants.X25519PublicKeySize:], ct.mlkemCiphertext)
	return out
}

// ParseCiphertext parses a hybrid ciphertext produced by Bytes.
func ParseCiphertext(data []byte) (*Ciphertext, error) {
	if len(data) != constants.CHKEMCiphertextSize {
		return nil, qerrors.ErrInvalidCiphertext
	}
	x25519Ephemeral := make([]byte, constants.X25519PublicKeySize)
	copy(x25519Ephemeral, data[:constants.X25519PublicKeySize])
	mlkemCiphertext := make([]byte, constants.MLKEMCiphertextSize)
	copy(mlkemCiphertext, data[constants.X25519PublicKeySize:])
	return &Ciphertext{x25519Ephemeral: x25519Ephemeral, mlkemCiphertext: mlkemCiphertext}, nil
}

// Zeroize erases the private key material held by kp.
func (kp *KeyPair) Zeroize() {
	kp.x25519Private = nil
	kp.x25519Public = nil
	if kp.mlkemPrivate != nil {
		kp.mlkemPrivate = nil
	}
	kp.mlkemPublic = nil
}
