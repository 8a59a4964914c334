// handshake.go implements the hybrid handshake driver from SPEC_FULL.md
// §4.1: establish(role, ...) verifies the remote peer's identity signature
// over its hybrid KEM public key, performs the hybrid KEM+DH exchange,
// derives the handshake keys and master secret, and returns a freshly
// established Session at epoch 0.
//
// The driver is one-shot per session: there is no resumption. Long-term
// identity and KEM key pairs are generated and stored outside this package;
// establish only consumes them.
//
// The abstract interface in SPEC_FULL.md §4.1 describes a single establish()
// taking already-obtained remote material as parameters. In practice the
// responder additionally needs the ciphertext the initiator produced, so
// this driver splits establish() into InitiatorEstablish (which returns the
// ciphertext to transmit) and ResponderEstablish (which consumes it). The
// 3-datagram bootstrap that carries identity keys, signatures, and the
// ciphertext between peers over the wire is ambient bootstrap code living in
// cmd/cryprq, not part of this core.
package tunnel

import (
	qerrors "github.com/cryprq/cryprq/internal/errors"
	"github.com/cryprq/cryprq/pkg/chkem"
	"github.com/cryprq/cryprq/pkg/crypto"
)

// verifyRemoteIdentity checks that remoteSignature is a valid Ed25519
// signature by remoteIdentityPK over remoteKEMPK's encoded bytes, binding
// the KEM key to the peer's long-term identity.
func verifyRemoteIdentity(remoteIdentityPK []byte, remoteKEMPK *chkem.PublicKey, remoteSignature []byte) error {
	if remoteKEMPK == nil {
		return qerrors.ErrInvalidPeerIdentity
	}
	if err := crypto.Ed25519Verify(remoteIdentityPK, remoteKEMPK.Bytes(), remoteSignature); err != nil {
		return qerrors.ErrInvalidPeerIdentity
	}
	return nil
}

// deriveMasterSecret runs the handshake key schedule over the hybrid
// shared secrets and zeroizes all intermediate key material, per
// SPEC_FULL.md §4.1/§4.2.
func deriveMasterSecret(ssKem, ssDH []byte) (masterSecret []byte, err error) {
	ikm := make([]byte, 0, len(ssKem)+len(ssDH))
	ikm = append(ikm, ssKem...)
	ikm = append(ikm, ssDH...)
	defer crypto.Zeroize(ikm)
	defer crypto.Zeroize(ssKem)
	defer crypto.Zeroize(ssDH)

	_, masterSecret, err = crypto.DeriveHandshakeKeys(ikm)
	if err != nil {
		return nil, qerrors.ErrHandshakeFailed
	}
	return masterSecret, nil
}

// InitiatorEstablish performs the initiator side of establish(): it verifies
// the responder's identity signature over its hybrid KEM public key,
// encapsulates to it, derives the master secret and epoch-0 keys, and
// returns the new Session together with the ciphertext to send to the
// responder.
//
// localIdentity and localKEM are accepted for symmetry with
// ResponderEstablish and future extension (e.g. mutual transcript binding)
// but are not required for the initiator's own key schedule.
func InitiatorEstablish(
	localIdentity *crypto.Ed25519KeyPair,
	localKEM *chkem.KeyPair,
	remoteIdentityPK []byte,
	remoteKEMPK *chkem.PublicKey,
	remoteSignature []byte,
	limiter *RateLimiter,
) (*Session, *chkem.Ciphertext, error) {
	if err := verifyRemoteIdentity(remoteIdentityPK, remoteKEMPK, remoteSignature); err != nil {
		return nil, nil, err
	}

	ct, ssKem, ssDH, err := chkem.Encapsulate(remoteKEMPK)
	if err != nil {
		return nil, nil, qerrors.ErrHandshakeFailed
	}

	masterSecret, err := deriveMasterSecret(ssKem, ssDH)
	if err != nil {
		return nil, nil, err
	}
	defer crypto.Zeroize(masterSecret)

	session, err := newSession(RoleInitiator, remoteIdentityPK, masterSecret, limiter)
	if err != nil {
		return nil, nil, qerrors.ErrHandshakeFailed
	}

	return session, ct, nil
}

// ResponderEstablish performs the responder side of establish(): it
// verifies the initiator's identity signature over its hybrid KEM public
// key, decapsulates the ciphertext the initiator sent, derives the master
// secret and epoch-0 keys, and returns the new Session.
func ResponderEstablish(
	localIdentity *crypto.Ed25519KeyPair,
	localKEM *chkem.KeyPair,
	remoteIdentityPK []byte,
	remoteKEMPK *chkem.PublicKey,
	remoteSignature []byte,
	ciphertext *chkem.Ciphertext,
	limiter *RateLimiter,
) (*Session, error) {
	if err := verifyRemoteIdentity(remoteIdentityPK, remoteKEMPK, remoteSignature); err != nil {
		return nil, err
	}

	ssKem, ssDH, err := chkem.Decapsulate(ciphertext, localKEM)
	if err != nil {
		return nil, qerrors.ErrHandshakeFailed
	}

	masterSecret, err := deriveMasterSecret(ssKem, ssDH)
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(masterSecret)

	session, err := newSession(RoleResponder, remoteIdentityPK, masterSecret, limiter)
	if err != nil {
		return nil, qerrors.ErrHandshakeFailed
	}

	return session, nil
}
