package main

import (
	"fmt"
	"net"
	"time"

	"github.com/cryprq/cryprq/internal/constants"
	"github.com/cryprq/cryprq/pkg/chkem"
	"github.com/cryprq/cryprq/pkg/crypto"
	"github.com/cryprq/cryprq/pkg/tunnel"
)

// bootstrap carries the out-of-band exchange of long-term identity and
// hybrid KEM public keys, plus the identity signature binding them, that
// the CrypRQ handshake core (pkg/tunnel) assumes callers have already
// performed. It is demo/example plumbing, not part of the transport core:
// SPEC_FULL.md §4.1's establish() takes this material as parameters.
const helloSize = constants.Ed25519PublicKeySize + constants.CHKEMPublicKeySize + constants.Ed25519SignatureSize

type hello struct {
	identityPK []byte
	kemPub     *chkem.PublicKey
	signature  []byte
}

func encodeHello(identity *crypto.Ed25519KeyPair, kem *chkem.KeyPair) []byte {
	kemPub := kem.PublicKey()
	sig, err := crypto.Ed25519Sign(identity, kemPub.Bytes())
	if err != nil {
		panic(err) // identity key pairs generated locally never fail to sign
	}

	buf := make([]byte, 0, helloSize)
	buf = append(buf, identity.PublicKeyBytes()...)
	buf = append(buf, kemPub.Bytes()...)
	buf = append(buf, sig...)
	return buf
}

func decodeHello(buf []byte) (hello, error) {
	if len(buf) != helloSize {
		return hello{}, fmt.Errorf("bootstrap: malformed hello (%d bytes, want %d)", len(buf), helloSize)
	}
	offset := 0
	identityPK := append([]byte(nil), buf[offset:offset+constants.Ed25519PublicKeySize]...)
	offset += constants.Ed25519PublicKeySize

	kemPub, err := chkem.ParsePublicKey(buf[offset : offset+constants.CHKEMPublicKeySize])
	if err != nil {
		return hello{}, fmt.Errorf("bootstrap: parse KEM public key: %w", err)
	}
	offset += constants.CHKEMPublicKeySize

	signature := append([]byte(nil), buf[offset:offset+constants.Ed25519SignatureSize]...)

	return hello{identityPK: identityPK, kemPub: kemPub, signature: signature}, nil
}

// clientBootstrap exchanges hellos with serverAddr and completes the
// initiator side of the handshake, returning the established session.
func clientBootstrap(conn net.PacketConn, serverAddr net.Addr, identity *crypto.Ed25519KeyPair, kem *chkem.KeyPair) (*tunnel.Session, error) {
	if _, err := conn.WriteTo(encodeHello(identity, kem), serverAddr); err != nil {
		return nil, fmt.Errorf("bootstrap: send client hello: %w", err)
	}

	buf := make([]byte, helloSize)
	if err := conn.SetReadDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return nil, err
	}
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: receive server hello: %w", err)
	}
	serverHello, err := decodeHello(buf[:n])
	if err != nil {
		return nil, err
	}

	session, ciphertext, err := tunnel.InitiatorEstablish(
		identity, kem,
		serverHello.identityPK, serverHello.kemPub, serverHello.signature,
		tunnel.NewDefaultRateLimiter(),
	)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: InitiatorEstablish: %w", err)
	}

	if _, err := conn.WriteTo(ciphertext.Bytes(), serverAddr); err != nil {
		return nil, fmt.Errorf("bootstrap: send ciphertext: %w", err)
	}

	session.SetPeerEndpoint(serverAddr)
	return session, nil
}

// serverBootstrap waits for a client hello, replies with its own, then
// waits for the client's ciphertext and completes the responder side of
// the handshake.
func serverBootstrap(conn net.PacketConn, identity *crypto.Ed25519KeyPair, kem *chkem.KeyPair) (*tunnel.Session, net.Addr, error) {
	buf := make([]byte, helloSize)
	n, clientAddr, err := conn.ReadFrom(buf)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: receive client hello: %w", err)
	}
	clientHello, err := decodeHello(buf[:n])
	if err != nil {
		return nil, nil, err
	}

	if _, err := conn.WriteTo(encodeHello(identity, kem), clientAddr); err != nil {
		return nil, nil, fmt.Errorf("bootstrap: send server hello: %w", err)
	}

	ctBuf := make([]byte, constants.CHKEMCiphertextSize)
	if err := conn.SetReadDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return nil, nil, err
	}
	n, _, err = conn.ReadFrom(ctBuf)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: receive ciphertext: %w", err)
	}
	ciphertext, err := chkem.ParseCiphertext(ctBuf[:n])
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: parse ciphertext: %w", err)
	}

	session, err := tunnel.ResponderEstablish(
		identity, kem,
		clientHello.identityPK, clientHello.kemPub, clientHello.signature,
		ciphertext, tunnel.NewDefaultRateLimiter(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: ResponderEstablish: %w", err)
	}

	session.SetPeerEndpoint(clientAddr)
	return session, clientAddr, nil
}
