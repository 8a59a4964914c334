// Package cryprq provides a post-quantum VPN transport combining a hybrid
// ML-KEM-768/X25519 handshake with Ed25519 peer-identity binding and a
// UDP datagram record layer.
//
// CrypRQ pairs ML-KEM-768 (NIST FIPS 203, Category 3) post-quantum
// key encapsulation with an X25519 (RFC 7748) classical Diffie-Hellman
// exchange, so the session remains secure if either algorithm alone is
// broken. The resulting shared secrets feed an HKDF-SHA256 key schedule
// that derives epoch-scoped directional AEAD keys, rotated on a periodic
// local rekey schedule without any wire round-trip.
//
// # Quick Start
//
// Establishing a session and wiring it to a UDP socket:
//
//	import (
//		"github.com/cryprq/cryprq/pkg/chkem"
//		"github.com/cryprq/cryprq/pkg/crypto"
//		"github.com/cryprq/cryprq/pkg/tunnel"
//	)
//
//	identity, _ := crypto.GenerateEd25519KeyPair()
//	kemKeys, _ := chkem.GenerateKeyPair()
//	sig, _ := crypto.Ed25519Sign(identity, kemKeys.PublicKey().Bytes())
//
//	// Exchange (remoteIdentityPK, remoteKEMPublicKey, remoteSignature) with
//	// the peer out of band, then:
//	session, ciphertext, _ := tunnel.InitiatorEstablish(
//		identity, kemKeys, remoteIdentityPK, remoteKEMPub, remoteSig,
//		tunnel.NewDefaultRateLimiter(),
//	)
//
//	conn, _ := net.ListenPacket("udp", ":0")
//	t := tunnel.New(conn, session, tunnel.DefaultConfig(), nil)
//	t.Send(protocol.MessageTypeData, 1, 0, []byte("hello"))
//
// For low-level hybrid key encapsulation without the tunnel runtime:
//
//	import "github.com/cryprq/cryprq/pkg/chkem"
//
//	keyPair, _ := chkem.GenerateKeyPair()
//	ciphertext, ssKem, ssDH, _ := chkem.Encapsulate(keyPair.PublicKey())
//	recoveredKem, recoveredDH, _ := chkem.Decapsulate(ciphertext, keyPair)
//
// # Package Structure
//
//   - pkg/chkem: hybrid ML-KEM-768/X25519 key-encapsulation combiner
//   - pkg/crypto: low-level primitives (ML-KEM, X25519, Ed25519, KDF, AEAD)
//   - pkg/tunnel: handshake driver, session, epoch key schedule, datagram runtime
//   - pkg/protocol: record header codec and file-transfer metadata encoding
//   - pkg/filetransfer: stream-multiplexed file-transfer manager
//   - pkg/psk: optional derived-from-KEM pre-shared-key store
//   - pkg/metrics: observability (counters, histograms, tracing, health checks)
//   - internal/constants: protocol sizes, labels, and tunables
//   - internal/errors: sentinel errors and typed wrappers
//
// # Security Properties
//
//   - Post-quantum security: ML-KEM-768 (NIST Category 3)
//   - Classical security: X25519 ECDH
//   - Hybrid guarantee: secure if either algorithm is secure
//   - Peer identity binding: Ed25519 signature over the KEM public key
//   - Forward secrecy: epoch-scoped keys discarded on rekey
//   - Authenticated encryption: ChaCha20-Poly1305, or AES-256-GCM in FIPS builds
//   - Replay protection: 2048-entry sliding bitmap window
//
// # Testing
//
//	go test ./...                        # all tests
//	go test ./test/integration/...       # handshake + tunnel integration
//	go test -bench=. ./test/benchmark    # benchmarks
//	go test -fuzz=FuzzDecodeRecord ./test/fuzz/
//
// # References
//
//   - NIST FIPS 203: Module-Lattice-Based Key-Encapsulation Mechanism Standard
//   - RFC 7748: Elliptic Curves for Security
//   - RFC 5869: HMAC-based Extract-and-Expand Key Derivation Function (HKDF)
package cryprq
