// aead.go implements the record-layer AEAD cipher construction.
//
// This package supports two AEAD algorithms, selected by constants.CipherSuite:
//   - ChaCha20-Poly1305: the default outside FIPS builds
//   - AES-256-GCM: used in FIPS 140-3 builds (see fips_enabled.go/fips_disabled.go)
//
// Nonce construction (SPEC_FULL.md §4.3) does not use a monotonic per-AEAD
// counter internally. Instead each direction has a fixed 12-byte static IV
// established at the epoch boundary, and the 8-byte big-endian record
// sequence number is XORed into its low 8 bytes to produce the nonce for
// that record. The first 4 bytes of the static IV are left untouched. The
// record codec (pkg/protocol) is responsible for supplying the sequence
// number explicitly on every call; this package holds no nonce state.
//
// CRITICAL: a (key, static IV, sequence number) triple must never be reused.
// The tunnel runtime's per-class sequence counters and the NonceOverflow
// guard in internal/constants enforce this by forcing a rekey before any
// counter wraps.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/cryprq/cryprq/internal/constants"
	qerrors "github.com/cryprq/cryprq/internal/errors"
)

// ActiveCipherSuite returns the record-layer AEAD suite appropriate for the
// current build: AES-256-GCM under the fips build tag, ChaCha20-Poly1305
// otherwise.
func ActiveCipherSuite() constants.CipherSuite {
	if FIPSMode() {
		return constants.CipherSuiteAES256GCM
	}
	return constants.CipherSuiteChaCha20Poly1305
}

// NewAEADCipher constructs a cipher.AEAD for the given suite and key.
func NewAEADCipher(suite constants.CipherSuite, key []byte) (cipher.AEAD, error) {
	switch suite {
	case constants.CipherSuiteChaCha20Poly1305:
		if len(key) != chacha20poly1305.KeySize {
			return nil, qerrors.ErrInvalidKeySize
		}
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, qerrors.NewCryptoError("NewAEADCipher.chacha20poly1305", err)
		}
		return aead, nil

	case constants.CipherSuiteAES256GCM:
		if len(key) != constants.AESKeySize {
			return nil, qerrors.ErrInvalidKeySize
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, qerrors.NewCryptoError("NewAEADCipher.aes", err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, qerrors.NewCryptoError("NewAEADCipher.gcm", err)
		}
		return aead, nil

	default:
		return nil, qerrors.ErrUnsupportedCipherSuite
	}
}

// NonceFromStaticIV computes the per-record nonce by XORing the big-endian
// encoding of seq into the low 8 bytes of staticIV, leaving the first 4
// bytes untouched. staticIV must be constants.AEADStaticIVSize bytes.
func NonceFromStaticIV(staticIV []byte, seq uint64) []byte {
	nonce := make([]byte, len(staticIV))
	copy(nonce, staticIV)

	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)

	base := len(nonce) - 8
	for i := 0; i < 8; i++ {
		nonce[base+i] ^= seqBytes[i]
	}
	return nonce
}
