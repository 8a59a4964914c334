// kdf.go implements the HKDF-SHA256 key schedule used to turn the hybrid
// handshake's shared secrets into the session master secret and, from it,
// the per-epoch directional AEAD keys and static IVs.
//
// The schedule is a plain two-step HKDF (RFC 5869):
//
//	prk           = HKDF-Extract(salt="cryp-rq v1.0 hs", ikm=ss_kem||ss_dh)
//	hs_auth_key   = HKDF-Expand(prk, "cryp-rq hs auth", 32)
//	master_secret = HKDF-Expand(prk, "cryp-rq master secret", 32)
//
// and, per epoch, four further expansions keyed off master_secret directly
// (master_secret is used as the HKDF-Expand PRK for the epoch schedule,
// since it is already uniform output of the handshake extract):
//
//	key_ir = HKDF-Expand(master_secret, "cryp-rq ir key"+" epoch="+epoch, 32)
//	iv_ir  = HKDF-Expand(master_secret, "cryp-rq ir iv"+" epoch="+epoch, 12)
//	key_ri = HKDF-Expand(master_secret, "cryp-rq ri key"+" epoch="+epoch, 32)
//	iv_ri  = HKDF-Expand(master_secret, "cryp-rq ri iv"+" epoch="+epoch, 12)
//
// The epoch label suffix carries the epoch as a single raw byte, not its
// decimal rendering, so label construction is done with []byte concatenation
// rather than fmt.Sprintf.
package crypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/hkdf"

	"github.com/cryprq/cryprq/internal/constants"
	qerrors "github.com/cryprq/cryprq/internal/errors"
)

// DirectionalKeys holds one direction's AEAD key and static IV for a given epoch.
type DirectionalKeys struct {
	Key      [constants.AEADKeySize]byte
	StaticIV [constants.AEADStaticIVSize]byte
}

// Zeroize overwrites the key and IV with zeros.
func (dk *DirectionalKeys) Zeroize() {
	for i := range dk.Key {
		dk.Key[i] = 0
	}
	for i := range dk.StaticIV {
		dk.StaticIV[i] = 0
	}
}

// DeriveHandshakeKeys implements derive_handshake_keys(ss_kem, ss_dh) from
// SPEC_FULL.md §4.2. ikm is formed by the caller as ss_kem||ss_dh and should
// be zeroized by the caller after this returns.
func DeriveHandshakeKeys(ikm []byte) (hsAuthKey, masterSecret []byte, err error) {
	if len(ikm) == 0 {
		return nil, nil, qerrors.ErrInvalidKeySize
	}

	prk := hkdf.Extract(sha256.New, ikm, []byte(constants.HandshakeSalt))
	defer Zeroize(prk)

	hsAuthKey = make([]byte, constants.AEADKeySize)
	if _, err := hkdf.Expand(sha256.New, prk, []byte(constants.HandshakeAuthKeyLabel)).Read(hsAuthKey); err != nil {
		return nil, nil, qerrors.NewCryptoError("DeriveHandshakeKeys.hsAuthKey", err)
	}

	masterSecret = make([]byte, constants.AEADKeySize)
	if _, err := hkdf.Expand(sha256.New, prk, []byte(constants.MasterSecretLabel)).Read(masterSecret); err != nil {
		Zeroize(hsAuthKey)
		return nil, nil, qerrors.NewCryptoError("DeriveHandshakeKeys.masterSecret", err)
	}

	return hsAuthKey, masterSecret, nil
}

// epochLabel appends the single raw epoch byte to a directional label, per
// SPEC_FULL.md §4.2's EpochLabelSuffix domain separation.
func epochLabel(label string, epoch uint8) []byte {
	suffix := append([]byte(label), []byte(constants.EpochLabelSuffix)...)
	return append(suffix, epoch)
}

// DeriveEpochKeys implements derive_epoch_keys(master_secret, epoch) from
// SPEC_FULL.md §4.2, producing the initiator->responder and responder->initiator
// directional keys and IVs for the given epoch.
func DeriveEpochKeys(masterSecret []byte, epoch uint8) (ir, ri *DirectionalKeys, err error) {
	if len(masterSecret) != constants.AEADKeySize {
		return nil, nil, qerrors.ErrInvalidKeySize
	}

	ir = &DirectionalKeys{}
	ri = &DirectionalKeys{}

	if err := expandInto(masterSecret, epochLabel(constants.LabelIRKey, epoch), ir.Key[:]); err != nil {
		return nil, nil, err
	}
	if err := expandInto(masterSecret, epochLabel(constants.LabelIRIV, epoch), ir.StaticIV[:]); err != nil {
		return nil, nil, err
	}
	if err := expandInto(masterSecret, epochLabel(constants.LabelRIKey, epoch), ri.Key[:]); err != nil {
		return nil, nil, err
	}
	if err := expandInto(masterSecret, epochLabel(constants.LabelRIIV, epoch), ri.StaticIV[:]); err != nil {
		return nil, nil, err
	}

	return ir, ri, nil
}

func expandInto(prk []byte, label []byte, dst []byte) error {
	if _, err := hkdf.Expand(sha256.New, prk, label).Read(dst); err != nil {
		return qerrors.NewCryptoError("DeriveEpochKeys", err)
	}
	return nil
}
