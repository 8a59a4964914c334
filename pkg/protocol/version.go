// Protocol Version: 1.0
//
// The protocol provides:
//   - Authenticated key exchange via hybrid ML-KEM-768 + X25519 + Ed25519
//   - Forward secrecy through per-epoch directional keys
//   - Replay protection through a sliding sequence-number window
//   - Periodic unilateral rekeying for long-lived tunnels
//
// The wire record header (see header.go) carries only a single version
// byte (constants.RecordVersion); the Major.Minor Version below is a
// human-facing descriptor used in logs and diagnostics, not a wire field.
package protocol

import "github.com/cryprq/cryprq/internal/constants"

// Version represents the protocol version for diagnostic purposes.
type Version struct {
	Major uint8
	Minor uint8
}

// Current is the current protocol version.
var Current = Version{Major: 1, Minor: 0}

// Bytes returns the version as a 2-byte value.
func (v Version) Bytes() []byte {
	return []byte{v.Major, v.Minor}
}

// Uint16 returns the version as a 16-bit value (major << 8 | minor).
func (v Version) Uint16() uint16 {
	return uint16(v.Major)<<8 | uint16(v.Minor)
}

// ParseVersion parses a version from a 2-byte value.
func ParseVersion(data []byte) Version {
	if len(data) < 2 {
		return Version{}
	}
	return Version{Major: data[0], Minor: data[1]}
}

// IsCompatible returns true if this version is compatible with another version.
// Versions are compatible if they have the same major version.
func (v Version) IsCompatible(other Version) bool {
	return v.Major == other.Major
}

// String returns a string representation of the version.
func (v Version) String() string {
	return string('0'+v.Major) + "." + string('0'+v.Minor)
}

// ProtocolID is the protocol identifier used for domain separation.
const ProtocolID = constants.ProtocolName
