//go:build !fips
// +build !fips

// This file is compiled when the "fips" build tag is NOT specified.
// In standard mode, all supported cipher suites are available.
package protocol

import "github.com/cryprq/cryprq/internal/constants"

// SupportedCipherSuites returns the list of cipher suites supported in standard mode.
// Both ChaCha20-Poly1305 and AES-256-GCM are available.
func SupportedCipherSuites() []constants.CipherSuite {
	return []constants.CipherSuite{
		constants.CipherSuiteChaCha20Poly1305,
		constants.CipherSuiteAES256GCM,
	}
}

// PreferredCipherSuite returns the preferred cipher suite for new connections.
// ChaCha20-Poly1305 is preferred outside FIPS builds; it needs no AES-NI to
// run at full speed and has no timing side-channel on platforms lacking it.
func PreferredCipherSuite() constants.CipherSuite {
	return constants.CipherSuiteChaCha20Poly1305
}
