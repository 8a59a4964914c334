// Package psk implements the optional pre-shared-key store from
// SPEC_FULL.md §4.10: a per-peer 32-byte key derived from a completed KEM
// exchange, rotated independently of the session's own rekey schedule. The
// tunnel core does not depend on this package; it exists for callers that
// want an additional out-of-band authentication factor layered on top of
// the hybrid handshake.
package psk

import (
	"sync"
	"time"

	qerrors "github.com/cryprq/cryprq/internal/errors"
	"lukechampine.com/blake3"
)

// KeySize is the size in bytes of a derived pre-shared key.
const KeySize = 32

// Key is a derived pre-shared key bound to one peer identity, valid until
// ExpiresAt.
type Key struct {
	Value     [KeySize]byte
	PeerID    [32]byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the key has expired as of now.
func (k *Key) IsExpired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}

// ExpiresIn returns how long until the key expires, or zero if already
// expired.
func (k *Key) ExpiresIn(now time.Time) time.Duration {
	if k.IsExpired(now) {
		return 0
	}
	return k.ExpiresAt.Sub(now)
}

// Derive computes a new pre-shared key as
// BLAKE3(ssKEM || peerIdentity || salt), expiring after rotationInterval
// from now.
func Derive(ssKEM []byte, peerIdentity [32]byte, salt []byte, rotationInterval time.Duration, now time.Time) Key {
	input := make([]byte, 0, len(ssKEM)+len(peerIdentity)+len(salt))
	input = append(input, ssKEM...)
	input = append(input, peerIdentity[:]...)
	input = append(input, salt...)
	value := blake3.Sum256(input)

	return Key{
		Value:     value,
		PeerID:    peerIdentity,
		CreatedAt: now,
		ExpiresAt: now.Add(rotationInterval),
	}
}

// Store retains at most one pre-shared key per peer identity. It is safe
// for concurrent use.
type Store struct {
	mu   sync.RWMutex
	keys map[[32]byte]Key
}

// NewStore creates an empty pre-shared-key store.
func NewStore() *Store {
	return &Store{keys: make(map[[32]byte]Key)}
}

// Put stores key, superseding any existing entry for the same peer.
func (s *Store) Put(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.PeerID] = key
}

// Get returns the unexpired pre-shared key for peerID, if any.
func (s *Store) Get(peerID [32]byte, now time.Time) (Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.keys[peerID]
	if !ok {
		return Key{}, qerrors.ErrPSKExpired
	}
	if k.IsExpired(now) {
		return Key{}, qerrors.ErrPSKExpired
	}
	return k, nil
}

// CleanupExpired removes every entry that has expired as of now. Callers
// invoke this lazily (e.g. from the rekey task); there is no background
// goroutine.
func (s *Store) CleanupExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for peerID, k := range s.keys {
		if k.IsExpired(now) {
			delete(s.keys, peerID)
		}
	}
}

// RemovePeer deletes any stored key for peerID, expired or not.
func (s *Store) RemovePeer(peerID [32]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, peerID)
}

// Len returns the number of entries currently stored, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
