// replaywindow.go implements the 2048-entry sliding-bitmap anti-replay
// window described in SPEC_FULL.md §4.5: bit i corresponds to sequence
// max_accepted - i, bit 0 being the most recently accepted sequence.
package tunnel

import (
	"sync"

	"github.com/cryprq/cryprq/internal/constants"
)

// ReplayWindow tracks recently accepted sequence numbers for one inbound
// direction and rejects both exact duplicates and sequences too far below
// the current peak.
type ReplayWindow struct {
	mu          sync.Mutex
	initialized bool
	maxAccepted uint64
	bitmap      [constants.ReplayWindowWords]uint64
}

// NewReplayWindow creates an empty replay window.
func NewReplayWindow() *ReplayWindow {
	return &ReplayWindow{}
}

// CheckAndUpdate implements check_and_update(seq) from SPEC_FULL.md §4.5. It
// returns true if seq is newly accepted, false if it must be rejected
// (too old or a replay).
func (w *ReplayWindow) CheckAndUpdate(seq uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.initialized {
		w.initialized = true
		w.maxAccepted = seq
		w.setBit(0)
		return true
	}

	if seq <= w.maxAccepted {
		diff := w.maxAccepted - seq
		if diff >= constants.ReplayWindowBits {
			return false // too old
		}
		if w.testBit(diff) {
			return false // replay
		}
		w.setBit(diff)
		return true
	}

	delta := seq - w.maxAccepted
	if delta >= constants.ReplayWindowBits {
		w.bitmap = [constants.ReplayWindowWords]uint64{}
	} else {
		w.shiftLeft(delta)
	}
	w.setBit(0)
	w.maxAccepted = seq
	return true
}

// MaxAccepted returns the highest sequence number accepted so far.
func (w *ReplayWindow) MaxAccepted() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.maxAccepted
}

func (w *ReplayWindow) testBit(i uint64) bool {
	word, bit := i/64, uint64(1)<<(i%64)
	return w.bitmap[word]&bit != 0
}

func (w *ReplayWindow) setBit(i uint64) {
	word, bit := i/64, uint64(1)<<(i%64)
	w.bitmap[word] |= bit
}

// shiftLeft shifts the whole bitmap left by n bits (n < ReplayWindowBits),
// which increases every tracked bit's index by n — the same effect as
// max_accepted advancing by n while every previously-set bit keeps
// referring to the same absolute sequence number.
func (w *ReplayWindow) shiftLeft(n uint64) {
	wordShift := int(n / 64)
	bitShift := n % 64
	words := len(w.bitmap)

	for i := words - 1; i >= 0; i-- {
		srcIdx := i - wordShift
		if srcIdx < 0 {
			w.bitmap[i] = 0
			continue
		}
		v := w.bitmap[srcIdx]
		if bitShift != 0 {
			v <<= bitShift
			if srcIdx-1 >= 0 {
				v |= w.bitmap[srcIdx-1] >> (64 - bitShift)
			}
		}
		w.bitmap[i] = v
	}
}
