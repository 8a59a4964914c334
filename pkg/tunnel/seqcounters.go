// seqcounters.go implements the three independent monotonic sequence
// counters (VPN, generic data, file-transfer) a session maintains per
// direction, per SPEC_FULL.md §4.4.
package tunnel

import (
	"math"
	"sync/atomic"

	"github.com/cryprq/cryprq/internal/constants"
	qerrors "github.com/cryprq/cryprq/internal/errors"
)

// overflowThreshold is the counter value beyond which next() refuses to hand
// out any further sequence numbers until a rekey resets the counter.
const overflowThreshold = math.MaxUint64 - constants.SequenceOverflowGuard

// SeqCounters holds one message class's worth of independent send-sequence
// counters for a single direction.
type SeqCounters struct {
	vpn  atomic.Uint64
	data atomic.Uint64
	file atomic.Uint64
}

// next atomically returns c's current value and advances it by one, unless
// c is already within constants.SequenceOverflowGuard of wrapping, in which
// case it returns ErrNonceOverflow and leaves c untouched.
func next(c *atomic.Uint64) (uint64, error) {
	for {
		cur := c.Load()
		if cur >= overflowThreshold {
			return 0, qerrors.ErrNonceOverflow
		}
		if c.CompareAndSwap(cur, cur+1) {
			return cur, nil
		}
	}
}

// NextVPN returns the next VPN-class sequence number.
func (s *SeqCounters) NextVPN() (uint64, error) { return next(&s.vpn) }

// NextData returns the next generic-data-class sequence number.
func (s *SeqCounters) NextData() (uint64, error) { return next(&s.data) }

// NextFile returns the next file-transfer-class sequence number.
func (s *SeqCounters) NextFile() (uint64, error) { return next(&s.file) }

// Reset sets all three counters back to zero. Called by the rekey task on
// every epoch change, per SPEC_FULL.md §3's epoch-rotation invariant.
func (s *SeqCounters) Reset() {
	s.vpn.Store(0)
	s.data.Store(0)
	s.file.Store(0)
}
