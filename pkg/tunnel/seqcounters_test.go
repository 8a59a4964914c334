package tunnel

import (
	"testing"

	qerrors "github.com/cryprq/cryprq/internal/errors"
)

func TestSeqCountersMonotonic(t *testing.T) {
	var s SeqCounters
	for i := uint64(0); i < 10; i++ {
		got, err := s.NextVPN()
		if err != nil {
			t.Fatalf("NextVPN: %v", err)
		}
		if got != i {
			t.Fatalf("NextVPN = %d, want %d", got, i)
		}
	}
}

func TestSeqCountersIndependentClasses(t *testing.T) {
	var s SeqCounters
	v, _ := s.NextVPN()
	d, _ := s.NextData()
	f, _ := s.NextFile()
	if v != 0 || d != 0 || f != 0 {
		t.Fatalf("expected independent counters to start at 0, got vpn=%d data=%d file=%d", v, d, f)
	}
	v2, _ := s.NextVPN()
	if v2 != 1 {
		t.Fatalf("NextVPN after NextData/NextFile = %d, want 1", v2)
	}
}

func TestSeqCountersOverflowGuard(t *testing.T) {
	var s SeqCounters
	s.vpn.Store(overflowThreshold)
	if _, err := s.NextVPN(); !qerrors.Is(err, qerrors.ErrNonceOverflow) {
		t.Fatalf("expected ErrNonceOverflow, got %v", err)
	}
}

func TestSeqCountersReset(t *testing.T) {
	var s SeqCounters
	s.NextVPN()
	s.NextData()
	s.NextFile()
	s.Reset()
	v, _ := s.NextVPN()
	d, _ := s.NextData()
	f, _ := s.NextFile()
	if v != 0 || d != 0 || f != 0 {
		t.Fatalf("expected counters to be 0 after Reset, got vpn=%d data=%d file=%d", v, d, f)
	}
}
