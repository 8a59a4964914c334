package tunnel

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

// fakeDial establishes a real session/tunnel pair over a fresh loopback UDP
// pair for every call, counting how many times it actually dialed.
func fakeDial(t *testing.T, dials *atomic.Int64) DialFunc {
	return func(ctx context.Context, peer string) (*Tunnel, error) {
		dials.Add(1)
		initSess, _ := establishPair(t)
		conn, err := net.ListenPacket("udp", "127.0.0.1:0")
		if err != nil {
			return nil, err
		}
		t.Cleanup(func() { conn.Close() })
		return New(conn, initSess, DefaultConfig(), nil), nil
	}
}

func TestPoolAcquireCreatesAndReuses(t *testing.T) {
	var dials atomic.Int64
	cfg := DefaultPoolConfig()
	cfg.MaxConnsPerPeer = 2
	pool, err := NewPool(fakeDial(t, &dials), cfg)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	ctx := context.Background()
	conn1, err := pool.Acquire(ctx, "peer-a:9000")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if dials.Load() != 1 {
		t.Fatalf("expected 1 dial, got %d", dials.Load())
	}

	if err := conn1.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	conn2, err := pool.Acquire(ctx, "peer-a:9000")
	if err != nil {
		t.Fatalf("Acquire (reuse): %v", err)
	}
	if dials.Load() != 1 {
		t.Fatalf("expected the released tunnel to be reused, got %d dials", dials.Load())
	}
	_ = conn2.Release()
}

func TestPoolAcquireRespectsMaxConnsPerPeer(t *testing.T) {
	var dials atomic.Int64
	cfg := DefaultPoolConfig()
	cfg.MaxConnsPerPeer = 1
	cfg.WaitTimeout = 0
	pool, err := NewPool(fakeDial(t, &dials), cfg)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	ctx := context.Background()
	conn1, err := pool.Acquire(ctx, "peer-a:9000")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer conn1.Close()

	if _, err := pool.Acquire(ctx, "peer-a:9000"); err == nil {
		t.Fatal("expected ErrPoolExhausted when the per-peer limit is reached")
	}
}

func TestPoolAcquireIsolatesPeers(t *testing.T) {
	var dials atomic.Int64
	cfg := DefaultPoolConfig()
	cfg.MaxConnsPerPeer = 1
	pool, err := NewPool(fakeDial(t, &dials), cfg)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	ctx := context.Background()
	connA, err := pool.Acquire(ctx, "peer-a:9000")
	if err != nil {
		t.Fatalf("Acquire peer-a: %v", err)
	}
	defer connA.Close()

	connB, err := pool.Acquire(ctx, "peer-b:9000")
	if err != nil {
		t.Fatalf("Acquire peer-b should succeed independently of peer-a's limit: %v", err)
	}
	defer connB.Close()

	if dials.Load() != 2 {
		t.Fatalf("expected 2 dials across distinct peers, got %d", dials.Load())
	}
}

func TestPoolCloseRejectsFurtherAcquire(t *testing.T) {
	var dials atomic.Int64
	pool, err := NewPool(fakeDial(t, &dials), DefaultPoolConfig())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := pool.Acquire(context.Background(), "peer-a:9000"); err == nil {
		t.Fatal("expected Acquire on a closed pool to fail")
	}
}

func TestPoolConnCloseMarksUnhealthyAndDrops(t *testing.T) {
	var dials atomic.Int64
	cfg := DefaultPoolConfig()
	cfg.MaxConnsPerPeer = 1
	pool, err := NewPool(fakeDial(t, &dials), cfg)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	ctx := context.Background()
	conn, err := pool.Acquire(ctx, "peer-a:9000")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Give the asynchronous tunnel close a chance to run before re-acquiring.
	time.Sleep(20 * time.Millisecond)

	if _, err := pool.Acquire(ctx, "peer-a:9000"); err != nil {
		t.Fatalf("expected a fresh dial after the unhealthy tunnel was dropped: %v", err)
	}
	if dials.Load() != 2 {
		t.Fatalf("expected 2 dials total, got %d", dials.Load())
	}
}
