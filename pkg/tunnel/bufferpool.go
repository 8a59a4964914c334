// bufferpool.go implements the bounded receive-buffer pool described in
// SPEC_FULL.md §4.7. Unlike sync.Pool, capacity is fixed and buffers above
// that capacity are simply not returned to the pool, bounding worst-case
// memory use under sustained traffic bursts.
package tunnel

import "github.com/cryprq/cryprq/internal/constants"

// BufferPool is a bounded pool of fixed-size byte slices sized for a single
// UDP datagram.
type BufferPool struct {
	buffers chan []byte
	size    int
}

// NewBufferPool creates a BufferPool holding up to capacity buffers of
// constants.MaxDatagramSize bytes each. capacity <= 0 uses the default.
func NewBufferPool(capacity int) *BufferPool {
	if capacity <= 0 {
		capacity = constants.DefaultBufferPoolCapacity
	}
	return &BufferPool{
		buffers: make(chan []byte, capacity),
		size:    constants.MaxDatagramSize,
	}
}

// Get returns a buffer from the pool, allocating a new one if the pool is
// empty.
func (p *BufferPool) Get() []byte {
	select {
	case buf := <-p.buffers:
		return buf[:p.size]
	default:
		return make([]byte, p.size)
	}
}

// Put clears buf and returns it to the pool. Buffers whose capacity is
// smaller than the pool's buffer size are discarded rather than stored, and
// the buffer is dropped silently once the pool is at capacity.
func (p *BufferPool) Put(buf []byte) {
	if cap(buf) < p.size {
		return
	}
	buf = buf[:p.size]
	clear(buf)
	select {
	case p.buffers <- buf:
	default:
	}
}
