package source

import (
	"fmt"
	"sync"

	"github.com/loglens/obscore/internal/errkind"
)

// ring is the fixed-capacity buffer backing every Source implementation
// (spec §4.1: "a ring of fixed maximum capacity"). It is not a circular
// array in the classical sense — unconsumed bytes are kept in a flat
// slice — but it enforces the same capacity contract: an append of a
// single chunk larger than the whole capacity fails, and callers check
// nearCapacity and size each read by remaining before attempting another
// read so the parser gets a chance to drain first.
type ring struct {
	mu       sync.Mutex
	buf      []byte
	capacity int
}

// nearCapacityFraction is the occupancy fraction at or above which Load
// must return early with newly_loaded=0 instead of reading more (spec
// §4.1).
const nearCapacityFraction = 0.9

func newRing(capacity int) *ring {
	return &ring{capacity: capacity}
}

func (r *ring) available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

func (r *ring) nearCapacity() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return float64(len(r.buf)) >= float64(r.capacity)*nearCapacityFraction
}

// remaining returns how many more bytes can be appended before hitting
// capacity, used to size the next read attempt.
func (r *ring) remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.capacity - len(r.buf)
	if n < 0 {
		return 0
	}
	return n
}

func (r *ring) slice() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf
}

func (r *ring) consume(n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n < 0 || n > len(r.buf) {
		return errkind.Protocol("source.ring.consume", fmt.Errorf("consume %d exceeds available %d", n, len(r.buf)))
	}
	r.buf = r.buf[n:]
	return nil
}

// append adds chunk to the buffer. A chunk larger than the ring's total
// capacity can never be drained and is an unrecoverable failure (spec
// §4.1: "If a single read would overflow, the source fails
// unrecoverably (maximum chunk size exceeded)").
func (r *ring) append(chunk []byte) error {
	if len(chunk) > r.capacity {
		return errkind.IO("source.ring.append", fmt.Errorf("chunk of %d bytes exceeds ring capacity %d: maximum chunk size exceeded", len(chunk), r.capacity))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// Compact the backing array periodically so long-lived sessions don't
	// retain an ever-growing array behind a shrinking slice.
	if cap(r.buf)-len(r.buf) < len(chunk) {
		compacted := make([]byte, len(r.buf), r.capacity)
		copy(compacted, r.buf)
		r.buf = compacted
	}
	r.buf = append(r.buf, chunk...)
	return nil
}
