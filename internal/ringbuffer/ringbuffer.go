// Package ringbuffer provides a fixed-capacity, mutex-protected circular byte
// buffer that overwrites the oldest data when full.
package ringbuffer

import (
	"sync"

	"github.com/tphakala/voicetrigger/internal/errors"
	"github.com/tphakala/voicetrigger/internal/logger"
	"github.com/tphakala/voicetrigger/internal/memory"
)

// RingBuffer is a circular byte store. Writes never fail: when the buffer is
// full the read position advances and the oldest bytes are lost.
type RingBuffer struct {
	mu       sync.Mutex
	buf      []byte
	arena    *memory.Arena
	capacity int
	head     int // next write position
	tail     int // next read position
	full     bool
}

// Stats is a point-in-time view of the buffer.
type Stats struct {
	Capacity  int
	Available int
	FreeSpace int
	Full      bool
	Empty     bool
	Head      int
	Tail      int
}

// New allocates a ring buffer of capacity bytes from arena. A nil arena
// allocates from the Go heap without accounting.
func New(capacity int, arena *memory.Arena) (*RingBuffer, error) {
	if capacity <= 0 {
		return nil, errors.Newf("ring buffer capacity must be positive, got %d", capacity).
			Component("ringbuffer").
			Category(errors.CategoryValidation).
			Context("capacity", capacity).
			Build()
	}

	buf, err := memory.Alloc[byte](arena, capacity)
	if err != nil {
		return nil, errors.New(err).
			Component("ringbuffer").
			Category(errors.CategoryResource).
			Context("capacity", capacity).
			Context("region", string(arena.Region())).
			Build()
	}

	GetLogger().Debug("created ring buffer",
		logger.Int("capacity", capacity),
		logger.String("region", string(arena.Region())))

	return &RingBuffer{buf: buf, arena: arena, capacity: capacity}, nil
}

// Release returns the buffer's memory to its arena. The buffer must not be
// used afterwards.
func (r *RingBuffer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.buf == nil {
		return
	}
	memory.Free(r.arena, r.buf)
	r.buf = nil
	r.capacity = 0
	r.head, r.tail, r.full = 0, 0, false
}

// Write stores p and always reports len(p) bytes written.
func (r *RingBuffer) Write(p []byte) int {
	n := len(p)
	if n == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.buf == nil {
		return 0
	}

	if n >= r.capacity {
		// only the last capacity bytes survive; place them so that the
		// positions match a byte-by-byte write of the whole input
		end := (r.head + n) % r.capacity
		r.copyIn(end, p[n-r.capacity:])
		r.head = end
		r.tail = end
		r.full = true
		return n
	}

	if drop := n - r.freeSpace(); drop > 0 {
		r.tail = (r.tail + drop) % r.capacity
	}
	r.copyIn(r.head, p)
	r.head = (r.head + n) % r.capacity
	r.full = r.head == r.tail
	return n
}

// copyIn writes p starting at pos, wrapping around the end of the buffer.
func (r *RingBuffer) copyIn(pos int, p []byte) {
	c := copy(r.buf[pos:], p)
	if c < len(p) {
		copy(r.buf, p[c:])
	}
}

// copyOut fills p from pos, wrapping around the end of the buffer.
func (r *RingBuffer) copyOut(pos int, p []byte) {
	c := copy(p, r.buf[pos:])
	if c < len(p) {
		copy(p[c:], r.buf)
	}
}

// Read copies at most len(p) available bytes into p and consumes them.
func (r *RingBuffer) Read(p []byte) int {
	if len(p) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := min(len(p), r.available())
	if n == 0 {
		return 0
	}
	r.copyOut(r.tail, p[:n])
	r.tail = (r.tail + n) % r.capacity
	r.full = false
	return n
}

// Peek copies bytes starting offset bytes past the read position without
// consuming them. It returns 0 when offset is at or beyond the available data.
func (r *RingBuffer) Peek(p []byte, offset int) int {
	if len(p) == 0 || offset < 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	avail := r.available()
	if offset >= avail {
		return 0
	}
	n := min(len(p), avail-offset)
	r.copyOut((r.tail+offset)%r.capacity, p[:n])
	return n
}

// Skip discards up to n bytes and returns how many were discarded.
func (r *RingBuffer) Skip(n int) int {
	if n <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n = min(n, r.available())
	if n > 0 {
		r.tail = (r.tail + n) % r.capacity
		r.full = false
	}
	return n
}

// Clear empties the buffer.
func (r *RingBuffer) Clear() {
	r.mu.Lock()
	r.head, r.tail, r.full = 0, 0, false
	r.mu.Unlock()
}

func (r *RingBuffer) available() int {
	switch {
	case r.full:
		return r.capacity
	case r.head >= r.tail:
		return r.head - r.tail
	default:
		return r.capacity - r.tail + r.head
	}
}

func (r *RingBuffer) freeSpace() int {
	return r.capacity - r.available()
}

// Available returns the number of readable bytes.
func (r *RingBuffer) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available()
}

// FreeSpace returns the number of bytes that can be written without
// overwriting unread data.
func (r *RingBuffer) FreeSpace() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.freeSpace()
}

// Capacity returns the fixed size of the buffer.
func (r *RingBuffer) Capacity() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capacity
}

func (r *RingBuffer) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.full && r.head == r.tail
}

func (r *RingBuffer) IsFull() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.full
}

// WriteWouldOverflow reports whether writing n bytes would drop unread data.
func (r *RingBuffer) WriteWouldOverflow(n int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return n > r.freeSpace()
}

// Stats returns a consistent snapshot of the buffer state.
func (r *RingBuffer) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	avail := r.available()
	return Stats{
		Capacity:  r.capacity,
		Available: avail,
		FreeSpace: r.capacity - avail,
		Full:      r.full,
		Empty:     !r.full && r.head == r.tail,
		Head:      r.head,
		Tail:      r.tail,
	}
}
