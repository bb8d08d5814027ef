// Package ring implements a fixed-capacity circular byte buffer used by the
// per-connection receive path to absorb partial TCP reads before a full
// protocol message can be extracted.
package ring

import "sync"

// Buffer is a fixed-capacity circular byte store. Two indices, w and r, walk
// the underlying slice modulo its capacity; fill is tracked explicitly and
// equals (w-r) mod capacity, except when the buffer is full (w == r and
// fill == capacity).
// A single mutex guards both indices and the contents, so a Buffer may be
// shared between a reader and a writer goroutine, but operations are never
// lock-free.
type Buffer struct {
	mu       sync.Mutex
	data     []byte
	capacity int
	w        int
	r        int
	fill     int
}

// New allocates a Buffer with the given fixed capacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{
		data:     make([]byte, capacity),
		capacity: capacity,
	}
}

// Capacity returns the fixed capacity of the buffer.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Fill returns the number of bytes currently buffered.
func (b *Buffer) Fill() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fill
}

// Free returns the number of bytes of free space remaining.
func (b *Buffer) Free() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity - b.fill
}

// Write copies up to n bytes from src into the buffer and returns the
// number of bytes actually written: min(n, free space). A write that would
// overflow the buffer is truncated rather than blocking or erroring.
func (b *Buffer) Write(src []byte, n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > len(src) {
		n = len(src)
	}
	space := b.capacity - b.fill
	if n > space {
		n = space
	}
	if n <= 0 {
		return 0
	}

	first := b.capacity - b.w
	if first > n {
		first = n
	}
	copy(b.data[b.w:b.w+first], src[:first])
	if rest := n - first; rest > 0 {
		copy(b.data[0:rest], src[first:n])
	}

	b.w = (b.w + n) % b.capacity
	b.fill += n
	return n
}

// Read copies up to n bytes from the buffer into dst and advances the read
// index by the number of bytes copied. Returns the number of bytes read:
// min(n, fill).
func (b *Buffer) Read(dst []byte, n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readLocked(dst, n, true)
}

// Peek behaves like Read but does not advance the read index.
func (b *Buffer) Peek(dst []byte, n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readLocked(dst, n, false)
}

func (b *Buffer) readLocked(dst []byte, n int, advance bool) int {
	if n > len(dst) {
		n = len(dst)
	}
	if n > b.fill {
		n = b.fill
	}
	if n <= 0 {
		return 0
	}

	first := b.capacity - b.r
	if first > n {
		first = n
	}
	copy(dst[:first], b.data[b.r:b.r+first])
	if rest := n - first; rest > 0 {
		copy(dst[first:n], b.data[0:rest])
	}

	if advance {
		b.r = (b.r + n) % b.capacity
		b.fill -= n
	}
	return n
}

// Clear resets both indices to zero, discarding all buffered bytes. Used by
// the receive engine to resync the stream after a framing violation.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.w = 0
	b.r = 0
	b.fill = 0
}
