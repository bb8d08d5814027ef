// Package capture implements the capture source adapter boundary (C7):
// a GStreamer camera producer and a synthetic pattern producer (there is
// no file or screen producer) that feed the encoder through a drop-oldest
// bounded queue. Grounded on
// modules/stream-capture/provider.go's StreamProvider contract and
// _examples/original_source/server/AVServer_11_VideoCapture.h /
// AVServer_12_AudioCapture.h / AVServer_13_CaptureManager.h.
package capture

import (
	"container/list"
	"sync"
	"time"

	"github.com/e7canasta/avstreamd/internal/frame"
)

// Source is the adapter boundary every concrete capture device implements:
// camera, file, screen, synthetic pattern. Concrete device kinds are
// opaque to the core; only Open/TryGetFrame/GetFrame/Close matter.
type Source interface {
	// Open acquires the underlying device. Concrete device kinds decide
	// what "opening" means (a file handle, a GStreamer pipeline reaching
	// PLAYING, a synthetic generator starting its ticker).
	Open() bool

	// TryGetFrame returns the oldest queued frame without blocking. ok is
	// false if no frame is currently available.
	TryGetFrame() (f *frame.Frame, ok bool)

	// GetFrame blocks up to timeout waiting for a frame. ok is false on
	// timeout, or once the source is closed and no queued frame remains.
	GetFrame(timeout time.Duration) (f *frame.Frame, ok bool)

	// Stats returns the source's current drop-oldest accounting.
	Stats() Stats

	// Close releases the device and wakes any blocked GetFrame callers.
	Close() error
}

// Stats reports a capture source's drop-oldest bookkeeping.
type Stats struct {
	FramesProduced uint64
	FramesDropped  uint64
	Queued         int
}

// ringQueue is a drop-oldest bounded queue of frames: when Push would
// exceed capacity, the oldest queued frame is evicted and the drop
// counter increments, rather than blocking the producer or failing.
// This is distinct from internal/queue.Queue, which blocks producers
// instead of dropping -- capture needs drop-oldest per spec, the
// pipeline output needs backpressure.
type ringQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    *list.List
	capacity int
	closed   bool

	produced uint64
	dropped  uint64
}

func newRingQueue(capacity int) *ringQueue {
	q := &ringQueue{
		items:    list.New(),
		capacity: capacity,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *ringQueue) push(f *frame.Frame) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}

	q.produced++
	if q.capacity > 0 && q.items.Len() >= q.capacity {
		q.items.Remove(q.items.Front())
		q.dropped++
	}
	q.items.PushBack(f)
	q.cond.Signal()
}

func (q *ringQueue) tryPop() (*frame.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popFront()
}

func (q *ringQueue) popFront() (*frame.Frame, bool) {
	el := q.items.Front()
	if el == nil {
		return nil, false
	}
	q.items.Remove(el)
	return el.Value.(*frame.Frame), true
}

func (q *ringQueue) popWait(timeout time.Duration) (*frame.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 && !q.closed {
		deadline := time.Now().Add(timeout)
		timer := time.AfterFunc(timeout, func() {
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		})
		defer timer.Stop()

		for q.items.Len() == 0 && !q.closed && time.Now().Before(deadline) {
			q.cond.Wait()
		}
	}

	return q.popFront()
}

func (q *ringQueue) stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		FramesProduced: q.produced,
		FramesDropped:  q.dropped,
		Queued:         q.items.Len(),
	}
}

func (q *ringQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}
