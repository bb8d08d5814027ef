package frame

import "testing"

func TestAcquireReleaseAccounting(t *testing.T) {
	p := NewPool(4, 64)

	var live []*Frame
	for i := 0; i < 10; i++ {
		live = append(live, p.Acquire())
	}

	acquired, released := p.Stats()
	if acquired-released != uint64(len(live)) {
		t.Fatalf("live checkouts = %d, want %d", acquired-released, len(live))
	}

	for _, f := range live {
		p.Release(f)
	}

	acquired, released = p.Stats()
	if acquired-released != 0 {
		t.Fatalf("live checkouts after full release = %d, want 0", acquired-released)
	}
}

func TestReleaseBeyondTargetIsDropped(t *testing.T) {
	p := NewPool(2, 16)
	// NewPool already holds its 2 target frames, so every release below is
	// beyond target and should be dropped.
	p.Release(p.newFrame())
	p.Release(p.newFrame())
	p.Release(p.newFrame())

	if avail := p.Available(); avail != 2 {
		t.Fatalf("Available() = %d, want 2", avail)
	}
}

func TestAcquiredFrameIsLogicallyEmpty(t *testing.T) {
	p := NewPool(1, 32)
	f := p.Acquire()
	f.Width = 100
	f.Payload = append(f.Payload, 1, 2, 3)
	p.Release(f)

	f2 := p.Acquire()
	if f2.Width != 0 || len(f2.Payload) != 0 {
		t.Fatalf("acquired frame not reset: width=%d payload_len=%d", f2.Width, len(f2.Payload))
	}
	if cap(f2.Payload) < 3 {
		t.Fatalf("acquired frame lost preallocated capacity: cap=%d", cap(f2.Payload))
	}
}

func TestPoolExhaustionAllocatesNew(t *testing.T) {
	p := NewPool(0, 16)
	f := p.Acquire()
	if f == nil {
		t.Fatal("Acquire on empty pool returned nil")
	}
}
