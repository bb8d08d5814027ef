package ring

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	b := New(16)
	src := []byte("hello world")
	n := b.Write(src, len(src))
	if n != len(src) {
		t.Fatalf("Write returned %d, want %d", n, len(src))
	}

	dst := make([]byte, len(src))
	rn := b.Read(dst, len(dst))
	if rn != len(src) {
		t.Fatalf("Read returned %d, want %d", rn, len(src))
	}
	if !bytes.Equal(dst, src) {
		t.Fatalf("Read got %q, want %q", dst, src)
	}
}

func TestWriteTruncatesAtCapacity(t *testing.T) {
	b := New(4)
	n := b.Write([]byte("abcdef"), 6)
	if n != 4 {
		t.Fatalf("Write returned %d, want 4", n)
	}
	if b.Fill() != 4 {
		t.Fatalf("Fill() = %d, want 4", b.Fill())
	}
}

func TestPeekDoesNotAdvance(t *testing.T) {
	b := New(8)
	b.Write([]byte("abcd"), 4)

	dst := make([]byte, 4)
	b.Peek(dst, 4)
	if b.Fill() != 4 {
		t.Fatalf("Fill() after Peek = %d, want 4", b.Fill())
	}

	b.Read(dst, 4)
	if b.Fill() != 0 {
		t.Fatalf("Fill() after Read = %d, want 0", b.Fill())
	}
}

func TestWrapAround(t *testing.T) {
	b := New(8)
	b.Write([]byte("ABCDEF"), 6)

	tmp := make([]byte, 4)
	b.Read(tmp, 4) // consume "ABCD", r=4, fill=2

	n := b.Write([]byte("1234"), 4) // wraps: w=6 -> writes 2 at tail, 2 at head
	if n != 4 {
		t.Fatalf("Write returned %d, want 4", n)
	}
	if b.Fill() != 6 {
		t.Fatalf("Fill() = %d, want 6", b.Fill())
	}

	out := make([]byte, 6)
	rn := b.Read(out, 6)
	if rn != 6 {
		t.Fatalf("Read returned %d, want 6", rn)
	}
	if !bytes.Equal(out, []byte("EF1234")) {
		t.Fatalf("Read got %q, want %q", out, "EF1234")
	}
}

func TestClear(t *testing.T) {
	b := New(8)
	b.Write([]byte("abcd"), 4)
	b.Clear()
	if b.Fill() != 0 {
		t.Fatalf("Fill() after Clear = %d, want 0", b.Fill())
	}
	if b.Free() != b.Capacity() {
		t.Fatalf("Free() after Clear = %d, want %d", b.Free(), b.Capacity())
	}
}

func TestFillPlusFreeInvariant(t *testing.T) {
	b := New(32)
	rnd := rand.New(rand.NewSource(1))
	buf := make([]byte, 32)

	for i := 0; i < 2000; i++ {
		if rnd.Intn(2) == 0 {
			n := rnd.Intn(10) + 1
			b.Write(buf[:n], n)
		} else {
			n := rnd.Intn(10) + 1
			b.Read(buf[:n], n)
		}
		if b.Fill()+b.Free() != b.Capacity() {
			t.Fatalf("invariant broken: fill=%d free=%d capacity=%d", b.Fill(), b.Free(), b.Capacity())
		}
	}
}
