package ringbuf

import (
	"bytes"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	r := New(8)

	n, err := r.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write() = %d, %v; want 5, nil", n, err)
	}
	if r.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", r.Len())
	}

	out := make([]byte, 5)
	n = r.Read(out)
	if n != 5 || !bytes.Equal(out, []byte("hello")) {
		t.Fatalf("Read() = %d, %q; want 5, \"hello\"", n, out)
	}
	if r.Len() != 0 {
		t.Fatalf("Len() after full read = %d, want 0", r.Len())
	}
}

func TestWrapAround(t *testing.T) {
	r := New(4)

	r.Write([]byte("ab"))
	out := make([]byte, 1)
	r.Read(out) // consume 'a', head now at 1

	if _, err := r.Write([]byte("cde")); err != nil {
		t.Fatalf("Write() across wraparound failed: %v", err)
	}

	got := make([]byte, 4)
	n := r.Read(got)
	if n != 4 || string(got) != "bcde" {
		t.Fatalf("Read() = %d, %q; want 4, \"bcde\"", n, got)
	}
}

func TestFullReturnsOverflow(t *testing.T) {
	r := New(4)

	if _, err := r.Write([]byte("abcd")); err != nil {
		t.Fatalf("Write() exact-capacity write failed: %v", err)
	}

	n, err := r.Write([]byte("e"))
	if err != ErrFull {
		t.Fatalf("Write() err = %v, want ErrFull", err)
	}
	if n != 0 {
		t.Fatalf("Write() n = %d, want 0 on overflow", n)
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	r := New(8)
	r.Write([]byte("xyz"))

	first := r.Peek()
	second := r.Peek()
	if string(first) != "xyz" || string(second) != "xyz" {
		t.Fatalf("Peek() not idempotent: %q, %q", first, second)
	}
	if r.Len() != 3 {
		t.Fatalf("Peek() consumed bytes, Len() = %d, want 3", r.Len())
	}
}

func TestReset(t *testing.T) {
	r := New(4)
	r.Write([]byte("ab"))
	r.Reset()
	if r.Len() != 0 || r.Free() != 4 {
		t.Fatalf("Reset() did not clear buffer: Len=%d Free=%d", r.Len(), r.Free())
	}
}
