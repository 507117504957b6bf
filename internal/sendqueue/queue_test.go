package sendqueue

import "testing"

func TestPushPopOrder(t *testing.T) {
	q := New(2)

	if err := q.Push([]byte("a")); err != nil {
		t.Fatalf("Push() = %v", err)
	}
	if err := q.Push([]byte("b")); err != nil {
		t.Fatalf("Push() = %v", err)
	}
	if err := q.Push([]byte("c")); err != ErrQueueFull {
		t.Fatalf("Push() over MaxLen = %v, want ErrQueueFull", err)
	}

	front := q.Front()
	if string(front.Data) != "a" {
		t.Fatalf("Front() = %q, want \"a\"", front.Data)
	}
	q.Pop()

	front = q.Front()
	if string(front.Data) != "b" {
		t.Fatalf("Front() after Pop() = %q, want \"b\"", front.Data)
	}
}

func TestBufferAdvanceAndDone(t *testing.T) {
	q := New(1)
	q.Push([]byte("hello"))

	b := q.Front()
	if b.Done() {
		t.Fatalf("Done() = true before any Advance()")
	}

	b.Advance(3)
	if string(b.Remaining()) != "lo" {
		t.Fatalf("Remaining() = %q, want \"lo\"", b.Remaining())
	}

	b.Advance(2)
	if !b.Done() {
		t.Fatalf("Done() = false after full Advance()")
	}
}

func TestPushCopiesData(t *testing.T) {
	q := New(1)
	data := []byte("mutable")
	q.Push(data)
	data[0] = 'X'

	if got := q.Front().Data[0]; got == 'X' {
		t.Fatalf("Push() did not copy the input slice")
	}
}
