//go:build linux

package selector

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func socketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	unix.SetNonblock(fds[0], true)
	unix.SetNonblock(fds[1], true)
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestEpollReportsReadable(t *testing.T) {
	a, b := socketpair(t)

	sel, err := NewEpoll()
	if err != nil {
		t.Fatalf("NewEpoll: %v", err)
	}
	defer sel.Close()

	if err := sel.Add(a, EventRecv, "marker"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	unix.Write(b, []byte("x"))

	ready, err := sel.Poll(time.Second)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(ready) != 1 || ready[0].FD != a || ready[0].User != "marker" {
		t.Fatalf("Poll returned %+v, want one ready entry for fd %d", ready, a)
	}
	if ready[0].Mask&EventRecv == 0 {
		t.Fatalf("ready mask = %v, want EventRecv set", ready[0].Mask)
	}
}

func TestEpollEventAddEventRemovePreserveOtherBits(t *testing.T) {
	a, _ := socketpair(t)

	sel, err := NewEpoll()
	if err != nil {
		t.Fatalf("NewEpoll: %v", err)
	}
	defer sel.Close()

	if err := sel.Add(a, EventRecv, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := sel.EventAdd(a, EventSend); err != nil {
		t.Fatalf("EventAdd: %v", err)
	}

	reg := sel.regs[a]
	if reg.mask != EventRecv|EventSend {
		t.Fatalf("mask after EventAdd = %v, want recv|send", reg.mask)
	}

	if err := sel.EventRemove(a, EventSend); err != nil {
		t.Fatalf("EventRemove: %v", err)
	}
	if reg.mask != EventRecv {
		t.Fatalf("mask after EventRemove = %v, want recv only", reg.mask)
	}
}

func TestEpollRemoveUnregisters(t *testing.T) {
	a, b := socketpair(t)

	sel, err := NewEpoll()
	if err != nil {
		t.Fatalf("NewEpoll: %v", err)
	}
	defer sel.Close()

	if err := sel.Add(a, EventRecv, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := sel.Remove(a); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	unix.Write(b, []byte("x"))

	ready, err := sel.Poll(50 * time.Millisecond)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(ready) != 0 {
		t.Fatalf("Poll returned %+v after Remove, want none", ready)
	}
}
