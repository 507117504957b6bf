//go:build linux

package selector

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

type registration struct {
	mask EventMask
	user any
}

// Epoll is the Linux selector backend, grounded in the edge/level-triggered
// epoll loops used throughout the reactor corpus (gnet, tailscale's
// netstack). It runs level-triggered, which keeps the reactor's "re-arm
// after every recv/send" logic simple at a small efficiency cost relative
// to edge-triggered mode.
type Epoll struct {
	fd   int
	regs map[int]*registration
}

// NewEpoll creates a new epoll instance.
func NewEpoll() (*Epoll, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("selector: epoll_create1: %w", err)
	}
	return &Epoll{fd: fd, regs: make(map[int]*registration)}, nil
}

func toEpollEvents(mask EventMask) uint32 {
	var ev uint32
	if mask&EventRecv != 0 {
		ev |= unix.EPOLLIN
	}
	if mask&EventSend != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func fromEpollEvents(ev uint32) EventMask {
	var mask EventMask
	if ev&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		mask |= EventRecv
	}
	if ev&unix.EPOLLOUT != 0 {
		mask |= EventSend
	}
	return mask
}

func (e *Epoll) Add(fd int, mask EventMask, user any) error {
	e.regs[fd] = &registration{mask: mask, user: user}
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: toEpollEvents(mask),
		Fd:     int32(fd),
	})
}

func (e *Epoll) Remove(fd int) error {
	delete(e.regs, fd)
	// EpollCtl with a nil event is fine for EPOLL_CTL_DEL on all kernels
	// this module targets; pre-2.6.9 kernels needing a non-nil event are
	// out of scope.
	err := unix.EpollCtl(e.fd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && err != unix.ENOENT {
		return fmt.Errorf("selector: epoll_ctl(del): %w", err)
	}
	return nil
}

// modify pushes a registration's current full mask to the kernel.
// epoll_ctl(MOD) always takes the complete desired event set — there is no
// "add these bits" call — so callers must update reg.mask before invoking
// this.
func (e *Epoll) modify(fd int, reg *registration) error {
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: toEpollEvents(reg.mask),
		Fd:     int32(fd),
	})
}

// EventAdd adds bits to fd's watched event mask.
func (e *Epoll) EventAdd(fd int, mask EventMask) error {
	reg, ok := e.regs[fd]
	if !ok {
		return fmt.Errorf("selector: fd %d not registered", fd)
	}
	reg.mask |= mask
	return e.modify(fd, reg)
}

// EventRemove clears bits from fd's watched event mask.
func (e *Epoll) EventRemove(fd int, mask EventMask) error {
	reg, ok := e.regs[fd]
	if !ok {
		return fmt.Errorf("selector: fd %d not registered", fd)
	}
	reg.mask &^= mask
	return e.modify(fd, reg)
}

func (e *Epoll) Poll(timeout time.Duration) ([]Ready, error) {
	ms := int(timeout / time.Millisecond)
	if timeout > 0 && ms == 0 {
		ms = 1
	}
	if ms < 0 {
		ms = 0
	}
	events := make([]unix.EpollEvent, 128)

	n, err := unix.EpollWait(e.fd, events, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("selector: epoll_wait: %w", err)
	}

	ready := make([]Ready, 0, n)
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		reg, ok := e.regs[fd]
		if !ok {
			continue
		}
		ready = append(ready, Ready{
			FD:   fd,
			Mask: fromEpollEvents(events[i].Events),
			User: reg.user,
		})
	}
	return ready, nil
}

func (e *Epoll) Close() error {
	return unix.Close(e.fd)
}
