//go:build unix && !linux

package selector

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Poller is the portable fallback selector backend for BSD-family unices
// that lack epoll (darwin, freebsd, netbsd, openbsd). It re-scans its
// registration table into a poll(2) fd set on every call, which is the
// straightforward upgrade path the specification's design notes call out
// as acceptable "up to thousands of connections".
type Poller struct {
	regs map[int]*registration
}

type registration struct {
	mask EventMask
	user any
}

// NewPoller creates a new poll(2)-backed selector.
func NewPoller() (*Poller, error) {
	return &Poller{regs: make(map[int]*registration)}, nil
}

func (p *Poller) Add(fd int, mask EventMask, user any) error {
	p.regs[fd] = &registration{mask: mask, user: user}
	return nil
}

func (p *Poller) Remove(fd int) error {
	delete(p.regs, fd)
	return nil
}

func (p *Poller) EventAdd(fd int, mask EventMask) error {
	reg, ok := p.regs[fd]
	if !ok {
		return fmt.Errorf("selector: fd %d not registered", fd)
	}
	reg.mask |= mask
	return nil
}

func (p *Poller) EventRemove(fd int, mask EventMask) error {
	reg, ok := p.regs[fd]
	if !ok {
		return fmt.Errorf("selector: fd %d not registered", fd)
	}
	reg.mask &^= mask
	return nil
}

func toPollEvents(mask EventMask) int16 {
	var ev int16
	if mask&EventRecv != 0 {
		ev |= unix.POLLIN
	}
	if mask&EventSend != 0 {
		ev |= unix.POLLOUT
	}
	return ev
}

func fromPollEvents(ev int16) EventMask {
	var mask EventMask
	if ev&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
		mask |= EventRecv
	}
	if ev&unix.POLLOUT != 0 {
		mask |= EventSend
	}
	return mask
}

func (p *Poller) Poll(timeout time.Duration) ([]Ready, error) {
	fds := make([]unix.PollFd, 0, len(p.regs))
	order := make([]int, 0, len(p.regs))
	for fd, reg := range p.regs {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: toPollEvents(reg.mask)})
		order = append(order, fd)
	}

	ms := int(timeout / time.Millisecond)
	if timeout > 0 && ms == 0 {
		ms = 1
	}
	if ms < 0 {
		ms = 0
	}

	n, err := unix.Poll(fds, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("selector: poll: %w", err)
	}

	ready := make([]Ready, 0, n)
	for i, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		fd := order[i]
		reg := p.regs[fd]
		ready = append(ready, Ready{FD: fd, Mask: fromPollEvents(pfd.Revents), User: reg.user})
	}
	return ready, nil
}

func (p *Poller) Close() error {
	return nil
}
