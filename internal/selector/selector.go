// Package selector abstracts the readiness-notification backend a loop
// polls: epoll on Linux, a portable poll(2)-based backend elsewhere. The
// core reactor never branches on platform — it only calls through this
// interface, exactly the six operations (plus the optional accept
// override) the specification allows it to call into a selector.
package selector

import (
	"errors"
	"time"
)

// EventMask is a bitset of the readiness conditions a registration cares
// about.
type EventMask uint8

const (
	EventRecv EventMask = 1 << iota
	EventSend
)

// Ready describes one readiness notification returned from Poll.
type Ready struct {
	FD   int
	Mask EventMask
	User any // the opaque value passed to Add for this fd
}

// Selector is the capability the reactor core consumes. Implementations
// must be safe to call only from the loop goroutine that owns them — no
// internal locking is required or provided.
type Selector interface {
	// Add registers fd for the given initial event mask, associating the
	// opaque user value returned alongside future readiness notifications.
	Add(fd int, mask EventMask, user any) error

	// Remove unregisters fd entirely.
	Remove(fd int) error

	// EventAdd adds bits to fd's watched event mask.
	EventAdd(fd int, mask EventMask) error

	// EventRemove clears bits from fd's watched event mask.
	EventRemove(fd int, mask EventMask) error

	// Poll blocks for up to timeout waiting for readiness, returning the
	// set of fds that became ready. A zero or negative timeout polls
	// without blocking.
	Poll(timeout time.Duration) ([]Ready, error)

	// Close releases the selector's own resources (e.g. the epoll fd).
	Close() error
}

// Accepter is optionally implemented by selectors that can accept a
// pending connection directly as part of reporting readiness, bypassing
// the default accept(2) call in the channel layer. No backend in this
// module implements it; it exists so the interface matches the
// specification's selector contract in full.
type Accepter interface {
	Accept(fd int) (clientFD int, ok bool, err error)
}

// ErrClosed names the closed-selector condition. Neither backend in this
// package returns it: after Close, Epoll calls fail with the kernel's error
// for the closed epoll fd, and Poller calls keep working on its in-memory
// table.
var ErrClosed = errors.New("selector: closed")
