package knet

import (
	"container/list"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tcploop/knet/internal/klog"
)

var nextRefID atomic.Uint64

// refInfo is the state shared by every ChannelRef handle referring to the
// same underlying channel. It is allocated once, on first construction, and
// conceptually freed once the last handle is destroyed with a zero
// reference count — in practice that just means it becomes unreachable and
// the garbage collector reclaims it; Destroy exists to enforce the
// invariant, not to run a manual free.
//
// Every field below except refcount, and the handful guarded by mu for
// off-loop inspection (flag, userData, migrated, the cached addresses), may
// only be touched by the owning loop's goroutine.
type refInfo struct {
	id uint64

	loop *Loop
	ch   *channel
	opts ChannelRefOptions

	state State32
	mask  eventMask
	elem  *list.Element

	refcount atomic.Int32

	cb Callback

	connectDeadline time.Time
	idleTimeout     time.Duration
	lastRecvTS      time.Time

	mu        sync.Mutex
	flag      int
	userData  any
	migrated  bool
	peerAddr  *net.TCPAddr
	localAddr *net.TCPAddr
}

// State32 stores a State atomically; reads from outside the owning loop
// (metrics, logging) are safe, writes are the owning loop's alone.
type State32 struct {
	v atomic.Int32
}

func (s *State32) Load() State    { return State(s.v.Load()) }
func (s *State32) Store(st State) { s.v.Store(int32(st)) }

func newRefInfo(ch *channel, loop *Loop, opts ChannelRefOptions, cb Callback) *refInfo {
	r := &refInfo{
		id:   nextRefID.Add(1),
		loop: loop,
		ch:   ch,
		opts: opts,
		cb:   cb,
	}
	loop.stats.AddConn()
	if opts.ConnectDeadline > 0 {
		r.connectDeadline = time.Now().Add(opts.ConnectDeadline)
	}
	r.idleTimeout = opts.IdleTimeout
	return r
}

func (r *refInfo) handle() *ChannelRef { return &ChannelRef{info: r} }

// update applies one turn's readiness mask per the channel reference state
// machine (spec's transition table): connecting+writable -> active,
// accepting+readable -> accept loop, active+readable/writable -> recv/send.
func (r *refInfo) update(ready eventMask, now time.Time) {
	switch r.state.Load() {
	case StateConnecting:
		if ready&maskSend != 0 {
			r.loop.unwatch(r, maskSend)
			r.state.Store(StateActive)
			r.lastRecvTS = now
			safeInvoke(r.handle(), r.cb, EventConnect)
		}
	case StateAccepting:
		if ready&maskRecv != 0 {
			r.doAccept()
		}
	case StateActive:
		if ready&maskRecv != 0 {
			res, n, err := r.ch.updateRecv()
			r.loop.stats.AddRecv(n)
			if res == ioFatal {
				klog.Error("[%d] recv failed: %v", r.id, err)
				r.closeInLoop()
				return
			}
			if res == ioProgress {
				r.lastRecvTS = now
				safeInvoke(r.handle(), r.cb, EventRecv)
			}
		}
		if r.state.Load() != StateActive {
			return
		}
		if ready&maskSend != 0 {
			res, n, err := r.ch.drainSendQueue()
			r.loop.stats.AddSent(n)
			if res == ioFatal {
				klog.Error("[%d] send failed: %v", r.id, err)
				r.closeInLoop()
				return
			}
			if res == ioProgress {
				r.loop.unwatch(r, maskSend)
				safeInvoke(r.handle(), r.cb, EventSend)
			}
		}
	}
}

// doAccept drains every pending connection off a listening channel. Each
// child is materialized directly in state active; it is either registered
// on this loop or, if a balancer picks a less-loaded loop, posted to that
// loop's inbox as an accept message.
func (r *refInfo) doAccept() {
	for {
		s, err := r.ch.accept()
		if err != nil {
			klog.Error("[%d] accept failed: %v", r.id, err)
			return
		}
		if s == nil {
			return
		}
		child := newRefInfo(newChannelFromSocket(s, r.opts.maxSendQueueLen(), r.opts.maxRingCapacity()), r.loop, r.opts, r.cb)
		child.state.Store(StateActive)
		child.mask = maskRecv
		child.lastRecvTS = time.Now()

		target := r.loop
		if b := r.loop.balancerRef(); b != nil {
			if chosen := b.Choose(); chosen != nil && chosen != r.loop {
				target = chosen
				child.migrated = true
			}
		}
		if target == r.loop {
			if err := r.loop.addRef(child); err != nil {
				klog.Error("[%d] failed to register accepted child: %v", r.id, err)
				child.ch.close()
				continue
			}
			safeInvoke(child.handle(), child.cb, EventAccept)
			continue
		}
		target.notifyAccept(child)
	}
}

// closeInLoop runs the idempotent close path: mark closed, unregister from
// the loop, close the socket, deliver exactly one close callback.
func (r *refInfo) closeInLoop() {
	if r.state.Load() == StateClosed {
		return
	}
	r.state.Store(StateClosed)
	r.mask = 0
	r.loop.stats.RemoveConn()
	r.loop.removeRef(r)
	if err := r.ch.close(); err != nil {
		klog.Debug("[%d] close: %v", r.id, err)
	}
	safeInvoke(r.handle(), r.cb, EventClose)
}

// writeInLoop is the in-loop half of Write: immediate send, queuing the
// remainder and arming the write-watch on a partial write, closing on fail.
func (r *refInfo) writeInLoop(data []byte) {
	if r.state.Load() != StateActive {
		return
	}
	res, n, err := r.ch.send(data)
	r.loop.stats.AddSent(n)
	if res == ioFatal {
		klog.Error("[%d] write failed: %v", r.id, err)
		r.closeInLoop()
		return
	}
	if err == ErrSendPartial {
		klog.Debug("[%d] partial write, %d byte(s) queued", r.id, r.ch.send.Len())
	}
	if r.ch.pendingSend() {
		r.loop.watch(r, maskSend)
	}
}

// checkTimeouts applies the connect-deadline and idle-timeout rules; called
// once per loop turn while walking the active list.
func (r *refInfo) checkTimeouts(now time.Time) {
	switch r.state.Load() {
	case StateConnecting:
		if !r.connectDeadline.IsZero() && now.After(r.connectDeadline) {
			r.closeInLoop()
		}
	case StateActive:
		if r.idleTimeout > 0 && now.Sub(r.lastRecvTS) > r.idleTimeout {
			r.closeInLoop()
		}
	}
}

// ChannelRef is a sharable handle to one channel. Multiple ChannelRef
// values may point at the same refInfo; Share/Leave track how many handles
// are outstanding, Destroy enforces that the last one goes through zero.
type ChannelRef struct {
	info *refInfo
}

// Share returns a new handle to the same channel, incrementing the shared
// reference count. Every Share must be matched by exactly one Leave.
func (r *ChannelRef) Share() *ChannelRef {
	r.info.refcount.Add(1)
	return &ChannelRef{info: r.info}
}

// Leave drops this handle without closing the channel; it decrements the
// shared reference count.
func (r *ChannelRef) Leave() {
	r.info.refcount.Add(-1)
}

// Destroy must be called from the owning loop once a handle is done with
// the channel. It returns ErrRefNonzero, freeing nothing, if other handles
// are still outstanding.
func (r *ChannelRef) Destroy() error {
	if r.info.refcount.Load() != 0 {
		return ErrRefNonzero
	}
	return nil
}

// State reports the channel reference's current lifecycle state. Safe to
// call from any goroutine.
func (r *ChannelRef) State() State { return r.info.state.Load() }

// Write queues data for the channel to send. It always posts to the owning
// loop's inbox rather than racing an in-loop fast path — Go has no portable
// way to recognize "the calling goroutine is the loop's goroutine" the way
// the original compares thread ids, so every write is dispatched uniformly.
func (r *ChannelRef) Write(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	r.info.loop.notifySend(r.info, cp)
	return nil
}

// Close requests the channel be closed. Idempotent; always posted to the
// owning loop's inbox, for the same reason as Write.
func (r *ChannelRef) Close() error {
	r.info.loop.notifyClose(r.info)
	return nil
}

// Read copies up to len(p) bytes out of the recv accumulator, consuming
// them. Meant to be called from the callback handling an EventRecv, on the
// owning loop's goroutine; the ring is not safe for concurrent access.
func (r *ChannelRef) Read(p []byte) int {
	return r.info.ch.recv.Read(p)
}

// Buffered reports how many unread bytes the recv accumulator currently
// holds.
func (r *ChannelRef) Buffered() int {
	return r.info.ch.recv.Len()
}

// Peek returns a copy of the unread bytes in the recv accumulator without
// consuming them.
func (r *ChannelRef) Peek() []byte {
	return r.info.ch.recv.Peek()
}

// PeerAddress lazily resolves and caches the remote address.
func (r *ChannelRef) PeerAddress() (*net.TCPAddr, error) {
	r.info.mu.Lock()
	defer r.info.mu.Unlock()
	if r.info.peerAddr != nil {
		return r.info.peerAddr, nil
	}
	addr, err := r.info.ch.peerName()
	if err != nil {
		return nil, err
	}
	r.info.peerAddr = addr
	return addr, nil
}

// LocalAddress lazily resolves and caches the local address.
func (r *ChannelRef) LocalAddress() (*net.TCPAddr, error) {
	r.info.mu.Lock()
	defer r.info.mu.Unlock()
	if r.info.localAddr != nil {
		return r.info.localAddr, nil
	}
	addr, err := r.info.ch.localName()
	if err != nil {
		return nil, err
	}
	r.info.localAddr = addr
	return addr, nil
}

// SetFlag stores an opaque integer alongside the channel reference, for
// caller-defined bookkeeping (mirrors the original's selector scratch).
func (r *ChannelRef) SetFlag(flag int) {
	r.info.mu.Lock()
	r.info.flag = flag
	r.info.mu.Unlock()
}

// Flag returns the last value set by SetFlag, zero if never set.
func (r *ChannelRef) Flag() int {
	r.info.mu.Lock()
	defer r.info.mu.Unlock()
	return r.info.flag
}

// SetUserData stores an arbitrary value alongside the channel reference.
func (r *ChannelRef) SetUserData(data any) {
	r.info.mu.Lock()
	r.info.userData = data
	r.info.mu.Unlock()
}

// UserData returns the last value set by SetUserData, nil if never set.
func (r *ChannelRef) UserData() any {
	r.info.mu.Lock()
	defer r.info.mu.Unlock()
	return r.info.userData
}

// Migrated reports whether this channel reference was handed to its
// current loop by a Balancer rather than accepted locally.
func (r *ChannelRef) Migrated() bool {
	r.info.mu.Lock()
	defer r.info.mu.Unlock()
	return r.info.migrated
}

// SetIdleTimeout sets the duration of recv inactivity after which an
// active channel is closed; zero disables the timeout. Must be called from
// the owning loop. Panics on a negative duration rather than silently
// misinterpreting its sign.
func (r *ChannelRef) SetIdleTimeout(d time.Duration) {
	if d < 0 {
		panic("knet: idle timeout must be non-negative")
	}
	r.info.idleTimeout = d
}

// SetConnectDeadline sets the wall-clock deadline, relative to now, by
// which a connecting channel must become writable or be closed; zero
// disables the deadline. Must be called from the owning loop. Panics on a
// negative duration.
func (r *ChannelRef) SetConnectDeadline(d time.Duration) {
	if d < 0 {
		panic("knet: connect deadline must be non-negative")
	}
	if d == 0 {
		r.info.connectDeadline = time.Time{}
		return
	}
	r.info.connectDeadline = time.Now().Add(d)
}

func (r *ChannelRef) id() uint64   { return r.info.id }
func (r *ChannelRef) closeInLoop() { r.info.closeInLoop() }
