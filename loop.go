package knet

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tcploop/knet/internal/klog"
	"github.com/tcploop/knet/internal/selector"
	"github.com/tcploop/knet/internal/stats"
	"github.com/tcploop/knet/internal/wakeup"
)

type inboxKind int

const (
	inboxSend inboxKind = iota
	inboxClose
	inboxAccept
)

type inboxMsg struct {
	kind inboxKind
	ref  *refInfo
	data []byte
}

// Loop is a single-threaded reactor: one goroutine, one selector, one
// channel-reference list. Every channel reference registered with a Loop
// must only have its socket, buffers, selector registration, state, event
// mask, and list node touched from that Loop's own goroutine; the
// reference count and the inbox are the only things other goroutines may
// touch directly.
type Loop struct {
	sel  selector.Selector
	wake *wakeup.Pipe

	refs   map[int]*refInfo
	active *list.List

	cfg      Config
	balancer *Balancer
	stats    *stats.Counters

	runGeneration atomic.Uint64
	started       atomic.Bool
	refCount      atomic.Int32

	inboxMu sync.Mutex
	inbox   []inboxMsg
}

// NewLoop creates a Loop with its own selector backend and wakeup pipe. It
// does not start running; call Run to enter the reactor loop.
func NewLoop(cfg Config) (*Loop, error) {
	sel, err := selector.New()
	if err != nil {
		return nil, err
	}
	wake, err := wakeup.New()
	if err != nil {
		sel.Close()
		return nil, err
	}
	if err := sel.Add(wake.FD(), selector.EventRecv, nil); err != nil {
		sel.Close()
		wake.Close()
		return nil, err
	}
	if cfg.Debug {
		klog.EnableDebug()
	}
	return &Loop{
		sel:    sel,
		wake:   wake,
		refs:   make(map[int]*refInfo),
		active: list.New(),
		cfg:    cfg,
		stats:  stats.New(),
	}, nil
}

// SetBalancer attaches a Balancer used to migrate accepted connections.
// Call before Run; not safe to change once the loop is running.
func (l *Loop) SetBalancer(b *Balancer) { l.balancer = b }

func (l *Loop) balancerRef() *Balancer { return l.balancer }

// Stats returns this loop's own traffic/connection counters, for an
// observability reporter to read — never shared with any other loop.
func (l *Loop) Stats() *stats.Counters { return l.stats }

// Len returns the number of channel references currently registered with
// this loop — what a Balancer compares across loops to pick the
// least-loaded one. Backed by an atomic counter rather than reading
// active.List directly: Choose() runs on the accepting loop's goroutine
// while addRef/removeRef run on the target loop's own, and the active list
// itself is not safe for that cross-goroutine access.
func (l *Loop) Len() int { return int(l.refCount.Load()) }

// Started reports whether Run has ever been called on this loop.
func (l *Loop) Started() bool { return l.started.Load() }

// OwnerGoroutine returns an opaque identifier that is 0 until Run is first
// entered and 1 afterwards; Run can only be entered once, so it never goes
// higher. Go has no portable way to name the calling goroutine the way the
// original compares OS thread ids, so this only answers "has Run started",
// not "is this the caller's goroutine".
func (l *Loop) OwnerGoroutine() uint64 { return l.runGeneration.Load() }

// Connect constructs a channel, starts a non-blocking connect, and
// registers the resulting channel reference with this loop in state
// connecting. Must be called from this loop's own goroutine, or before Run
// is first entered.
func (l *Loop) Connect(ip string, port int, opts ChannelRefOptions, cb Callback) (*ChannelRef, error) {
	ch, err := newChannel(opts.maxSendQueueLen(), opts.maxRingCapacity())
	if err != nil {
		return nil, err
	}
	if err := ch.connect(ip, port); err != nil {
		ch.close()
		return nil, err
	}
	info := newRefInfo(ch, l, opts, cb)
	info.state.Store(StateConnecting)
	info.mask = maskRecv | maskSend
	if err := l.addRef(info); err != nil {
		ch.close()
		return nil, err
	}
	return info.handle(), nil
}

// Listen constructs a channel, binds and listens on ip:port, and
// registers the resulting channel reference with this loop in state
// accepting. Must be called from this loop's own goroutine, or before Run
// is first entered.
func (l *Loop) Listen(ip string, port, backlog int, opts ChannelRefOptions, cb Callback) (*ChannelRef, error) {
	ch, err := newChannel(opts.maxSendQueueLen(), opts.maxRingCapacity())
	if err != nil {
		return nil, err
	}
	if err := ch.listen(ip, port, backlog); err != nil {
		ch.close()
		return nil, err
	}
	info := newRefInfo(ch, l, opts, cb)
	info.state.Store(StateAccepting)
	info.mask = maskRecv
	if err := l.addRef(info); err != nil {
		ch.close()
		return nil, err
	}
	return info.handle(), nil
}

// Run enters the reactor loop, calling RunOnce repeatedly until ctx is
// canceled, at which point every registered channel reference is closed
// and the selector and wakeup pipe are released.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrThreadStartFail
	}
	l.runGeneration.Add(1)
	timeout := l.cfg.pollTimeout()
	for {
		select {
		case <-ctx.Done():
			return l.shutdown()
		default:
		}
		if err := l.RunOnce(timeout); err != nil {
			return err
		}
	}
}

// RunOnce runs a single reactor turn: drain the inbox, poll the selector
// for at most timeout, dispatch readiness to each ready channel reference,
// then apply connect-deadline/idle-timeout checks across the active list.
func (l *Loop) RunOnce(timeout time.Duration) error {
	l.drainInbox()

	ready, err := l.sel.Poll(timeout)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, rd := range ready {
		if rd.FD == l.wake.FD() {
			l.wake.Drain()
			continue
		}
		ref, ok := rd.User.(*refInfo)
		if !ok || ref == nil {
			continue
		}
		ref.update(fromSelectorMask(rd.Mask), now)
	}

	l.checkTimeouts(now)
	return nil
}

func (l *Loop) checkTimeouts(now time.Time) {
	for e := l.active.Front(); e != nil; {
		next := e.Next()
		e.Value.(*refInfo).checkTimeouts(now)
		e = next
	}
}

func (l *Loop) shutdown() error {
	for e := l.active.Front(); e != nil; {
		next := e.Next()
		e.Value.(*refInfo).closeInLoop()
		e = next
	}
	if err := l.wake.Close(); err != nil {
		klog.Debug("loop shutdown: wakeup close: %v", err)
	}
	return l.sel.Close()
}

// addRef registers a freshly constructed or migrated channel reference
// with this loop's selector and active list.
func (l *Loop) addRef(ref *refInfo) error {
	if err := l.sel.Add(ref.ch.fd(), toSelectorMask(ref.mask), ref); err != nil {
		return err
	}
	ref.loop = l
	ref.elem = l.active.PushBack(ref)
	l.refs[ref.ch.fd()] = ref
	l.refCount.Add(1)
	return nil
}

// removeRef unregisters ref from the selector and active list. Called once
// from the close path.
func (l *Loop) removeRef(ref *refInfo) {
	if ref.elem != nil {
		l.active.Remove(ref.elem)
		ref.elem = nil
		l.refCount.Add(-1)
	}
	delete(l.refs, ref.ch.fd())
	if err := l.sel.Remove(ref.ch.fd()); err != nil {
		klog.Debug("[%d] selector remove: %v", ref.id, err)
	}
}

// watch adds bits to ref's registered event mask, only calling into the
// selector for the bits not already watched.
func (l *Loop) watch(ref *refInfo, mask eventMask) {
	add := mask &^ ref.mask
	if add == 0 {
		return
	}
	if err := l.sel.EventAdd(ref.ch.fd(), toSelectorMask(add)); err != nil {
		klog.Error("[%d] watch failed: %v", ref.id, err)
		return
	}
	ref.mask |= add
}

// unwatch clears bits from ref's registered event mask.
func (l *Loop) unwatch(ref *refInfo, mask eventMask) {
	rm := mask & ref.mask
	if rm == 0 {
		return
	}
	if err := l.sel.EventRemove(ref.ch.fd(), toSelectorMask(rm)); err != nil {
		klog.Error("[%d] unwatch failed: %v", ref.id, err)
		return
	}
	ref.mask &^= rm
}

// notifySend posts a cross-goroutine write request to this loop's inbox.
func (l *Loop) notifySend(ref *refInfo, data []byte) {
	l.pushInbox(inboxMsg{kind: inboxSend, ref: ref, data: data})
}

// notifyClose posts a cross-goroutine close request to this loop's inbox.
func (l *Loop) notifyClose(ref *refInfo) {
	l.pushInbox(inboxMsg{kind: inboxClose, ref: ref})
}

// notifyAccept posts a migrated child channel reference to this loop's
// inbox; the receiving loop finishes registration on its own goroutine.
func (l *Loop) notifyAccept(child *refInfo) {
	l.pushInbox(inboxMsg{kind: inboxAccept, ref: child})
}

func (l *Loop) pushInbox(msg inboxMsg) {
	l.inboxMu.Lock()
	l.inbox = append(l.inbox, msg)
	l.inboxMu.Unlock()
	l.wake.Signal()
}

func (l *Loop) drainInbox() {
	l.inboxMu.Lock()
	msgs := l.inbox
	l.inbox = nil
	l.inboxMu.Unlock()

	for _, m := range msgs {
		switch m.kind {
		case inboxSend:
			m.ref.writeInLoop(m.data)
		case inboxClose:
			m.ref.closeInLoop()
		case inboxAccept:
			m.ref.state.Store(StateActive)
			if err := l.addRef(m.ref); err != nil {
				klog.Error("[%d] accept migration registration failed: %v", m.ref.id, err)
				m.ref.ch.close()
				continue
			}
			safeInvoke(m.ref.handle(), m.ref.cb, EventAccept)
		}
	}
}

func toSelectorMask(m eventMask) selector.EventMask {
	var out selector.EventMask
	if m&maskRecv != 0 {
		out |= selector.EventRecv
	}
	if m&maskSend != 0 {
		out |= selector.EventSend
	}
	return out
}

func fromSelectorMask(m selector.EventMask) eventMask {
	var out eventMask
	if m&selector.EventRecv != 0 {
		out |= maskRecv
	}
	if m&selector.EventSend != 0 {
		out |= maskSend
	}
	return out
}
