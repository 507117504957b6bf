package knet

import "github.com/tcploop/knet/internal/klog"

// Event identifies the kind of lifecycle event delivered to a Callback.
type Event int

const (
	EventAccept Event = iota
	EventConnect
	EventRecv
	EventSend
	EventClose
)

func (e Event) String() string {
	switch e {
	case EventAccept:
		return "accept"
	case EventConnect:
		return "connect"
	case EventRecv:
		return "recv"
	case EventSend:
		return "send"
	case EventClose:
		return "close"
	default:
		return "unknown event"
	}
}

// Callback is the single user-supplied function invoked for every
// lifecycle event of a ChannelRef. It always runs on the ChannelRef's
// owning Loop goroutine and may call any ChannelRef operation, including
// on other channel references owned by the same Loop.
type Callback func(ref *ChannelRef, event Event)

// safeInvoke calls cb, recovering any panic and converting it into a
// close of ref — user callbacks must never be able to bring down a loop.
func safeInvoke(ref *ChannelRef, cb Callback, event Event) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			klog.Error("[%d] callback panicked on event %s: %v", ref.id(), event, r)
			ref.closeInLoop()
		}
	}()
	cb(ref, event)
}
