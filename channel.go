package knet

import (
	"net"

	"github.com/tcploop/knet/internal/ringbuf"
	"github.com/tcploop/knet/internal/sendqueue"
	"github.com/tcploop/knet/internal/sock"
)

// ioResult classifies the outcome of a socket I/O attempt so callers can
// decide the next state transition without re-deriving it from an error.
type ioResult int

const (
	ioWouldBlock ioResult = iota
	ioProgress
	ioFatal
)

// channel is the raw, non-blocking I/O half of a connection: one socket,
// one recv accumulator, one send queue. It never touches loop state or
// callbacks directly — ChannelRef owns the state machine around it.
//
// channel is not safe for concurrent use; all methods are expected to run
// on the owning loop's goroutine.
type channel struct {
	sock *sock.Socket
	recv *ringbuf.Ring
	send *sendqueue.Queue

	connected bool
	listening bool
}

// newChannel creates a fresh, unconnected, non-blocking TCP channel.
func newChannel(maxSendQueueLen, maxRingCapacity int) (*channel, error) {
	s, err := sock.Create()
	if err != nil {
		return nil, err
	}
	return newChannelFromSocket(s, maxSendQueueLen, maxRingCapacity), nil
}

// newChannelFromFD wraps an fd obtained elsewhere (accept, socketpair) as a
// channel, e.g. a socket produced by sock.Socket.Accept.
func newChannelFromFD(fd int, maxSendQueueLen, maxRingCapacity int) *channel {
	return newChannelFromSocket(sock.FromFD(fd), maxSendQueueLen, maxRingCapacity)
}

func newChannelFromSocket(s *sock.Socket, maxSendQueueLen, maxRingCapacity int) *channel {
	return &channel{
		sock: s,
		recv: ringbuf.New(maxRingCapacity),
		send: sendqueue.New(maxSendQueueLen),
	}
}

// connect kicks off a non-blocking TCP connect. Completion (success or
// failure) is discovered by the owning loop watching the fd for writability.
func (c *channel) connect(ip string, port int) error {
	if err := c.sock.Connect(ip, port); err != nil {
		return ErrConnectFail
	}
	return nil
}

// listen binds and listens for incoming connections. Bind and listen
// failures are reported as distinct errors, matching the external error
// enumeration.
func (c *channel) listen(ip string, port, backlog int) error {
	if err := c.sock.Bind(ip, port); err != nil {
		return ErrBindFail
	}
	if err := c.sock.Listen(backlog); err != nil {
		return ErrListenFail
	}
	c.listening = true
	return nil
}

// accept pulls one pending connection off a listening channel. A nil
// *sock.Socket with a nil error means no connection was pending.
func (c *channel) accept() (*sock.Socket, error) {
	s, err := c.sock.Accept()
	if err != nil {
		return nil, ErrAcceptFail
	}
	return s, nil
}

// send attempts to write data immediately, returning how many bytes actually
// reached the kernel this call (the caller — which holds the loop's byte
// counters — is responsible for accounting it). If the socket cannot take
// all of it (or anything queues ahead of it already), the remainder is
// pushed onto the send queue for the loop to drain on future writability
// and the call reports ErrSendPartial — non-fatal, the channel stays active
// with the write-watch armed by the caller.
func (c *channel) send(data []byte) (ioResult, int, error) {
	if !c.send.Empty() {
		if err := c.send.Push(data); err != nil {
			return ioFatal, 0, ErrSendFail
		}
		return ioProgress, 0, ErrSendPartial
	}
	n, err := c.sock.Send(data)
	if err != nil {
		return ioFatal, 0, ErrSendFail
	}
	if n == len(data) {
		return ioProgress, n, nil
	}
	// Partial (including zero, would-block) write: queue the remainder.
	if err := c.send.Push(data[n:]); err != nil {
		return ioFatal, n, ErrSendFail
	}
	return ioProgress, n, ErrSendPartial
}

// drainSendQueue flushes as much of the queued send buffers as the socket
// will currently accept, returning the total bytes flushed this call.
// Returns ioProgress if the queue is now empty, ioWouldBlock if more remains
// queued, ioFatal on a hard socket error.
func (c *channel) drainSendQueue() (ioResult, int, error) {
	sent := 0
	for !c.send.Empty() {
		buf := c.send.Front()
		n, err := c.sock.Send(buf.Remaining())
		if err != nil {
			return ioFatal, sent, ErrSendFail
		}
		sent += n
		if n == 0 {
			return ioWouldBlock, sent, nil
		}
		buf.Advance(n)
		if !buf.Done() {
			return ioWouldBlock, sent, nil
		}
		c.send.Pop()
	}
	return ioProgress, sent, nil
}

// updateRecv reads as much as the socket currently offers into the recv
// ring, returning the total bytes read this call. Returns ioFatal on a hard
// error, including ErrRecvBufferFull when the ring has no room left for
// more data the kernel already delivered.
func (c *channel) updateRecv() (ioResult, int, error) {
	scratch := make([]byte, 64*1024)
	total := 0
	for {
		if c.recv.Free() == 0 {
			return ioFatal, total, ErrRecvBufferFull
		}
		n, err := c.sock.Recv(scratch)
		if err != nil {
			return ioFatal, total, ErrRecvFail
		}
		if n == 0 {
			break
		}
		if _, err := c.recv.Write(scratch[:n]); err != nil {
			return ioFatal, total, ErrRecvBufferFull
		}
		total += n
		if n < len(scratch) {
			break
		}
	}
	if total > 0 {
		return ioProgress, total, nil
	}
	return ioWouldBlock, total, nil
}

// pendingSend reports whether there is anything left for the loop to flush.
func (c *channel) pendingSend() bool { return !c.send.Empty() }

func (c *channel) peerName() (*net.TCPAddr, error) {
	addr, err := c.sock.GetPeerName()
	if err != nil {
		return nil, ErrGetPeerNameFail
	}
	return addr, nil
}

func (c *channel) localName() (*net.TCPAddr, error) {
	return c.sock.GetSockName()
}

func (c *channel) fd() int { return c.sock.FD }

func (c *channel) close() error {
	return c.sock.Close()
}
