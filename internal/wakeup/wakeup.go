//go:build unix

// Package wakeup provides the loop's self-pipe: a connected local socket
// pair used to interrupt a blocking selector.Poll from any goroutine.
package wakeup

import "github.com/tcploop/knet/internal/sock"

// Pipe is one end-pair of a local socket used purely for wakeups; the
// payload byte carries no meaning, only its arrival does.
type Pipe struct {
	reader *sock.Socket
	writer *sock.Socket
}

// New creates a connected pair of non-blocking local sockets.
func New() (*Pipe, error) {
	a, b, err := sock.Pair()
	if err != nil {
		return nil, err
	}
	return &Pipe{reader: a, writer: b}, nil
}

// FD returns the file descriptor the loop should register for readability
// with its selector.
func (p *Pipe) FD() int { return p.reader.FD }

// Signal wakes up a goroutine blocked in Poll. Safe to call from any
// goroutine, including the owning loop's own.
func (p *Pipe) Signal() {
	p.writer.Send([]byte{1})
}

// Drain empties the pipe after a wakeup so repeated wakeups don't pile up
// unread bytes; it never blocks on a non-blocking fd.
func (p *Pipe) Drain() {
	buf := make([]byte, 64)
	for {
		n, err := p.reader.Recv(buf)
		if err != nil || n <= 0 {
			return
		}
	}
}

// Close releases both ends of the pair.
func (p *Pipe) Close() error {
	err1 := p.reader.Close()
	err2 := p.writer.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
