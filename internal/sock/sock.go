//go:build unix

// Package sock is the platform socket adapter: uniform non-blocking TCP
// primitives over the POSIX socket API via golang.org/x/sys/unix. It is the
// only package in this module that calls into the kernel directly.
//
// The Send/Recv contract matches the original C adapter exactly: a positive
// return is bytes moved, 0 is a soft would-block, -1 is a fatal error. Recv
// returning 0 bytes from the kernel (peer performed an orderly shutdown) is
// remapped to -1, since a 0-byte read from the kernel can never be confused
// with a genuine would-block at this layer.
package sock

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Socket wraps one non-blocking TCP file descriptor.
type Socket struct {
	FD int
}

// Create opens a new non-blocking TCP socket, unbound and unconnected.
func Create() (*Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("sock: create: %w", err)
	}
	s := &Socket{FD: fd}
	if err := s.SetNonBlocking(); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return s, nil
}

// FromFD wraps an already-open fd (used by the accept path).
func FromFD(fd int) *Socket { return &Socket{FD: fd} }

// Connect initiates a non-blocking connect. Transient conditions
// (EINPROGRESS, EINTR, EISCONN, EAGAIN/EWOULDBLOCK) are not errors — the
// caller awaits writability to learn the outcome.
func (s *Socket) Connect(ip string, port int) error {
	sa, err := sockaddr(ip, port)
	if err != nil {
		return err
	}
	err = unix.Connect(s.FD, sa)
	if err == nil || isTransient(err) || err == unix.EISCONN {
		return nil
	}
	return fmt.Errorf("sock: connect: %w", err)
}

// BindAndListen binds to ip:port (INADDR_ANY if ip is empty), always
// setting SO_REUSEADDR and disabling linger first, then listens with the
// given backlog.
func (s *Socket) BindAndListen(ip string, port, backlog int) error {
	if err := s.Bind(ip, port); err != nil {
		return err
	}
	return s.Listen(backlog)
}

// Bind sets SO_REUSEADDR, disables linger, and binds to ip:port.
func (s *Socket) Bind(ip string, port int) error {
	if err := s.SetReuseAddr(); err != nil {
		return err
	}
	if err := s.SetLingerOff(); err != nil {
		return err
	}
	sa, err := sockaddr(ip, port)
	if err != nil {
		return err
	}
	if err := unix.Bind(s.FD, sa); err != nil {
		return fmt.Errorf("sock: bind: %w", err)
	}
	return nil
}

// Listen marks an already-bound socket as passive with the given backlog.
func (s *Socket) Listen(backlog int) error {
	if err := unix.Listen(s.FD, backlog); err != nil {
		return fmt.Errorf("sock: listen: %w", err)
	}
	return nil
}

// Accept accepts one pending connection as a new non-blocking Socket.
// Returns (nil, nil) on a transient would-block condition.
func (s *Socket) Accept() (*Socket, error) {
	fd, _, err := unix.Accept(s.FD)
	if err != nil {
		if isTransient(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("sock: accept: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("sock: accept: %w", err)
	}
	return &Socket{FD: fd}, nil
}

// SetNonBlocking puts the fd into non-blocking mode.
func (s *Socket) SetNonBlocking() error {
	return unix.SetNonblock(s.FD, true)
}

// Close closes the underlying fd. Safe to call once; a second call
// returns the kernel's EBADF wrapped as an error.
func (s *Socket) Close() error {
	return unix.Close(s.FD)
}

// SetNagleOff sets TCP_NODELAY.
func (s *Socket) SetNagleOff() error {
	return unix.SetsockoptInt(s.FD, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
}

// SetKeepaliveOff disables SO_KEEPALIVE.
func (s *Socket) SetKeepaliveOff() error {
	return unix.SetsockoptInt(s.FD, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 0)
}

// SetDoNotRouteOn sets SO_DONTROUTE.
func (s *Socket) SetDoNotRouteOn() error {
	return unix.SetsockoptInt(s.FD, unix.SOL_SOCKET, unix.SO_DONTROUTE, 1)
}

// SetRecvBufferSize sets SO_RCVBUF.
func (s *Socket) SetRecvBufferSize(n int) error {
	return unix.SetsockoptInt(s.FD, unix.SOL_SOCKET, unix.SO_RCVBUF, n)
}

// SetSendBufferSize sets SO_SNDBUF.
func (s *Socket) SetSendBufferSize(n int) error {
	return unix.SetsockoptInt(s.FD, unix.SOL_SOCKET, unix.SO_SNDBUF, n)
}

// SetReuseAddr sets SO_REUSEADDR.
func (s *Socket) SetReuseAddr() error {
	return unix.SetsockoptInt(s.FD, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

// SetLingerOff disables SO_LINGER.
func (s *Socket) SetLingerOff() error {
	return unix.SetsockoptLinger(s.FD, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 0, Linger: 0})
}

// Send writes data non-blockingly. Returns (>0, nil) for bytes written,
// (0, nil) for a soft would-block, (-1, err) for a fatal error.
func (s *Socket) Send(data []byte) (int, error) {
	n, err := unix.Write(s.FD, data)
	if err != nil {
		if isTransient(err) {
			return 0, nil
		}
		return -1, fmt.Errorf("sock: send: %w", err)
	}
	if n == 0 {
		return -1, fmt.Errorf("sock: send: zero bytes written")
	}
	return n, nil
}

// Recv reads into buf non-blockingly. A kernel-reported 0 (peer performed
// an orderly shutdown) is remapped to (-1, io.EOF-ish error) per the
// adapter's contract.
func (s *Socket) Recv(buf []byte) (int, error) {
	n, err := unix.Read(s.FD, buf)
	if err != nil {
		if isTransient(err) {
			return 0, nil
		}
		return -1, fmt.Errorf("sock: recv: %w", err)
	}
	if n == 0 {
		return -1, fmt.Errorf("sock: recv: peer closed connection")
	}
	return n, nil
}

// GetPeerName returns the remote address of a connected socket.
func (s *Socket) GetPeerName() (*net.TCPAddr, error) {
	sa, err := unix.Getpeername(s.FD)
	if err != nil {
		return nil, fmt.Errorf("sock: getpeername: %w", err)
	}
	return sockaddrToTCPAddr(sa)
}

// GetSockName returns the local address of a bound/connected socket.
func (s *Socket) GetSockName() (*net.TCPAddr, error) {
	sa, err := unix.Getsockname(s.FD)
	if err != nil {
		return nil, fmt.Errorf("sock: getsockname: %w", err)
	}
	return sockaddrToTCPAddr(sa)
}

// Pair creates a connected, non-blocking local socket pair used by a loop
// to wake itself from a blocking poll.
func Pair() (a, b *Socket, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("sock: socketpair: %w", err)
	}
	sa, sb := &Socket{FD: fds[0]}, &Socket{FD: fds[1]}
	if err := sa.SetNonBlocking(); err != nil {
		sa.Close()
		sb.Close()
		return nil, nil, err
	}
	if err := sb.SetNonBlocking(); err != nil {
		sa.Close()
		sb.Close()
		return nil, nil, err
	}
	return sa, sb, nil
}

func isTransient(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR || err == unix.EINPROGRESS
}

func sockaddr(ip string, port int) (unix.Sockaddr, error) {
	sa := &unix.SockaddrInet4{Port: port}
	if ip != "" {
		addr := net.ParseIP(ip)
		if addr == nil {
			return nil, fmt.Errorf("sock: invalid ip %q", ip)
		}
		addr4 := addr.To4()
		if addr4 == nil {
			return nil, fmt.Errorf("sock: %q is not an IPv4 address", ip)
		}
		copy(sa.Addr[:], addr4)
	}
	return sa, nil
}

func sockaddrToTCPAddr(sa unix.Sockaddr) (*net.TCPAddr, error) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}, nil
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}, nil
	default:
		return nil, fmt.Errorf("sock: unsupported sockaddr type %T", sa)
	}
}
