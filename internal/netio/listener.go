package netio

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Listener wraps a non-blocking TCP listening socket created with raw
// syscalls, so its file descriptor can be registered directly with the
// Poller alongside peer fds.
type Listener struct {
	fd   int
	addr *net.TCPAddr
}

// Listen binds and starts listening on ip:port in non-blocking mode.
func Listen(ip net.IP, port uint16) (*Listener, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("netio: socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netio: setsockopt SO_REUSEADDR: %w", err)
	}

	sa := &unix.SockaddrInet4{Port: int(port)}
	copy(sa.Addr[:], ip.To4())

	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netio: bind %s:%d: %w", ip, port, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netio: listen: %w", err)
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netio: getsockname: %w", err)
	}
	boundAddr, ok := sockaddrToAddr(bound).(*net.TCPAddr)
	if !ok {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netio: unexpected bound address type %T", bound)
	}

	return &Listener{fd: fd, addr: boundAddr}, nil
}

// Fd returns the listening socket's file descriptor, used as the poller
// token for Accept readiness events.
func (l *Listener) Fd() int { return l.fd }

// Addr returns the bound local address.
func (l *Listener) Addr() *net.TCPAddr { return l.addr }

// Accept takes one pending connection without blocking. It returns no
// error and a nil Peer once the backlog is exhausted (EAGAIN); any other
// failure is returned so the caller can log it without killing the
// listener, since one bad accept must not take the server down.
func (l *Listener) Accept() (*Peer, error) {
	for {
		connFd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("netio: accept: %w", err)
		}
		return NewPeer(connFd, sockaddrToAddr(sa)), nil
	}
}

// Close shuts down the listening socket.
func (l *Listener) Close() {
	_ = unix.Close(l.fd)
}

func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, net.IPv4len)
		copy(ip, a.Addr[:])
		return &net.TCPAddr{IP: ip, Port: a.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, a.Addr[:])
		return &net.TCPAddr{IP: ip, Port: a.Port}
	default:
		return nil
	}
}
