// Package netio implements the non-blocking peer I/O engine: a TCP
// listener, one Peer per connection, and a readiness Poller wrapping Linux
// epoll. Grounded in original_source/src/net/peer.rs and
// original_source/src/net/server.rs (mio-based in the original; this port
// drives golang.org/x/sys/unix directly, since the corpus carries no
// higher-level non-blocking TCP abstraction that the single-threaded
// readiness loop of spec §4.5/§4.6 could be built on — see DESIGN.md).
package netio

import (
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/miroslavkrysl/bssrv/internal/proto"
)

// Peer owns one non-blocking TCP stream: an inbound decoder, an outbound
// byte buffer, and activity tracking. Exclusively owned by the Server
// (§5); never touched from more than one goroutine.
type Peer struct {
	fd      int
	addr    net.Addr
	decoder proto.Decoder
	out     proto.Serializer

	lastActive time.Time
}

// NewPeer wraps an already-accepted, already-nonblocking connection fd.
func NewPeer(fd int, addr net.Addr) *Peer {
	return &Peer{
		fd:         fd,
		addr:       addr,
		lastActive: time.Now(),
	}
}

// Fd returns the underlying file descriptor, used as the poller token.
func (p *Peer) Fd() int { return p.fd }

// Address returns the peer's remote socket address.
func (p *Peer) Address() net.Addr { return p.addr }

// LastActive returns the instant of the last successful read or write.
func (p *Peer) LastActive() time.Time { return p.lastActive }

// AddMessage encodes message and appends it to the outbound buffer
// immediately; bytes are drained lazily by DoWrite.
func (p *Peer) AddMessage(message proto.ServerMessage) {
	p.out.Put(message)
}

// HasPendingWrites reports whether DoWrite has bytes left to drain, which
// determines whether the peer needs writable interest registered.
func (p *Peer) HasPendingWrites() bool {
	return p.out.HasBytes()
}

// DoRead drains the socket until WouldBlock, feeding bytes through the
// decoder, and returns every message completed since the previous call.
func (p *Peer) DoRead() ([]proto.ClientMessage, *PeerError) {
	buf := make([]byte, 4096)
	for {
		n, err := unix.Read(p.fd, buf)
		if n > 0 {
			p.lastActive = time.Now()
			if derr := p.decoder.Decode(buf[:n]); derr != nil {
				return nil, deserializationError(derr.(*proto.DeserializeError))
			}
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			break
		}
		if err != nil {
			return nil, closedError(err)
		}
		if n == 0 {
			return nil, closedError(nil)
		}
	}
	return p.decoder.TakeMessages(), nil
}

// DoWrite drains as much of the outbound buffer as the socket accepts
// without blocking. A WouldBlock ends the call successfully; the
// remaining bytes stay queued for the next writable readiness event.
func (p *Peer) DoWrite() *PeerError {
	for p.out.HasBytes() {
		n, err := unix.Write(p.fd, p.out.Bytes())
		if n > 0 {
			p.out.Clear(n)
			p.lastActive = time.Now()
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return nil
		}
		if err != nil {
			return closedError(err)
		}
	}
	return nil
}

// Close makes a best-effort attempt to close the underlying stream.
func (p *Peer) Close() {
	_ = unix.Close(p.fd)
}
