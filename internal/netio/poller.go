package netio

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// PollEventKind classifies a readiness notification.
type PollEventKind int

const (
	Accept PollEventKind = iota
	Read
	Write
)

// PollEvent is one readiness notification for a registered token. Read and
// Write may both be reported for the same peer in the same Poll call.
type PollEvent struct {
	Kind  PollEventKind
	Token int
}

type tokenClass int

const (
	classListener tokenClass = iota
	classPeer
)

// Poller wraps a single Linux epoll instance (§4.6). Tokens are the raw
// file descriptors of the registered listener or peer; the Poller tracks
// which class each token belongs to so it can translate raw EPOLLIN/
// EPOLLOUT bits into the semantic Accept/Read/Write vocabulary the core
// consumes. The core itself is responsible for keeping listener and peer
// token sets disjoint, which holds automatically here since a token is a
// live fd and the kernel never hands out the same fd to two open files at
// once.
type Poller struct {
	epfd    int
	classes map[int]tokenClass
}

// NewPoller creates an empty epoll instance.
func NewPoller() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("netio: epoll_create1: %w", err)
	}
	return &Poller{epfd: epfd, classes: make(map[int]tokenClass)}, nil
}

// Close releases the epoll instance.
func (p *Poller) Close() {
	_ = unix.Close(p.epfd)
}

// RegisterListener registers token for Accept readiness only.
func (p *Poller) RegisterListener(token int) error {
	p.classes[token] = classListener
	return p.ctl(unix.EPOLL_CTL_ADD, token, unix.EPOLLIN)
}

// DeregisterListener removes token from the interest set.
func (p *Poller) DeregisterListener(token int) error {
	delete(p.classes, token)
	return p.ctl(unix.EPOLL_CTL_DEL, token, 0)
}

// RegisterPeer registers token for readable readiness only.
func (p *Poller) RegisterPeer(token int) error {
	p.classes[token] = classPeer
	return p.ctl(unix.EPOLL_CTL_ADD, token, unix.EPOLLIN)
}

// ReregisterPeer updates token's interest set: readable always, writable
// iff the peer still has pending outbound bytes.
func (p *Poller) ReregisterPeer(token int, writable bool) error {
	events := uint32(unix.EPOLLIN)
	if writable {
		events |= unix.EPOLLOUT
	}
	return p.ctl(unix.EPOLL_CTL_MOD, token, events)
}

// DeregisterPeer removes token from the interest set.
func (p *Poller) DeregisterPeer(token int) error {
	delete(p.classes, token)
	return p.ctl(unix.EPOLL_CTL_DEL, token, 0)
}

func (p *Poller) ctl(op int, token int, events uint32) error {
	event := unix.EpollEvent{Events: events, Fd: int32(token)}
	if err := unix.EpollCtl(p.epfd, op, token, &event); err != nil {
		return fmt.Errorf("netio: epoll_ctl: %w", err)
	}
	return nil
}

// Poll blocks for at most timeout waiting for readiness, appending
// translated events to out. EPOLLHUP and EPOLLERR are reported as Accept
// (listener) or Read (peer). Wake-ups carrying none of EPOLLIN, EPOLLOUT,
// EPOLLHUP or EPOLLERR, or for a token that is no longer registered, are
// silently discarded, per §4.6.
func (p *Poller) Poll(out []PollEvent, timeout time.Duration) ([]PollEvent, error) {
	raw := make([]unix.EpollEvent, 256)
	n, err := unix.EpollWait(p.epfd, raw, int(timeout/time.Millisecond))
	if err == unix.EINTR {
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("netio: epoll_wait: %w", err)
	}

	for i := 0; i < n; i++ {
		token := int(raw[i].Fd)
		class, known := p.classes[token]
		if !known {
			continue
		}

		events := raw[i].Events
		switch class {
		case classListener:
			if events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
				out = append(out, PollEvent{Kind: Accept, Token: token})
			}
		case classPeer:
			if events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
				out = append(out, PollEvent{Kind: Read, Token: token})
			}
			if events&unix.EPOLLOUT != 0 {
				out = append(out, PollEvent{Kind: Write, Token: token})
			}
		}
	}

	return out, nil
}
