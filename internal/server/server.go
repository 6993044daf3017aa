// Package server implements the single-threaded, readiness-driven event
// loop that owns every Peer and drives the App (§4.5). Grounded in
// original_source/src/net/server.rs for the loop's shape (poll, drain
// events, register/reregister, dispatch commands), adapted from the
// original's mio-based design onto internal/netio's epoll wrapper.
package server

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/miroslavkrysl/bssrv/internal/app"
	"github.com/miroslavkrysl/bssrv/internal/netio"
	"github.com/miroslavkrysl/bssrv/internal/proto"
	"github.com/miroslavkrysl/bssrv/internal/types"
)

const pollTimeout = time.Second

// Server owns the listener, the poller, every live Peer, and the App. It
// is not safe for concurrent use: exactly one goroutine ever calls Run.
type Server struct {
	cfg    Config
	logger zerolog.Logger

	listener *netio.Listener
	poller   *netio.Poller
	app      *app.App

	peersById map[types.PeerId]*netio.Peer
	idsByFd   map[int]types.PeerId
}

// New binds the listening socket and poller but does not start the loop.
func New(cfg Config, a *app.App, logger zerolog.Logger) (*Server, error) {
	listener, err := netio.Listen(cfg.IP, cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	poller, err := netio.NewPoller()
	if err != nil {
		listener.Close()
		return nil, fmt.Errorf("server: %w", err)
	}

	if err := poller.RegisterListener(listener.Fd()); err != nil {
		listener.Close()
		poller.Close()
		return nil, fmt.Errorf("server: %w", err)
	}

	return &Server{
		cfg:       cfg,
		logger:    logger,
		listener:  listener,
		poller:    poller,
		app:       a,
		peersById: make(map[types.PeerId]*netio.Peer),
		idsByFd:   make(map[int]types.PeerId),
	}, nil
}

// Addr returns the bound local address.
func (s *Server) Addr() string { return s.listener.Addr().String() }

func (s *Server) uniquePeerId() types.PeerId {
	for {
		id := types.PeerId(types.RandomUint64())
		if _, exists := s.peersById[id]; !exists {
			return id
		}
	}
}

type inboundMessage struct {
	peerId types.PeerId
	msg    proto.ClientMessage
}

// Run executes the event loop until shutdown is observed (set-only from
// the signal handler, read-only here) and every pending iteration of
// cleanup has completed. It returns once the final Disconnect broadcast
// has been dispatched.
func (s *Server) Run(shutdown *atomic.Bool) error {
	defer s.poller.Close()
	defer s.listener.Close()

	events := make([]netio.PollEvent, 0, 256)

	for {
		var err error
		events, err = s.poller.Poll(events[:0], pollTimeout)
		if err != nil {
			return fmt.Errorf("server: poll: %w", err)
		}

		var staged []*netio.Peer
		closed := make(map[types.PeerId]bool)
		dirty := make(map[types.PeerId]bool)
		var inbound []inboundMessage

		for _, ev := range events {
			switch ev.Kind {
			case netio.Accept:
				s.drainAccepts(&staged)
			case netio.Read:
				peerId, ok := s.idsByFd[ev.Token]
				if !ok {
					continue
				}
				peer := s.peersById[peerId]
				messages, perr := peer.DoRead()
				if perr != nil {
					s.logger.Debug().Uint64("peer_id", uint64(peerId)).Err(perr).Msg("peer read failed, closing")
					closed[peerId] = true
					continue
				}
				for _, m := range messages {
					inbound = append(inbound, inboundMessage{peerId: peerId, msg: m})
				}
			case netio.Write:
				peerId, ok := s.idsByFd[ev.Token]
				if !ok {
					continue
				}
				peer := s.peersById[peerId]
				if perr := peer.DoWrite(); perr != nil {
					s.logger.Debug().Uint64("peer_id", uint64(peerId)).Err(perr).Msg("peer write failed, closing")
					closed[peerId] = true
				} else {
					// Buffer may have drained; reregistration in step 11 drops
					// EPOLLOUT once HasPendingWrites()==false. Without this the
					// level-triggered socket keeps firing Write readiness forever.
					dirty[peerId] = true
				}
			}
		}

		shuttingDown := shutdown.Load()

		for _, peer := range staged {
			id := s.uniquePeerId()
			s.peersById[id] = peer
			s.idsByFd[peer.Fd()] = id
			if err := s.poller.RegisterPeer(peer.Fd()); err != nil {
				s.logger.Warn().Err(err).Msg("failed to register accepted peer")
				closed[id] = true
			}
		}

		now := time.Now()
		for id, peer := range s.peersById {
			if closed[id] {
				continue
			}
			if now.Sub(peer.LastActive()) >= s.cfg.PeerTimeout {
				closed[id] = true
			}
		}

		var commands []app.Command
		for id := range closed {
			peer, ok := s.peersById[id]
			if !ok {
				continue
			}
			_ = s.poller.DeregisterPeer(peer.Fd())
			peer.Close()
			delete(s.peersById, id)
			delete(s.idsByFd, peer.Fd())
			commands = append(commands, s.app.HandleOffline(id)...)
		}

		for _, m := range inbound {
			commands = append(commands, s.app.HandleMessage(m.peerId, m.msg)...)
		}

		commands = append(commands, s.app.HandleCleanup(now)...)

		terminate := false
		if shuttingDown {
			commands = append(commands, s.app.HandleShutdown()...)
			terminate = true
		}

		for _, cmd := range commands {
			switch c := cmd.(type) {
			case app.SendMessage:
				if peer, ok := s.peersById[c.PeerId]; ok {
					peer.AddMessage(c.Message)
					dirty[c.PeerId] = true
				}
			case app.ClosePeer:
				if peer, ok := s.peersById[c.PeerId]; ok {
					_ = s.poller.DeregisterPeer(peer.Fd())
					peer.Close()
					delete(s.peersById, c.PeerId)
					delete(s.idsByFd, peer.Fd())
				}
			}
		}

		for id := range dirty {
			peer, ok := s.peersById[id]
			if !ok {
				continue
			}
			if err := s.poller.ReregisterPeer(peer.Fd(), peer.HasPendingWrites()); err != nil {
				s.logger.Warn().Err(err).Uint64("peer_id", uint64(id)).Msg("failed to reregister peer")
			}
		}

		if terminate {
			s.flushAll()
			return nil
		}
	}
}

// flushAll drains every bound peer's outbound buffer to its socket. Called
// before the loop returns so commands queued in the final iteration (in
// particular HandleShutdown's Disconnect broadcast) actually reach the wire
// instead of sitting in Serializer buffers that nothing will ever flush.
func (s *Server) flushAll() {
	for id, peer := range s.peersById {
		if err := peer.DoWrite(); err != nil {
			s.logger.Debug().Uint64("peer_id", uint64(id)).Err(err).Msg("peer write failed during shutdown flush")
		}
	}
}

// drainAccepts pulls every pending connection off the listener's backlog;
// a single Accept readiness event can represent more than one waiting
// connection. A persistent (non-EAGAIN/EINTR) error stops the drain for
// this event instead of retrying forever against a backlog entry the
// kernel keeps handing back, e.g. EMFILE under fd exhaustion.
func (s *Server) drainAccepts(staged *[]*netio.Peer) {
	for {
		peer, err := s.listener.Accept()
		if err != nil {
			s.logger.Warn().Err(err).Msg("accept failed")
			return
		}
		if peer == nil {
			return
		}
		*staged = append(*staged, peer)
	}
}
