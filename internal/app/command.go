package app

import (
	"github.com/miroslavkrysl/bssrv/internal/proto"
	"github.com/miroslavkrysl/bssrv/internal/types"
)

// Command is an outbound effect the server loop must carry out after
// handling an event: either deliver a message to a peer, or close one.
type Command interface {
	command()
}

// SendMessage queues message on the peer identified by PeerId.
type SendMessage struct {
	PeerId  types.PeerId
	Message proto.ServerMessage
}

func (SendMessage) command() {}

// ClosePeer deregisters and closes the peer identified by PeerId.
type ClosePeer struct {
	PeerId types.PeerId
}

func (ClosePeer) command() {}
