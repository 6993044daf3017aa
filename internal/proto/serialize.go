package proto

import (
	"fmt"

	"github.com/miroslavkrysl/bssrv/internal/types"
)

func putPosition(p *Payload, pos types.Position) {
	p.PutInt(int(pos.Row))
	p.PutInt(int(pos.Col))
}

func putPlacement(p *Payload, pl types.Placement) {
	putPosition(p, pl.Anchor)
	p.PutString(pl.Orientation.String())
}

// putHits serializes a Hits item: <count>;<r>;<c>;...
func putHits(p *Payload, positions []types.Position) {
	p.PutInt(len(positions))
	for _, pos := range positions {
		putPosition(p, pos)
	}
}

// putShipsPlacements serializes a ShipsPlacements item:
// <count>;<kind>;<r>;<c>;<orient>;...
func putShipsPlacements(p *Payload, ships map[types.ShipKind]types.Placement) {
	p.PutInt(len(ships))
	for _, kind := range types.AllShipKinds {
		placement, ok := ships[kind]
		if !ok {
			continue
		}
		p.PutString(kind.Code())
		putPlacement(p, placement)
	}
}

func putRestoreState(p *Payload, state RestoreState) {
	switch s := state.(type) {
	case RestoreLobby:
		p.PutString("lobby")
	case RestoreGame:
		p.PutString("game")
		p.PutString(s.OpponentNickname.String())
		p.PutString(s.OnTurn.String())
		putHits(p, s.PlayerHits)
		putHits(p, s.PlayerMisses)
		putShipsPlacements(p, s.PlayerLayout)
		putHits(p, s.OpponentHits)
		putHits(p, s.OpponentMisses)
		putShipsPlacements(p, s.SunkShips)
	default:
		panic("proto: unknown RestoreState variant")
	}
}

// SerializeMessage renders a ServerMessage as "header[:payload]" without a
// terminator; Serializer.Put escapes embedded newlines and appends the
// terminator.
func SerializeMessage(m ServerMessage) string {
	payload := NewPayload()
	var header string

	switch msg := m.(type) {
	case IllegalState:
		header = "illegal_state"
	case AliveOk:
		header = "alive_ok"
	case LoginOk:
		header = "login_ok"
	case LoginRestored:
		header = "login_restored"
		putRestoreState(payload, msg.State)
	case LoginFull:
		header = "login_full"
	case LoginTaken:
		header = "login_taken"
	case JoinGameWait:
		header = "join_game_wait"
	case JoinGameOk:
		header = "join_game_ok"
		payload.PutString(msg.OpponentNickname.String())
	case LayoutOk:
		header = "layout_ok"
	case LayoutFail:
		header = "layout_fail"
	case ShootHit:
		header = "shoot_hit"
	case ShootMissed:
		header = "shoot_missed"
	case ShootSunk:
		header = "shoot_sunk"
		payload.PutString(msg.Kind.Code())
		putPlacement(payload, msg.Placement)
	case LeaveGameOk:
		header = "leave_game_ok"
	case LogoutOk:
		header = "logout_ok"
	case Disconnect:
		header = "disconnect"
	case OpponentJoined:
		header = "opponent_joined"
		payload.PutString(msg.Nickname.String())
	case OpponentReady:
		header = "opponent_ready"
	case OpponentOffline:
		header = "opponent_offline"
	case OpponentLeft:
		header = "opponent_left"
	case OpponentMissed:
		header = "opponent_missed"
		putPosition(payload, msg.Position)
	case OpponentHit:
		header = "opponent_hit"
		putPosition(payload, msg.Position)
	case GameOver:
		header = "game_over"
		payload.PutString(msg.Who.String())
	default:
		panic(fmt.Sprintf("proto: unknown ServerMessage variant %T", m))
	}

	if serialized, ok := payload.Serialize(); ok {
		return header + string(PayloadStart) + serialized
	}
	return header
}

// Serializer owns a peer's outbound byte buffer. Put encodes a message and
// appends it; Bytes/Clear implement the partial-write drain protocol of
// §4.1's Encoder.
type Serializer struct {
	buffer []byte
}

// Put encodes message, escapes any literal MessageEnd within it, appends
// the frame terminator, and extends the outbound byte buffer.
func (s *Serializer) Put(message ServerMessage) {
	serialized := SerializeMessage(message)
	escaped := escapeChars(serialized, []rune{MessageEnd}, Escape)
	s.buffer = append(s.buffer, []byte(escaped)...)
	s.buffer = append(s.buffer, byte(MessageEnd))
}

// HasBytes reports whether any outbound bytes are queued.
func (s *Serializer) HasBytes() bool { return len(s.buffer) > 0 }

// Bytes returns the queued outbound bytes.
func (s *Serializer) Bytes() []byte { return s.buffer }

// Clear drops the first n bytes (already written to the socket), clamping
// n to the buffer length.
func (s *Serializer) Clear(n int) {
	if n >= len(s.buffer) {
		s.buffer = s.buffer[:0]
		return
	}
	s.buffer = s.buffer[n:]
}
