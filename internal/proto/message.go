package proto

import "github.com/miroslavkrysl/bssrv/internal/types"

// ClientMessage is a message received from a peer. Concrete types are the
// seven inbound headers of §6: alive, login, join_game, layout, shoot,
// leave_game, logout.
type ClientMessage interface {
	clientMessage()
}

type Alive struct{}

func (Alive) clientMessage() {}

type Login struct {
	Nickname types.Nickname
}

func (Login) clientMessage() {}

type JoinGame struct{}

func (JoinGame) clientMessage() {}

type SubmitLayout struct {
	Layout types.Layout
}

func (SubmitLayout) clientMessage() {}

type Shoot struct {
	Position types.Position
}

func (Shoot) clientMessage() {}

type LeaveGame struct{}

func (LeaveGame) clientMessage() {}

type Logout struct{}

func (Logout) clientMessage() {}

// ServerMessage is a message sent to a peer. Concrete types cover the
// outbound vocabulary of §6.
type ServerMessage interface {
	serverMessage()
}

type IllegalState struct{}

func (IllegalState) serverMessage() {}

type AliveOk struct{}

func (AliveOk) serverMessage() {}

type LoginOk struct{}

func (LoginOk) serverMessage() {}

type LoginRestored struct {
	State RestoreState
}

func (LoginRestored) serverMessage() {}

type LoginFull struct{}

func (LoginFull) serverMessage() {}

type LoginTaken struct{}

func (LoginTaken) serverMessage() {}

type JoinGameWait struct{}

func (JoinGameWait) serverMessage() {}

type JoinGameOk struct {
	OpponentNickname types.Nickname
}

func (JoinGameOk) serverMessage() {}

type LayoutOk struct{}

func (LayoutOk) serverMessage() {}

type LayoutFail struct{}

func (LayoutFail) serverMessage() {}

type ShootHit struct{}

func (ShootHit) serverMessage() {}

type ShootMissed struct{}

func (ShootMissed) serverMessage() {}

type ShootSunk struct {
	Kind      types.ShipKind
	Placement types.Placement
}

func (ShootSunk) serverMessage() {}

type LeaveGameOk struct{}

func (LeaveGameOk) serverMessage() {}

type LogoutOk struct{}

func (LogoutOk) serverMessage() {}

type Disconnect struct{}

func (Disconnect) serverMessage() {}

type OpponentJoined struct {
	Nickname types.Nickname
}

func (OpponentJoined) serverMessage() {}

type OpponentReady struct{}

func (OpponentReady) serverMessage() {}

type OpponentOffline struct{}

func (OpponentOffline) serverMessage() {}

type OpponentLeft struct{}

func (OpponentLeft) serverMessage() {}

type OpponentMissed struct {
	Position types.Position
}

func (OpponentMissed) serverMessage() {}

type OpponentHit struct {
	Position types.Position
}

func (OpponentHit) serverMessage() {}

type GameOver struct {
	Who types.Who
}

func (GameOver) serverMessage() {}

// RestoreState is the snapshot emitted on successful reconnect.
type RestoreState interface {
	restoreState()
}

// RestoreLobby means the reconnecting player is registered but not in a
// game (and may or may not be pending).
type RestoreLobby struct{}

func (RestoreLobby) restoreState() {}

// RestoreGame describes both boards' visible state and the opponent's sunk
// ships for a reconnecting player mid-match.
type RestoreGame struct {
	OpponentNickname types.Nickname
	OnTurn           types.Who
	PlayerHits       []types.Position
	PlayerMisses     []types.Position
	PlayerLayout     types.Layout
	OpponentHits     []types.Position
	OpponentMisses   []types.Position
	SunkShips        map[types.ShipKind]types.Placement
}

func (RestoreGame) restoreState() {}
