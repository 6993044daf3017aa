// Package game implements the per-match state machine: layout submission,
// shot resolution, sinking detection, turn flipping and victory. Grounded
// in original_source/src/game.rs (the complete, authoritative draft — not
// the earlier, stubbed-out original_source/src/game/game.rs).
package game

import (
	"fmt"

	"github.com/miroslavkrysl/bssrv/internal/types"
)

// GameErrorKind classifies a rejected Game operation.
type GameErrorKind int

const (
	AlreadyHasLayout GameErrorKind = iota
	InvalidLayout
	NotOnTurn
)

func (k GameErrorKind) String() string {
	switch k {
	case AlreadyHasLayout:
		return "already has layout"
	case InvalidLayout:
		return "invalid layout"
	case NotOnTurn:
		return "not on turn"
	default:
		return "unknown"
	}
}

// GameError reports why a Game operation was rejected.
type GameError struct {
	Kind GameErrorKind
}

func (e *GameError) Error() string { return e.Kind.String() }

func newGameError(kind GameErrorKind) *GameError { return &GameError{Kind: kind} }

// ShootResultKind classifies the outcome of a shot.
type ShootResultKind int

const (
	Missed ShootResultKind = iota
	Hit
	Sunk
)

// ShootResult is the outcome of a Shoot call. ShipKind and Placement are
// only meaningful when Kind == Sunk.
type ShootResult struct {
	Kind      ShootResultKind
	ShipKind  types.ShipKind
	Placement types.Placement
}

// cellState is the per-cell visibility state of a board, as seen by the
// owner's opponent: a board only ever needs to distinguish "nothing has
// happened here", "missed", "hit", and "occupied by a live, unhit ship
// cell of this kind" — the last is never revealed directly to the
// opponent, only through Hit/Miss/Sunk outcomes.
type cellState int

const (
	cellEmpty cellState = iota
	cellMiss
	cellHit
	cellShip
)

type board struct {
	cells [types.BoardSize][types.BoardSize]cellState
	ships [types.BoardSize][types.BoardSize]types.ShipKind
}

func newBoard(layout types.Layout) board {
	var b board
	for kind, placement := range layout {
		cells, _ := placement.Cells(kind.Length())
		for _, c := range cells {
			b.cells[c.Row][c.Col] = cellShip
			b.ships[c.Row][c.Col] = kind
		}
	}
	return b
}

func (b *board) hits() []types.Position {
	return b.positionsWith(cellHit)
}

func (b *board) misses() []types.Position {
	return b.positionsWith(cellMiss)
}

func (b *board) positionsWith(state cellState) []types.Position {
	var positions []types.Position
	for r := 0; r < types.BoardSize; r++ {
		for c := 0; c < types.BoardSize; c++ {
			if b.cells[r][c] == state {
				positions = append(positions, types.Position{Row: uint8(r), Col: uint8(c)})
			}
		}
	}
	return positions
}

// fleet tracks remaining health per ship kind for one player.
type fleet map[types.ShipKind]int

func newFleet() fleet {
	f := make(fleet, len(types.AllShipKinds))
	for _, kind := range types.AllShipKinds {
		f[kind] = kind.Length()
	}
	return f
}

func (f fleet) allSunk() bool {
	for _, health := range f {
		if health > 0 {
			return false
		}
	}
	return true
}

// Phase identifies which of the three stages a Game is in. The original
// oscillated between a tagged sum type and a flags record; §9's design
// notes recommend the tagged-variant form, so Game itself reports its
// Phase rather than exposing raw optionals.
type Phase int

const (
	PhasePending Phase = iota
	PhaseLayouting
	PhasePlaying
)

// Game is a two-player match. It starts Pending with only the first
// player known, becomes Layouting once a second player joins, and becomes
// Playing once both layouts are submitted and valid.
type Game struct {
	firstPlayer  types.PlayerId
	secondPlayer types.PlayerId
	hasSecond    bool

	firstLayout  types.Layout
	secondLayout types.Layout

	firstBoard  board
	secondBoard board
	firstFleet  fleet
	secondFleet fleet

	onTurn types.PlayerId
	winner *types.PlayerId
}

// NewPending creates a Game with only its first player attached, waiting
// for a match.
func NewPending(firstPlayer types.PlayerId) *Game {
	return &Game{firstPlayer: firstPlayer}
}

// AddSecondPlayer attaches the second player, transitioning Pending to
// Layouting.
func (g *Game) AddSecondPlayer(secondPlayer types.PlayerId) {
	if g.hasSecond {
		panic("game: second player already attached")
	}
	g.secondPlayer = secondPlayer
	g.hasSecond = true
	g.onTurn = g.firstPlayer
}

// Phase reports which stage the game is in.
func (g *Game) Phase() Phase {
	if !g.hasSecond {
		return PhasePending
	}
	if g.firstLayout == nil || g.secondLayout == nil {
		return PhaseLayouting
	}
	return PhasePlaying
}

// Players returns both participants. Valid once Phase() != PhasePending.
func (g *Game) Players() (types.PlayerId, types.PlayerId) {
	return g.firstPlayer, g.secondPlayer
}

// HasPlayer reports whether player participates in this game.
func (g *Game) HasPlayer(player types.PlayerId) bool {
	return player == g.firstPlayer || (g.hasSecond && player == g.secondPlayer)
}

// OtherPlayer returns the game's other participant. Panics if player is
// neither of the two participants: a programmer error, per §4.3.
func (g *Game) OtherPlayer(player types.PlayerId) types.PlayerId {
	switch player {
	case g.firstPlayer:
		return g.secondPlayer
	case g.secondPlayer:
		return g.firstPlayer
	default:
		panic(fmt.Sprintf("game: player %d is not part of this game", player))
	}
}

// OnTurn returns the player currently entitled to shoot.
func (g *Game) OnTurn() types.PlayerId { return g.onTurn }

// Winner returns the winning player, if the game has ended.
func (g *Game) Winner() (types.PlayerId, bool) {
	if g.winner == nil {
		return 0, false
	}
	return *g.winner, true
}

// SetLayout validates and stores player's layout. Returns true once both
// players have submitted (the game has become Playing).
func (g *Game) SetLayout(player types.PlayerId, layout types.Layout) (bool, error) {
	if !g.HasPlayer(player) {
		panic(fmt.Sprintf("game: player %d is not part of this game", player))
	}

	isFirst := player == g.firstPlayer
	if isFirst && g.firstLayout != nil {
		return false, newGameError(AlreadyHasLayout)
	}
	if !isFirst && g.secondLayout != nil {
		return false, newGameError(AlreadyHasLayout)
	}

	if !layout.IsValid() {
		return false, newGameError(InvalidLayout)
	}

	if isFirst {
		g.firstLayout = layout
		g.firstBoard = newBoard(layout)
		g.firstFleet = newFleet()
	} else {
		g.secondLayout = layout
		g.secondBoard = newBoard(layout)
		g.secondFleet = newFleet()
	}

	return g.firstLayout != nil && g.secondLayout != nil, nil
}

// playerSide returns the board/fleet pointers belonging to player and to
// their opponent.
func (g *Game) playerSide(player types.PlayerId) (own *board, ownFleet fleet, opp *board, oppFleet fleet) {
	if player == g.firstPlayer {
		return &g.firstBoard, g.firstFleet, &g.secondBoard, g.secondFleet
	}
	return &g.secondBoard, g.secondFleet, &g.firstBoard, g.firstFleet
}

// Shoot resolves a shot by player against their opponent's board.
// Preconditions: the game is Playing, it has no winner yet, and player is
// on turn.
func (g *Game) Shoot(player types.PlayerId, pos types.Position) (ShootResult, error) {
	if g.winner != nil {
		panic("game: shoot called on a finished game")
	}
	if player != g.onTurn {
		return ShootResult{}, newGameError(NotOnTurn)
	}

	_, _, oppBoard, oppFleet := g.playerSide(player)

	// (O1) A repeat shot on an already-hit cell is a pure no-op: the turn
	// does not flip and the result is reported as Hit again.
	if oppBoard.cells[pos.Row][pos.Col] == cellHit {
		return ShootResult{Kind: Hit}, nil
	}

	if oppBoard.cells[pos.Row][pos.Col] != cellShip {
		oppBoard.cells[pos.Row][pos.Col] = cellMiss
		g.onTurn = g.OtherPlayer(player)
		return ShootResult{Kind: Missed}, nil
	}

	kind := oppBoard.ships[pos.Row][pos.Col]
	oppBoard.cells[pos.Row][pos.Col] = cellHit
	oppFleet[kind]--

	var result ShootResult
	if oppFleet[kind] == 0 {
		layout := g.layoutOf(g.OtherPlayer(player))
		result = ShootResult{Kind: Sunk, ShipKind: kind, Placement: layout[kind]}
	} else {
		result = ShootResult{Kind: Hit}
	}

	// (O2) winner is recomputed fresh from fleet health after applying
	// this shot, never carried over from a prior call.
	if oppFleet.allSunk() {
		g.winner = &player
	}

	return result, nil
}

func (g *Game) layoutOf(player types.PlayerId) types.Layout {
	if player == g.firstPlayer {
		return g.firstLayout
	}
	return g.secondLayout
}

// State is the snapshot emitted on successful reconnect: both boards'
// visible state (hits/misses) relative to player, player's own layout,
// and the opponent's already-sunk ships (full placements, so the
// reconnecting client can render them).
type State struct {
	OnTurn         types.Who
	PlayerHits     []types.Position
	PlayerMisses   []types.Position
	PlayerLayout   types.Layout
	OpponentHits   []types.Position
	OpponentMisses []types.Position
	SunkShips      map[types.ShipKind]types.Placement
}

// State builds a reconnect snapshot for player. Valid once the game is
// Playing.
func (g *Game) State(player types.PlayerId) State {
	ownBoard, _, oppBoard, oppFleet := g.playerSide(player)

	onTurn := types.Opponent
	if g.onTurn == player {
		onTurn = types.You
	}

	sunk := make(map[types.ShipKind]types.Placement)
	opponentLayout := g.layoutOf(g.OtherPlayer(player))
	for kind, health := range oppFleet {
		if health == 0 {
			sunk[kind] = opponentLayout[kind]
		}
	}

	return State{
		OnTurn:         onTurn,
		PlayerHits:     ownBoard.hits(),
		PlayerMisses:   ownBoard.misses(),
		PlayerLayout:   g.layoutOf(player),
		OpponentHits:   oppBoard.hits(),
		OpponentMisses: oppBoard.misses(),
		SunkShips:      sunk,
	}
}
