package game

import (
	"testing"

	"github.com/miroslavkrysl/bssrv/internal/types"
)

func spacedLayout() types.Layout {
	return types.Layout{
		types.AircraftCarrier: {Anchor: types.Position{Row: 0, Col: 0}, Orientation: types.East},
		types.Battleship:      {Anchor: types.Position{Row: 2, Col: 0}, Orientation: types.East},
		types.Cruiser:         {Anchor: types.Position{Row: 4, Col: 0}, Orientation: types.East},
		types.Destroyer:       {Anchor: types.Position{Row: 6, Col: 0}, Orientation: types.East},
		types.PatrolBoat:      {Anchor: types.Position{Row: 8, Col: 0}, Orientation: types.East},
	}
}

func newPlayingGame(t *testing.T) (*Game, types.PlayerId, types.PlayerId) {
	t.Helper()
	first := types.PlayerId(1)
	second := types.PlayerId(2)

	g := NewPending(first)
	g.AddSecondPlayer(second)
	if g.Phase() != PhaseLayouting {
		t.Fatalf("phase = %v, want PhaseLayouting", g.Phase())
	}

	playing, err := g.SetLayout(first, spacedLayout())
	if err != nil {
		t.Fatalf("SetLayout(first): %v", err)
	}
	if playing {
		t.Fatal("game should not be playing after only one layout")
	}

	playing, err = g.SetLayout(second, spacedLayout())
	if err != nil {
		t.Fatalf("SetLayout(second): %v", err)
	}
	if !playing {
		t.Fatal("game should be playing once both layouts are set")
	}
	if g.Phase() != PhasePlaying {
		t.Fatalf("phase = %v, want PhasePlaying", g.Phase())
	}

	return g, first, second
}

func TestSetLayoutRejectsDuplicateSubmission(t *testing.T) {
	g, first, _ := newPlayingGame(t)
	if _, err := g.SetLayout(first, spacedLayout()); err == nil {
		t.Fatal("expected AlreadyHasLayout")
	} else if gerr, ok := err.(*GameError); !ok || gerr.Kind != AlreadyHasLayout {
		t.Fatalf("got %v, want AlreadyHasLayout", err)
	}
}

func TestSetLayoutRejectsInvalidLayout(t *testing.T) {
	first := types.PlayerId(1)
	second := types.PlayerId(2)
	g := NewPending(first)
	g.AddSecondPlayer(second)

	invalid := spacedLayout()
	invalid[types.Battleship] = invalid[types.AircraftCarrier]

	if _, err := g.SetLayout(first, invalid); err == nil {
		t.Fatal("expected InvalidLayout")
	} else if gerr, ok := err.(*GameError); !ok || gerr.Kind != InvalidLayout {
		t.Fatalf("got %v, want InvalidLayout", err)
	}
}

func TestShootMissFlipsTurn(t *testing.T) {
	g, first, second := newPlayingGame(t)

	result, err := g.Shoot(first, types.Position{Row: 9, Col: 9})
	if err != nil {
		t.Fatalf("Shoot: %v", err)
	}
	if result.Kind != Missed {
		t.Fatalf("result = %v, want Missed", result.Kind)
	}
	if g.OnTurn() != second {
		t.Fatalf("onTurn = %v, want second player after a miss", g.OnTurn())
	}
}

func TestShootOutOfTurnIsRejected(t *testing.T) {
	g, _, second := newPlayingGame(t)
	if _, err := g.Shoot(second, types.Position{Row: 0, Col: 0}); err == nil {
		t.Fatal("expected NotOnTurn")
	} else if gerr, ok := err.(*GameError); !ok || gerr.Kind != NotOnTurn {
		t.Fatalf("got %v, want NotOnTurn", err)
	}
}

func TestShootHitKeepsTurnAndRepeatIsIdempotent(t *testing.T) {
	g, first, _ := newPlayingGame(t)

	result, err := g.Shoot(first, types.Position{Row: 0, Col: 0})
	if err != nil {
		t.Fatalf("Shoot: %v", err)
	}
	if result.Kind != Hit {
		t.Fatalf("result = %v, want Hit", result.Kind)
	}
	if g.OnTurn() != first {
		t.Fatal("a hit should not flip the turn")
	}

	// (O1) repeating the same shot is a no-op that still reports Hit.
	result, err = g.Shoot(first, types.Position{Row: 0, Col: 0})
	if err != nil {
		t.Fatalf("Shoot (repeat): %v", err)
	}
	if result.Kind != Hit {
		t.Fatalf("repeat result = %v, want Hit", result.Kind)
	}
}

func TestShootSinksAndDetectsVictory(t *testing.T) {
	g, first, second := newPlayingGame(t)

	result, err := g.Shoot(first, types.Position{Row: 8, Col: 0})
	if err != nil {
		t.Fatalf("Shoot: %v", err)
	}
	if result.Kind != Sunk {
		t.Fatalf("result = %v, want Sunk", result.Kind)
	}
	if result.ShipKind != types.PatrolBoat {
		t.Fatalf("sunk ship = %v, want PatrolBoat", result.ShipKind)
	}
	if _, won := g.Winner(); won {
		t.Fatal("sinking one ship must not end the game")
	}

	// Sink every remaining second-player ship to trigger victory. All
	// ships lie on second's board at the same coordinates as spacedLayout.
	shots := []types.Position{
		{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 0, Col: 2}, {Row: 0, Col: 3}, {Row: 0, Col: 4}, // carrier
		{Row: 2, Col: 0}, {Row: 2, Col: 1}, {Row: 2, Col: 2}, {Row: 2, Col: 3}, // battleship
		{Row: 4, Col: 0}, {Row: 4, Col: 1}, {Row: 4, Col: 2}, // cruiser
		{Row: 6, Col: 0}, {Row: 6, Col: 1}, // destroyer
	}
	for _, pos := range shots {
		if _, err := g.Shoot(first, pos); err != nil {
			t.Fatalf("Shoot(%v): %v", pos, err)
		}
	}

	winner, won := g.Winner()
	if !won {
		t.Fatal("expected a winner once every ship is sunk")
	}
	if winner != first {
		t.Fatalf("winner = %v, want first player", winner)
	}
	_ = second
}

func TestStateReflectsBothBoards(t *testing.T) {
	g, first, second := newPlayingGame(t)

	if _, err := g.Shoot(first, types.Position{Row: 9, Col: 9}); err != nil {
		t.Fatalf("Shoot: %v", err)
	}
	if _, err := g.Shoot(second, types.Position{Row: 0, Col: 0}); err != nil {
		t.Fatalf("Shoot: %v", err)
	}

	stateFirst := g.State(first)
	if len(stateFirst.OpponentMisses) != 1 {
		t.Errorf("expected 1 miss recorded against the opponent, got %d", len(stateFirst.OpponentMisses))
	}
	if len(stateFirst.PlayerHits) != 1 {
		t.Errorf("expected 1 hit recorded on own board, got %d", len(stateFirst.PlayerHits))
	}
	if stateFirst.OnTurn != types.Opponent {
		t.Errorf("onTurn relative = %v, want Opponent (second player shot last and hit)", stateFirst.OnTurn)
	}
}
