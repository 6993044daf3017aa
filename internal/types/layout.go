package types

// Placement is a single ship's on-board location: an anchor cell plus the
// direction it extends in.
type Placement struct {
	Anchor      Position
	Orientation Orientation
}

// Cells returns every board cell Placement occupies, in the order it
// extends from the anchor. Returns false if any cell would fall outside
// the board.
func (p Placement) Cells(length int) ([]Position, bool) {
	cells := make([]Position, length)
	for i := 0; i < length; i++ {
		pos, ok := Step(p.Anchor, p.Orientation, i)
		if !ok {
			return nil, false
		}
		cells[i] = pos
	}
	return cells, true
}

// Layout maps each ShipKind to its Placement. A valid Layout has exactly
// five entries, one per kind, satisfying the adjacency rule.
type Layout map[ShipKind]Placement

// IsValid implements the adjacency rule: every ship cell must lie within
// the grid, no two ship cells may coincide, and no ship cell may be
// 4-adjacent to a cell of a different ship. Same-ship cells along the
// ship's own axis are permitted neighbors by construction.
func (l Layout) IsValid() bool {
	if len(l) != len(AllShipKinds) {
		return false
	}

	var board [BoardSize][BoardSize]bool

	for _, kind := range AllShipKinds {
		placement, ok := l[kind]
		if !ok {
			return false
		}

		cells, ok := placement.Cells(kind.Length())
		if !ok {
			return false
		}

		for i, cell := range cells {
			if board[cell.Row][cell.Col] {
				return false
			}
			board[cell.Row][cell.Col] = true

			if i == 0 {
				if tip, ok := Step(placement.Anchor, placement.Orientation, -1); ok && board[tip.Row][tip.Col] {
					return false
				}
			}
			if i == len(cells)-1 {
				if tip, ok := Step(placement.Anchor, placement.Orientation, i+1); ok && board[tip.Row][tip.Col] {
					return false
				}
			}

			for _, neighbor := range perpendicularNeighbors(cell, placement.Orientation) {
				if board[neighbor.Row][neighbor.Col] {
					return false
				}
			}
		}
	}

	return true
}

// perpendicularNeighbors returns the cells adjacent to cell along the axis
// perpendicular to orientation, skipping any that fall outside the board.
func perpendicularNeighbors(cell Position, o Orientation) []Position {
	var candidates [2]struct {
		row, col int
		ok       bool
	}

	switch o {
	case East, West:
		candidates[0] = struct {
			row, col int
			ok       bool
		}{int(cell.Row) - 1, int(cell.Col), true}
		candidates[1] = struct {
			row, col int
			ok       bool
		}{int(cell.Row) + 1, int(cell.Col), true}
	case North, South:
		candidates[0] = struct {
			row, col int
			ok       bool
		}{int(cell.Row), int(cell.Col) - 1, true}
		candidates[1] = struct {
			row, col int
			ok       bool
		}{int(cell.Row), int(cell.Col) + 1, true}
	}

	neighbors := make([]Position, 0, 2)
	for _, c := range candidates {
		if c.row < 0 || c.row >= BoardSize || c.col < 0 || c.col >= BoardSize {
			continue
		}
		neighbors = append(neighbors, Position{Row: uint8(c.row), Col: uint8(c.col)})
	}
	return neighbors
}
