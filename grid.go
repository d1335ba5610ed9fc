package server

import "formation/server/formations"

// Direction names a single-cell movement on the grid.
type Direction string

const (
	DirectionUp    Direction = "up"
	DirectionDown  Direction = "down"
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// ParseDirection validates a direction string received from the client.
func ParseDirection(value string) (Direction, bool) {
	switch Direction(value) {
	case DirectionUp, DirectionDown, DirectionLeft, DirectionRight:
		return Direction(value), true
	default:
		return "", false
	}
}

// delta returns the (dLeft, dTop) cell offset for the direction.
func (d Direction) delta() (int, int) {
	switch d {
	case DirectionUp:
		return 0, -1
	case DirectionDown:
		return 0, 1
	case DirectionLeft:
		return -1, 0
	case DirectionRight:
		return 1, 0
	}
	return 0, 0
}

// grid is the dense occupancy map. Cells store the occupying player id
// ("" means empty) rather than a pointer so a departed player can never
// linger behind a stale reference; the hub's registry is the single owner
// of player records.
type grid struct {
	width  int
	height int
	cells  []string
}

func newGrid(width, height int) *grid {
	return &grid{
		width:  width,
		height: height,
		cells:  make([]string, width*height),
	}
}

func (g *grid) inBounds(left, top int) bool {
	return left >= 0 && left < g.width && top >= 0 && top < g.height
}

func (g *grid) at(left, top int) string {
	if !g.inBounds(left, top) {
		return ""
	}
	return g.cells[top*g.width+left]
}

// exists reports whether a player occupies the cell. Cells outside the
// grid are never occupied.
func (g *grid) exists(left, top int) bool {
	return g.at(left, top) != ""
}

// set records occupancy. The caller must have verified the cell is free;
// the grid does not arbitrate conflicting placements.
func (g *grid) set(left, top int, id string) {
	if !g.inBounds(left, top) {
		return
	}
	g.cells[top*g.width+left] = id
}

// unset clears a cell. Idempotent.
func (g *grid) unset(left, top int) {
	if !g.inBounds(left, top) {
		return
	}
	g.cells[top*g.width+left] = ""
}

// move relocates a player by one step. It is the sole collision
// arbitration point: the move fails without any state change when the
// destination is out of bounds or occupied.
func (g *grid) move(fromLeft, fromTop, toLeft, toTop int, id string) bool {
	if !g.inBounds(toLeft, toTop) {
		return false
	}
	if g.exists(toLeft, toTop) {
		return false
	}
	g.unset(fromLeft, fromTop)
	g.set(toLeft, toTop, id)
	return true
}

// checkFormation matches the candidate players against a formation. Every
// player's own cell is tried as an anchor; an anchor whose complete offset
// set resolves to occupied cells implicates the anchor and every player
// standing on those offsets. A cell may participate in several anchors at
// once. The result maps every implicated player id to its record.
func (g *grid) checkFormation(f formations.Formation, players map[string]*playerState) map[string]*playerState {
	matched := make(map[string]*playerState)
	for _, anchor := range players {
		ids := make([]string, 0, len(f.Points))
		complete := true
		for _, point := range f.Points {
			id := g.at(anchor.Left+point.Left, anchor.Top+point.Top)
			if id == "" {
				complete = false
				break
			}
			ids = append(ids, id)
		}
		if !complete {
			continue
		}
		matched[anchor.ID] = anchor
		for _, id := range ids {
			if other, ok := players[id]; ok {
				matched[id] = other
			}
		}
	}
	return matched
}
