// Package grid holds the spatial rules of the board: bounds and adjacency.
// Everything here is pure and safe for concurrent use.
package grid

import (
	"fmt"
	"strconv"
	"strings"
)

// Size is the board edge length N; valid coordinates lie in [0, Size).
const Size = 10

// Coord is a tile position.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// String renders the coordinate as the "x,y" key used in player-facing sets.
func (c Coord) String() string {
	return strconv.Itoa(c.X) + "," + strconv.Itoa(c.Y)
}

// Index flattens an in-bounds coordinate to row-major order.
func (c Coord) Index() int {
	return c.Y*Size + c.X
}

// FromIndex is the inverse of Index.
func FromIndex(i int) Coord {
	return Coord{X: i % Size, Y: i / Size}
}

// ParseCoord parses an "x,y" key.
func ParseCoord(s string) (Coord, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return Coord{}, fmt.Errorf("grid: malformed coordinate %q", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return Coord{}, fmt.Errorf("grid: malformed x in %q: %w", s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return Coord{}, fmt.Errorf("grid: malformed y in %q: %w", s, err)
	}
	return Coord{X: x, Y: y}, nil
}

// InBounds reports whether p lies on the board.
func InBounds(p Coord) bool {
	return p.X >= 0 && p.X < Size && p.Y >= 0 && p.Y < Size
}

// Adjacent reports whether b is within Chebyshev distance 1 of a.
// When includeSelf is false, a == b is not adjacent.
func Adjacent(a, b Coord, includeSelf bool) bool {
	dx := abs(a.X - b.X)
	dy := abs(a.Y - b.Y)
	if dx > 1 || dy > 1 {
		return false
	}
	if !includeSelf && dx == 0 && dy == 0 {
		return false
	}
	return true
}

// CanMove is the move rule: a real step to an in-bounds neighbour.
func CanMove(from, to Coord) bool {
	return InBounds(to) && Adjacent(from, to, false)
}

// CanReach is the rule shared by explore, dig and bury: the target may be
// the player's own tile or any in-bounds neighbour.
func CanReach(from, to Coord) bool {
	return InBounds(to) && Adjacent(from, to, true)
}

// Neighbors returns the in-bounds tiles adjacent to c, excluding c itself.
func Neighbors(c Coord) []Coord {
	out := make([]Coord, 0, 8)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := Coord{X: c.X + dx, Y: c.Y + dy}
			if InBounds(n) {
				out = append(out, n)
			}
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
