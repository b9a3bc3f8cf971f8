// Package board generates the hidden base map. A board is fixed the moment
// it is created: explore and dig only reveal tiles, they never re-roll them.
package board

import (
	"fmt"

	"github.com/MJE43/buried-treasure-go/internal/engine"
	"github.com/MJE43/buried-treasure-go/internal/grid"
)

// Kind is the content class of a base tile.
type Kind string

const (
	KindEmpty    Kind = "empty"
	KindTreasure Kind = "treasure"
	KindTrap     Kind = "trap"
)

// Tile is one cell of the base map. Value is gold for treasure, damage for traps.
type Tile struct {
	Kind  Kind `json:"kind"`
	Value uint `json:"value"`
}

// Seeds fix a board. Server is secret; Client is public.
type Seeds struct {
	Server string `json:"server"`
	Client string `json:"client"`
}

// Params controls layout density and value ranges.
type Params struct {
	Treasures   int  `yaml:"treasures"`
	Traps       int  `yaml:"traps"`
	TreasureMin uint `yaml:"treasure_min"`
	TreasureMax uint `yaml:"treasure_max"`
	TrapMin     uint `yaml:"trap_min"`
	TrapMax     uint `yaml:"trap_max"`
}

// DefaultParams is the standard map: 15 treasures worth 5-50 gold and
// 10 traps dealing 5-30 damage.
func DefaultParams() Params {
	return Params{
		Treasures:   15,
		Traps:       10,
		TreasureMin: 5,
		TreasureMax: 50,
		TrapMin:     5,
		TrapMax:     30,
	}
}

// Spawn is where every player starts. It is always empty.
var Spawn = grid.Coord{X: 0, Y: 0}

const totalTiles = grid.Size * grid.Size

// Board is an immutable hidden map.
type Board struct {
	tiles [totalTiles]Tile
}

// Validate checks that params describe a placeable layout.
func (p Params) Validate() error {
	if p.Treasures < 0 || p.Traps < 0 {
		return fmt.Errorf("board: negative tile count")
	}
	if p.Treasures+p.Traps > totalTiles-1 {
		return fmt.Errorf("board: %d treasures and %d traps do not fit on %d tiles", p.Treasures, p.Traps, totalTiles-1)
	}
	if p.TreasureMin > p.TreasureMax || p.TrapMin > p.TrapMax {
		return fmt.Errorf("board: value range min exceeds max")
	}
	return nil
}

// Generate builds the board for the given seeds and nonce.
//
// Placement is a Fisher-Yates selection over every non-spawn tile: the first
// Treasures picks become treasure, the next Traps picks become traps. Values
// are drawn from the same stream after placement.
func Generate(seeds Seeds, nonce uint64, p Params) (*Board, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if seeds.Server == "" {
		return nil, fmt.Errorf("board: server seed is required")
	}

	bg := engine.NewByteGenerator(seeds.Server, seeds.Client, nonce, 0)

	pool := make([]int, 0, totalTiles-1)
	for i := 0; i < totalTiles; i++ {
		if i == Spawn.Index() {
			continue
		}
		pool = append(pool, i)
	}

	picks := p.Treasures + p.Traps
	permutation := make([]int, 0, picks)
	for i := 0; i < picks; i++ {
		index := bg.NextIndex(len(pool))
		permutation = append(permutation, pool[index])
		pool = append(pool[:index], pool[index+1:]...)
	}

	b := &Board{}
	for i := range b.tiles {
		b.tiles[i] = Tile{Kind: KindEmpty}
	}
	for i, pos := range permutation {
		if i < p.Treasures {
			b.tiles[pos] = Tile{Kind: KindTreasure, Value: bg.NextInRange(p.TreasureMin, p.TreasureMax)}
		} else {
			b.tiles[pos] = Tile{Kind: KindTrap, Value: bg.NextInRange(p.TrapMin, p.TrapMax)}
		}
	}
	return b, nil
}

// Tile returns the content at c. Out-of-bounds coordinates read as empty.
func (b *Board) Tile(c grid.Coord) Tile {
	if !grid.InBounds(c) {
		return Tile{Kind: KindEmpty}
	}
	return b.tiles[c.Index()]
}

// Counts returns how many tiles of each kind the board holds.
func (b *Board) Counts() map[Kind]int {
	out := map[Kind]int{KindEmpty: 0, KindTreasure: 0, KindTrap: 0}
	for _, t := range b.tiles {
		out[t.Kind]++
	}
	return out
}

// Rows renders the board as a grid of kinds, row-major. Debug tooling only;
// nothing on a request path may call this.
func (b *Board) Rows() [][]Tile {
	rows := make([][]Tile, grid.Size)
	for y := 0; y < grid.Size; y++ {
		rows[y] = make([]Tile, grid.Size)
		for x := 0; x < grid.Size; x++ {
			rows[y][x] = b.tiles[grid.Coord{X: x, Y: y}.Index()]
		}
	}
	return rows
}
