package scripting

import (
	"github.com/dop251/goja"

	"github.com/MJE43/buried-treasure-go/internal/board"
	"github.com/MJE43/buried-treasure-go/internal/grid"
	"github.com/MJE43/buried-treasure-go/internal/ledger"
	"github.com/MJE43/buried-treasure-go/internal/store"
)

// Actions a script can queue.
const (
	ActionMove    = "move"
	ActionExplore = "explore"
	ActionDig     = "dig"
	ActionBury    = "bury"
)

// LastResult describes the previous action as the script sees it.
type LastResult struct {
	Action    string
	Message   string
	Value     uint
	Found     string
	ErrorKind string
}

// Variables is the state shared with the script each turn.
type Variables struct {
	Player   store.PlayerRecord
	Explored grid.Set
	Turn     int
	Running  bool
	Last     LastResult

	// Set by the script.
	NextAction string
	Target     grid.Coord
	Amount     int64
}

func newVariables(rec store.PlayerRecord) *Variables {
	v := &Variables{}
	v.update(rec)
	return v
}

func (v *Variables) update(rec store.PlayerRecord) {
	v.Player = rec
	v.Explored = rec.Explored
	if v.Explored == nil {
		v.Explored = grid.Set{}
	}
}

func injectConstants(vm *goja.Runtime) {
	vm.Set("GRID_SIZE", grid.Size)
	vm.Set("TILE_EMPTY", string(board.KindEmpty))
	vm.Set("TILE_TREASURE", string(board.KindTreasure))
	vm.Set("TILE_TRAP", string(board.KindTrap))
	vm.Set("FOUND_NOTHING", string(ledger.FoundNothing))
	vm.Set("FOUND_TREASURE", string(ledger.FoundTreasure))
	vm.Set("FOUND_TRAP", string(ledger.FoundTrap))
}

func injectVariables(vm *goja.Runtime, vars *Variables) {
	rec := vars.Player
	vm.Set("x", rec.Position.X)
	vm.Set("y", rec.Position.Y)
	vm.Set("gold", rec.Gold)
	vm.Set("health", rec.Health)
	vm.Set("turn", vars.Turn)
	vm.Set("running", vars.Running)

	vm.Set("stats", map[string]interface{}{
		"tilesExplored":  rec.Stats.TilesExplored,
		"treasuresFound": rec.Stats.TreasuresFound,
		"trapsTriggered": rec.Stats.TrapsTriggered,
		"lootBuried":     rec.Stats.LootBuried,
		"lootDugUp":      rec.Stats.LootDugUp,
	})

	last := map[string]interface{}{
		"action":  vars.Last.Action,
		"message": vars.Last.Message,
		"value":   vars.Last.Value,
		"found":   vars.Last.Found,
		"error":   nil,
	}
	if vars.Last.ErrorKind != "" {
		last["error"] = vars.Last.ErrorKind
	}
	vm.Set("last", last)
}

func syncFromVM(vm *goja.Runtime, vars *Variables) {
	vars.NextAction = ""
	vars.Target = grid.Coord{}
	vars.Amount = 0

	if v := vm.Get("nextaction"); v != nil && !isUndefinedOrNull(v) {
		vars.NextAction = v.String()
	}
	if v := vm.Get("targetx"); v != nil && !isUndefinedOrNull(v) {
		vars.Target.X = int(v.ToInteger())
	}
	if v := vm.Get("targety"); v != nil && !isUndefinedOrNull(v) {
		vars.Target.Y = int(v.ToInteger())
	}
	if v := vm.Get("amount"); v != nil && !isUndefinedOrNull(v) {
		vars.Amount = v.ToInteger()
	}
}

func isUndefinedOrNull(v goja.Value) bool {
	return goja.IsUndefined(v) || goja.IsNull(v)
}
