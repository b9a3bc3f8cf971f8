package game

import (
	"fmt"
	"time"

	"github.com/MJE43/buried-treasure-go/internal/accounts"
	"github.com/MJE43/buried-treasure-go/internal/board"
	"github.com/MJE43/buried-treasure-go/internal/ledger"
	"github.com/MJE43/buried-treasure-go/internal/store"
)

// State is the lifecycle position of one action.
type State string

const (
	StateValidated State = "validated"
	StateSubmitted State = "submitted"
	StateAwaiting  State = "awaiting"
	StateApplied   State = "applied"
	StateRejected  State = "rejected"
	StateTimedOut  State = "timed_out"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	switch s {
	case StateApplied, StateRejected, StateTimedOut, StateFailed:
		return true
	}
	return false
}

// Registration is returned by Register.
type Registration struct {
	State store.PlayerRecord `json:"state"`
	Tx    accounts.Handle    `json:"tx,omitempty"`
	New   bool               `json:"-"`
}

type MoveResult struct {
	NewX int `json:"newX"`
	NewY int `json:"newY"`
}

type ExploreResult struct {
	TileType board.Kind `json:"tileType"`
	Value    uint       `json:"value"`
	Message  string     `json:"message"`
}

// DigResult never says whether the base map or buried loot supplied it.
type DigResult struct {
	FoundType  ledger.Found `json:"foundType"`
	TotalValue uint         `json:"totalValue"`
	HealthLost uint         `json:"healthLost"`
	Message    string       `json:"message"`
}

// BuryResult never identifies the depositor.
type BuryResult struct {
	NewGold uint   `json:"newGold"`
	Message string `json:"message"`
}

// ActionEvent is the public record that some action happened. It carries
// no identity, location or outcome.
type ActionEvent struct {
	Kind accounts.Kind `json:"kind"`
	At   time.Time     `json:"at"`
}

// Standing is one leaderboard row. It is built field by field from the
// record; burial counters and anything that tells loot from base treasure
// stay private.
type Standing struct {
	Player         string `json:"player"`
	TilesExplored  uint   `json:"tilesExplored"`
	TreasuresFound uint   `json:"treasuresFound"`
	TrapsTriggered uint   `json:"trapsTriggered"`
}

func standingOf(rec store.PlayerRecord) Standing {
	return Standing{
		Player:         rec.ID,
		TilesExplored:  rec.Stats.TilesExplored,
		TreasuresFound: rec.Stats.TreasuresFound,
		TrapsTriggered: rec.Stats.TrapsTriggered,
	}
}

func exploreMessage(t board.Tile) string {
	switch t.Kind {
	case board.KindTreasure:
		return fmt.Sprintf("You found treasure! +%d gold", t.Value)
	case board.KindTrap:
		return fmt.Sprintf("You triggered a trap! -%d health", t.Value)
	default:
		return "This tile is empty."
	}
}

func digMessage(o ledger.DigOutcome) string {
	switch o.Found {
	case ledger.FoundTreasure:
		if o.HealthLost > 0 {
			return fmt.Sprintf("Found loot! +%d gold, but a trap cost you %d health", o.TotalValue, o.HealthLost)
		}
		return fmt.Sprintf("Found loot! +%d gold", o.TotalValue)
	case ledger.FoundTrap:
		return fmt.Sprintf("Trap triggered! -%d health", o.HealthLost)
	default:
		return "Nothing found here."
	}
}

func buryMessage(amount uint) string {
	return fmt.Sprintf("Buried %d gold.", amount)
}
