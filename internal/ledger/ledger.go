// Package ledger records what each player has disclosed and where players
// have buried loot.
//
// A burial keeps its depositor internally so the depositor can account for
// their own gold, but nothing returned from this package to callers other
// than that depositor names who buried what. Dig merges the hidden base tile
// with the loot layer into one outcome that does not say which layer
// contributed.
//
// Locks are taken tile first, then the player record. Loot is only changed
// while the tile lock is held and after the player record committed.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MJE43/buried-treasure-go/internal/board"
	"github.com/MJE43/buried-treasure-go/internal/grid"
	"github.com/MJE43/buried-treasure-go/internal/keylock"
	"github.com/MJE43/buried-treasure-go/internal/store"
)

var (
	ErrAlreadyExplored  = errors.New("ledger: tile already explored")
	ErrNotReachable     = errors.New("ledger: tile not adjacent to player")
	ErrInsufficientGold = errors.New("ledger: insufficient gold")
	ErrInvalidAmount    = errors.New("ledger: amount must be positive")
)

// Found is the merged class of a dig.
type Found string

const (
	FoundNothing  Found = "nothing"
	FoundTreasure Found = "treasure"
	FoundTrap     Found = "trap"
)

// Exploration is the private result of an explore.
type Exploration struct {
	Tile       board.Tile
	GoldGained uint
	HealthLost uint
}

// Burial is the outward result of a bury. It is built field by field and
// carries no depositor.
type Burial struct {
	Amount  uint
	NewGold uint
}

// DigOutcome is the merged result of a dig.
type DigOutcome struct {
	Found      Found
	TotalValue uint
	HealthLost uint
}

type deposit struct {
	amount    uint
	depositor string
	at        time.Time
}

// Ledger owns the loot layer and writes disclosure into player records.
type Ledger struct {
	players store.Store
	tiles   keylock.Table

	mu   sync.Mutex
	loot map[grid.Coord][]deposit
}

func New(players store.Store) *Ledger {
	return &Ledger{
		players: players,
		loot:    make(map[grid.Coord][]deposit),
	}
}

// RecordExploration discloses tile at c to player and applies its effect.
func (l *Ledger) RecordExploration(ctx context.Context, player string, c grid.Coord, tile board.Tile) (Exploration, store.PlayerRecord, error) {
	var out Exploration
	rec, err := l.players.Mutate(ctx, player, func(r *store.PlayerRecord) error {
		if !grid.CanReach(r.Position, c) {
			return fmt.Errorf("%w: %s from %s", ErrNotReachable, c, r.Position)
		}
		if r.Explored.Has(c) {
			return fmt.Errorf("%w: %s", ErrAlreadyExplored, c)
		}
		r.Explored.Add(c)
		r.Stats.TilesExplored++

		out = Exploration{Tile: tile}
		switch tile.Kind {
		case board.KindTreasure:
			r.Gold += tile.Value
			r.Stats.TreasuresFound++
			out.GoldGained = tile.Value
		case board.KindTrap:
			out.HealthLost = r.Damage(tile.Value)
			r.Stats.TrapsTriggered++
		}
		return nil
	})
	if err != nil {
		return Exploration{}, store.PlayerRecord{}, err
	}
	return out, rec, nil
}

// RecordBurial moves amount gold from player into the loot layer at c.
func (l *Ledger) RecordBurial(ctx context.Context, player string, c grid.Coord, amount uint) (Burial, store.PlayerRecord, error) {
	if amount == 0 {
		return Burial{}, store.PlayerRecord{}, ErrInvalidAmount
	}

	key := c.String()
	l.tiles.Lock(key)
	defer l.tiles.Unlock(key)

	rec, err := l.players.Mutate(ctx, player, func(r *store.PlayerRecord) error {
		if !grid.CanReach(r.Position, c) {
			return fmt.Errorf("%w: %s from %s", ErrNotReachable, c, r.Position)
		}
		if err := r.Debit(amount); err != nil {
			return fmt.Errorf("%w: %v", ErrInsufficientGold, err)
		}
		r.Buried.Add(c)
		r.Stats.LootBuried += amount
		return nil
	})
	if err != nil {
		return Burial{}, store.PlayerRecord{}, err
	}

	l.mu.Lock()
	l.loot[c] = append(l.loot[c], deposit{amount: amount, depositor: player, at: time.Now().UTC()})
	l.mu.Unlock()

	return Burial{Amount: amount, NewGold: rec.Gold}, rec, nil
}

// RecordDig merges base with any loot at c for player and consumes the loot.
// The base tile affects a player at most once: a tile the player has already
// disclosed contributes nothing further.
func (l *Ledger) RecordDig(ctx context.Context, player string, c grid.Coord, base board.Tile) (DigOutcome, store.PlayerRecord, error) {
	key := c.String()
	l.tiles.Lock(key)
	defer l.tiles.Unlock(key)

	buried := l.lootAt(c)

	var out DigOutcome
	rec, err := l.players.Mutate(ctx, player, func(r *store.PlayerRecord) error {
		if !grid.CanReach(r.Position, c) {
			return fmt.Errorf("%w: %s from %s", ErrNotReachable, c, r.Position)
		}
		out = merge(base, buried, !r.Explored.Has(c))

		// Any rewarding dig counts as a treasure find, whichever layer paid.
		if out.TotalValue > 0 {
			r.Gold += out.TotalValue
			r.Stats.TreasuresFound++
		}
		if buried > 0 {
			r.Stats.LootDugUp += buried
		}
		if out.HealthLost > 0 {
			out.HealthLost = r.Damage(out.HealthLost)
			r.Stats.TrapsTriggered++
		}
		if r.Explored.Add(c) {
			r.Stats.TilesExplored++
		}
		return nil
	})
	if err != nil {
		return DigOutcome{}, store.PlayerRecord{}, err
	}

	if buried > 0 {
		l.mu.Lock()
		delete(l.loot, c)
		l.mu.Unlock()
	}
	return out, rec, nil
}

// merge combines both layers. Loot or a base treasure makes the find a
// treasure; a base trap without any value found is a trap.
func merge(base board.Tile, buried uint, baseApplies bool) DigOutcome {
	out := DigOutcome{Found: FoundNothing, TotalValue: buried}
	if buried > 0 {
		out.Found = FoundTreasure
	}
	if !baseApplies {
		return out
	}
	switch base.Kind {
	case board.KindTreasure:
		out.TotalValue += base.Value
		out.Found = FoundTreasure
	case board.KindTrap:
		out.HealthLost = base.Value
		if out.Found == FoundNothing {
			out.Found = FoundTrap
		}
	}
	return out
}

func (l *Ledger) lootAt(c grid.Coord) uint {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total uint
	for _, d := range l.loot[c] {
		total += d.amount
	}
	return total
}

// Outstanding returns how much of player's own buried gold is still in the
// ground. Only ever report this back to player.
func (l *Ledger) Outstanding(player string) uint {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total uint
	for _, ds := range l.loot {
		for _, d := range ds {
			if d.depositor == player {
				total += d.amount
			}
		}
	}
	return total
}

// lootTiles returns how many tiles currently hold loot.
func (l *Ledger) lootTiles() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.loot)
}
