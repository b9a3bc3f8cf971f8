// Package store keeps the authoritative per-player records. Every mutation is
// a single read-modify-write under that player's own lock; there is no lock
// spanning all players.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MJE43/buried-treasure-go/internal/grid"
)

const (
	StartGold   uint = 20
	StartHealth uint = 100
	MaxHealth   uint = 100
)

var (
	ErrNotFound      = errors.New("store: player not found")
	ErrAlreadyExists = errors.New("store: player already exists")
	ErrInvariant     = errors.New("store: record invariant violated")
	ErrClosed        = errors.New("store: closed")
)

// Stats are public, monotone counters.
type Stats struct {
	TilesExplored  uint `json:"tilesExplored"`
	TreasuresFound uint `json:"treasuresFound"`
	TrapsTriggered uint `json:"trapsTriggered"`
	LootBuried     uint `json:"lootBuried"`
	LootDugUp      uint `json:"lootDugUp"`
}

// PlayerRecord is the authoritative state of one identity.
type PlayerRecord struct {
	ID        string     `json:"id"`
	Position  grid.Coord `json:"position"`
	Gold      uint       `json:"gold"`
	Health    uint       `json:"health"`
	Explored  grid.Set   `json:"exploredTiles"`
	Buried    grid.Set   `json:"buriedTiles"`
	Stats     Stats      `json:"stats"`
	JoinedAt  time.Time  `json:"joinedAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// NewRecord returns the starting record for id.
func NewRecord(id string, now time.Time) PlayerRecord {
	return PlayerRecord{
		ID:        id,
		Position:  grid.Coord{},
		Gold:      StartGold,
		Health:    StartHealth,
		Explored:  grid.Set{},
		Buried:    grid.Set{},
		JoinedAt:  now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy.
func (r PlayerRecord) Clone() PlayerRecord {
	r.Explored = r.Explored.Clone()
	r.Buried = r.Buried.Clone()
	return r
}

// Debit removes amount gold or fails without touching the balance.
func (r *PlayerRecord) Debit(amount uint) error {
	if amount > r.Gold {
		return fmt.Errorf("insufficient gold: have %d, need %d", r.Gold, amount)
	}
	r.Gold -= amount
	return nil
}

// Damage lowers health by v, stopping at zero, and returns the health
// actually lost.
func (r *PlayerRecord) Damage(v uint) uint {
	if v > r.Health {
		v = r.Health
	}
	r.Health -= v
	return v
}

// MutateFunc edits a private working copy of a record. Returning an error
// discards the copy.
type MutateFunc func(rec *PlayerRecord) error

// Store is the PlayerRecord store contract.
type Store interface {
	Get(ctx context.Context, id string) (PlayerRecord, error)
	Create(ctx context.Context, id string) (PlayerRecord, error)
	Mutate(ctx context.Context, id string, fn MutateFunc) (PlayerRecord, error)
	List(ctx context.Context) ([]PlayerRecord, error)
	Close() error
}

// settle clamps numeric fields and checks that next is a legal successor of
// prev. It runs before a mutation becomes visible.
func settle(prev PlayerRecord, next *PlayerRecord) error {
	if next.Health > MaxHealth {
		next.Health = MaxHealth
	}
	if next.Explored == nil {
		next.Explored = grid.Set{}
	}
	if next.Buried == nil {
		next.Buried = grid.Set{}
	}
	switch {
	case next.ID != prev.ID:
		return fmt.Errorf("%w: identity changed", ErrInvariant)
	case !grid.InBounds(next.Position):
		return fmt.Errorf("%w: position %s out of bounds", ErrInvariant, next.Position)
	case !next.Explored.Contains(prev.Explored):
		return fmt.Errorf("%w: explored set shrank", ErrInvariant)
	case !statsMonotone(prev.Stats, next.Stats):
		return fmt.Errorf("%w: stats decreased", ErrInvariant)
	}
	return nil
}

func statsMonotone(a, b Stats) bool {
	return b.TilesExplored >= a.TilesExplored &&
		b.TreasuresFound >= a.TreasuresFound &&
		b.TrapsTriggered >= a.TrapsTriggered &&
		b.LootBuried >= a.LootBuried &&
		b.LootDugUp >= a.LootDugUp
}
