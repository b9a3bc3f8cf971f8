// Package accounts is the public ledger/account layer: it records facts that
// anyone may read and hands back a commit handle for each one.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind names the action a fact records.
type Kind string

const (
	KindRegister Kind = "register"
	KindMove     Kind = "move"
	KindExplore  Kind = "explore"
	KindDig      Kind = "dig"
	KindBury     Kind = "bury"
)

// ErrLinkable rejects a bury fact that would tie a depositor to a burial.
var ErrLinkable = errors.New("accounts: bury facts must not carry a player")

// Fact is a public record. Positions and the outcomes of explore and dig are
// never part of it.
type Fact struct {
	Kind   Kind   `json:"kind"`
	Player string `json:"player,omitempty"`
}

// Handle identifies a committed fact.
type Handle string

// Entry is a committed fact.
type Entry struct {
	Handle    Handle    `json:"handle"`
	Fact      Fact      `json:"fact"`
	CreatedAt time.Time `json:"createdAt"`
}

// Recorder commits public facts.
type Recorder interface {
	Commit(ctx context.Context, f Fact) (Handle, error)
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

func (f Fact) validate() error {
	switch f.Kind {
	case KindBury:
		if f.Player != "" {
			return ErrLinkable
		}
	case KindRegister, KindMove, KindExplore, KindDig:
		if f.Player == "" {
			return fmt.Errorf("accounts: %s fact needs a player", f.Kind)
		}
	default:
		return fmt.Errorf("accounts: unknown fact kind %q", f.Kind)
	}
	return nil
}

func newHandle() Handle {
	return Handle(uuid.New().String())
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
