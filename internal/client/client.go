// Package client is the game client façade: one call per action, bound to a
// single identity, with a local guard that mirrors the engine's one-action-
// in-flight rule and a UI-style event log.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/MJE43/buried-treasure-go/internal/game"
	"github.com/MJE43/buried-treasure-go/internal/grid"
	"github.com/MJE43/buried-treasure-go/internal/ledger"
	"github.com/MJE43/buried-treasure-go/internal/store"
)

// Transport is the engine surface the façade drives.
type Transport interface {
	Register(ctx context.Context, id string) (game.Registration, error)
	State(ctx context.Context, id string) (store.PlayerRecord, error)
	Move(ctx context.Context, id string, target grid.Coord) (game.MoveResult, error)
	Explore(ctx context.Context, id string, target grid.Coord) (game.ExploreResult, error)
	Dig(ctx context.Context, id string, target grid.Coord) (game.DigResult, error)
	Bury(ctx context.Context, id string, target grid.Coord, amount uint) (game.BuryResult, error)
}

// Watcher is implemented by transports that can push state snapshots.
type Watcher interface {
	Watch(ctx context.Context, id string) (<-chan store.PlayerRecord, error)
}

// Event types shown in the event log.
const (
	EventInfo     = "info"
	EventMove     = "move"
	EventTreasure = "treasure"
	EventTrap     = "trap"
	EventBury     = "bury"
	EventSystem   = "system"
)

// Event is one line of the UI event log.
type Event struct {
	Type    string    `json:"type"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Options tune a Client.
type Options struct {
	// PollInterval is used by Subscribe when the transport cannot push.
	// Defaults to 2s.
	PollInterval time.Duration

	// Retries is how many times a retryable failure is resubmitted. Zero
	// disables retry.
	Retries    uint64
	RetryDelay time.Duration

	// EventLimit caps the event log. Defaults to 50.
	EventLimit int
}

// Client is bound to one identity.
type Client struct {
	id   string
	t    Transport
	opts Options

	mu      sync.Mutex
	pending string
	events  []Event
}

func New(t Transport, id string, opts Options) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.EventLimit <= 0 {
		opts.EventLimit = 50
	}
	return &Client{id: id, t: t, opts: opts}
}

// Identity returns the identity this client acts for.
func (c *Client) Identity() string { return c.id }

// Register registers the identity, or returns its record if it exists.
func (c *Client) Register(ctx context.Context) (game.Registration, error) {
	reg, err := c.t.Register(ctx, c.id)
	if err != nil {
		c.log(EventSystem, fmt.Sprintf("Registration failed: %s", reason(err)))
		return game.Registration{}, err
	}
	if reg.Tx != "" {
		c.log(EventInfo, fmt.Sprintf("Registered (tx %s)", reg.Tx))
	}
	return reg, nil
}

func (c *Client) State(ctx context.Context) (store.PlayerRecord, error) {
	return c.t.State(ctx, c.id)
}

func (c *Client) Move(ctx context.Context, target grid.Coord) (game.MoveResult, error) {
	var res game.MoveResult
	err := c.do(ctx, "move", fmt.Sprintf("Moving to (%d, %d)...", target.X, target.Y), func(ctx context.Context) error {
		var err error
		res, err = c.t.Move(ctx, c.id, target)
		return err
	})
	if err != nil {
		c.log(EventSystem, fmt.Sprintf("Move failed: %s", reason(err)))
		return game.MoveResult{}, err
	}
	c.log(EventMove, fmt.Sprintf("Moved to (%d, %d)", res.NewX, res.NewY))
	return res, nil
}

func (c *Client) Explore(ctx context.Context, target grid.Coord) (game.ExploreResult, error) {
	var res game.ExploreResult
	err := c.do(ctx, "explore", fmt.Sprintf("Exploring tile (%d, %d)...", target.X, target.Y), func(ctx context.Context) error {
		var err error
		res, err = c.t.Explore(ctx, c.id, target)
		return err
	})
	if err != nil {
		c.log(EventSystem, fmt.Sprintf("Explore failed: %s", reason(err)))
		return game.ExploreResult{}, err
	}
	c.log(eventForTile(string(res.TileType)), res.Message)
	return res, nil
}

func (c *Client) Dig(ctx context.Context, target grid.Coord) (game.DigResult, error) {
	var res game.DigResult
	err := c.do(ctx, "dig", fmt.Sprintf("Digging at (%d, %d)...", target.X, target.Y), func(ctx context.Context) error {
		var err error
		res, err = c.t.Dig(ctx, c.id, target)
		return err
	})
	if err != nil {
		c.log(EventSystem, fmt.Sprintf("Dig failed: %s", reason(err)))
		return game.DigResult{}, err
	}
	typ := EventInfo
	switch res.FoundType {
	case ledger.FoundTreasure:
		typ = EventTreasure
	case ledger.FoundTrap:
		typ = EventTrap
	}
	c.log(typ, res.Message)
	return res, nil
}

func (c *Client) Bury(ctx context.Context, target grid.Coord, amount uint) (game.BuryResult, error) {
	var res game.BuryResult
	err := c.do(ctx, "bury", fmt.Sprintf("Burying %d gold at (%d, %d)...", amount, target.X, target.Y), func(ctx context.Context) error {
		var err error
		res, err = c.t.Bury(ctx, c.id, target, amount)
		return err
	})
	if err != nil {
		c.log(EventSystem, fmt.Sprintf("Bury failed: %s", reason(err)))
		return game.BuryResult{}, err
	}
	c.log(EventBury, fmt.Sprintf("Buried %d gold. No one can link this to you.", amount))
	return res, nil
}

// Pending names the action in flight, or "" when idle.
func (c *Client) Pending() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Events returns the event log, newest first.
func (c *Client) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// do runs one action under the local busy guard, retrying retryable
// failures when configured.
func (c *Client) do(ctx context.Context, name, announce string, call func(ctx context.Context) error) error {
	c.mu.Lock()
	if c.pending != "" {
		busy := c.pending
		c.mu.Unlock()
		return &game.Error{Kind: game.KindBusy, Reason: fmt.Sprintf("%s already in progress", busy)}
	}
	c.pending = name
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.pending = ""
		c.mu.Unlock()
	}()

	typ := EventInfo
	if name == "bury" {
		typ = EventBury
	}
	c.log(typ, announce)

	if c.opts.Retries == 0 {
		return call(ctx)
	}
	backoff := retry.WithMaxRetries(c.opts.Retries, retry.NewExponential(c.opts.RetryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := call(ctx)
		if err != nil && game.IsRetryable(err) {
			c.log(EventSystem, fmt.Sprintf("Retrying %s: %s", name, reason(err)))
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) log(typ, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append([]Event{{Type: typ, Message: msg, Time: time.Now()}}, c.events...)
	if len(c.events) > c.opts.EventLimit {
		c.events = c.events[:c.opts.EventLimit]
	}
}

func eventForTile(kind string) string {
	switch kind {
	case "treasure":
		return EventTreasure
	case "trap":
		return EventTrap
	}
	return EventInfo
}

func reason(err error) string {
	var e *game.Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return err.Error()
}
