// Package game is the action processor. It takes one Move, Explore, Dig or
// Bury for one identity through validate, submit, await and apply, and
// guarantees at most one action in flight per identity.
package game

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/MJE43/buried-treasure-go/internal/accounts"
	"github.com/MJE43/buried-treasure-go/internal/gateway"
	"github.com/MJE43/buried-treasure-go/internal/grid"
	"github.com/MJE43/buried-treasure-go/internal/keylock"
	"github.com/MJE43/buried-treasure-go/internal/ledger"
	"github.com/MJE43/buried-treasure-go/internal/store"
)

// MaxIdentityLength bounds identity strings accepted by the engine.
const MaxIdentityLength = 128

// Config tunes a Processor.
type Config struct {
	// AwaitTimeout bounds each wait on the gateway. Defaults to 5s.
	AwaitTimeout time.Duration

	// FeedSize is how many public action events are kept. Defaults to 256.
	FeedSize int

	Logger *log.Logger
}

// Processor runs actions against the store, the reveal ledger and the
// computation gateway.
type Processor struct {
	players  store.Store
	ledger   *ledger.Ledger
	gw       gateway.Gateway
	facts    accounts.Recorder
	inflight keylock.Table
	timeout  time.Duration
	logger   *log.Logger
	notify   *notifier
	feed     *feed
}

func NewProcessor(players store.Store, gw gateway.Gateway, facts accounts.Recorder, cfg Config) *Processor {
	if cfg.AwaitTimeout <= 0 {
		cfg.AwaitTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[ENGINE] ", log.LstdFlags|log.LUTC)
	}
	if facts == nil {
		facts = accounts.NewMemory()
	}
	return &Processor{
		players: players,
		ledger:  ledger.New(players),
		gw:      gw,
		facts:   facts,
		timeout: cfg.AwaitTimeout,
		logger:  logger,
		notify:  newNotifier(),
		feed:    newFeed(cfg.FeedSize),
	}
}

// Register creates the record for id. Registering an existing identity
// returns its current record and no commit handle.
func (p *Processor) Register(ctx context.Context, id string) (Registration, error) {
	if err := checkIdentity(id); err != nil {
		return Registration{}, err
	}
	rec, err := p.players.Create(ctx, id)
	if errors.Is(err, store.ErrAlreadyExists) {
		rec, err = p.players.Get(ctx, id)
		if err != nil {
			return Registration{}, newError(KindInternal, "failed to load player", err)
		}
		return Registration{State: rec}, nil
	}
	if err != nil {
		return Registration{}, newError(KindInternal, "failed to register player", err)
	}

	tx := p.commit(ctx, accounts.Fact{Kind: accounts.KindRegister, Player: id})
	p.feed.add(ActionEvent{Kind: accounts.KindRegister, At: time.Now().UTC()})
	p.logger.Printf("player_registered player=%s tx=%s", fingerprint(id), tx)
	return Registration{State: rec, Tx: tx, New: true}, nil
}

// State returns the full current record for id.
func (p *Processor) State(ctx context.Context, id string) (store.PlayerRecord, error) {
	if err := checkIdentity(id); err != nil {
		return store.PlayerRecord{}, err
	}
	rec, err := p.players.Get(ctx, id)
	if err != nil {
		return store.PlayerRecord{}, classifyApply(err)
	}
	return rec, nil
}

func (p *Processor) Move(ctx context.Context, id string, target grid.Coord) (MoveResult, error) {
	a := action{kind: gateway.KindMove, player: id, target: target}

	validate := func(rec store.PlayerRecord) error {
		if err := checkTarget(target); err != nil {
			return err
		}
		if target == rec.Position {
			return newError(KindRuleViolation, "cannot move to the current tile", nil)
		}
		if !grid.Adjacent(rec.Position, target, false) {
			return newError(KindRuleViolation, fmt.Sprintf("%s is not adjacent to %s", target, rec.Position), nil)
		}
		return nil
	}
	apply := func(ctx context.Context, out gateway.Output) (store.PlayerRecord, error) {
		return p.players.Mutate(ctx, id, func(r *store.PlayerRecord) error {
			if !grid.CanMove(r.Position, out.Target) {
				return fmt.Errorf("%w: %s from %s", ledger.ErrNotReachable, out.Target, r.Position)
			}
			r.Position = out.Target
			return nil
		})
	}

	rec, err := p.perform(ctx, a, validate, apply)
	if err != nil {
		return MoveResult{}, err
	}
	return MoveResult{NewX: rec.Position.X, NewY: rec.Position.Y}, nil
}

func (p *Processor) Explore(ctx context.Context, id string, target grid.Coord) (ExploreResult, error) {
	a := action{kind: gateway.KindExplore, player: id, target: target}

	validate := func(rec store.PlayerRecord) error {
		if err := checkReach(rec, target); err != nil {
			return err
		}
		if rec.Explored.Has(target) {
			return newError(KindRuleViolation, fmt.Sprintf("tile %s already explored", target), nil)
		}
		return nil
	}

	var result ExploreResult
	apply := func(ctx context.Context, out gateway.Output) (store.PlayerRecord, error) {
		if out.Tile == nil {
			return store.PlayerRecord{}, errors.New("explore result carries no tile")
		}
		ex, rec, err := p.ledger.RecordExploration(ctx, id, out.Target, *out.Tile)
		if err != nil {
			return store.PlayerRecord{}, err
		}
		result = ExploreResult{TileType: ex.Tile.Kind, Value: ex.Tile.Value, Message: exploreMessage(ex.Tile)}
		return rec, nil
	}

	if _, err := p.perform(ctx, a, validate, apply); err != nil {
		return ExploreResult{}, err
	}
	return result, nil
}

func (p *Processor) Dig(ctx context.Context, id string, target grid.Coord) (DigResult, error) {
	a := action{kind: gateway.KindDig, player: id, target: target}

	validate := func(rec store.PlayerRecord) error {
		return checkReach(rec, target)
	}

	var result DigResult
	apply := func(ctx context.Context, out gateway.Output) (store.PlayerRecord, error) {
		if out.Tile == nil {
			return store.PlayerRecord{}, errors.New("dig result carries no tile")
		}
		o, rec, err := p.ledger.RecordDig(ctx, id, out.Target, *out.Tile)
		if err != nil {
			return store.PlayerRecord{}, err
		}
		result = DigResult{FoundType: o.Found, TotalValue: o.TotalValue, HealthLost: o.HealthLost, Message: digMessage(o)}
		return rec, nil
	}

	if _, err := p.perform(ctx, a, validate, apply); err != nil {
		return DigResult{}, err
	}
	return result, nil
}

func (p *Processor) Bury(ctx context.Context, id string, target grid.Coord, amount uint) (BuryResult, error) {
	a := action{kind: gateway.KindBury, player: id, target: target, amount: amount}

	validate := func(rec store.PlayerRecord) error {
		if amount == 0 {
			return newError(KindRuleViolation, "amount must be positive", nil)
		}
		if err := checkReach(rec, target); err != nil {
			return err
		}
		if amount > rec.Gold {
			return newError(KindRuleViolation, fmt.Sprintf("insufficient gold: have %d, need %d", rec.Gold, amount), nil)
		}
		return nil
	}

	var result BuryResult
	apply := func(ctx context.Context, out gateway.Output) (store.PlayerRecord, error) {
		b, rec, err := p.ledger.RecordBurial(ctx, id, out.Target, amount)
		if err != nil {
			return store.PlayerRecord{}, err
		}
		result = BuryResult{NewGold: b.NewGold, Message: buryMessage(b.Amount)}
		return rec, nil
	}

	if _, err := p.perform(ctx, a, validate, apply); err != nil {
		return BuryResult{}, err
	}
	return result, nil
}

// Subscribe delivers id's record after every applied action until cancel
// is called.
func (p *Processor) Subscribe(id string) (<-chan store.PlayerRecord, func()) {
	return p.notify.subscribe(id)
}

// Events returns up to limit public action events, newest first.
func (p *Processor) Events(limit int) []ActionEvent {
	return p.feed.recent(limit)
}

// Facts returns the most recent public facts from the account layer.
func (p *Processor) Facts(ctx context.Context, limit int) ([]accounts.Entry, error) {
	entries, err := p.facts.Recent(ctx, limit)
	if err != nil {
		return nil, newError(KindInternal, "failed to read public facts", err)
	}
	return entries, nil
}

// Leaderboard ranks players by their public counters.
func (p *Processor) Leaderboard(ctx context.Context, limit int) ([]Standing, error) {
	all, err := p.players.List(ctx)
	if err != nil {
		return nil, newError(KindInternal, "failed to list players", err)
	}
	rows := make([]Standing, 0, len(all))
	for _, rec := range all {
		rows = append(rows, standingOf(rec))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.TreasuresFound != b.TreasuresFound {
			return a.TreasuresFound > b.TreasuresFound
		}
		return a.TilesExplored > b.TilesExplored
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// Outstanding is how much of id's own buried gold is still in the ground.
func (p *Processor) Outstanding(id string) uint {
	return p.ledger.Outstanding(id)
}

// Check reports whether the gateway can take work.
func (p *Processor) Check(ctx context.Context) error {
	if c, ok := p.gw.(gateway.Checker); ok {
		return c.Check(ctx)
	}
	return nil
}

// inFlight reports whether id has an action in flight.
func (p *Processor) inFlight(id string) bool {
	return p.inflight.Held(id)
}

type action struct {
	kind   gateway.Kind
	player string
	target grid.Coord
	amount uint
	jobID  uuid.UUID
}

type (
	validateFunc func(rec store.PlayerRecord) error
	applyFunc    func(ctx context.Context, out gateway.Output) (store.PlayerRecord, error)
)

// perform drives one action through its lifecycle.
func (p *Processor) perform(ctx context.Context, a action, validate validateFunc, apply applyFunc) (store.PlayerRecord, error) {
	if err := checkIdentity(a.player); err != nil {
		return store.PlayerRecord{}, err
	}
	if !p.inflight.TryLock(a.player) {
		err := newError(KindBusy, "another action is already in flight", nil)
		p.transition(a, StateRejected, err)
		return store.PlayerRecord{}, err
	}
	defer p.inflight.Unlock(a.player)

	rec, err := p.players.Get(ctx, a.player)
	if err != nil {
		return p.finish(a, StateRejected, classifyApply(err))
	}
	if err := validate(rec); err != nil {
		return p.finish(a, StateRejected, err)
	}
	p.transition(a, StateValidated, nil)

	job, err := gateway.NewJob(a.kind, a.player, gateway.Input{Target: a.target, Amount: a.amount})
	if err != nil {
		return p.finish(a, StateFailed, newError(KindInternal, "failed to build job", err))
	}
	a.jobID = job.ID

	handle, err := p.gw.Submit(ctx, job)
	if err != nil {
		return p.finish(a, StateFailed, classifyGateway(err))
	}
	p.transition(a, StateSubmitted, nil)

	p.transition(a, StateAwaiting, nil)
	res, err := p.gw.Await(ctx, handle, p.timeout)
	if err != nil {
		gerr := classifyGateway(err)
		if gerr.Kind == KindTimedOut {
			return p.finish(a, StateTimedOut, gerr)
		}
		return p.finish(a, StateFailed, gerr)
	}
	if err := res.Err(); err != nil {
		return p.finish(a, StateFailed, newError(KindInternal, "computation refused the action", err))
	}

	var out gateway.Output
	if err := gateway.Open(a.player, res.Payload, &out); err != nil {
		return p.finish(a, StateFailed, newError(KindInternal, "unreadable computation result", err))
	}
	if out.Target != a.target {
		return p.finish(a, StateFailed, newError(KindInternal, "computation result does not match the action", nil))
	}

	rec, err = apply(ctx, out)
	if err != nil {
		aerr := classifyApply(err)
		if aerr.Kind == KindRuleViolation {
			return p.finish(a, StateRejected, aerr)
		}
		return p.finish(a, StateFailed, aerr)
	}
	p.transition(a, StateApplied, nil)

	p.notify.publish(rec)
	p.feed.add(ActionEvent{Kind: accounts.Kind(a.kind), At: time.Now().UTC()})
	p.commit(ctx, factFor(a))
	return rec, nil
}

func (p *Processor) finish(a action, state State, err error) (store.PlayerRecord, error) {
	p.transition(a, state, err)
	return store.PlayerRecord{}, err
}

// transition logs a lifecycle step. Bury steps never name the player.
func (p *Processor) transition(a action, state State, err error) {
	player := fingerprint(a.player)
	if a.kind == gateway.KindBury {
		player = "-"
	}
	if err != nil {
		p.logger.Printf("action_%s kind=%s player=%s job_id=%s error_kind=%s reason=%q",
			state, a.kind, player, a.jobID, KindOf(err), err.Error())
		return
	}
	p.logger.Printf("action_%s kind=%s player=%s job_id=%s", state, a.kind, player, a.jobID)
}

// commit records a public fact. The action has already been applied, so a
// failure here is logged and does not fail the action.
func (p *Processor) commit(ctx context.Context, f accounts.Fact) accounts.Handle {
	h, err := p.facts.Commit(context.WithoutCancel(ctx), f)
	if err != nil {
		p.logger.Printf("fact_commit_failed kind=%s error=%q", f.Kind, err)
		return ""
	}
	return h
}

func factFor(a action) accounts.Fact {
	switch a.kind {
	case gateway.KindBury:
		return accounts.Fact{Kind: accounts.KindBury}
	default:
		return accounts.Fact{Kind: accounts.Kind(a.kind), Player: a.player}
	}
}

func checkIdentity(id string) error {
	if id == "" {
		return newError(KindInvalidInput, "identity is required", nil)
	}
	if len(id) > MaxIdentityLength {
		return newError(KindInvalidInput, "identity is too long", nil)
	}
	return nil
}

func checkTarget(target grid.Coord) error {
	if !grid.InBounds(target) {
		return newError(KindRuleViolation, fmt.Sprintf("target %s is out of bounds", target), nil)
	}
	return nil
}

func checkReach(rec store.PlayerRecord, target grid.Coord) error {
	if err := checkTarget(target); err != nil {
		return err
	}
	if !grid.Adjacent(rec.Position, target, true) {
		return newError(KindRuleViolation, fmt.Sprintf("%s is not adjacent to %s", target, rec.Position), nil)
	}
	return nil
}

func classifyGateway(err error) *Error {
	switch {
	case errors.Is(err, gateway.ErrRateLimited):
		return newError(KindComputeUnavailable, "compute cluster is rate limiting, retry later", err)
	case errors.Is(err, gateway.ErrUnavailable):
		return newError(KindComputeUnavailable, "compute cluster unavailable, retry later", err)
	case errors.Is(err, gateway.ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		return newError(KindTimedOut, "no result in time; the action may or may not have taken effect", err)
	case errors.Is(err, context.Canceled):
		return newError(KindInternal, "action cancelled", err)
	default:
		return newError(KindInternal, "computation gateway error", err)
	}
}

func classifyApply(err error) *Error {
	var e *Error
	switch {
	case errors.As(err, &e):
		return e
	case errors.Is(err, store.ErrNotFound):
		return newError(KindNotRegistered, "identity is not registered", err)
	case errors.Is(err, ledger.ErrAlreadyExplored):
		return newError(KindRuleViolation, "tile already explored", err)
	case errors.Is(err, ledger.ErrNotReachable):
		return newError(KindRuleViolation, "tile is not adjacent", err)
	case errors.Is(err, ledger.ErrInsufficientGold):
		return newError(KindRuleViolation, "insufficient gold", err)
	case errors.Is(err, ledger.ErrInvalidAmount):
		return newError(KindRuleViolation, "amount must be positive", err)
	default:
		return newError(KindInternal, "failed to apply action", err)
	}
}

// fingerprint stands in for an identity in logs.
func fingerprint(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])[:16]
}
