package scripting

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/MJE43/buried-treasure-go/internal/client"
	"github.com/MJE43/buried-treasure-go/internal/game"
	"github.com/MJE43/buried-treasure-go/internal/store"
)

// State represents the scripting engine's lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateError   State = "error"
)

// maxConsecutiveFailures stops a script that keeps choosing actions the
// engine refuses.
const maxConsecutiveFailures = 10

// EventEmitter receives state updates after every turn.
type EventEmitter interface {
	EmitScriptState(state EngineSnapshot)
}

// Options tunes an Engine.
type Options struct {
	// MaxTurns stops the script after this many actions. Zero means no
	// limit.
	MaxTurns int

	Emitter EventEmitter
	Logger  *log.Logger
}

// EngineSnapshot is a serializable snapshot of the engine state.
type EngineSnapshot struct {
	State   State              `json:"state"`
	Error   string             `json:"error,omitempty"`
	Turns   int                `json:"turns"`
	Actions map[string]int     `json:"actions"`
	Failed  int                `json:"failed"`
	Player  store.PlayerRecord `json:"player"`
	Elapsed string             `json:"elapsed"`
}

// Engine runs a JS strategy against one client. Each turn the script's
// doturn() queues one action, which the engine then performs. A turn that
// queues nothing ends the run.
type Engine struct {
	mu     sync.RWMutex
	state  State
	err    error
	cancel context.CancelFunc
	done   chan struct{}

	client *client.Client
	opts   Options
	logger *log.Logger

	vm      *VM
	vars    *Variables
	actions map[string]int
	failed  int

	startTime time.Time
}

// NewEngine creates a new scripting engine.
func NewEngine(c *client.Client, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[SCRIPT] ", log.LstdFlags|log.LUTC)
	}
	return &Engine{
		state:  StateIdle,
		client: c,
		opts:   opts,
		logger: logger,
	}
}

// Start registers the client's identity, runs the script once to define
// doturn(), then starts the turn loop in the background.
func (e *Engine) Start(ctx context.Context, script string) error {
	e.mu.Lock()
	if e.state == StateRunning {
		e.mu.Unlock()
		return fmt.Errorf("engine is already running")
	}
	e.state = StateRunning
	e.err = nil
	e.actions = make(map[string]int)
	e.failed = 0
	e.vm = NewVM()
	e.startTime = time.Now()
	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.mu.Unlock()

	reg, err := e.client.Register(loopCtx)
	if err != nil {
		return e.abort(cancel, fmt.Errorf("register: %w", err))
	}

	e.mu.Lock()
	e.vars = newVariables(reg.State)
	e.vars.Running = true
	vars := e.vars
	e.mu.Unlock()

	e.vm.SetVariables(vars)
	if err := e.vm.Execute(script); err != nil {
		return e.abort(cancel, err)
	}
	if !e.vm.HasTurnFunc() {
		return e.abort(cancel, errors.New("script must define a doturn() function"))
	}

	e.logger.Printf("script_started player=%s max_turns=%d", e.client.Identity(), e.opts.MaxTurns)
	e.emitState()
	go e.turnLoop(loopCtx)
	return nil
}

func (e *Engine) abort(cancel context.CancelFunc, err error) error {
	cancel()
	e.setError(err)
	close(e.done)
	return err
}

// Stop cancels the turn loop and waits for it to exit.
func (e *Engine) Stop() error {
	e.mu.RLock()
	running := e.state == StateRunning
	cancel, done := e.cancel, e.done
	e.mu.RUnlock()
	if !running {
		return fmt.Errorf("engine is not running")
	}
	cancel()
	<-done
	return nil
}

// Wait blocks until the turn loop exits or ctx is done.
func (e *Engine) Wait(ctx context.Context) (EngineSnapshot, error) {
	e.mu.RLock()
	done := e.done
	e.mu.RUnlock()
	if done == nil {
		return e.GetState(), nil
	}
	select {
	case <-done:
		return e.GetState(), nil
	case <-ctx.Done():
		return e.GetState(), ctx.Err()
	}
}

// GetState returns the current engine snapshot.
func (e *Engine) GetState() EngineSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot()
}

// GetLogs returns the script log buffer.
func (e *Engine) GetLogs() []LogEntry {
	e.mu.RLock()
	vm := e.vm
	e.mu.RUnlock()
	if vm == nil {
		return nil
	}
	return vm.GetLogs()
}

func (e *Engine) turnLoop(ctx context.Context) {
	defer close(e.done)
	defer func() {
		if r := recover(); r != nil {
			e.setError(fmt.Errorf("script panic: %v", r))
		}
	}()

	for {
		if ctx.Err() != nil {
			e.finish()
			return
		}

		if err := e.vm.CallTurn(); err != nil {
			e.setError(err)
			return
		}
		if e.vm.IsStopRequested() {
			e.finish()
			return
		}

		e.mu.Lock()
		e.vm.SyncAction(e.vars)
		vars := *e.vars
		e.mu.Unlock()

		if vars.NextAction == "" {
			e.finish()
			return
		}

		if d := e.vm.TakeSleepTime(); d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				e.finish()
				return
			}
		}

		last, err := e.perform(ctx, vars)
		if err != nil && ctx.Err() != nil {
			e.finish()
			return
		}
		if err != nil && game.KindOf(err) == game.KindInternal {
			e.setError(fmt.Errorf("%s failed: %w", vars.NextAction, err))
			return
		}

		rec, stateErr := e.client.State(ctx)
		if stateErr != nil && ctx.Err() != nil {
			e.finish()
			return
		}

		e.mu.Lock()
		e.vars.Turn++
		e.vars.Last = last
		e.actions[vars.NextAction]++
		if err != nil {
			e.failed++
		} else {
			e.failed = 0
		}
		if stateErr == nil {
			e.vars.update(rec)
		}
		failed := e.failed
		turns := e.vars.Turn
		health := e.vars.Player.Health
		e.vm.SetVariables(e.vars)
		e.mu.Unlock()

		e.emitState()

		switch {
		case failed >= maxConsecutiveFailures:
			e.setError(fmt.Errorf("%d consecutive actions failed, last: %v", failed, err))
			return
		case health == 0:
			e.logger.Printf("script_halted player=%s reason=no_health turns=%d", e.client.Identity(), turns)
			e.finish()
			return
		case e.opts.MaxTurns > 0 && turns >= e.opts.MaxTurns:
			e.finish()
			return
		}
	}
}

// perform runs the queued action. Engine refusals come back as a
// LastResult the script can inspect, together with the error.
func (e *Engine) perform(ctx context.Context, vars Variables) (LastResult, error) {
	last := LastResult{Action: vars.NextAction}
	var err error

	switch vars.NextAction {
	case ActionMove:
		var res game.MoveResult
		res, err = e.client.Move(ctx, vars.Target)
		if err == nil {
			last.Message = fmt.Sprintf("Moved to (%d, %d)", res.NewX, res.NewY)
		}
	case ActionExplore:
		var res game.ExploreResult
		res, err = e.client.Explore(ctx, vars.Target)
		if err == nil {
			last.Message, last.Value, last.Found = res.Message, res.Value, string(res.TileType)
		}
	case ActionDig:
		var res game.DigResult
		res, err = e.client.Dig(ctx, vars.Target)
		if err == nil {
			last.Message, last.Value, last.Found = res.Message, res.TotalValue, string(res.FoundType)
		}
	case ActionBury:
		if vars.Amount < 0 {
			err = &game.Error{Kind: game.KindInvalidInput, Reason: "amount must not be negative"}
			break
		}
		var res game.BuryResult
		res, err = e.client.Bury(ctx, vars.Target, uint(vars.Amount))
		if err == nil {
			last.Message, last.Value = res.Message, res.NewGold
		}
	default:
		err = &game.Error{Kind: game.KindInvalidInput, Reason: fmt.Sprintf("unknown action %q", vars.NextAction)}
	}

	if err != nil {
		last.ErrorKind = string(game.KindOf(err))
		last.Message = err.Error()
	}
	return last, err
}

func (e *Engine) finish() {
	e.mu.Lock()
	if e.state == StateRunning {
		e.state = StateStopped
	}
	if e.vars != nil {
		e.vars.Running = false
	}
	turns := 0
	if e.vars != nil {
		turns = e.vars.Turn
	}
	e.mu.Unlock()
	e.logger.Printf("script_stopped player=%s turns=%d", e.client.Identity(), turns)
	e.emitState()
}

func (e *Engine) setError(err error) {
	e.mu.Lock()
	e.state = StateError
	e.err = err
	if e.vars != nil {
		e.vars.Running = false
	}
	e.mu.Unlock()
	e.logger.Printf("script_error player=%s err=%q", e.client.Identity(), err)
	e.emitState()
}

func (e *Engine) emitState() {
	if e.opts.Emitter == nil {
		return
	}
	e.opts.Emitter.EmitScriptState(e.GetState())
}

func (e *Engine) snapshot() EngineSnapshot {
	snap := EngineSnapshot{
		State:   e.state,
		Actions: make(map[string]int, len(e.actions)),
		Failed:  e.failed,
	}
	if e.err != nil {
		snap.Error = e.err.Error()
	}
	for k, v := range e.actions {
		snap.Actions[k] = v
	}
	if e.vars != nil {
		snap.Turns = e.vars.Turn
		snap.Player = e.vars.Player.Clone()
	}
	if !e.startTime.IsZero() {
		snap.Elapsed = time.Since(e.startTime).Round(time.Millisecond).String()
	}
	return snap
}
