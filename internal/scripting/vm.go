package scripting

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/MJE43/buried-treasure-go/internal/grid"
)

// LogEntry is one message written by the script.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// VM wraps a goja runtime with sandbox restrictions and the game helpers.
type VM struct {
	runtime *goja.Runtime
	mu      sync.Mutex

	logs    []LogEntry
	logsMu  sync.Mutex
	maxLogs int

	explored      grid.Set
	stopRequested bool
}

const (
	scriptInitTimeout = 2 * time.Second
	scriptCallTimeout = 1 * time.Second
)

// NewVM creates a sandboxed goja runtime with global functions injected.
func NewVM() *VM {
	vm := &VM{
		runtime:  goja.New(),
		maxLogs:  500,
		explored: grid.Set{},
	}
	vm.injectGlobalFunctions()
	injectConstants(vm.runtime)
	return vm
}

func (vm *VM) injectGlobalFunctions() {
	vm.runtime.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		vm.appendLog(strings.Join(parts, " "))
		return goja.Undefined()
	})

	console := vm.runtime.NewObject()
	console.Set("log", vm.runtime.Get("log"))
	vm.runtime.Set("console", console)

	vm.runtime.Set("stop", func(call goja.FunctionCall) goja.Value {
		vm.stopRequested = true
		vm.runtime.Set("running", false)
		return goja.Undefined()
	})

	// sleep(ms) delays the next action.
	vm.runtime.Set("sleep", func(call goja.FunctionCall) goja.Value {
		ms := int64(0)
		if len(call.Arguments) > 0 {
			ms = call.Arguments[0].ToInteger()
		}
		vm.runtime.Set("sleeptime", ms)
		return goja.Undefined()
	})

	// move/explore/dig/bury only queue the action; it runs after doturn()
	// returns.
	queue := func(action string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			vm.runtime.Set("nextaction", action)
			vm.runtime.Set("targetx", call.Argument(0).ToInteger())
			vm.runtime.Set("targety", call.Argument(1).ToInteger())
			if action == ActionBury {
				vm.runtime.Set("amount", call.Argument(2).ToInteger())
			}
			return goja.Undefined()
		}
	}
	vm.runtime.Set("move", queue(ActionMove))
	vm.runtime.Set("explore", queue(ActionExplore))
	vm.runtime.Set("dig", queue(ActionDig))
	vm.runtime.Set("bury", queue(ActionBury))

	vm.runtime.Set("isexplored", func(call goja.FunctionCall) goja.Value {
		c := grid.Coord{X: int(call.Argument(0).ToInteger()), Y: int(call.Argument(1).ToInteger())}
		return vm.runtime.ToValue(vm.explored.Has(c))
	})

	vm.runtime.Set("require", goja.Undefined())
	vm.runtime.Set("fetch", goja.Undefined())
	vm.runtime.Set("XMLHttpRequest", goja.Undefined())
	vm.runtime.Set("eval", goja.Undefined())
	vm.runtime.Set("Function", goja.Undefined())
}

func (vm *VM) appendLog(msg string) {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	if len(vm.logs) >= vm.maxLogs {
		vm.logs = vm.logs[1:]
	}
	vm.logs = append(vm.logs, LogEntry{Time: time.Now(), Message: msg})
}

// Execute runs the script source once so it can define doturn().
func (vm *VM) Execute(source string) error {
	return vm.runWithTimeout(scriptInitTimeout, func() error {
		vm.mu.Lock()
		defer vm.mu.Unlock()
		if _, err := vm.runtime.RunString(source); err != nil {
			return fmt.Errorf("script execution error: %w", err)
		}
		return nil
	})
}

// HasTurnFunc reports whether the script defined doturn().
func (vm *VM) HasTurnFunc() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	_, ok := goja.AssertFunction(vm.runtime.Get("doturn"))
	return ok
}

// CallTurn clears the queued action and calls doturn().
func (vm *VM) CallTurn() error {
	return vm.runWithTimeout(scriptCallTimeout, func() error {
		vm.mu.Lock()
		defer vm.mu.Unlock()

		callable, ok := goja.AssertFunction(vm.runtime.Get("doturn"))
		if !ok {
			return fmt.Errorf("doturn is not a function")
		}
		vm.runtime.Set("nextaction", "")
		if _, err := callable(goja.Undefined()); err != nil {
			return fmt.Errorf("doturn() error: %w", err)
		}
		return nil
	})
}

// IsStopRequested returns true if stop() was called from the script.
func (vm *VM) IsStopRequested() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.stopRequested
}

// SetVariables pushes the current variable state into the JS runtime.
func (vm *VM) SetVariables(vars *Variables) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.explored = vars.Explored.Clone()
	injectVariables(vm.runtime, vars)
}

// SyncAction reads the queued action back from the JS runtime.
func (vm *VM) SyncAction(vars *Variables) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	syncFromVM(vm.runtime, vars)
}

// TakeSleepTime returns and clears the delay requested with sleep().
func (vm *VM) TakeSleepTime() time.Duration {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	val := vm.runtime.Get("sleeptime")
	if val == nil || goja.IsUndefined(val) {
		return 0
	}
	vm.runtime.Set("sleeptime", 0)
	return time.Duration(val.ToInteger()) * time.Millisecond
}

// GetLogs returns a copy of the current log buffer.
func (vm *VM) GetLogs() []LogEntry {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	out := make([]LogEntry, len(vm.logs))
	copy(out, vm.logs)
	return out
}

func (vm *VM) runWithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		vm.runtime.Interrupt("script execution timeout")
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("script timed out: %w", err)
			}
			return fmt.Errorf("script timed out")
		case <-time.After(200 * time.Millisecond):
			return fmt.Errorf("script timed out")
		}
	}
}
