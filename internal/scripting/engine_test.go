package scripting

import (
	"context"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/MJE43/buried-treasure-go/internal/accounts"
	"github.com/MJE43/buried-treasure-go/internal/board"
	"github.com/MJE43/buried-treasure-go/internal/client"
	"github.com/MJE43/buried-treasure-go/internal/game"
	"github.com/MJE43/buried-treasure-go/internal/gateway"
	"github.com/MJE43/buried-treasure-go/internal/grid"
	"github.com/MJE43/buried-treasure-go/internal/store"
)

var quiet = log.New(io.Discard, "", 0)

func newTestClient(t *testing.T, id string) *client.Client {
	t.Helper()
	b, err := board.Generate(board.Seeds{Server: "script-test", Client: "client"}, 0, board.DefaultParams())
	if err != nil {
		t.Fatalf("generate board: %v", err)
	}
	gw := gateway.NewSimulated(b, gateway.SimulatedConfig{Latency: time.Millisecond, Logger: quiet})
	t.Cleanup(func() { gw.Close() })
	proc := game.NewProcessor(store.NewMemory(), gw, accounts.NewMemory(), game.Config{AwaitTimeout: time.Second, Logger: quiet})
	return client.New(client.NewLocal(proc), id, client.Options{})
}

type recordingEmitter struct {
	snaps []EngineSnapshot
}

func (r *recordingEmitter) EmitScriptState(s EngineSnapshot) {
	r.snaps = append(r.snaps, s)
}

func run(t *testing.T, eng *Engine, script string) EngineSnapshot {
	t.Helper()
	if err := eng.Start(context.Background(), script); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snap, err := eng.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return snap
}

func TestEngineRunsScriptedTurns(t *testing.T) {
	emitter := &recordingEmitter{}
	eng := NewEngine(newTestClient(t, "scripted"), Options{Emitter: emitter, Logger: quiet})

	script := `
		var step = 0
		doturn = function() {
			step++
			if (step == 1) { move(1, 0); return }
			if (step == 2) { explore(1, 1); return }
			if (step == 3) { bury(1, 0, 5); return }
			if (step == 4) { dig(1, 0); return }
			log("done at", x, y, "with", gold, "gold")
			stop()
		}
	`
	snap := run(t, eng, script)

	if snap.State != StateStopped {
		t.Fatalf("state = %s, error %q", snap.State, snap.Error)
	}
	if snap.Turns != 4 {
		t.Errorf("turns = %d, want 4", snap.Turns)
	}
	for _, action := range []string{ActionMove, ActionExplore, ActionBury, ActionDig} {
		if snap.Actions[action] != 1 {
			t.Errorf("%s count = %d, want 1", action, snap.Actions[action])
		}
	}
	if snap.Player.Position != (grid.Coord{X: 1, Y: 0}) {
		t.Errorf("position = %v", snap.Player.Position)
	}
	if snap.Player.Stats.LootBuried != 5 || snap.Player.Stats.LootDugUp < 5 {
		t.Errorf("stats = %+v", snap.Player.Stats)
	}
	if len(emitter.snaps) == 0 {
		t.Error("emitter received no snapshots")
	}

	logs := eng.GetLogs()
	if len(logs) != 1 || !strings.HasPrefix(logs[0].Message, "done at 1 0 with") {
		t.Errorf("logs = %+v", logs)
	}
}

func TestEngineExposesRefusals(t *testing.T) {
	eng := NewEngine(newTestClient(t, "refused"), Options{Logger: quiet})

	script := `
		var tried = false
		doturn = function() {
			if (!tried) { tried = true; move(5, 5); return }
			log("error:", last.error)
			stop()
		}
	`
	snap := run(t, eng, script)

	if snap.State != StateStopped {
		t.Fatalf("state = %s, error %q", snap.State, snap.Error)
	}
	if snap.Failed != 1 {
		t.Errorf("failed = %d, want 1", snap.Failed)
	}
	logs := eng.GetLogs()
	if len(logs) != 1 || logs[0].Message != "error: rule_violation" {
		t.Errorf("logs = %+v", logs)
	}
}

func TestEngineStopsAfterRepeatedFailures(t *testing.T) {
	eng := NewEngine(newTestClient(t, "stubborn"), Options{Logger: quiet})

	snap := run(t, eng, `doturn = function() { explore(9, 9) }`)

	if snap.State != StateError {
		t.Fatalf("state = %s", snap.State)
	}
	if snap.Failed != maxConsecutiveFailures {
		t.Errorf("failed = %d, want %d", snap.Failed, maxConsecutiveFailures)
	}
}

func TestEngineMaxTurns(t *testing.T) {
	eng := NewEngine(newTestClient(t, "walker"), Options{MaxTurns: 3, Logger: quiet})

	script := `
		doturn = function() {
			if (x < GRID_SIZE - 1) { move(x + 1, y) } else { move(x, y + 1) }
		}
	`
	snap := run(t, eng, script)

	if snap.State != StateStopped || snap.Turns != 3 {
		t.Fatalf("state = %s turns = %d", snap.State, snap.Turns)
	}
	if snap.Player.Position != (grid.Coord{X: 3, Y: 0}) {
		t.Errorf("position = %v", snap.Player.Position)
	}
}

func TestEngineIsExplored(t *testing.T) {
	eng := NewEngine(newTestClient(t, "careful"), Options{Logger: quiet})

	script := `
		doturn = function() {
			if (!isexplored(0, 1)) { explore(0, 1); return }
			log("explored", stats.tilesExplored)
		}
	`
	snap := run(t, eng, script)

	if snap.State != StateStopped || snap.Turns != 1 {
		t.Fatalf("state = %s turns = %d error %q", snap.State, snap.Turns, snap.Error)
	}
	logs := eng.GetLogs()
	if len(logs) != 1 || logs[0].Message != "explored 1" {
		t.Errorf("logs = %+v", logs)
	}
}

func TestEngineRejectsBadScripts(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"no doturn", `var x = 1`, "doturn"},
		{"syntax error", `doturn = function( {`, "script execution error"},
		{"sandboxed require", `require("fs")`, "script execution error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := NewEngine(newTestClient(t, "bad"), Options{Logger: quiet})
			err := eng.Start(context.Background(), tt.script)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Start err = %v, want mention of %q", err, tt.want)
			}
			if s := eng.GetState(); s.State != StateError {
				t.Errorf("state = %s", s.State)
			}
		})
	}
}

func TestEngineInterruptsRunawayScript(t *testing.T) {
	eng := NewEngine(newTestClient(t, "runaway"), Options{Logger: quiet})

	snap := run(t, eng, `doturn = function() { while (true) {} }`)

	if snap.State != StateError || !strings.Contains(snap.Error, "timed out") {
		t.Fatalf("state = %s error = %q", snap.State, snap.Error)
	}
}

func TestEngineStop(t *testing.T) {
	eng := NewEngine(newTestClient(t, "sleeper"), Options{Logger: quiet})

	script := `doturn = function() { sleep(50); if (x == 0) { move(1, y) } else { move(0, y) } }`
	if err := eng.Start(context.Background(), script); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := eng.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s := eng.GetState(); s.State != StateStopped {
		t.Errorf("state after Stop = %s", s.State)
	}
	if err := eng.Stop(); err == nil {
		t.Error("second Stop should fail")
	}
}
