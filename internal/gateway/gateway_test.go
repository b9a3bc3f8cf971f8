package gateway

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MJE43/buried-treasure-go/internal/board"
	"github.com/MJE43/buried-treasure-go/internal/grid"
)

var quiet = log.New(io.Discard, "", 0)

func testBoard(t *testing.T) *board.Board {
	t.Helper()
	b, err := board.Generate(board.Seeds{Server: "server-seed", Client: "client-seed"}, 0, board.DefaultParams())
	if err != nil {
		t.Fatalf("generate board: %v", err)
	}
	return b
}

func newSim(t *testing.T, cfg SimulatedConfig) *Simulated {
	t.Helper()
	if cfg.Latency == 0 {
		cfg.Latency = 20 * time.Millisecond
	}
	cfg.Logger = quiet
	s := NewSimulated(testBoard(t), cfg)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustJob(t *testing.T, kind Kind, requester string, in Input) Job {
	t.Helper()
	job, err := NewJob(kind, requester, in)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	return job
}

func TestSealRoundTrip(t *testing.T) {
	data, err := Seal("alice", Input{Target: grid.Coord{X: 2, Y: 3}, Amount: 7})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	var in Input
	if err := Open("alice", data, &in); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if in.Target != (grid.Coord{X: 2, Y: 3}) || in.Amount != 7 {
		t.Errorf("opened %+v", in)
	}
	if err := Open("bob", data, &in); !errors.Is(err, ErrSealMismatch) {
		t.Errorf("Open by another requester: want ErrSealMismatch, got %v", err)
	}
}

func TestSimulatedExploreRevealsBoard(t *testing.T) {
	b := testBoard(t)
	s := newSim(t, SimulatedConfig{})
	ctx := context.Background()

	target := grid.Coord{X: 4, Y: 7}
	h, err := s.Submit(ctx, mustJob(t, KindExplore, "alice", Input{Target: target}))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	res, err := s.Await(ctx, h, time.Second)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if res.Err() != nil {
		t.Fatalf("result failure: %v", res.Err())
	}
	var out Output
	if err := Open("alice", res.Payload, &out); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if out.Tile == nil || *out.Tile != b.Tile(target) {
		t.Errorf("tile = %v, want %v", out.Tile, b.Tile(target))
	}
}

func TestSimulatedLatency(t *testing.T) {
	s := newSim(t, SimulatedConfig{Latency: 80 * time.Millisecond})
	ctx := context.Background()

	start := time.Now()
	h, err := s.Submit(ctx, mustJob(t, KindMove, "alice", Input{Target: grid.Coord{X: 1}}))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if time.Since(start) > 40*time.Millisecond {
		t.Error("Submit must return immediately")
	}
	if _, err := s.Await(ctx, h, time.Second); err != nil {
		t.Fatalf("Await: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("result arrived after %v, before the configured latency", elapsed)
	}
}

func TestSimulatedResultRetrievedOnce(t *testing.T) {
	s := newSim(t, SimulatedConfig{})
	ctx := context.Background()

	h, err := s.Submit(ctx, mustJob(t, KindMove, "alice", Input{Target: grid.Coord{X: 1}}))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := s.Await(ctx, h, time.Second); err != nil {
		t.Fatalf("first Await: %v", err)
	}
	if _, err := s.Await(ctx, h, time.Second); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("second Await: want ErrUnknownHandle, got %v", err)
	}
}

func TestSimulatedDeduplicatesJobID(t *testing.T) {
	s := newSim(t, SimulatedConfig{})
	ctx := context.Background()
	job := mustJob(t, KindMove, "alice", Input{Target: grid.Coord{X: 1}})

	h1, err := s.Submit(ctx, job)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h2, err := s.Submit(ctx, job)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if h1 != h2 {
		t.Errorf("resubmission produced a new handle: %s vs %s", h1, h2)
	}
	if n := s.InFlight(); n != 1 {
		t.Errorf("in flight = %d, want 1", n)
	}
}

func TestSimulatedTimeoutDropsLateResult(t *testing.T) {
	s := newSim(t, SimulatedConfig{Latency: 100 * time.Millisecond})
	ctx := context.Background()

	h, err := s.Submit(ctx, mustJob(t, KindDig, "alice", Input{Target: grid.Coord{X: 1}}))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := s.Await(ctx, h, 10*time.Millisecond); !errors.Is(err, ErrTimedOut) {
		t.Fatalf("want ErrTimedOut, got %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	if _, err := s.Await(ctx, h, time.Second); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("late result must be dropped, got %v", err)
	}
}

func TestSimulatedAdmission(t *testing.T) {
	ctx := context.Background()

	t.Run("capacity", func(t *testing.T) {
		s := newSim(t, SimulatedConfig{Latency: 200 * time.Millisecond, Capacity: 1})
		if _, err := s.Submit(ctx, mustJob(t, KindMove, "a", Input{Target: grid.Coord{X: 1}})); err != nil {
			t.Fatalf("first Submit: %v", err)
		}
		if _, err := s.Submit(ctx, mustJob(t, KindMove, "b", Input{Target: grid.Coord{X: 1}})); !errors.Is(err, ErrUnavailable) {
			t.Errorf("want ErrUnavailable, got %v", err)
		}
	})

	t.Run("rate", func(t *testing.T) {
		s := newSim(t, SimulatedConfig{RatePerSecond: 0.001, Burst: 1})
		if _, err := s.Submit(ctx, mustJob(t, KindMove, "a", Input{Target: grid.Coord{X: 1}})); err != nil {
			t.Fatalf("first Submit: %v", err)
		}
		if _, err := s.Submit(ctx, mustJob(t, KindMove, "b", Input{Target: grid.Coord{X: 1}})); !errors.Is(err, ErrRateLimited) {
			t.Errorf("want ErrRateLimited, got %v", err)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		s := newSim(t, SimulatedConfig{})
		if _, err := s.Submit(ctx, Job{ID: uuid.New(), Kind: "teleport", Requester: "a", EncryptedInput: []byte("{}")}); !errors.Is(err, ErrInvalidJob) {
			t.Errorf("want ErrInvalidJob, got %v", err)
		}
	})

	t.Run("closed", func(t *testing.T) {
		s := newSim(t, SimulatedConfig{})
		s.Close()
		if _, err := s.Submit(ctx, mustJob(t, KindMove, "a", Input{Target: grid.Coord{X: 1}})); !errors.Is(err, ErrUnavailable) {
			t.Errorf("want ErrUnavailable after Close, got %v", err)
		}
	})
}

func TestSimulatedRejectsOutOfBounds(t *testing.T) {
	s := newSim(t, SimulatedConfig{})
	ctx := context.Background()
	h, err := s.Submit(ctx, mustJob(t, KindExplore, "alice", Input{Target: grid.Coord{X: -1}}))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	res, err := s.Await(ctx, h, time.Second)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if !errors.Is(res.Err(), ErrRejected) {
		t.Errorf("want ErrRejected, got %v", res.Err())
	}
}

func TestRemoteOverHandler(t *testing.T) {
	s := newSim(t, SimulatedConfig{Latency: 30 * time.Millisecond})
	srv := httptest.NewServer(NewHandler(s, time.Second, quiet))
	defer srv.Close()

	r := NewRemote(RemoteConfig{BaseURL: srv.URL, BaseRetryDelay: time.Millisecond})
	ctx := context.Background()

	if err := r.Check(ctx); err != nil {
		t.Fatalf("Check: %v", err)
	}

	job := mustJob(t, KindExplore, "alice", Input{Target: grid.Coord{X: 1, Y: 1}})
	h, err := r.Submit(ctx, job)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	again, err := r.Submit(ctx, job)
	if err != nil || again != h {
		t.Errorf("resubmit over HTTP: handle=%s err=%v, want %s", again, err, h)
	}

	res, err := r.Await(ctx, h, time.Second)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	var out Output
	if err := Open("alice", res.Payload, &out); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if out.Tile == nil {
		t.Error("explore result carries no tile")
	}

	if _, err := r.Await(ctx, h, time.Second); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("second Await over HTTP: want ErrUnknownHandle, got %v", err)
	}
}

func TestRemoteTimeout(t *testing.T) {
	s := newSim(t, SimulatedConfig{Latency: 300 * time.Millisecond})
	srv := httptest.NewServer(NewHandler(s, time.Second, quiet))
	defer srv.Close()

	r := NewRemote(RemoteConfig{BaseURL: srv.URL})
	ctx := context.Background()
	h, err := r.Submit(ctx, mustJob(t, KindMove, "alice", Input{Target: grid.Coord{X: 1}}))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := r.Await(ctx, h, 20*time.Millisecond); !errors.Is(err, ErrTimedOut) {
		t.Errorf("want ErrTimedOut, got %v", err)
	}
}

func TestRemoteSubmitRetriesUnreachable(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	r := NewRemote(RemoteConfig{BaseURL: url, MaxRetries: 2, BaseRetryDelay: time.Millisecond})
	_, err := r.Submit(context.Background(), mustJob(t, KindMove, "alice", Input{Target: grid.Coord{X: 1}}))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("want ErrUnavailable after retries, got %v", err)
	}
}
