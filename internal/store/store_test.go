package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MJE43/buried-treasure-go/internal/grid"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := sq.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get(ctx, "alice"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get before create: want ErrNotFound, got %v", err)
			}
			rec, err := s.Create(ctx, "alice")
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if rec.Position != (grid.Coord{}) || rec.Gold != StartGold || rec.Health != StartHealth {
				t.Errorf("unexpected starting record %+v", rec)
			}
			if _, err := s.Create(ctx, "alice"); !errors.Is(err, ErrAlreadyExists) {
				t.Errorf("second Create: want ErrAlreadyExists, got %v", err)
			}
			got, err := s.Get(ctx, "alice")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Gold != StartGold || len(got.Explored) != 0 {
				t.Errorf("Get returned %+v", got)
			}
		})
	}
}

func TestMutateAppliesAndCopies(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Create(ctx, "bob"); err != nil {
				t.Fatalf("Create: %v", err)
			}
			rec, err := s.Mutate(ctx, "bob", func(r *PlayerRecord) error {
				r.Position = grid.Coord{X: 1, Y: 1}
				r.Explored.Add(grid.Coord{X: 1, Y: 1})
				r.Stats.TilesExplored++
				r.Health = 250
				return nil
			})
			if err != nil {
				t.Fatalf("Mutate: %v", err)
			}
			if rec.Health != MaxHealth {
				t.Errorf("health not clamped: %d", rec.Health)
			}

			// Mutating the returned copy must not leak into the store.
			rec.Explored.Add(grid.Coord{X: 9, Y: 9})

			got, err := s.Get(ctx, "bob")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Position != (grid.Coord{X: 1, Y: 1}) || got.Stats.TilesExplored != 1 {
				t.Errorf("mutation not persisted: %+v", got)
			}
			if got.Explored.Has(grid.Coord{X: 9, Y: 9}) {
				t.Error("store shares state with a returned copy")
			}
		})
	}
}

func TestMutateRejections(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	tests := []struct {
		name string
		fn   MutateFunc
		want error
	}{
		{"callback error", func(r *PlayerRecord) error { r.Gold = 999; return boom }, boom},
		{"out of bounds", func(r *PlayerRecord) error { r.Position = grid.Coord{X: 10, Y: 0}; return nil }, ErrInvariant},
		{"explored shrinks", func(r *PlayerRecord) error { r.Explored = grid.Set{}; return nil }, ErrInvariant},
		{"stats decrease", func(r *PlayerRecord) error { r.Stats.TilesExplored = 0; return nil }, ErrInvariant},
		{"identity change", func(r *PlayerRecord) error { r.ID = "mallory"; return nil }, ErrInvariant},
	}

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Create(ctx, "carol"); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if _, err := s.Mutate(ctx, "carol", func(r *PlayerRecord) error {
				r.Explored.Add(grid.Coord{})
				r.Stats.TilesExplored = 1
				return nil
			}); err != nil {
				t.Fatalf("seed mutation: %v", err)
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					if _, err := s.Mutate(ctx, "carol", tt.fn); !errors.Is(err, tt.want) {
						t.Fatalf("want %v, got %v", tt.want, err)
					}
					got, err := s.Get(ctx, "carol")
					if err != nil {
						t.Fatalf("Get: %v", err)
					}
					if got.Gold != StartGold || got.Stats.TilesExplored != 1 || got.ID != "carol" {
						t.Errorf("rejected mutation leaked: %+v", got)
					}
				})
			}

			if _, err := s.Mutate(ctx, "nobody", func(*PlayerRecord) error { return nil }); !errors.Is(err, ErrNotFound) {
				t.Errorf("Mutate unknown player: want ErrNotFound, got %v", err)
			}
		})
	}
}

func TestConcurrentMutateIsAtomic(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Create(ctx, "dave"); err != nil {
				t.Fatalf("Create: %v", err)
			}
			const workers = 20
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.Mutate(ctx, "dave", func(r *PlayerRecord) error {
						r.Gold++
						return nil
					})
					if err != nil {
						t.Errorf("Mutate: %v", err)
					}
				}()
			}
			wg.Wait()

			got, err := s.Get(ctx, "dave")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Gold != StartGold+workers {
				t.Errorf("lost updates: gold=%d, want %d", got.Gold, StartGold+workers)
			}
		})
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"p1", "p2", "p3"} {
				if _, err := s.Create(ctx, id); err != nil {
					t.Fatalf("Create %s: %v", id, err)
				}
			}
			all, err := s.List(ctx)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("List returned %d records, want 3", len(all))
			}
		})
	}
}

func TestDebitAndDamage(t *testing.T) {
	rec := NewRecord("erin", NewMemory().now())
	if err := rec.Debit(25); err == nil {
		t.Error("Debit beyond balance must fail")
	}
	if rec.Gold != StartGold {
		t.Errorf("failed debit changed gold to %d", rec.Gold)
	}
	if err := rec.Debit(10); err != nil || rec.Gold != 10 {
		t.Errorf("Debit(10): gold=%d err=%v", rec.Gold, err)
	}
	if lost := rec.Damage(130); lost != StartHealth || rec.Health != 0 {
		t.Errorf("Damage(130): lost=%d health=%d", lost, rec.Health)
	}
}
