package ledger

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/MJE43/buried-treasure-go/internal/board"
	"github.com/MJE43/buried-treasure-go/internal/grid"
	"github.com/MJE43/buried-treasure-go/internal/store"
)

func setup(t *testing.T, players ...string) (*Ledger, store.Store) {
	t.Helper()
	s := store.NewMemory()
	for _, p := range players {
		if _, err := s.Create(context.Background(), p); err != nil {
			t.Fatalf("Create %s: %v", p, err)
		}
	}
	return New(s), s
}

func moveTo(t *testing.T, s store.Store, player string, c grid.Coord) {
	t.Helper()
	if _, err := s.Mutate(context.Background(), player, func(r *store.PlayerRecord) error {
		r.Position = c
		return nil
	}); err != nil {
		t.Fatalf("move %s: %v", player, err)
	}
}

var (
	empty    = board.Tile{Kind: board.KindEmpty}
	treasure = board.Tile{Kind: board.KindTreasure, Value: 30}
	trap     = board.Tile{Kind: board.KindTrap, Value: 12}
)

func TestRecordExploration(t *testing.T) {
	tests := []struct {
		name       string
		tile       board.Tile
		wantGold   uint
		wantHealth uint
		wantStats  store.Stats
	}{
		{"empty", empty, 20, 100, store.Stats{TilesExplored: 1}},
		{"treasure", treasure, 50, 100, store.Stats{TilesExplored: 1, TreasuresFound: 1}},
		{"trap", trap, 20, 88, store.Stats{TilesExplored: 1, TrapsTriggered: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := setup(t, "alice")
			ctx := context.Background()
			c := grid.Coord{X: 1, Y: 1}

			out, rec, err := l.RecordExploration(ctx, "alice", c, tt.tile)
			if err != nil {
				t.Fatalf("RecordExploration: %v", err)
			}
			if out.Tile != tt.tile {
				t.Errorf("tile = %v, want %v", out.Tile, tt.tile)
			}
			if rec.Gold != tt.wantGold || rec.Health != tt.wantHealth || rec.Stats != tt.wantStats {
				t.Errorf("record = gold %d health %d stats %+v", rec.Gold, rec.Health, rec.Stats)
			}
			if !rec.Explored.Has(c) {
				t.Error("tile not marked explored")
			}

			if _, _, err := l.RecordExploration(ctx, "alice", c, tt.tile); !errors.Is(err, ErrAlreadyExplored) {
				t.Errorf("second exploration: want ErrAlreadyExplored, got %v", err)
			}
		})
	}
}

func TestRecordExplorationReach(t *testing.T) {
	l, _ := setup(t, "alice")
	if _, _, err := l.RecordExploration(context.Background(), "alice", grid.Coord{X: 2, Y: 2}, empty); !errors.Is(err, ErrNotReachable) {
		t.Errorf("want ErrNotReachable, got %v", err)
	}
}

func TestTrapClampsHealth(t *testing.T) {
	l, s := setup(t, "alice")
	ctx := context.Background()
	if _, err := s.Mutate(ctx, "alice", func(r *store.PlayerRecord) error { r.Health = 5; return nil }); err != nil {
		t.Fatal(err)
	}
	out, rec, err := l.RecordExploration(ctx, "alice", grid.Coord{X: 1, Y: 0}, trap)
	if err != nil {
		t.Fatalf("RecordExploration: %v", err)
	}
	if rec.Health != 0 || out.HealthLost != 5 {
		t.Errorf("health=%d lost=%d, want 0 and 5", rec.Health, out.HealthLost)
	}
}

func TestRecordBurial(t *testing.T) {
	l, _ := setup(t, "alice")
	ctx := context.Background()
	c := grid.Coord{X: 1, Y: 0}

	burial, rec, err := l.RecordBurial(ctx, "alice", c, 10)
	if err != nil {
		t.Fatalf("RecordBurial: %v", err)
	}
	if burial.NewGold != 10 || rec.Gold != 10 {
		t.Errorf("new gold = %d/%d, want 10", burial.NewGold, rec.Gold)
	}
	if !rec.Buried.Has(c) || rec.Stats.LootBuried != 10 {
		t.Errorf("record not updated: %+v", rec)
	}
	if got := l.Outstanding("alice"); got != 10 {
		t.Errorf("Outstanding = %d, want 10", got)
	}

	tests := []struct {
		name   string
		coord  grid.Coord
		amount uint
		want   error
	}{
		{"too much", c, 25, ErrInsufficientGold},
		{"zero", c, 0, ErrInvalidAmount},
		{"far", grid.Coord{X: 5, Y: 5}, 1, ErrNotReachable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := l.RecordBurial(ctx, "alice", tt.coord, tt.amount)
			if !errors.Is(err, tt.want) {
				t.Fatalf("want %v, got %v", tt.want, err)
			}
			if got := l.Outstanding("alice"); got != 10 {
				t.Errorf("rejected burial changed loot: %d", got)
			}
		})
	}
}

func TestBurialCarriesNoDepositor(t *testing.T) {
	l, s := setup(t, "alice", "bob")
	ctx := context.Background()
	moveTo(t, s, "bob", grid.Coord{X: 5, Y: 5})

	a, _, err := l.RecordBurial(ctx, "alice", grid.Coord{X: 1, Y: 1}, 7)
	if err != nil {
		t.Fatalf("alice burial: %v", err)
	}
	b, _, err := l.RecordBurial(ctx, "bob", grid.Coord{X: 5, Y: 6}, 7)
	if err != nil {
		t.Fatalf("bob burial: %v", err)
	}

	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		t.Fatal("burial shapes differ")
	}
	v := reflect.ValueOf(a)
	for i := 0; i < v.NumField(); i++ {
		if v.Field(i).Kind() == reflect.String {
			t.Errorf("burial field %s is a string and could carry an identity", v.Type().Field(i).Name)
		}
	}
	if a != b {
		t.Errorf("equal burials by different players differ: %+v vs %+v", a, b)
	}
}

func TestDigConsumesLoot(t *testing.T) {
	l, s := setup(t, "alice", "bob", "carol")
	ctx := context.Background()
	c := grid.Coord{X: 2, Y: 1}
	moveTo(t, s, "alice", grid.Coord{X: 1, Y: 1})
	moveTo(t, s, "bob", grid.Coord{X: 2, Y: 2})
	moveTo(t, s, "carol", grid.Coord{X: 3, Y: 1})

	if _, _, err := l.RecordBurial(ctx, "alice", c, 10); err != nil {
		t.Fatalf("RecordBurial: %v", err)
	}

	out, rec, err := l.RecordDig(ctx, "bob", c, empty)
	if err != nil {
		t.Fatalf("bob dig: %v", err)
	}
	if out.Found != FoundTreasure || out.TotalValue != 10 {
		t.Errorf("bob dig = %+v, want treasure worth 10", out)
	}
	if rec.Gold != 30 || rec.Stats.LootDugUp != 10 || !rec.Explored.Has(c) {
		t.Errorf("bob record = %+v", rec)
	}
	if l.Outstanding("alice") != 0 || l.lootTiles() != 0 {
		t.Error("loot not consumed")
	}

	again, _, err := l.RecordDig(ctx, "carol", c, empty)
	if err != nil {
		t.Fatalf("carol dig: %v", err)
	}
	if again.TotalValue != 0 || again.Found != FoundNothing {
		t.Errorf("second dig returned %+v", again)
	}
}

func TestDigCountersDoNotRevealLayer(t *testing.T) {
	l, s := setup(t, "alice", "bob", "carol")
	ctx := context.Background()
	loot := grid.Coord{X: 2, Y: 1}
	base := grid.Coord{X: 5, Y: 5}
	moveTo(t, s, "alice", grid.Coord{X: 1, Y: 1})
	moveTo(t, s, "bob", loot)
	moveTo(t, s, "carol", base)

	if _, _, err := l.RecordBurial(ctx, "alice", loot, 10); err != nil {
		t.Fatalf("RecordBurial: %v", err)
	}
	_, fromLoot, err := l.RecordDig(ctx, "bob", loot, empty)
	if err != nil {
		t.Fatalf("bob dig: %v", err)
	}
	_, fromBase, err := l.RecordDig(ctx, "carol", base, treasure)
	if err != nil {
		t.Fatalf("carol dig: %v", err)
	}

	want := store.Stats{TilesExplored: 1, TreasuresFound: 1}
	for name, got := range map[string]store.Stats{"loot": fromLoot.Stats, "base": fromBase.Stats} {
		public := store.Stats{
			TilesExplored:  got.TilesExplored,
			TreasuresFound: got.TreasuresFound,
			TrapsTriggered: got.TrapsTriggered,
		}
		if public != want {
			t.Errorf("%s dig public counters = %+v, want %+v", name, public, want)
		}
	}
}

func TestDigMerge(t *testing.T) {
	tests := []struct {
		name        string
		base        board.Tile
		buried      uint
		baseApplies bool
		want        DigOutcome
	}{
		{"nothing", empty, 0, true, DigOutcome{Found: FoundNothing}},
		{"loot only", empty, 8, true, DigOutcome{Found: FoundTreasure, TotalValue: 8}},
		{"base treasure", treasure, 0, true, DigOutcome{Found: FoundTreasure, TotalValue: 30}},
		{"both treasures", treasure, 8, true, DigOutcome{Found: FoundTreasure, TotalValue: 38}},
		{"trap", trap, 0, true, DigOutcome{Found: FoundTrap, HealthLost: 12}},
		{"trap with loot", trap, 8, true, DigOutcome{Found: FoundTreasure, TotalValue: 8, HealthLost: 12}},
		{"disclosed treasure", treasure, 0, false, DigOutcome{Found: FoundNothing}},
		{"disclosed trap with loot", trap, 8, false, DigOutcome{Found: FoundTreasure, TotalValue: 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := merge(tt.base, tt.buried, tt.baseApplies); got != tt.want {
				t.Errorf("merge = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDigCannotFarmBaseTreasure(t *testing.T) {
	l, _ := setup(t, "alice")
	ctx := context.Background()
	c := grid.Coord{X: 1, Y: 0}

	first, _, err := l.RecordDig(ctx, "alice", c, treasure)
	if err != nil {
		t.Fatalf("first dig: %v", err)
	}
	if first.TotalValue != 30 {
		t.Fatalf("first dig value = %d", first.TotalValue)
	}
	second, rec, err := l.RecordDig(ctx, "alice", c, treasure)
	if err != nil {
		t.Fatalf("second dig: %v", err)
	}
	if second.TotalValue != 0 || rec.Gold != 50 {
		t.Errorf("second dig = %+v gold=%d", second, rec.Gold)
	}
	if rec.Stats.TilesExplored != 1 {
		t.Errorf("tiles explored counted twice: %d", rec.Stats.TilesExplored)
	}
}

func TestConcurrentDigsShareLootOnce(t *testing.T) {
	players := []string{"a", "b", "c", "d", "e", "f"}
	l, s := setup(t, append(players, "depositor")...)
	ctx := context.Background()
	c := grid.Coord{X: 1, Y: 1}
	if _, _, err := l.RecordBurial(ctx, "depositor", c, 15); err != nil {
		t.Fatalf("RecordBurial: %v", err)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total uint
	)
	for _, p := range players {
		moveTo(t, s, p, grid.Coord{X: 1, Y: 2})
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			out, _, err := l.RecordDig(ctx, p, c, empty)
			if err != nil {
				t.Errorf("dig %s: %v", p, err)
				return
			}
			mu.Lock()
			total += out.TotalValue
			mu.Unlock()
		}(p)
	}
	wg.Wait()
	if total != 15 {
		t.Errorf("loot paid out %d times its value (total %d)", total/15, total)
	}
}
