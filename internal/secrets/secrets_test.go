package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/MJE43/buried-treasure-go/internal/board"
	"github.com/MJE43/buried-treasure-go/internal/config"
)

func TestSeedStoreKeyring(t *testing.T) {
	keyring.MockInit()
	fallback := filepath.Join(t.TempDir(), "seeds.json")
	s := NewSeedStore("treasure-test", fallback)

	if _, err := s.Load("main"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load before Save: err = %v, want ErrNotFound", err)
	}

	want := board.Seeds{Server: "server-secret", Client: "public"}
	if err := s.Save("main", want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load("main")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Fatalf("Load = %+v, want %+v", got, want)
	}
	if _, err := os.Stat(fallback); !os.IsNotExist(err) {
		t.Errorf("fallback file written while keyring is available")
	}

	if err := s.Delete("main"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load("main"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load after Delete: err = %v", err)
	}
}

func TestSeedStoreFallback(t *testing.T) {
	keyring.MockInitWithError(errors.New("dbus: secret service not available"))
	defer keyring.MockInit()

	fallback := filepath.Join(t.TempDir(), "nested", "seeds.json")
	s := NewSeedStore("treasure-test", fallback)

	want := board.Seeds{Server: "file-secret", Client: "c"}
	if err := s.Save("main", want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(fallback)
	if err != nil {
		t.Fatalf("fallback file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("fallback perms = %o, want 600", perm)
	}

	got, err := s.Load("main")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Fatalf("Load = %+v, want %+v", got, want)
	}

	if err := s.Delete("main"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load("main"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load after Delete: err = %v", err)
	}
}

func TestSeedStoreNoFallback(t *testing.T) {
	keyring.MockInitWithError(errors.New("dbus: secret service not available"))
	defer keyring.MockInit()

	s := NewSeedStore("treasure-test", "")
	if err := s.Save("main", board.Seeds{Server: "x"}); err == nil {
		t.Fatal("Save without keyring or fallback should fail")
	}
}

func TestLoadOrCreate(t *testing.T) {
	keyring.MockInit()
	s := NewSeedStore("treasure-test", "")

	first, created, err := s.LoadOrCreate("world-1", "client-seed")
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if !created {
		t.Error("first call should create seeds")
	}
	if len(first.Server) != 64 || first.Client != "client-seed" {
		t.Errorf("unexpected seeds %+v", first)
	}

	again, created, err := s.LoadOrCreate("world-1", "ignored")
	if err != nil {
		t.Fatalf("LoadOrCreate again: %v", err)
	}
	if created || again != first {
		t.Errorf("second call created=%v seeds=%+v, want stored %+v", created, again, first)
	}

	other, _, err := s.LoadOrCreate("world-2", "client-seed")
	if err != nil {
		t.Fatal(err)
	}
	if other.Server == first.Server {
		t.Error("distinct worlds share a server seed")
	}
}

func TestRequiresWorldName(t *testing.T) {
	keyring.MockInit()
	s := NewSeedStore("", "")
	if err := s.Save("  ", board.Seeds{Server: "x"}); err == nil {
		t.Error("Save with blank world should fail")
	}
}

func TestResolve(t *testing.T) {
	keyring.MockInit()

	explicit, created, err := Resolve(config.BoardConfig{World: "w", ServerSeed: "env-seed", ClientSeed: "c"})
	if err != nil || created {
		t.Fatalf("Resolve explicit: created=%v err=%v", created, err)
	}
	if explicit != (board.Seeds{Server: "env-seed", Client: "c"}) {
		t.Errorf("explicit seeds = %+v", explicit)
	}

	cfg := config.BoardConfig{World: "resolve-world", ClientSeed: "c", KeyringService: "treasure-test"}
	first, created, err := Resolve(cfg)
	if err != nil || !created {
		t.Fatalf("Resolve first: created=%v err=%v", created, err)
	}
	again, created, err := Resolve(cfg)
	if err != nil || created || again != first {
		t.Fatalf("Resolve again: %+v created=%v err=%v", again, created, err)
	}
}
