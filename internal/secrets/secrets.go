// Package secrets keeps the board seeds out of config files. The server
// seed decides where every treasure and trap lies, so it lives in the OS
// keychain, with a 0600 JSON file for hosts that have none.
package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"

	"github.com/MJE43/buried-treasure-go/internal/board"
	"github.com/MJE43/buried-treasure-go/internal/config"
)

const (
	partServer = "server_seed"
	partClient = "client_seed"

	DefaultService = "buried-treasure"
)

// ErrNotFound is returned when no seeds are stored for a world.
var ErrNotFound = errors.New("secrets: seeds not found")

// SeedStore wraps the OS keychain with an optional file fallback.
type SeedStore struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

// NewSeedStore returns a store under serviceName. An empty fallbackPath
// disables the file fallback.
func NewSeedStore(serviceName, fallbackPath string) *SeedStore {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = DefaultService
	}
	return &SeedStore{service: serviceName, fallbackPath: fallbackPath}
}

func (s *SeedStore) key(world, part string) string {
	return fmt.Sprintf("%s/%s", world, part)
}

// Load returns the seeds stored for world.
func (s *SeedStore) Load(world string) (board.Seeds, error) {
	server, err := s.getSecret(world, partServer)
	if err != nil {
		return board.Seeds{}, err
	}
	client, err := s.getSecret(world, partClient)
	if err != nil {
		return board.Seeds{}, err
	}
	return board.Seeds{Server: server, Client: client}, nil
}

// Save stores seeds for world, replacing any previous pair.
func (s *SeedStore) Save(world string, seeds board.Seeds) error {
	if seeds.Server == "" {
		return fmt.Errorf("secrets: server seed is required")
	}
	if err := s.setSecret(world, partServer, seeds.Server); err != nil {
		return err
	}
	return s.setSecret(world, partClient, seeds.Client)
}

// LoadOrCreate returns the stored seeds for world, generating and saving
// a random server seed on first use. created reports whether new seeds
// were written.
func (s *SeedStore) LoadOrCreate(world, clientSeed string) (seeds board.Seeds, created bool, err error) {
	seeds, err = s.Load(world)
	if err == nil {
		return seeds, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return board.Seeds{}, false, err
	}

	server, err := RandomSeed()
	if err != nil {
		return board.Seeds{}, false, err
	}
	seeds = board.Seeds{Server: server, Client: clientSeed}
	if err := s.Save(world, seeds); err != nil {
		return board.Seeds{}, false, err
	}
	return seeds, true, nil
}

// Delete removes the seeds for world from both backends.
func (s *SeedStore) Delete(world string) error {
	var errs []error
	for _, part := range []string{partServer, partClient} {
		if err := keyring.Delete(s.service, s.key(world, part)); err != nil &&
			!errors.Is(err, keyring.ErrNotFound) && !isKeyringUnavailable(err) {
			errs = append(errs, err)
		}
	}
	ferr := s.deleteFallbackWorld(world)
	if len(errs) > 0 {
		return fmt.Errorf("secrets: keyring delete failed: %w", errors.Join(errs...))
	}
	return ferr
}

// RandomSeed returns 32 random bytes, hex encoded.
func RandomSeed() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("secrets: generate seed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *SeedStore) setSecret(world, part, value string) error {
	world = strings.TrimSpace(world)
	if world == "" {
		return fmt.Errorf("secrets: world name is required")
	}

	err := keyring.Set(s.service, s.key(world, part), value)
	if err == nil {
		return nil
	}
	if !isKeyringUnavailable(err) {
		return fmt.Errorf("secrets: keyring set %s: %w", part, err)
	}
	return s.setFallback(world, part, value)
}

func (s *SeedStore) getSecret(world, part string) (string, error) {
	world = strings.TrimSpace(world)
	if world == "" {
		return "", fmt.Errorf("secrets: world name is required")
	}

	val, err := keyring.Get(s.service, s.key(world, part))
	if err == nil {
		return val, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("secrets: keyring get %s: %w", part, err)
	}

	fallback, ferr := s.getFallback(world, part)
	if ferr == nil {
		return fallback, nil
	}
	if errors.Is(err, keyring.ErrNotFound) || errors.Is(ferr, ErrNotFound) {
		return "", ErrNotFound
	}
	return "", ferr
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, keyring.ErrUnsupportedPlatform) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

type fallbackSecrets map[string]map[string]string

func (s *SeedStore) setFallback(world, part, value string) error {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return fmt.Errorf("secrets: keyring unavailable and no fallback path configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallbackUnlocked()
	if err != nil {
		return err
	}
	if _, ok := data[world]; !ok {
		data[world] = map[string]string{}
	}
	data[world][part] = value
	return s.writeFallbackUnlocked(data)
}

func (s *SeedStore) getFallback(world, part string) (string, error) {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return "", ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallbackUnlocked()
	if err != nil {
		return "", err
	}
	val, ok := data[world][part]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

func (s *SeedStore) deleteFallbackWorld(world string) error {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallbackUnlocked()
	if err != nil {
		return err
	}
	if _, ok := data[world]; !ok {
		return nil
	}
	delete(data, world)
	return s.writeFallbackUnlocked(data)
}

func (s *SeedStore) readFallbackUnlocked() (fallbackSecrets, error) {
	out := fallbackSecrets{}
	raw, err := os.ReadFile(s.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("secrets: read fallback file: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("secrets: decode fallback file: %w", err)
	}
	return out, nil
}

func (s *SeedStore) writeFallbackUnlocked(data fallbackSecrets) error {
	if err := os.MkdirAll(filepath.Dir(s.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("secrets: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("secrets: encode fallback file: %w", err)
	}
	if err := os.WriteFile(s.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("secrets: write fallback file: %w", err)
	}
	return nil
}

// Resolve returns the seeds for the configured world. An explicit server
// seed in cfg wins; otherwise the keychain supplies one, creating it on
// first use.
func Resolve(cfg config.BoardConfig) (board.Seeds, bool, error) {
	if cfg.ServerSeed != "" {
		return board.Seeds{Server: cfg.ServerSeed, Client: cfg.ClientSeed}, false, nil
	}
	return NewSeedStore(cfg.KeyringService, cfg.SeedFile).LoadOrCreate(cfg.World, cfg.ClientSeed)
}
