// Package config loads engine settings from defaults, an optional YAML
// file, an optional .env file and TREASURE_* environment variables, in
// that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MJE43/buried-treasure-go/internal/board"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Gateway modes.
const (
	GatewaySimulated = "simulated"
	GatewayRemote    = "remote"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Gateway GatewayConfig `yaml:"gateway"`
	Board   BoardConfig   `yaml:"board"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AllowOrigin    string        `yaml:"allow_origin"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type GatewayConfig struct {
	Mode          string        `yaml:"mode"`
	URL           string        `yaml:"url"`
	ClusterAddr   string        `yaml:"cluster_addr"`
	Latency       time.Duration `yaml:"latency"`
	AwaitTimeout  time.Duration `yaml:"await_timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	Capacity      int           `yaml:"capacity"`
	Retries       uint64        `yaml:"retries"`
}

type BoardConfig struct {
	World          string       `yaml:"world"`
	ClientSeed     string       `yaml:"client_seed"`
	Nonce          uint64       `yaml:"nonce"`
	KeyringService string       `yaml:"keyring_service"`
	SeedFile       string       `yaml:"seed_file"`
	Params         board.Params `yaml:"params"`

	// ServerSeed bypasses the keyring when set. Environment only.
	ServerSeed string `yaml:"-"`
}

// Defaults returns a config that runs a single in-memory world with the
// simulated cluster.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: 60 * time.Second,
			AllowOrigin:    "*",
		},
		Store: StoreConfig{
			Driver: StoreMemory,
			Path:   "treasure.db",
		},
		Gateway: GatewayConfig{
			Mode:         GatewaySimulated,
			ClusterAddr:  ":8090",
			Latency:      1200 * time.Millisecond,
			AwaitTimeout: 5 * time.Second,
			Capacity:     256,
			Retries:      3,
		},
		Board: BoardConfig{
			World:          "main",
			ClientSeed:     "buried-treasure",
			KeyringService: "buried-treasure",
			Params:         board.DefaultParams(),
		},
	}
}

// Load builds a Config. An empty yamlPath skips the file; a missing
// envFile is ignored.
func Load(yamlPath, envFile string) (Config, error) {
	cfg := Defaults()

	if strings.TrimSpace(yamlPath) != "" {
		raw, err := os.ReadFile(yamlPath)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", yamlPath, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: %s: %w", yamlPath, err)
		}
	}

	if strings.TrimSpace(envFile) != "" {
		// godotenv never overrides variables already set in the process.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	parse := func(name string, set func(string) error) {
		if v, ok := lookup(name); ok && v != "" {
			if err := set(v); err != nil {
				errs = append(errs, fmt.Errorf("config: %s=%q: %w", name, v, err))
			}
		}
	}
	duration := func(dst *time.Duration) func(string) error {
		return func(v string) (err error) {
			*dst, err = time.ParseDuration(v)
			return err
		}
	}
	integer := func(dst *int) func(string) error {
		return func(v string) (err error) {
			*dst, err = strconv.Atoi(v)
			return err
		}
	}
	unsigned := func(dst *uint64) func(string) error {
		return func(v string) (err error) {
			*dst, err = strconv.ParseUint(v, 10, 64)
			return err
		}
	}

	str("TREASURE_ADDR", &cfg.Server.Addr)
	str("TREASURE_ALLOW_ORIGIN", &cfg.Server.AllowOrigin)
	parse("TREASURE_REQUEST_TIMEOUT", duration(&cfg.Server.RequestTimeout))

	str("TREASURE_STORE", &cfg.Store.Driver)
	str("TREASURE_DB_PATH", &cfg.Store.Path)

	str("TREASURE_GATEWAY_MODE", &cfg.Gateway.Mode)
	str("TREASURE_GATEWAY_URL", &cfg.Gateway.URL)
	str("TREASURE_CLUSTER_ADDR", &cfg.Gateway.ClusterAddr)
	parse("TREASURE_LATENCY", duration(&cfg.Gateway.Latency))
	parse("TREASURE_AWAIT_TIMEOUT", duration(&cfg.Gateway.AwaitTimeout))
	parse("TREASURE_RATE", func(v string) (err error) {
		cfg.Gateway.RatePerSecond, err = strconv.ParseFloat(v, 64)
		return err
	})
	parse("TREASURE_BURST", integer(&cfg.Gateway.Burst))
	parse("TREASURE_CAPACITY", integer(&cfg.Gateway.Capacity))
	parse("TREASURE_RETRIES", unsigned(&cfg.Gateway.Retries))

	str("TREASURE_WORLD", &cfg.Board.World)
	str("TREASURE_CLIENT_SEED", &cfg.Board.ClientSeed)
	str("TREASURE_SERVER_SEED", &cfg.Board.ServerSeed)
	str("TREASURE_KEYRING_SERVICE", &cfg.Board.KeyringService)
	str("TREASURE_SEED_FILE", &cfg.Board.SeedFile)
	parse("TREASURE_NONCE", unsigned(&cfg.Board.Nonce))

	return errors.Join(errs...)
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(c.Store.Path) == "" {
			errs = append(errs, errors.New("config: store.path is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown store driver %q", c.Store.Driver))
	}

	switch c.Gateway.Mode {
	case GatewaySimulated:
	case GatewayRemote:
		if strings.TrimSpace(c.Gateway.URL) == "" {
			errs = append(errs, errors.New("config: gateway.url is required in remote mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown gateway mode %q", c.Gateway.Mode))
	}

	if c.Gateway.AwaitTimeout <= 0 {
		errs = append(errs, errors.New("config: gateway.await_timeout must be positive"))
	}
	if c.Gateway.Latency < 0 {
		errs = append(errs, errors.New("config: gateway.latency must not be negative"))
	}
	if c.Gateway.RatePerSecond < 0 {
		errs = append(errs, errors.New("config: gateway.rate_per_second must not be negative"))
	}
	if strings.TrimSpace(c.Board.World) == "" {
		errs = append(errs, errors.New("config: board.world is required"))
	}
	if err := c.Board.Params.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: board.params: %w", err))
	}
	return errors.Join(errs...)
}
