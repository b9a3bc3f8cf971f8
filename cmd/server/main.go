// Command server runs the game engine behind its HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/MJE43/buried-treasure-go/internal/accounts"
	"github.com/MJE43/buried-treasure-go/internal/api"
	"github.com/MJE43/buried-treasure-go/internal/board"
	"github.com/MJE43/buried-treasure-go/internal/config"
	"github.com/MJE43/buried-treasure-go/internal/game"
	"github.com/MJE43/buried-treasure-go/internal/gateway"
	"github.com/MJE43/buried-treasure-go/internal/secrets"
	"github.com/MJE43/buried-treasure-go/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env", ".env", "path to a .env file (ignored if missing)")
	flag.Parse()

	logger := log.New(os.Stdout, "[SERVER] ", log.LstdFlags|log.LUTC)

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalf("server: %v", err)
	}
}

// closer collects resources to release on shutdown.
type closer []func() error

func (c closer) Close() error {
	var err error
	for i := len(c) - 1; i >= 0; i-- {
		err = multierr.Append(err, c[i]())
	}
	return err
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger) (err error) {
	var resources closer
	defer func() {
		err = multierr.Append(err, resources.Close())
	}()

	gw, gwClose, err := openGateway(cfg, logger)
	if err != nil {
		return err
	}
	if gwClose != nil {
		resources = append(resources, gwClose)
	}

	players, facts, db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	resources = append(resources, players.Close)

	proc := game.NewProcessor(players, gw, facts, game.Config{AwaitTimeout: cfg.Gateway.AwaitTimeout})

	srv := api.NewServer(proc, api.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		AllowOrigin:    cfg.Server.AllowOrigin,
		Database:       db,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		srv.SecurityLog().LogSystemStartup(cfg.Server.Addr, api.GetVersionInfo())
		logger.Printf("listening addr=%s store=%s gateway=%s", cfg.Server.Addr, cfg.Store.Driver, cfg.Gateway.Mode)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		srv.SecurityLog().LogSystemShutdown(context.Cause(gctx).Error())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openGateway returns the computation gateway and, for the in-process
// cluster, its closer.
func openGateway(cfg config.Config, logger *log.Logger) (gateway.Gateway, func() error, error) {
	if cfg.Gateway.Mode == config.GatewayRemote {
		logger.Printf("gateway_remote url=%s", cfg.Gateway.URL)
		return gateway.NewRemote(gateway.RemoteConfig{
			BaseURL:    cfg.Gateway.URL,
			MaxRetries: cfg.Gateway.Retries,
		}), nil, nil
	}

	b, err := loadBoard(cfg.Board, logger)
	if err != nil {
		return nil, nil, err
	}
	sim := gateway.NewSimulated(b, gateway.SimulatedConfig{
		Latency:       cfg.Gateway.Latency,
		RatePerSecond: cfg.Gateway.RatePerSecond,
		Burst:         cfg.Gateway.Burst,
		Capacity:      cfg.Gateway.Capacity,
	})
	return sim, sim.Close, nil
}

func loadBoard(cfg config.BoardConfig, logger *log.Logger) (*board.Board, error) {
	seeds, created, err := secrets.Resolve(cfg)
	if err != nil {
		return nil, fmt.Errorf("board seeds: %w", err)
	}
	if created {
		logger.Printf("board_seeds_created world=%s", cfg.World)
	}
	b, err := board.Generate(seeds, cfg.Nonce, cfg.Params)
	if err != nil {
		return nil, fmt.Errorf("generate board: %w", err)
	}
	return b, nil
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, accounts.Recorder, api.Pinger, error) {
	if cfg.Store.Driver != config.StoreSQLite {
		return store.NewMemory(), accounts.NewMemory(), nil, nil
	}
	db, err := store.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		return nil, nil, nil, multierr.Append(err, db.Close())
	}
	return db, accounts.NewSQLite(db.DB()), db.DB(), nil
}
