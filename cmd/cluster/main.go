// Command cluster serves a simulated computation cluster over HTTP so an
// engine can run against it in remote gateway mode.
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

	"github.com/MJE43/buried-treasure-go/internal/board"
	"github.com/MJE43/buried-treasure-go/internal/config"
	"github.com/MJE43/buried-treasure-go/internal/gateway"
	"github.com/MJE43/buried-treasure-go/internal/secrets"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env", ".env", "path to a .env file (ignored if missing)")
	flag.Parse()

	logger := log.New(os.Stdout, "[CLUSTER] ", log.LstdFlags|log.LUTC)

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalf("cluster: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger) (err error) {
	seeds, created, err := secrets.Resolve(cfg.Board)
	if err != nil {
		return fmt.Errorf("board seeds: %w", err)
	}
	if created {
		logger.Printf("board_seeds_created world=%s", cfg.Board.World)
	}
	b, err := board.Generate(seeds, cfg.Board.Nonce, cfg.Board.Params)
	if err != nil {
		return fmt.Errorf("generate board: %w", err)
	}

	sim := gateway.NewSimulated(b, gateway.SimulatedConfig{
		Latency:       cfg.Gateway.Latency,
		RatePerSecond: cfg.Gateway.RatePerSecond,
		Burst:         cfg.Gateway.Burst,
		Capacity:      cfg.Gateway.Capacity,
	})
	defer func() { err = multierr.Append(err, sim.Close()) }()

	httpSrv := &http.Server{
		Addr:              cfg.Gateway.ClusterAddr,
		Handler:           gateway.NewHandler(sim, 2*cfg.Gateway.AwaitTimeout, nil),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("listening addr=%s latency=%s capacity=%d", cfg.Gateway.ClusterAddr, cfg.Gateway.Latency, cfg.Gateway.Capacity)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Printf("shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
