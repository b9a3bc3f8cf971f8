// Command autoplay drives one player on a running server with a JS
// strategy file.
//
//	autoplay -url http://localhost:8080 -wallet bot-1 -script greedy.js
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/MJE43/buried-treasure-go/internal/client"
	"github.com/MJE43/buried-treasure-go/internal/scripting"
)

type logEmitter struct {
	logger *log.Logger
}

func (l logEmitter) EmitScriptState(s scripting.EngineSnapshot) {
	l.logger.Printf("turn=%d state=%s pos=%s gold=%d health=%d",
		s.Turns, s.State, s.Player.Position, s.Player.Gold, s.Player.Health)
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "engine API base URL")
	wallet := flag.String("wallet", "", "identity to play as")
	scriptPath := flag.String("script", "", "path to the strategy script")
	maxTurns := flag.Int("turns", 0, "stop after this many actions (0 = no limit)")
	retries := flag.Uint64("retries", 3, "retries for retryable failures")
	flag.Parse()

	logger := log.New(os.Stdout, "[AUTOPLAY] ", log.LstdFlags|log.LUTC)
	if *wallet == "" || *scriptPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	src, err := os.ReadFile(*scriptPath)
	if err != nil {
		logger.Fatalf("read script: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(client.NewHTTP(*baseURL, nil), *wallet, client.Options{Retries: *retries})
	eng := scripting.NewEngine(c, scripting.Options{
		MaxTurns: *maxTurns,
		Emitter:  logEmitter{logger: logger},
	})
	if err := eng.Start(ctx, string(src)); err != nil {
		logger.Fatalf("start: %v", err)
	}

	snap, _ := eng.Wait(context.Background())
	for _, entry := range eng.GetLogs() {
		logger.Printf("script: %s", entry.Message)
	}
	out, _ := json.MarshalIndent(snap, "", "  ")
	os.Stdout.Write(append(out, '\n'))
	if snap.State == scripting.StateError {
		os.Exit(1)
	}
}
