// Command debug-board prints the hidden map for a seed pair. It is a
// developer tool; the output reveals every treasure and trap.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/MJE43/buried-treasure-go/internal/board"
	"github.com/MJE43/buried-treasure-go/internal/config"
	"github.com/MJE43/buried-treasure-go/internal/secrets"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	serverSeed := flag.String("server", "", "server seed (default: keychain seed for the configured world)")
	clientSeed := flag.String("client", "", "client seed (default: from config)")
	nonce := flag.Uint64("nonce", 0, "board nonce (default: from config)")
	values := flag.Bool("values", false, "print tile values instead of symbols")
	flag.Parse()

	cfg, err := config.Load(*configPath, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *serverSeed != "" {
		cfg.Board.ServerSeed = *serverSeed
	}
	if *clientSeed != "" {
		cfg.Board.ClientSeed = *clientSeed
	}
	if *nonce != 0 {
		cfg.Board.Nonce = *nonce
	}

	seeds, _, err := secrets.Resolve(cfg.Board)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seeds: %v\n", err)
		os.Exit(1)
	}
	b, err := board.Generate(seeds, cfg.Board.Nonce, cfg.Board.Params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("client=%s nonce=%d\n\n", seeds.Client, cfg.Board.Nonce)
	fmt.Print(render(b, *values))

	counts := b.Counts()
	fmt.Printf("\ntreasure=%d trap=%d empty=%d\n",
		counts[board.KindTreasure], counts[board.KindTrap], counts[board.KindEmpty])
}

func render(b *board.Board, values bool) string {
	var sb strings.Builder
	for _, row := range b.Rows() {
		for x, t := range row {
			if x > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(cell(t, values))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func cell(t board.Tile, values bool) string {
	symbol := map[board.Kind]string{
		board.KindEmpty:    ".",
		board.KindTreasure: "$",
		board.KindTrap:     "X",
	}[t.Kind]
	if !values || t.Kind == board.KindEmpty {
		if values {
			return fmt.Sprintf("%3s", symbol)
		}
		return symbol
	}
	return fmt.Sprintf("%s%2d", symbol, t.Value)
}
