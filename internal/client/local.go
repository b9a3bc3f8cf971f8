package client

import (
	"context"

	"github.com/MJE43/buried-treasure-go/internal/game"
	"github.com/MJE43/buried-treasure-go/internal/store"
)

// Local drives an in-process processor.
type Local struct {
	*game.Processor
}

func NewLocal(p *game.Processor) *Local {
	return &Local{Processor: p}
}

// Watch pushes a snapshot after every applied action for id.
func (l *Local) Watch(ctx context.Context, id string) (<-chan store.PlayerRecord, error) {
	updates, cancel := l.Subscribe(id)
	out := make(chan store.PlayerRecord, 1)
	go func() {
		defer close(out)
		defer cancel()
		for {
			select {
			case rec, ok := <-updates:
				if !ok {
					return
				}
				select {
				case out <- rec:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

var (
	_ Transport = (*Local)(nil)
	_ Watcher   = (*Local)(nil)
)
