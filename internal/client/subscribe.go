package client

import (
	"context"
	"time"

	"github.com/MJE43/buried-treasure-go/internal/store"
)

// Subscribe streams the identity's record until ctx is done. Transports
// that can push are used directly; otherwise the state is polled every
// PollInterval and only changes are delivered.
func (c *Client) Subscribe(ctx context.Context) <-chan store.PlayerRecord {
	if w, ok := c.t.(Watcher); ok {
		if ch, err := w.Watch(ctx, c.id); err == nil {
			return ch
		}
		c.log(EventSystem, "Live updates unavailable, falling back to polling")
	}

	out := make(chan store.PlayerRecord, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(c.opts.PollInterval)
		defer ticker.Stop()

		var last time.Time
		for {
			rec, err := c.t.State(ctx, c.id)
			if err == nil && !rec.UpdatedAt.Equal(last) {
				last = rec.UpdatedAt
				select {
				case out <- rec:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
