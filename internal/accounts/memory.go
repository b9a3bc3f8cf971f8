package accounts

import (
	"context"
	"sync"
	"time"
)

// Memory keeps facts in process.
type Memory struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Commit(ctx context.Context, f Fact) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := f.validate(); err != nil {
		return "", err
	}
	e := Entry{Handle: newHandle(), Fact: f, CreatedAt: time.Now().UTC()}
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return e.Handle, nil
}

// Recent returns up to limit facts, newest first.
func (m *Memory) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}
