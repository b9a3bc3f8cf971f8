package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memRecord struct {
	mu  sync.RWMutex
	rec PlayerRecord
}

// Memory is an in-process Store. The table lock only guards lookup and
// insert; each record has its own mutex.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*memRecord
	closed  bool
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]*memRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) lookup(id string) (*memRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (m *Memory) Get(ctx context.Context, id string) (PlayerRecord, error) {
	if err := ctx.Err(); err != nil {
		return PlayerRecord{}, err
	}
	r, err := m.lookup(id)
	if err != nil {
		return PlayerRecord{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rec.Clone(), nil
}

func (m *Memory) Create(ctx context.Context, id string) (PlayerRecord, error) {
	if err := ctx.Err(); err != nil {
		return PlayerRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return PlayerRecord{}, ErrClosed
	}
	if _, ok := m.records[id]; ok {
		return PlayerRecord{}, ErrAlreadyExists
	}
	rec := NewRecord(id, m.now())
	m.records[id] = &memRecord{rec: rec}
	return rec.Clone(), nil
}

func (m *Memory) Mutate(ctx context.Context, id string, fn MutateFunc) (PlayerRecord, error) {
	r, err := m.lookup(id)
	if err != nil {
		return PlayerRecord{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return PlayerRecord{}, err
	}

	work := r.rec.Clone()
	if err := fn(&work); err != nil {
		return PlayerRecord{}, err
	}
	if err := settle(r.rec, &work); err != nil {
		return PlayerRecord{}, err
	}
	work.UpdatedAt = m.now()
	r.rec = work
	return work.Clone(), nil
}

// List returns every record ordered by join time.
func (m *Memory) List(ctx context.Context) ([]PlayerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	slots := make([]*memRecord, 0, len(m.records))
	for _, r := range m.records {
		slots = append(slots, r)
	}
	m.mu.RUnlock()

	out := make([]PlayerRecord, 0, len(slots))
	for _, r := range slots {
		r.mu.RLock()
		out = append(out, r.rec.Clone())
		r.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
