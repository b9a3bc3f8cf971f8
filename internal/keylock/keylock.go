// Package keylock is a table of mutexes keyed by string. Entries are created
// on first use and dropped once nobody holds or waits on them, so the table
// only grows with concurrent activity, not with the number of keys ever seen.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Table hands out per-key locks. The zero value is ready to use.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func (t *Table) acquire(key string) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entries == nil {
		t.entries = make(map[string]*entry)
	}
	e, ok := t.entries[key]
	if !ok {
		e = &entry{}
		t.entries[key] = e
	}
	e.refs++
	return e
}

func (t *Table) release(key string, e *entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(t.entries, key)
	}
}

// Lock blocks until key is held by the caller.
func (t *Table) Lock(key string) {
	e := t.acquire(key)
	e.mu.Lock()
}

// TryLock takes key only if nobody holds it.
func (t *Table) TryLock(key string) bool {
	e := t.acquire(key)
	if e.mu.TryLock() {
		return true
	}
	t.release(key, e)
	return false
}

// Unlock releases key. Unlocking a key that is not held panics, like sync.Mutex.
func (t *Table) Unlock(key string) {
	t.mu.Lock()
	e, ok := t.entries[key]
	t.mu.Unlock()
	if !ok {
		panic("keylock: unlock of unlocked key " + key)
	}
	e.mu.Unlock()
	t.release(key, e)
}

// Held reports whether key is currently locked or awaited.
func (t *Table) Held(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[key]
	return ok
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
