package game

import (
	"sync"

	"github.com/MJE43/buried-treasure-go/internal/store"
)

// notifier fans record snapshots out to the subscribers of one identity.
// Each subscriber holds at most the latest snapshot; a slow reader skips
// intermediate states instead of blocking the engine.
type notifier struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]chan store.PlayerRecord
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[string]map[int]chan store.PlayerRecord)}
}

func (n *notifier) subscribe(id string) (<-chan store.PlayerRecord, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan store.PlayerRecord, 1)
	key := n.next
	n.next++
	if n.subs[id] == nil {
		n.subs[id] = make(map[int]chan store.PlayerRecord)
	}
	n.subs[id][key] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs[id], key)
			if len(n.subs[id]) == 0 {
				delete(n.subs, id)
			}
			close(ch)
		})
	}
	return ch, cancel
}

func (n *notifier) publish(rec store.PlayerRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs[rec.ID] {
		select {
		case <-ch:
		default:
		}
		ch <- rec.Clone()
	}
}

// feed is a bounded ring of public action events.
type feed struct {
	mu     sync.RWMutex
	events []ActionEvent
	start  int
	size   int
}

func newFeed(capacity int) *feed {
	if capacity <= 0 {
		capacity = 256
	}
	return &feed{events: make([]ActionEvent, capacity)}
}

func (f *feed) add(e ActionEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := (f.start + f.size) % len(f.events)
	f.events[idx] = e
	if f.size < len(f.events) {
		f.size++
	} else {
		f.start = (f.start + 1) % len(f.events)
	}
}

// recent returns up to limit events, newest first.
func (f *feed) recent(limit int) []ActionEvent {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if limit <= 0 || limit > f.size {
		limit = f.size
	}
	out := make([]ActionEvent, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (f.start + f.size - 1 - i) % len(f.events)
		out = append(out, f.events[idx])
	}
	return out
}
