package keylock

import (
	"sync"
	"testing"
	"time"
)

func TestTryLockExclusive(t *testing.T) {
	var tbl Table
	if !tbl.TryLock("alice") {
		t.Fatal("first TryLock must succeed")
	}
	if tbl.TryLock("alice") {
		t.Fatal("second TryLock on same key must fail")
	}
	if !tbl.TryLock("bob") {
		t.Fatal("TryLock on a different key must succeed")
	}
	tbl.Unlock("alice")
	tbl.Unlock("bob")

	if tbl.Len() != 0 {
		t.Errorf("expected empty table after unlock, got %d entries", tbl.Len())
	}
	if !tbl.TryLock("alice") {
		t.Fatal("TryLock after unlock must succeed")
	}
	tbl.Unlock("alice")
}

func TestLockSerializesSameKey(t *testing.T) {
	var tbl Table
	var mu sync.Mutex
	active, maxActive := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tbl.Lock("tile")
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			tbl.Unlock("tile")
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("expected at most one holder, saw %d", maxActive)
	}
	if tbl.Len() != 0 {
		t.Errorf("table leaked %d entries", tbl.Len())
	}
}

func TestDistinctKeysDoNotBlock(t *testing.T) {
	var tbl Table
	tbl.Lock("a")
	defer tbl.Unlock("a")

	done := make(chan struct{})
	go func() {
		tbl.Lock("b")
		tbl.Unlock("b")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on an unrelated key blocked")
	}
}

func TestUnlockUnheldPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	var tbl Table
	tbl.Unlock("nobody")
}
