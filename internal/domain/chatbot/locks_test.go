package chatbot

import (
	"sync"
	"testing"
	"time"
)

func TestTurnLocks_SameKeyIsExclusive(t *testing.T) {
	l := newTurnLocks()
	unlock := l.Lock("p1")

	acquired := make(chan struct{})
	go func() {
		u := l.Lock("p1")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first was held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock not acquired after release")
	}
}

func TestTurnLocks_DifferentKeysDoNotBlock(t *testing.T) {
	l := newTurnLocks()
	unlock := l.Lock("p1")
	defer unlock()

	done := make(chan struct{})
	go func() {
		l.Lock("p2")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on another key blocked")
	}
}

func TestTurnLocks_EntriesRemovedAfterUse(t *testing.T) {
	l := newTurnLocks()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Lock("p1")()
		}()
	}
	wg.Wait()
	if n := l.size(); n != 0 {
		t.Errorf("expected no remaining entries, got %d", n)
	}
}
