package keylock

import (
	"context"
	"sync"
)

// keyTable maps key names to refcounted single-slot semaphores. Entries are
// created on first contention and removed once the last waiter is gone, so
// the table stays proportional to the working set of in-flight scripts.
type keyTable struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{} // capacity 1, full while held
	refs int
}

func newKeyTable() *keyTable {
	return &keyTable{slots: make(map[string]*slot)}
}

func (t *keyTable) lock(ctx context.Context, name string) error {
	t.mu.Lock()
	s, ok := t.slots[name]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		t.slots[name] = s
	}
	s.refs++
	t.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		t.drop(name, s)
		return ctx.Err()
	}
}

func (t *keyTable) unlock(name string) {
	t.mu.Lock()
	s, ok := t.slots[name]
	t.mu.Unlock()
	if !ok {
		return
	}
	<-s.ch
	t.drop(name, s)
}

func (t *keyTable) drop(name string, s *slot) {
	t.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(t.slots, name)
	}
	t.mu.Unlock()
}
