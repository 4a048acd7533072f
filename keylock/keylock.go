/*
Package keylock serializes work per key.

PURPOSE:
  Loyalty members and bookings are mutated with load-modify-save. Two
  concurrent mutations of the same key must not interleave, so callers hold
  the key's lock for the whole cycle. Different keys never block each other.

IMPLEMENTATIONS:
  - Local: in-process keyed mutex (single instance deployments, tests)
  - Redis: SET NX lock with token-checked release (multiple instances)

Both honour context cancellation while waiting. Repositories still check
versions on save, so a lock lost to TTL expiry degrades into a retried
conflict rather than a lost update.
*/
package keylock

import (
	"context"
	"sync"
)

// Locker acquires a per-key lock. The returned function releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// =============================================================================
// LOCAL - In-process keyed mutex
// =============================================================================

type localEntry struct {
	sem  chan struct{}
	refs int
}

// Local is a keyed mutex. Entries are dropped once no goroutine holds or waits
// on them.
type Local struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

func NewLocal() *Local {
	return &Local{locks: make(map[string]*localEntry)}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &localEntry{sem: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, e, true) })
	}, nil
}

func (l *Local) release(key string, e *localEntry, held bool) {
	if held {
		<-e.sem
	}
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

// Len returns the number of keys currently held or awaited.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
