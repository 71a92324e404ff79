// Package keylock provides per-key mutual exclusion with bounded acquisition.
// The ledger serializes all mutation for a (product, warehouse) key through
// one of these locks; disjoint keys proceed independently.
package keylock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned when the lock could not be acquired in time.
// Callers should surface this as a retryable conflict.
var ErrTimeout = errors.New("keylock: acquisition timed out")

type entry struct {
	sem  chan struct{}
	refs int
}

// KeyLock is a dynamic set of per-key mutexes. Entries are created on
// demand and removed once no goroutine holds or waits on them.
type KeyLock struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty KeyLock.
func New() *KeyLock {
	return &KeyLock{entries: make(map[string]*entry)}
}

// Acquire takes the lock for key, waiting at most timeout. On success it
// returns a release function; the caller must invoke it exactly once.
// A timeout never leaves the key locked.
func (l *KeyLock) Acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
		return func() {
			<-e.sem
			l.unref(key, e)
		}, nil
	case <-timer.C:
		l.unref(key, e)
		return nil, ErrTimeout
	case <-ctx.Done():
		l.unref(key, e)
		return nil, ctx.Err()
	}
}

func (l *KeyLock) unref(key string, e *entry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
	l.mu.Unlock()
}

// Len returns the number of live entries. Intended for tests and metrics.
func (l *KeyLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
