// Package keylock provides mutual exclusion keyed by string, with
// acquisition bounded by a context.
package keylock

import (
	"context"
	"fmt"
	"sync"

	"gate-attendance-backend/internal/apperr"
)

type entry struct {
	sem  chan struct{}
	refs int
}

// Locker serializes callers that share a key. Entries are released once
// no caller holds or waits on them.
type Locker struct {
	mu   sync.Mutex
	keys map[string]*entry
}

// New returns an empty Locker.
func New() *Locker {
	return &Locker{keys: make(map[string]*entry)}
}

// Lock blocks until key is held or ctx is done. The returned function
// releases the key and must be called exactly once.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.keys[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				l.release(key, e)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, e)
		return nil, fmt.Errorf("%w: waiting for lock %q: %v", apperr.ErrTimeout, key, ctx.Err())
	}
}

func (l *Locker) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
}

// Len returns the number of keys currently held or awaited.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
