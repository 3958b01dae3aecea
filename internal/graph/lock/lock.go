// Package lock serializes graph writes per case.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotAcquired is returned when the context ends before the lock is held.
var ErrNotAcquired = errors.New("case lock not acquired")

// Locker grants exclusive access to one case. The returned unlock must be
// called exactly once; extra calls are ignored.
type Locker interface {
	Lock(ctx context.Context, caseID string) (func(), error)
}

// InProcess is a keyed mutex for single-instance deployments. Entries are
// reference counted and removed once no caller holds or waits on them.
type InProcess struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	held chan struct{}
	refs int
}

func NewInProcess() *InProcess {
	return &InProcess{locks: make(map[string]*entry)}
}

func (l *InProcess) Lock(ctx context.Context, caseID string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[caseID]
	if !ok {
		e = &entry{held: make(chan struct{}, 1)}
		l.locks[caseID] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.held <- struct{}{}:
	case <-ctx.Done():
		l.release(caseID, e)
		return nil, fmt.Errorf("%w: %w", ErrNotAcquired, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.held
			l.release(caseID, e)
		})
	}, nil
}

func (l *InProcess) release(caseID string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, caseID)
	}
}

// size reports how many keys are tracked.
func (l *InProcess) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
