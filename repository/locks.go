package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/sublatesublate-design/legal-database/models"
)

// LawLocks serialises writes per law key while letting unrelated laws
// proceed concurrently.
type LawLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewLawLocks creates an empty lock table
func NewLawLocks() *LawLocks {
	return &LawLocks{locks: make(map[string]*keyLock)}
}

// Lock blocks until the key is free or ctx is done. The returned function
// releases the key and must be called exactly once.
func (l *LawLocks) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
		return func() {
			<-kl.ch
			l.release(key, kl)
		}, nil
	case <-ctx.Done():
		l.release(key, kl)
		return nil, fmt.Errorf("%w: waiting for write lock on %s: %v", models.ErrTimeout, key, ctx.Err())
	}
}

func (l *LawLocks) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// Held returns the number of keys currently locked or awaited
func (l *LawLocks) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
