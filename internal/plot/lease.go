package plot

import (
	"fmt"
	"sync"
)

// Leases is an advisory, in-process registry of store keys currently owned
// by a long-running operation (a migration, a rollback, a live sync session).
// It does not coordinate separate processes.
type Leases struct {
	mu     sync.Mutex
	owners map[string]string
}

// NewLeases creates an empty registry.
func NewLeases() *Leases {
	return &Leases{owners: make(map[string]string)}
}

// Acquire takes the lease on key for owner. It returns an error wrapping
// ErrStoreBusy if another owner holds it. The returned release func is
// idempotent.
func (l *Leases) Acquire(key, owner string) (release func(), err error) {
	if l == nil {
		return func() {}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if current, ok := l.owners[key]; ok {
		return nil, fmt.Errorf("%w: %s is held by %s", ErrStoreBusy, key, current)
	}
	l.owners[key] = owner

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.owners, key)
		})
	}, nil
}

// Owner reports who holds key, if anyone.
func (l *Leases) Owner(key string) (string, bool) {
	if l == nil {
		return "", false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	owner, ok := l.owners[key]
	return owner, ok
}
