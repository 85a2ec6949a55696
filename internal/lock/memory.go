// Package lock provides per-source mutual exclusion for collector runs.
package lock

import (
	"context"
	"sync"

	"github.com/JakeFAU/board-collector/internal/collector"
)

// MemoryRegistry hands out one in-process mutex per name, created lazily.
type MemoryRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ collector.LockRegistry = (*MemoryRegistry)(nil)

// NewMemoryRegistry constructs an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{locks: make(map[string]*sync.Mutex)}
}

// TryAcquire returns a lease when the named mutex was free. It never blocks.
func (r *MemoryRegistry) TryAcquire(_ context.Context, name string) (collector.Lease, bool, error) {
	m := r.handle(name)
	if !m.TryLock() {
		return nil, false, nil
	}
	return &memoryLease{mu: m}, true, nil
}

func (r *MemoryRegistry) handle(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.locks[name]
	if !ok {
		m = &sync.Mutex{}
		r.locks[name] = m
	}
	return m
}

type memoryLease struct {
	mu   *sync.Mutex
	once sync.Once
}

// Release unlocks the mutex. Calling it twice is a no-op.
func (l *memoryLease) Release(context.Context) error {
	l.once.Do(l.mu.Unlock)
	return nil
}
