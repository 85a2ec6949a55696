// Package adapter holds the name-keyed adapter registry and the helpers shared
// by adapter implementations.
package adapter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/board-collector/internal/collector"
)

// Registry maps source names to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]collector.Adapter
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]collector.Adapter)}
}

// Register binds a under name. Registering a name twice is an error.
func (r *Registry) Register(name string, a collector.Adapter) error {
	if name == "" {
		return fmt.Errorf("adapter name is required")
	}
	if a == nil {
		return fmt.Errorf("adapter %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("adapter %q already registered", name)
	}
	r.adapters[name] = a
	return nil
}

// Lookup returns the adapter registered under name.
func (r *Registry) Lookup(name string) (collector.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Names lists registered names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
