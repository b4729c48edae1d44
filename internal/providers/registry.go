package providers

import (
	"errors"
	"sort"
	"sync"
)

var ErrUnknownProvider = errors.New("unknown_provider")

// Factory builds a fresh adapter instance. Adapters are stateful
// (Initialize binds credentials) so one instance serves one fetch.
type Factory func() Adapter

// Registry maps provider ids to adapter factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs a factory under the given provider id, replacing
// any previous registration.
func (r *Registry) Register(providerID string, factory Factory) {
	r.mu.Lock()
	r.factories[providerID] = factory
	r.mu.Unlock()
}

// Get returns a fresh adapter for the provider id.
func (r *Registry) Get(providerID string) (Adapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[providerID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownProvider
	}
	return factory(), nil
}

// ProviderIDs lists registered provider ids, sorted.
func (r *Registry) ProviderIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
