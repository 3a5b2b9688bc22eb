package jobmanager

import (
	"fmt"
	"sort"
	"sync"
)

// Factory rebuilds a Job from its parameters and decoded payload.
// It should wrap ErrMalformedPayload when the payload cannot be decoded.
type Factory func(params Parameters, data Data) (Job, error)

// Registry maps factory keys to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs the factory for key. A later registration for the same key wins.
func (r *Registry) Register(key string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key] = f
}

// Create rebuilds a job. It returns ErrUnknownFactoryKey if nothing is registered for key.
func (r *Registry) Create(key string, params Parameters, data Data) (Job, error) {
	r.mu.RLock()
	f, ok := r.factories[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFactoryKey, key)
	}
	return f(params, data)
}

// Keys returns the registered factory keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
