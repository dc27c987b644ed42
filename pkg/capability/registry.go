package capability

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the process-wide table of capability descriptors and their
// provider bindings. Descriptors are registered once at startup; bindings
// may be replaced (e.g., simulation providers in tests and dev mode).
type Registry struct {
	// mu protects descriptors and providers.
	mu sync.RWMutex

	// descriptors maps capability ID to its descriptor.
	descriptors map[string]Descriptor

	// providers maps capability ID to its bound provider.
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]Descriptor),
		providers:   make(map[string]Provider),
	}
}

// NewBuiltinRegistry creates a registry pre-loaded with the builtin
// descriptor table.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	for _, desc := range BuiltinDescriptors() {
		// Builtin IDs are unique; ignore the duplicate error.
		_ = r.Register(desc)
	}
	return r
}

// Register adds a descriptor to the registry.
// Registering the same ID twice is an error: descriptors are immutable.
func (r *Registry) Register(desc Descriptor) error {
	if desc.ID == "" {
		return fmt.Errorf("capability descriptor requires an ID")
	}
	if desc.Domain == "" {
		return fmt.Errorf("capability %s requires a domain", desc.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.descriptors[desc.ID]; exists {
		return fmt.Errorf("capability %s already registered", desc.ID)
	}

	r.descriptors[desc.ID] = desc
	return nil
}

// Bind attaches a provider implementation to a registered capability.
func (r *Registry) Bind(id string, provider Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.descriptors[id]; !exists {
		return fmt.Errorf("capability %s not registered", id)
	}

	r.providers[id] = provider
	return nil
}

// Get returns the descriptor for a capability ID.
func (r *Registry) Get(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.descriptors[id]
	return desc, ok
}

// Provider returns the provider bound to a capability ID.
func (r *Registry) Provider(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[id]
	return p, ok
}

// List returns all descriptors ordered by priority, then ID.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descs := make([]Descriptor, 0, len(r.descriptors))
	for _, desc := range r.descriptors {
		descs = append(descs, desc)
	}

	sort.Slice(descs, func(i, j int) bool {
		if descs[i].Priority != descs[j].Priority {
			return descs[i].Priority < descs[j].Priority
		}
		return descs[i].ID < descs[j].ID
	})

	return descs
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.descriptors)
}
