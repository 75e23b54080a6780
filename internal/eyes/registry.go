// Package eyes holds the registry of known eyes.
package eyes

import (
	"fmt"
	"sort"
	"sync"

	"github.com/xiaot623/thirdeye/internal/domain"
)

// Registry stores eye descriptors keyed by name.
type Registry struct {
	mu    sync.RWMutex
	eyes  map[domain.Eye]domain.EyeDescriptor
	order map[domain.Eye]int
}

// DefaultRegistry is the shared registry used by the service.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		eyes:  make(map[domain.Eye]domain.EyeDescriptor),
		order: make(map[domain.Eye]int),
	}
}

// Register adds a new eye.
func (r *Registry) Register(d domain.EyeDescriptor) error {
	if d.Name == "" {
		return fmt.Errorf("eye name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.eyes[d.Name]; exists {
		return fmt.Errorf("eye already registered: %s", d.Name)
	}
	r.order[d.Name] = len(r.eyes)
	r.eyes[d.Name] = d
	return nil
}

// Get returns the descriptor for an eye.
func (r *Registry) Get(name domain.Eye) (domain.EyeDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.eyes[name]
	return d, ok
}

// Has reports whether an eye is registered.
func (r *Registry) Has(name domain.Eye) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns descriptors in registration order.
func (r *Registry) List() []domain.EyeDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.EyeDescriptor, 0, len(r.eyes))
	for _, d := range r.eyes {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return r.order[out[i].Name] < r.order[out[j].Name]
	})
	return out
}

// EntryEyes returns eyes that are always legal as a first step.
func (r *Registry) EntryEyes() []domain.Eye {
	var out []domain.Eye
	for _, d := range r.List() {
		if d.Entry {
			out = append(out, d.Name)
		}
	}
	return out
}

// Register adds an eye to the default registry.
func Register(d domain.EyeDescriptor) error {
	return DefaultRegistry.Register(d)
}

// MustRegister adds an eye to the default registry or panics.
func MustRegister(d domain.EyeDescriptor) {
	if err := Register(d); err != nil {
		panic(err)
	}
}
