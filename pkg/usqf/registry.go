package usqf

import (
	"fmt"
	"sync"

	"github.com/omniledger/usqf/pkg/usqferr"
)

// Registry is the process-wide descriptor registry from spec §4.5: written
// once at startup, read-only (and safe for concurrent reads) thereafter.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*SearchDescriptor
	sealed      bool
}

// NewRegistry builds an empty registry ready to accept Register calls.
func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[string]*SearchDescriptor)}
}

// Register validates desc (spec §3 invariants) and adds it under its entity
// name. A descriptor collision or an invariant violation (most notably an
// empty DefaultSearchColumns) is a fatal registration-time error: the
// service must not become ready with a broken descriptor, per spec §7/§8
// scenario 6.
func (r *Registry) Register(desc *SearchDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return usqferr.NewInvariantViolation("registry is sealed, cannot register new descriptors")
	}

	if desc.Entity.Name == "" {
		return usqferr.NewInvariantViolation("descriptor must declare a non-empty entity name")
	}

	if _, exists := r.descriptors[desc.Entity.Name]; exists {
		return usqferr.NewInvariantViolation(fmt.Sprintf("descriptor collision: %q already registered", desc.Entity.Name))
	}

	if err := desc.Validate(); err != nil {
		return err
	}

	r.descriptors[desc.Entity.Name] = desc

	return nil
}

// MustRegister panics on failure, for use at process startup where a broken
// descriptor should stop the boot sequence outright, per spec §7's "fatal"
// classification.
func (r *Registry) MustRegister(desc *SearchDescriptor) {
	if err := r.Register(desc); err != nil {
		panic(err)
	}
}

// Seal prevents further registration, the "sealed-after-init lifecycle"
// design notes §9 calls for.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Get looks up a descriptor by entity name.
func (r *Registry) Get(entityName string) (*SearchDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.descriptors[entityName]

	return d, ok
}

// FindSortableFields backs per-entity sort validators, spec §4.5.
func (r *Registry) FindSortableFields(entityName string) ([]string, error) {
	d, ok := r.Get(entityName)
	if !ok {
		return nil, usqferr.NewNotFound(fmt.Sprintf("no descriptor registered for entity %q", entityName))
	}

	out := make([]string, len(d.Sortable))
	copy(out, d.Sortable)

	return out, nil
}
