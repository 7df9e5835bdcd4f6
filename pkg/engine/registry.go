package engine

import (
	"fmt"
	"sort"
	"sync"
)

// TypeSpec describes one registered resource type: the handler factory plus
// the type-level update policy.
type TypeSpec struct {
	// Name is the type name referenced by stack definitions
	// (e.g. "cloud.network").
	Name string

	// New constructs a handler instance for one resource of this type.
	New func() ResourceHandler

	// UpdatePolicy is the per-property in-place/replace table for this type.
	UpdatePolicy UpdatePolicy
}

// Registry maps resource type names to their specs. It is constructed
// explicitly and passed into the engine, so there is no process-wide mutable
// type table.
type Registry struct {
	mu    sync.RWMutex
	types map[string]TypeSpec
}

// NewRegistry creates an empty resource type registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]TypeSpec)}
}

// Register adds a resource type to the registry.
func (r *Registry) Register(spec TypeSpec) error {
	if spec.Name == "" {
		return NewValidationError("resource type name is empty", nil).WithCode(ErrCodeValidation)
	}
	if spec.New == nil {
		return NewValidationError(fmt.Sprintf("resource type %s has no factory", spec.Name), nil).
			WithCode(ErrCodeValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[spec.Name]; exists {
		return NewValidationError(fmt.Sprintf("resource type already registered: %s", spec.Name), nil).
			WithCode(ErrCodeAlreadyExists)
	}
	r.types[spec.Name] = spec
	return nil
}

// Lookup returns the spec for a type name.
func (r *Registry) Lookup(name string) (TypeSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.types[name]
	if !ok {
		return TypeSpec{}, NewValidationError(fmt.Sprintf("unknown resource type: %s", name), nil).
			WithCode(ErrCodeUnknownType)
	}
	return spec, nil
}

// Names returns all registered type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
