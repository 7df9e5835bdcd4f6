package engine

import (
	"context"
)

// Properties is the resolved, declared property set of a resource. Handlers
// must treat it as read-only during a run.
type Properties map[string]any

// Copy returns a shallow copy of the property set.
func (p Properties) Copy() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ActionToken is the opaque handle returned by a handler's action call and
// passed back to CheckComplete on every poll.
type ActionToken any

// ActionRequest carries the per-resource context a handler needs to perform
// an action. Handlers may only write the physical ID via SetPhysicalID; all
// other fields are read-only.
type ActionRequest struct {
	// StackName is the owning stack.
	StackName string

	// ResourceName is the logical name of the resource within the stack.
	ResourceName string

	// ResourceType is the registered type name.
	ResourceType string

	// PhysicalID is the provider-assigned identifier, empty until created.
	PhysicalID string

	// Properties is the resolved property set for the current definition.
	Properties Properties

	// PriorProperties is the frozen property set of the previous definition.
	// Only populated for update actions.
	PriorProperties Properties

	setPhysicalID func(string)
}

// SetPhysicalID records the provider-assigned identifier on the resource.
// Handlers call this from their create path once the provider has allocated
// the object.
func (r *ActionRequest) SetPhysicalID(id string) {
	r.PhysicalID = id
	if r.setPhysicalID != nil {
		r.setPhysicalID(id)
	}
}

// ResourceHandler is the contract every concrete resource type implements: a
// thin adapter translating a declarative property set into provider calls
// plus a completion-poll predicate.
//
// HandleAction starts the action with the provider and returns an opaque
// token; it must not block on provider readiness. CheckComplete is polled
// with that token until it reports true. A handler that does not support an
// action returns ErrActionNotSupported from HandleAction and the engine
// records an instant no-op completion.
type ResourceHandler interface {
	// PrepareProperties normalizes the declared properties into the form the
	// provider expects. It runs before any provider call and must not mutate
	// the input.
	PrepareProperties(props Properties) (Properties, error)

	// HandleAction starts the given action with the provider.
	HandleAction(ctx context.Context, action Action, req *ActionRequest) (ActionToken, error)

	// CheckComplete polls whether the started action has finished. It returns
	// an error if the provider reports a failed status.
	CheckComplete(ctx context.Context, action Action, req *ActionRequest, token ActionToken) (bool, error)

	// Show returns the provider-reported attribute map for the resource.
	Show(ctx context.Context, req *ActionRequest) (map[string]any, error)

	// GetAttribute resolves a named attribute, failing with an
	// UNKNOWN_ATTRIBUTE error if the name is not recognized.
	GetAttribute(ctx context.Context, req *ActionRequest, name string) (any, error)
}

// DependencyContributor is implemented by handlers that derive implicit
// ordering edges from sibling resources' declared properties (e.g. "depend on
// every router interface whose subnet matches mine"). Contributions happen
// once, during graph construction, before any action starts.
type DependencyContributor interface {
	AddDependencies(g *DependencyGraph, self *Definition, siblings []*Definition) error
}

// UpdateEffect is the per-property policy deciding whether a changed property
// can be applied in place or forces a replacement.
type UpdateEffect int

const (
	// UpdateInPlace means the provider can apply the change to the existing
	// object without changing its physical ID.
	UpdateInPlace UpdateEffect = iota

	// UpdateReplace means the change requires deleting the old object and
	// creating a fresh one under the same logical name.
	UpdateReplace
)

// UpdatePolicy maps property names to their update effect. Properties absent
// from the table default to UpdateReplace.
type UpdatePolicy map[string]UpdateEffect

// Effect returns the update effect for a property name.
func (p UpdatePolicy) Effect(name string) UpdateEffect {
	if effect, ok := p[name]; ok {
		return effect
	}
	return UpdateReplace
}
