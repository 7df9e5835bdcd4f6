package engine

import (
	"time"
)

// Definition is the declared, resolved form of one resource in a stack
// template. Definitions are immutable once an action starts; the engine
// freezes the prior definition on update to decide in-place vs replace.
type Definition struct {
	// Name is the logical resource name, unique within the stack.
	Name string `json:"name"`

	// Type is the registered resource type name.
	Type string `json:"type"`

	// Properties is the resolved property set.
	Properties Properties `json:"properties,omitempty"`

	// DependsOn lists logical names of resources this one explicitly requires.
	DependsOn []string `json:"depends_on,omitempty"`

	// Hooks are the named pause points armed for this resource at the start
	// of an action.
	Hooks []string `json:"hooks,omitempty"`

	// Timeout bounds completion polling for one action on this resource.
	// Zero means the stack-wide default applies.
	Timeout time.Duration `json:"timeout,omitempty"`

	// DisableUpdate administratively forbids any update of this resource.
	DisableUpdate bool `json:"disable_update,omitempty"`

	// DisableReplace administratively forbids the delete-and-recreate update
	// path for this resource.
	DisableReplace bool `json:"disable_replace,omitempty"`
}

// Copy returns a deep-enough copy of the definition for freezing: the
// property map is copied, slices are cloned.
func (d *Definition) Copy() *Definition {
	if d == nil {
		return nil
	}
	out := *d
	out.Properties = d.Properties.Copy()
	out.DependsOn = append([]string(nil), d.DependsOn...)
	out.Hooks = append([]string(nil), d.Hooks...)
	return &out
}

// Diff returns the names of properties whose values differ between d and
// other, covering keys present in either definition.
func (d *Definition) Diff(other *Definition) []string {
	changed := make([]string, 0)
	seen := make(map[string]struct{})
	for name, value := range d.Properties {
		seen[name] = struct{}{}
		if otherValue, ok := other.Properties[name]; !ok || !propertyEqual(value, otherValue) {
			changed = append(changed, name)
		}
	}
	for name := range other.Properties {
		if _, ok := seen[name]; !ok {
			changed = append(changed, name)
		}
	}
	return changed
}

// Event is one entry in a stack's execution timeline, recorded on every
// resource and stack state transition.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// StackName is the stack this event belongs to.
	StackName string `json:"stack_name"`

	// ResourceName is the resource this event concerns, empty for
	// stack-level events.
	ResourceName string `json:"resource_name,omitempty"`

	// Action is the lifecycle action in progress.
	Action Action `json:"action"`

	// Status is the status reached by the transition.
	Status Status `json:"status"`

	// Reason is the human-readable explanation for the transition.
	Reason string `json:"reason,omitempty"`

	// PhysicalID is the provider-assigned identifier at event time.
	PhysicalID string `json:"physical_id,omitempty"`

	// Timestamp is when the transition happened.
	Timestamp time.Time `json:"timestamp"`
}

// StackRecord is the durable form of a stack's aggregate state.
type StackRecord struct {
	Name            string    `json:"name"`
	Action          Action    `json:"action"`
	Status          Status    `json:"status"`
	StatusReason    string    `json:"status_reason,omitempty"`
	DisableRollback bool      `json:"disable_rollback"`
	GraphVersion    int64     `json:"graph_version"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ResourceRecord is the durable form of one resource's state. It carries
// enough of the definition (properties, explicit dependencies, hooks) to
// rehydrate a stack in a fresh process.
type ResourceRecord struct {
	StackName    string     `json:"stack_name"`
	Name         string     `json:"name"`
	Type         string     `json:"type"`
	PhysicalID   string     `json:"physical_id,omitempty"`
	Action       Action     `json:"action"`
	Status       Status     `json:"status"`
	StatusReason string     `json:"status_reason,omitempty"`
	Properties   Properties `json:"properties,omitempty"`
	DependsOn    []string   `json:"depends_on,omitempty"`
	Hooks        []string   `json:"hooks,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// StateSink receives every stack and resource state transition for durable
// recording. The engine works without one; the stores package provides the
// SQLite implementation.
type StateSink interface {
	SaveStack(record *StackRecord) error
	SaveResource(record *ResourceRecord) error
	AppendEvent(event *Event) error
	DeleteResource(stackName, resourceName string) error
}

// propertyEqual compares two property values. Maps and slices are compared
// structurally.
func propertyEqual(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, ok := bv[k]
			if !ok || !propertyEqual(v, other) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !propertyEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
