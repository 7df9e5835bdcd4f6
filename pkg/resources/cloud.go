// Package resources provides the built-in reference resource types backed by
// an in-memory cloud. They exercise the full handler contract (async
// provisioning, completion polling, implicit dependencies, replacement) and
// give the CLI a runnable provider without external credentials.
package resources

import (
	"fmt"
	"sync"

	"github.com/cumulo-io/cumulo/pkg/engine"
)

// EntityStatus is the provider-side status of one cloud entity.
type EntityStatus string

const (
	// EntityBuilding means provisioning is still in progress.
	EntityBuilding EntityStatus = "BUILDING"

	// EntityActive means the entity is ready.
	EntityActive EntityStatus = "ACTIVE"

	// EntityDeleting means teardown is in progress.
	EntityDeleting EntityStatus = "DELETING"

	// EntitySuspended means the entity is paused.
	EntitySuspended EntityStatus = "SUSPENDED"
)

// Entity is one provider-side object.
type Entity struct {
	ID         string
	Kind       string
	Status     EntityStatus
	Properties engine.Properties

	// pollsLeft counts the remaining Get calls before a transitional status
	// settles, simulating slow provisioning.
	pollsLeft int
}

// Cloud is an in-memory provider. Entities move BUILDING -> ACTIVE and
// DELETING -> gone after ProvisionPolls status reads, so completion polling
// behaves like a real provider API.
type Cloud struct {
	mu sync.Mutex

	// ProvisionPolls is how many status reads a transition takes. Zero means
	// transitions settle on the first read.
	ProvisionPolls int

	seq      int
	entities map[string]*Entity
	failures map[string]string
}

// NewCloud creates an empty in-memory cloud.
func NewCloud() *Cloud {
	return &Cloud{
		ProvisionPolls: 1,
		entities:       make(map[string]*Entity),
		failures:       make(map[string]string),
	}
}

// InjectFailure makes the next Create of the given kind fail with the
// message. Used by tests and failure demos.
func (c *Cloud) InjectFailure(kind, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[kind] = message
}

// Create provisions a new entity in BUILDING state.
func (c *Cloud) Create(kind string, props engine.Properties) (*Entity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg, ok := c.failures[kind]; ok {
		delete(c.failures, kind)
		return nil, engine.NewPermanentError(msg, nil).WithCode(engine.ErrCodeProvider)
	}

	c.seq++
	entity := &Entity{
		ID:         fmt.Sprintf("%s-%04d", kind, c.seq),
		Kind:       kind,
		Status:     EntityBuilding,
		Properties: props.Copy(),
		pollsLeft:  c.ProvisionPolls,
	}
	c.entities[entity.ID] = entity
	return entity, nil
}

// Get returns the entity, advancing any transitional status by one poll.
// A missing or fully deleted entity yields a NOT_FOUND error.
func (c *Cloud) Get(id string) (*Entity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entity, ok := c.entities[id]
	if !ok {
		return nil, notFound(id)
	}

	if entity.pollsLeft > 0 {
		entity.pollsLeft--
		if entity.pollsLeft > 0 {
			snapshot := *entity
			return &snapshot, nil
		}
	}
	switch entity.Status {
	case EntityBuilding:
		entity.Status = EntityActive
	case EntityDeleting:
		delete(c.entities, id)
		return nil, notFound(id)
	}

	snapshot := *entity
	return &snapshot, nil
}

// Update applies new properties to an existing entity in place.
func (c *Cloud) Update(id string, props engine.Properties) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entity, ok := c.entities[id]
	if !ok {
		return notFound(id)
	}
	entity.Properties = props.Copy()
	entity.Status = EntityBuilding
	entity.pollsLeft = c.ProvisionPolls
	return nil
}

// Delete starts teardown of an entity.
func (c *Cloud) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entity, ok := c.entities[id]
	if !ok {
		return notFound(id)
	}
	entity.Status = EntityDeleting
	entity.pollsLeft = c.ProvisionPolls
	return nil
}

// Suspend pauses an active entity.
func (c *Cloud) Suspend(id string) error {
	return c.setStatus(id, EntitySuspended)
}

// Resume reactivates a suspended entity.
func (c *Cloud) Resume(id string) error {
	return c.setStatus(id, EntityActive)
}

func (c *Cloud) setStatus(id string, status EntityStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entity, ok := c.entities[id]
	if !ok {
		return notFound(id)
	}
	entity.Status = status
	entity.pollsLeft = 0
	return nil
}

// Len returns the number of live entities.
func (c *Cloud) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entities)
}

func notFound(id string) error {
	return engine.NewPermanentError(
		fmt.Sprintf("entity not found: %s", id), nil,
	).WithCode(engine.ErrCodeNotFound)
}
