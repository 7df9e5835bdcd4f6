package resources

import (
	"context"
	"fmt"

	"github.com/cumulo-io/cumulo/pkg/engine"
)

// cloudHandler is the shared handler behavior for all built-in types: it maps
// lifecycle actions onto Cloud calls and polls entity status for completion.
// Concrete types embed it and add their implicit dependency rules.
type cloudHandler struct {
	cloud *Cloud
	kind  string
}

// PrepareProperties drops unset properties so provider payloads stay minimal.
func (h *cloudHandler) PrepareProperties(props engine.Properties) (engine.Properties, error) {
	out := make(engine.Properties, len(props))
	for k, v := range props {
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out, nil
}

// HandleAction starts the requested action with the in-memory cloud. The
// returned token is the entity ID CheckComplete polls against.
func (h *cloudHandler) HandleAction(_ context.Context, action engine.Action, req *engine.ActionRequest) (engine.ActionToken, error) {
	switch action {
	case engine.ActionCreate:
		entity, err := h.cloud.Create(h.kind, req.Properties)
		if err != nil {
			return nil, err
		}
		req.SetPhysicalID(entity.ID)
		return entity.ID, nil

	case engine.ActionUpdate:
		if err := h.cloud.Update(req.PhysicalID, req.Properties); err != nil {
			return nil, err
		}
		return req.PhysicalID, nil

	case engine.ActionDelete:
		if err := h.cloud.Delete(req.PhysicalID); err != nil {
			return nil, err
		}
		return req.PhysicalID, nil

	case engine.ActionSuspend:
		if err := h.cloud.Suspend(req.PhysicalID); err != nil {
			return nil, err
		}
		return req.PhysicalID, nil

	case engine.ActionResume:
		if err := h.cloud.Resume(req.PhysicalID); err != nil {
			return nil, err
		}
		return req.PhysicalID, nil

	case engine.ActionCheck:
		if _, err := h.cloud.Get(req.PhysicalID); err != nil {
			return nil, err
		}
		return req.PhysicalID, nil

	default:
		return nil, engine.ErrActionNotSupported
	}
}

// CheckComplete polls the entity until the action settles. Delete completes
// when the entity is gone; everything else completes on a stable status.
func (h *cloudHandler) CheckComplete(_ context.Context, action engine.Action, _ *engine.ActionRequest, token engine.ActionToken) (bool, error) {
	id, _ := token.(string)
	entity, err := h.cloud.Get(id)
	if action == engine.ActionDelete {
		if engine.IsNotFound(err) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}

	switch entity.Status {
	case EntityBuilding:
		return false, nil
	case EntityActive, EntitySuspended:
		return true, nil
	default:
		return false, engine.NewPermanentError(
			fmt.Sprintf("entity %s in unexpected status %s", id, entity.Status), nil,
		).WithCode(engine.ErrCodeProvider)
	}
}

// Show returns the provider-reported view of the entity.
func (h *cloudHandler) Show(_ context.Context, req *engine.ActionRequest) (map[string]any, error) {
	entity, err := h.cloud.Get(req.PhysicalID)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"id":     entity.ID,
		"status": string(entity.Status),
	}
	for k, v := range entity.Properties {
		out[k] = v
	}
	return out, nil
}

// GetAttribute resolves an attribute from the provider view.
func (h *cloudHandler) GetAttribute(ctx context.Context, req *engine.ActionRequest, name string) (any, error) {
	attrs, err := h.Show(ctx, req)
	if err != nil {
		return nil, err
	}
	value, ok := attrs[name]
	if !ok {
		return nil, engine.NewValidationError(
			fmt.Sprintf("unknown attribute %q on %s", name, req.ResourceName), nil,
		).WithCode(engine.ErrCodeUnknownAttr).WithResource(req.ResourceName)
	}
	return value, nil
}

// NetworkHandler implements the cloud.network type.
type NetworkHandler struct {
	cloudHandler
}

// SubnetHandler implements the cloud.subnet type. A subnet names its parent
// network by logical resource name in the "network" property and contributes
// the resulting edge itself.
type SubnetHandler struct {
	cloudHandler
}

// AddDependencies adds the subnet -> network edge derived from the "network"
// property.
func (h *SubnetHandler) AddDependencies(g *engine.DependencyGraph, self *engine.Definition, siblings []*engine.Definition) error {
	network, ok := self.Properties["network"].(string)
	if !ok || network == "" {
		return nil
	}
	for _, sibling := range siblings {
		if sibling.Name == network {
			g.AddEdge(self.Name, sibling.Name)
			return nil
		}
	}
	return engine.NewValidationError(
		fmt.Sprintf("subnet %s references unknown network %q", self.Name, network), nil,
	).WithCode(engine.ErrCodeGraph).WithResource(self.Name)
}

// RouterHandler implements the cloud.router type.
type RouterHandler struct {
	cloudHandler
}

// RouterInterfaceHandler implements the cloud.router-interface type, attaching
// a subnet to a router. Both endpoints are named by logical resource name and
// become implicit dependencies.
type RouterInterfaceHandler struct {
	cloudHandler
}

// AddDependencies adds edges to the named router and subnet.
func (h *RouterInterfaceHandler) AddDependencies(g *engine.DependencyGraph, self *engine.Definition, siblings []*engine.Definition) error {
	known := make(map[string]bool, len(siblings))
	for _, sibling := range siblings {
		known[sibling.Name] = true
	}
	for _, prop := range []string{"router", "subnet"} {
		target, ok := self.Properties[prop].(string)
		if !ok || target == "" {
			continue
		}
		if !known[target] {
			return engine.NewValidationError(
				fmt.Sprintf("router interface %s references unknown %s %q", self.Name, prop, target), nil,
			).WithCode(engine.ErrCodeGraph).WithResource(self.Name)
		}
		g.AddEdge(self.Name, target)
	}
	return nil
}

// ServerHandler implements the cloud.server type. Beyond depending on its
// subnets, a server waits for every router interface attached to them, so
// network connectivity exists before the server boots.
type ServerHandler struct {
	cloudHandler
}

// AddDependencies adds edges to each subnet in the "subnets" property and to
// every sibling router interface attached to one of those subnets.
func (h *ServerHandler) AddDependencies(g *engine.DependencyGraph, self *engine.Definition, siblings []*engine.Definition) error {
	known := make(map[string]bool, len(siblings))
	for _, sibling := range siblings {
		known[sibling.Name] = true
	}
	subnets := make(map[string]bool)
	if declared, ok := self.Properties["subnets"].([]any); ok {
		for _, entry := range declared {
			if name, ok := entry.(string); ok && name != "" {
				if !known[name] {
					return engine.NewValidationError(
						fmt.Sprintf("server %s references unknown subnet %q", self.Name, name), nil,
					).WithCode(engine.ErrCodeGraph).WithResource(self.Name)
				}
				subnets[name] = true
				g.AddEdge(self.Name, name)
			}
		}
	}
	if len(subnets) == 0 {
		return nil
	}
	for _, sibling := range siblings {
		if sibling.Type != TypeRouterInterface {
			continue
		}
		attached, ok := sibling.Properties["subnet"].(string)
		if ok && subnets[attached] {
			g.AddEdge(self.Name, sibling.Name)
		}
	}
	return nil
}
