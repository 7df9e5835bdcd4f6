package resources

import (
	"github.com/cumulo-io/cumulo/pkg/engine"
)

// Registered type names.
const (
	TypeNetwork         = "cloud.network"
	TypeSubnet          = "cloud.subnet"
	TypeRouter          = "cloud.router"
	TypeRouterInterface = "cloud.router-interface"
	TypeServer          = "cloud.server"
)

// Register installs all built-in resource types against the given cloud.
// Properties absent from an update policy force replacement.
func Register(reg *engine.Registry, cloud *Cloud) error {
	specs := []engine.TypeSpec{
		{
			Name: TypeNetwork,
			New: func() engine.ResourceHandler {
				return &NetworkHandler{cloudHandler{cloud: cloud, kind: "net"}}
			},
			UpdatePolicy: engine.UpdatePolicy{
				"name":        engine.UpdateInPlace,
				"description": engine.UpdateInPlace,
			},
		},
		{
			Name: TypeSubnet,
			New: func() engine.ResourceHandler {
				return &SubnetHandler{cloudHandler{cloud: cloud, kind: "subnet"}}
			},
			UpdatePolicy: engine.UpdatePolicy{
				"name":            engine.UpdateInPlace,
				"gateway_ip":      engine.UpdateInPlace,
				"dns_nameservers": engine.UpdateInPlace,
				"cidr":            engine.UpdateReplace,
				"network":         engine.UpdateReplace,
			},
		},
		{
			Name: TypeRouter,
			New: func() engine.ResourceHandler {
				return &RouterHandler{cloudHandler{cloud: cloud, kind: "router"}}
			},
			UpdatePolicy: engine.UpdatePolicy{
				"name":             engine.UpdateInPlace,
				"external_network": engine.UpdateInPlace,
			},
		},
		{
			Name: TypeRouterInterface,
			New: func() engine.ResourceHandler {
				return &RouterInterfaceHandler{cloudHandler{cloud: cloud, kind: "iface"}}
			},
			UpdatePolicy: engine.UpdatePolicy{},
		},
		{
			Name: TypeServer,
			New: func() engine.ResourceHandler {
				return &ServerHandler{cloudHandler{cloud: cloud, kind: "server"}}
			},
			UpdatePolicy: engine.UpdatePolicy{
				"name":     engine.UpdateInPlace,
				"metadata": engine.UpdateInPlace,
				"flavor":   engine.UpdateReplace,
				"image":    engine.UpdateReplace,
				"subnets":  engine.UpdateReplace,
			},
		},
	}

	for _, spec := range specs {
		if err := reg.Register(spec); err != nil {
			return err
		}
	}
	return nil
}
