package engine

import (
	"fmt"
	"sort"
	"strings"
)

// DependencyGraph is the directed graph over the resources of one stack.
// An edge from -> to declares that from requires to: to must reach a terminal
// COMPLETE state for the current action before from's action starts (create
// direction), and the reverse on delete.
//
// Construction is two-phase: the node set is built from the stack definition
// first, then resource handlers may contribute implicit edges by read-only
// inspection of sibling definitions. The graph is not mutated once a run has
// started.
type DependencyGraph struct {
	// nodes is the set of resource names in the graph.
	nodes map[string]struct{}

	// requires maps a resource to the resources it requires.
	requires map[string][]string

	// requiredBy maps a resource to the resources that require it.
	requiredBy map[string][]string
}

// NewDependencyGraph creates an empty dependency graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes:      make(map[string]struct{}),
		requires:   make(map[string][]string),
		requiredBy: make(map[string][]string),
	}
}

// AddNode adds a resource to the graph with no edges.
func (g *DependencyGraph) AddNode(name string) {
	g.nodes[name] = struct{}{}
}

// AddEdge declares that from requires to. Unknown endpoints are added to the
// node set. Duplicate edges are collapsed.
func (g *DependencyGraph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	for _, existing := range g.requires[from] {
		if existing == to {
			return
		}
	}
	g.requires[from] = append(g.requires[from], to)
	g.requiredBy[to] = append(g.requiredBy[to], from)
}

// HasNode reports whether the resource is in the graph.
func (g *DependencyGraph) HasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Requires returns the resources that name requires (outgoing edges).
func (g *DependencyGraph) Requires(name string) []string {
	return append([]string(nil), g.requires[name]...)
}

// RequiredBy returns the resources that require name (incoming edges).
func (g *DependencyGraph) RequiredBy(name string) []string {
	return append([]string(nil), g.requiredBy[name]...)
}

// Len returns the number of nodes in the graph.
func (g *DependencyGraph) Len() int {
	return len(g.nodes)
}

// Names returns all resource names in the graph, sorted.
func (g *DependencyGraph) Names() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Neighbors returns the predecessor set for name under the given direction:
// the resources that must reach COMPLETE before name's action may start.
func (g *DependencyGraph) Neighbors(name string, dir Direction) []string {
	if dir == DirectionReverse {
		return g.RequiredBy(name)
	}
	return g.Requires(name)
}

// Waves groups resources into execution waves such that every resource in
// wave n depends only on resources in earlier waves. The reverse direction
// returns the exact reverse of the forward wave list, so delete order is
// always the mirror of create order. A cycle is a stack-definition error.
func (g *DependencyGraph) Waves(dir Direction) ([][]string, error) {
	forward, err := g.forwardWaves()
	if err != nil {
		return nil, err
	}
	if dir == DirectionForward {
		return forward, nil
	}
	reversed := make([][]string, len(forward))
	for i := range forward {
		reversed[i] = forward[len(forward)-1-i]
	}
	return reversed, nil
}

// forwardWaves runs Kahn's algorithm with level tracking. Wave membership is
// sorted so ordering is deterministic across runs.
func (g *DependencyGraph) forwardWaves() ([][]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for name := range g.nodes {
		inDegree[name] = len(g.requires[name])
	}

	current := make([]string, 0)
	for name, degree := range inDegree {
		if degree == 0 {
			current = append(current, name)
		}
	}

	waves := make([][]string, 0)
	processed := 0
	for len(current) > 0 {
		sort.Strings(current)
		waves = append(waves, current)
		processed += len(current)

		next := make([]string, 0)
		for _, name := range current {
			for _, dependent := range g.requiredBy[name] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}

	if processed != len(g.nodes) {
		return nil, NewValidationError(
			fmt.Sprintf("circular dependency detected: %s", formatCycle(g.findCycle())),
			nil,
		).WithCode(ErrCodeGraph)
	}

	return waves, nil
}

// Order returns the flattened execution order for the given direction.
func (g *DependencyGraph) Order(dir Direction) ([]string, error) {
	waves, err := g.Waves(dir)
	if err != nil {
		return nil, err
	}
	order := make([]string, 0, len(g.nodes))
	for _, wave := range waves {
		order = append(order, wave...)
	}
	return order, nil
}

// Validate checks that the graph is acyclic.
func (g *DependencyGraph) Validate() error {
	_, err := g.forwardWaves()
	return err
}

// findCycle locates one cycle via depth-first search for the error message.
func (g *DependencyGraph) findCycle() []string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var cycle []string
	var visit func(name string, path []string) bool
	visit = func(name string, path []string) bool {
		visited[name] = true
		onStack[name] = true
		path = append(path, name)

		for _, next := range g.requires[name] {
			if !visited[next] {
				if visit(next, path) {
					return true
				}
			} else if onStack[next] {
				start := 0
				for i, n := range path {
					if n == next {
						start = i
						break
					}
				}
				cycle = append(append([]string(nil), path[start:]...), next)
				return true
			}
		}

		onStack[name] = false
		return false
	}

	for _, name := range g.Names() {
		if !visited[name] {
			if visit(name, nil) {
				return cycle
			}
		}
	}
	return nil
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return "(unknown)"
	}
	return strings.Join(cycle, " -> ")
}

// ToDOT generates a DOT representation of the graph for visualization with
// Graphviz tools.
func (g *DependencyGraph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph DependencyGraph {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n")
	for _, name := range g.Names() {
		sb.WriteString(fmt.Sprintf("  %q;\n", name))
	}
	for _, from := range g.Names() {
		targets := append([]string(nil), g.requires[from]...)
		sort.Strings(targets)
		for _, to := range targets {
			sb.WriteString(fmt.Sprintf("  %q -> %q;\n", from, to))
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}
