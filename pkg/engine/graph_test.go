package engine

import (
	"strings"
	"testing"
)

// diamondGraph builds server -> {iface, subnet}, iface -> subnet,
// subnet -> network.
func diamondGraph() *DependencyGraph {
	g := NewDependencyGraph()
	g.AddEdge("subnet", "network")
	g.AddEdge("iface", "subnet")
	g.AddEdge("server", "subnet")
	g.AddEdge("server", "iface")
	return g
}

func wavesEqual(a, b [][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}

// TestGraphForwardWaves checks wave levels on a diamond
func TestGraphForwardWaves(t *testing.T) {
	g := diamondGraph()

	waves, err := g.Waves(DirectionForward)
	if err != nil {
		t.Fatalf("failed to compute waves: %v", err)
	}
	want := [][]string{{"network"}, {"subnet"}, {"iface"}, {"server"}}
	if !wavesEqual(waves, want) {
		t.Errorf("forward waves = %v, want %v", waves, want)
	}
}

// TestGraphReverseIsExactMirror checks that the reverse order is the literal
// reversal of the forward order, not an independent traversal
func TestGraphReverseIsExactMirror(t *testing.T) {
	g := diamondGraph()
	g.AddNode("standalone")

	forward, err := g.Order(DirectionForward)
	if err != nil {
		t.Fatalf("forward order failed: %v", err)
	}
	reverse, err := g.Order(DirectionReverse)
	if err != nil {
		t.Fatalf("reverse order failed: %v", err)
	}

	if len(forward) != len(reverse) {
		t.Fatalf("order lengths differ: %d vs %d", len(forward), len(reverse))
	}
	forwardWaves, _ := g.Waves(DirectionForward)
	reverseWaves, _ := g.Waves(DirectionReverse)
	for i := range forwardWaves {
		mirror := reverseWaves[len(reverseWaves)-1-i]
		if !wavesEqual([][]string{forwardWaves[i]}, [][]string{mirror}) {
			t.Errorf("wave %d = %v, mirror = %v", i, forwardWaves[i], mirror)
		}
	}
}

// TestGraphCycleDetection checks that a cycle fails validation and names its
// path
func TestGraphCycleDetection(t *testing.T) {
	g := NewDependencyGraph()
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", "a")

	err := g.Validate()
	if err == nil {
		t.Fatal("expected cycle error, got nil")
	}
	if !IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "circular dependency") {
		t.Errorf("error does not mention circular dependency: %s", msg)
	}
	for _, name := range []string{"a", "b", "c"} {
		if !strings.Contains(msg, name) {
			t.Errorf("cycle path missing node %s: %s", name, msg)
		}
	}
}

// TestGraphSelfCycle checks that a self-edge is rejected
func TestGraphSelfCycle(t *testing.T) {
	g := NewDependencyGraph()
	g.AddEdge("a", "a")

	if err := g.Validate(); err == nil {
		t.Fatal("expected self-cycle error, got nil")
	}
}

// TestGraphDuplicateEdges checks edge deduplication
func TestGraphDuplicateEdges(t *testing.T) {
	g := NewDependencyGraph()
	g.AddEdge("a", "b")
	g.AddEdge("a", "b")

	if got := g.Requires("a"); len(got) != 1 {
		t.Errorf("expected 1 outgoing edge, got %v", got)
	}
	if got := g.RequiredBy("b"); len(got) != 1 {
		t.Errorf("expected 1 incoming edge, got %v", got)
	}
}

// TestGraphNeighbors checks the predecessor sets per direction
func TestGraphNeighbors(t *testing.T) {
	g := diamondGraph()

	forward := g.Neighbors("subnet", DirectionForward)
	if len(forward) != 1 || forward[0] != "network" {
		t.Errorf("forward neighbors of subnet = %v, want [network]", forward)
	}
	reverse := g.Neighbors("subnet", DirectionReverse)
	if len(reverse) != 2 {
		t.Errorf("reverse neighbors of subnet = %v, want iface and server", reverse)
	}
}

// TestGraphEmpty checks behavior on the empty graph
func TestGraphEmpty(t *testing.T) {
	g := NewDependencyGraph()

	waves, err := g.Waves(DirectionForward)
	if err != nil {
		t.Fatalf("empty graph failed: %v", err)
	}
	if len(waves) != 0 {
		t.Errorf("expected no waves, got %v", waves)
	}
	if err := g.Validate(); err != nil {
		t.Errorf("empty graph invalid: %v", err)
	}
}

// TestGraphToDOT checks the DOT output includes nodes and edges
func TestGraphToDOT(t *testing.T) {
	g := NewDependencyGraph()
	g.AddEdge("subnet", "network")

	dot := g.ToDOT()
	if !strings.Contains(dot, `"subnet" -> "network";`) {
		t.Errorf("DOT output missing edge: %s", dot)
	}
	if !strings.HasPrefix(dot, "digraph DependencyGraph {") {
		t.Errorf("unexpected DOT prefix: %s", dot)
	}
}
