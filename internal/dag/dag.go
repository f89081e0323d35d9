// Package dag models the dependency graph between analysis nodes: an edge
// runs from an upstream node to the node that consumes its output.
// It supports cycle detection and upstream/downstream traversal.
package dag

import (
	"fmt"
	"slices"
	"sort"
)

// Graph is a directed graph of analysis node ids.
type Graph struct {
	order   []string
	nodes   map[string]struct{}
	edges   map[string][]string // upstream -> consumers
	parents map[string][]string // consumer -> upstreams
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]struct{}),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node. Adding an existing node is a no-op.
func (g *Graph) AddNode(id string) {
	if _, exists := g.nodes[id]; exists {
		return
	}
	g.nodes[id] = struct{}{}
	g.order = append(g.order, id)
}

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// AddEdge records that consumer reads the output of upstream.
func (g *Graph) AddEdge(upstream, consumer string) error {
	if !g.Has(upstream) {
		return fmt.Errorf("upstream node %q does not exist", upstream)
	}
	if !g.Has(consumer) {
		return fmt.Errorf("consumer node %q does not exist", consumer)
	}
	if upstream == consumer {
		return fmt.Errorf("self-loop detected: %s", upstream)
	}

	if !slices.Contains(g.edges[upstream], consumer) {
		g.edges[upstream] = append(g.edges[upstream], consumer)
	}
	if !slices.Contains(g.parents[consumer], upstream) {
		g.parents[consumer] = append(g.parents[consumer], upstream)
	}
	return nil
}

// Parents returns the direct upstream nodes of id.
func (g *Graph) Parents(id string) []string {
	return g.parents[id]
}

// Children returns the direct consumers of id.
func (g *Graph) Children(id string) []string {
	return g.edges[id]
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// HasCycle returns true if the graph contains a cycle, along with the cycle path.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	via := make(map[string]string)

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true

		for _, next := range g.edges[id] {
			if !visited[next] {
				via[next] = id
				if dfs(next) {
					return true
				}
			} else if onStack[next] {
				cyclePath = []string{next}
				for curr := id; curr != next; curr = via[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{next}, cyclePath...)
				return true
			}
		}

		onStack[id] = false
		return false
	}

	for _, id := range g.order {
		if !visited[id] && dfs(id) {
			return true, cyclePath
		}
	}
	return false, nil
}

// Downstream returns the given nodes together with every node that
// transitively consumes them, sorted.
func (g *Graph) Downstream(ids []string) []string {
	reached := make(map[string]bool)

	var mark func(id string)
	mark = func(id string) {
		if reached[id] {
			return
		}
		reached[id] = true
		for _, child := range g.edges[id] {
			mark(child)
		}
	}

	for _, id := range ids {
		if g.Has(id) {
			mark(id)
		}
	}
	return sortedKeys(reached)
}

// Upstream returns every node id transitively feeds, sorted.
func (g *Graph) Upstream(id string) []string {
	reached := make(map[string]bool)

	var mark func(nodeID string)
	mark = func(nodeID string) {
		for _, parent := range g.parents[nodeID] {
			if !reached[parent] {
				reached[parent] = true
				mark(parent)
			}
		}
	}

	mark(id)
	return sortedKeys(reached)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
