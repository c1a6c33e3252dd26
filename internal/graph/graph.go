// Package graph provides a dependency graph for ordering plan stages.
package graph

import (
	"errors"
	"fmt"
	"sync"
)

// ErrCycleDetected indicates a circular dependency was found in the graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// Node is anything with an identity and a list of prerequisite IDs.
type Node interface {
	NodeID() string
	NodeDependencies() []string
}

// DependencyGraph is a directed graph where an edge a->b means a is blocked by b.
// Node order is preserved from Build, so every traversal is deterministic.
type DependencyGraph struct {
	mu sync.RWMutex
	// order holds node IDs in insertion order.
	order []string
	// edges maps node ID to the IDs it depends on.
	edges map[string][]string
	// completed tracks which nodes have been marked complete.
	completed map[string]bool
	debugLog  func(format string, args ...interface{})
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
		debugLog:  func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the graph from nodes. It fails on duplicate IDs,
// dependencies on unknown nodes, and cycles.
func Build[N Node](nodes []N) (*DependencyGraph, error) {
	g := New()
	generic := make([]Node, len(nodes))
	for i, n := range nodes {
		generic[i] = n
	}
	if err := g.Add(generic...); err != nil {
		return nil, err
	}
	return g, nil
}

// Add registers nodes and their edges, then re-checks the graph for cycles.
func (g *DependencyGraph) Add(nodes ...Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, n := range nodes {
		id := n.NodeID()
		if _, exists := g.edges[id]; exists {
			return fmt.Errorf("duplicate node %s", id)
		}
		g.order = append(g.order, id)
		g.edges[id] = nil
	}
	for _, n := range nodes {
		for _, dep := range n.NodeDependencies() {
			if _, exists := g.edges[dep]; !exists {
				return fmt.Errorf("node %s depends on unknown node %s", n.NodeID(), dep)
			}
			g.edges[n.NodeID()] = append(g.edges[n.NodeID()], dep)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}
	g.debugLog("[graph] built with %d nodes", len(g.order))
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked runs a three-color DFS. Callers must hold the lock.
func (g *DependencyGraph) hasCycleLocked() bool {
	const (
		white = iota
		gray
		black
	)
	colors := make(map[string]int, len(g.order))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = gray
		for _, dep := range g.edges[id] {
			switch colors[dep] {
			case gray:
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		colors[id] = black
		return false
	}

	for _, id := range g.order {
		if colors[id] == white && visit(id) {
			return true
		}
	}
	return false
}

// TopologicalSort returns node IDs with every dependency before its dependents.
// Ties keep insertion order.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.hasCycleLocked() {
		return nil, ErrCycleDetected
	}

	visited := make(map[string]bool, len(g.order))
	result := make([]string, 0, len(g.order))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, dep := range g.edges[id] {
			visit(dep)
		}
		result = append(result, id)
	}
	for _, id := range g.order {
		visit(id)
	}
	return result, nil
}

// Ready returns the IDs of incomplete nodes whose dependencies are all complete.
// The returned nodes can run concurrently.
func (g *DependencyGraph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for _, id := range g.order {
		if g.completed[id] {
			continue
		}
		blocked := false
		for _, dep := range g.edges[id] {
			if !g.completed[dep] {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, id)
		}
	}
	g.debugLog("[graph] %d ready: %v", len(ready), ready)
	return ready
}

// MarkComplete marks a node as completed. Unknown IDs are ignored.
func (g *DependencyGraph) MarkComplete(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.edges[id]; !ok {
		return
	}
	g.completed[id] = true
	g.debugLog("[graph] completed %s", id)
}

// Done reports whether every node has been marked complete.
func (g *DependencyGraph) Done() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.completed) == len(g.order)
}

// Size returns the number of nodes in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// Dependencies returns the IDs the given node depends on.
func (g *DependencyGraph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[id]...)
}

// Dependents returns the IDs of nodes that depend on the given node.
func (g *DependencyGraph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for _, other := range g.order {
		for _, dep := range g.edges[other] {
			if dep == id {
				dependents = append(dependents, other)
				break
			}
		}
	}
	return dependents
}
