// Package graph holds the directed graphs the compiler reasons about and
// the one strongly-connected-components routine they share.
//
// Two graphs are built on top of Graph: the unit-needs graph of a single
// file and the import graph of a workspace. Both are checked for cycles
// with SCC.
package graph

import (
	"cmp"
	"slices"
)

// Graph is a directed graph with insertion-ordered nodes and edges.
//
// Insertion order is what makes every traversal, and therefore every
// reported cycle, deterministic.
type Graph[T cmp.Ordered] struct {
	nodes []T
	succ  map[T][]T
}

// New returns an empty graph.
func New[T cmp.Ordered]() *Graph[T] {
	return &Graph[T]{succ: make(map[T][]T)}
}

// AddNode inserts n if it is not already present.
func (g *Graph[T]) AddNode(n T) {
	if _, ok := g.succ[n]; ok {
		return
	}
	g.nodes = append(g.nodes, n)
	g.succ[n] = nil
}

// AddEdge inserts from → to, adding either endpoint if missing. Parallel
// edges collapse into one.
func (g *Graph[T]) AddEdge(from, to T) {
	g.AddNode(from)
	g.AddNode(to)
	if slices.Contains(g.succ[from], to) {
		return
	}
	g.succ[from] = append(g.succ[from], to)
}

// Has reports whether n is a node of g.
func (g *Graph[T]) Has(n T) bool {
	_, ok := g.succ[n]
	return ok
}

// HasEdge reports whether from → to exists.
func (g *Graph[T]) HasEdge(from, to T) bool {
	return slices.Contains(g.succ[from], to)
}

// Nodes returns the nodes in insertion order.
func (g *Graph[T]) Nodes() []T {
	return slices.Clone(g.nodes)
}

// Successors returns the direct successors of n in insertion order.
func (g *Graph[T]) Successors(n T) []T {
	return slices.Clone(g.succ[n])
}

// Len returns the number of nodes.
func (g *Graph[T]) Len() int {
	return len(g.nodes)
}

// Subgraph returns the graph induced by keep, preserving insertion order.
func (g *Graph[T]) Subgraph(keep func(T) bool) *Graph[T] {
	sub := New[T]()
	for _, n := range g.nodes {
		if keep(n) {
			sub.AddNode(n)
		}
	}
	for _, n := range sub.nodes {
		for _, m := range g.succ[n] {
			if sub.Has(m) {
				sub.AddEdge(n, m)
			}
		}
	}
	return sub
}
