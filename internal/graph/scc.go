package graph

import (
	"cmp"
	"slices"
)

// SCC finds strongly connected components using Tarjan's algorithm.
//
// Roots are tried in node insertion order and successors in edge insertion
// order, so the result is a pure function of how g was built. Components
// come out in reverse topological order: a component appears before any
// component that can reach it.
func SCC[T cmp.Ordered](g *Graph[T]) [][]T {
	var (
		index   = 0
		stack   []T
		indices = make(map[T]int, g.Len())
		lowlink = make(map[T]int, g.Len())
		onStack = make(map[T]bool, g.Len())
		sccs    [][]T
	)

	var strongConnect func(T)
	strongConnect = func(v T) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.succ[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []T
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, n := range g.nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return sccs
}

// IsCycle reports whether scc is a cycle: more than one member, or a single
// member with an edge to itself.
func IsCycle[T cmp.Ordered](scc []T, g *Graph[T]) bool {
	switch len(scc) {
	case 0:
		return false
	case 1:
		return g.HasEdge(scc[0], scc[0])
	default:
		return true
	}
}

// Cycles returns only the components of g that are cycles.
func Cycles[T cmp.Ordered](g *Graph[T]) [][]T {
	var out [][]T
	for _, scc := range SCC(g) {
		if IsCycle(scc, g) {
			out = append(out, scc)
		}
	}
	return out
}

// CyclePath returns a closed walk start → ... → start through the members
// of scc, following edges in insertion order. start must be a member of a
// cyclic scc. The walk visits each member at most once.
func CyclePath[T cmp.Ordered](scc []T, g *Graph[T], start T) []T {
	if g.HasEdge(start, start) {
		return []T{start, start}
	}
	members := make(map[T]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	visited := map[T]bool{start: true}
	path := []T{start}
	var walk func(T) bool
	walk = func(v T) bool {
		for _, w := range g.succ[v] {
			if !members[w] {
				continue
			}
			if w == start {
				path = append(path, start)
				return true
			}
			if visited[w] {
				continue
			}
			visited[w] = true
			path = append(path, w)
			if walk(w) {
				return true
			}
			path = path[:len(path)-1]
		}
		return false
	}
	if !walk(start) {
		return nil
	}
	return path
}

// Levels groups the nodes of g into dependency levels over its condensation.
// Edges point from a dependent to its dependency, so level 0 holds nodes
// with no dependencies outside their own component. Members of one
// component always share a level. Within a level nodes are sorted.
func Levels[T cmp.Ordered](g *Graph[T]) [][]T {
	comp := make(map[T]int, g.Len())
	sccs := SCC(g)
	for i, scc := range sccs {
		for _, n := range scc {
			comp[n] = i
		}
	}

	// Tarjan emits dependencies first, so one forward pass settles depth.
	depth := make([]int, len(sccs))
	maxDepth := -1
	for i, scc := range sccs {
		for _, n := range scc {
			for _, m := range g.succ[n] {
				if j := comp[m]; j != i {
					depth[i] = max(depth[i], depth[j]+1)
				}
			}
		}
		maxDepth = max(maxDepth, depth[i])
	}

	levels := make([][]T, maxDepth+1)
	for i, scc := range sccs {
		levels[depth[i]] = append(levels[depth[i]], scc...)
	}
	for _, l := range levels {
		slices.Sort(l)
	}
	return levels
}
