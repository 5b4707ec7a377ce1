package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cameron5906/workpipe/internal/ast"
	"github.com/cameron5906/workpipe/internal/diag"
)

// Units is the unit-needs graph of one file.
//
// Nodes are every job (top level and cycle body) and every cycle name.
// Edges run from a unit to each unit it needs, and from a cycle to each of
// its body members, so depending on a cycle means depending on its body.
type Units struct {
	G *Graph[string]

	owner map[string]string // body unit → innermost enclosing cycle
	order map[string]int    // source order of first declaration
	spans map[string]ast.Span
}

// BuildUnits builds the unit-needs graph for f and reports every unit cycle
// as E302.
//
// Needs entries naming no known unit are skipped here; the validator
// reports them. An SCC whose members all sit in the body of one cycle is
// not reported: the lowering engine rejects it with its own finding.
func BuildUnits(f *ast.File, c *diag.Collector) *Units {
	u := &Units{
		G:     New[string](),
		owner: make(map[string]string),
		order: make(map[string]int),
		spans: make(map[string]ast.Span),
	}

	var addNodes func(decls []ast.Decl, owner string)
	addNodes = func(decls []ast.Decl, owner string) {
		for _, d := range decls {
			name := d.DeclName()
			if _, dup := u.order[name.Name]; dup {
				continue // registry reports E101
			}
			u.order[name.Name] = len(u.order)
			u.spans[name.Name] = name.Span
			u.G.AddNode(name.Name)
			if owner != "" {
				u.owner[name.Name] = owner
			}
			if cy, ok := d.(*ast.Cycle); ok {
				addNodes(cy.Body, cy.Name.Name)
			}
		}
	}
	addNodes(f.Decls, "")

	var addEdges func(decls []ast.Decl)
	addEdges = func(decls []ast.Decl) {
		for _, d := range decls {
			switch d := d.(type) {
			case *ast.Job:
				for _, need := range d.Needs {
					if u.G.Has(need.Name) {
						u.G.AddEdge(d.Name.Name, need.Name)
					}
				}
			case *ast.Cycle:
				for _, member := range d.Body {
					u.G.AddEdge(d.Name.Name, member.DeclName().Name)
				}
				addEdges(d.Body)
			}
		}
	}
	addEdges(f.Decls)

	for _, scc := range Cycles(u.G) {
		if u.sameBody(scc) {
			continue
		}
		first := scc[0]
		for _, n := range scc[1:] {
			if u.order[n] < u.order[first] {
				first = n
			}
		}
		members := u.sourceOrder(scc)
		path := CyclePath(scc, u.G, first)
		c.Record(diag.ErrUnitCycle, diag.SeverityError,
			fmt.Sprintf("dependency cycle between units: %s", strings.Join(members, ", ")),
			u.spans[first],
			diag.WithHint(strings.Join(path, " → ")))
	}
	return u
}

// Owner returns the innermost cycle whose body declares unit, if any.
func (u *Units) Owner(unit string) (string, bool) {
	o, ok := u.owner[unit]
	return o, ok
}

// Span returns where unit was first declared.
func (u *Units) Span(unit string) ast.Span {
	return u.spans[unit]
}

// Body returns the subgraph induced by the direct body members of cycle.
func (u *Units) Body(cycle string) *Graph[string] {
	return u.G.Subgraph(func(n string) bool { return u.owner[n] == cycle })
}

func (u *Units) sameBody(scc []string) bool {
	cycle, ok := u.owner[scc[0]]
	if !ok {
		return false
	}
	for _, n := range scc[1:] {
		if u.owner[n] != cycle {
			return false
		}
	}
	return true
}

func (u *Units) sourceOrder(scc []string) []string {
	out := slices.Clone(scc)
	slices.SortFunc(out, func(a, b string) int { return u.order[a] - u.order[b] })
	return out
}
