package graph

import (
	"slices"
	"strings"

	"github.com/cameron5906/workpipe/internal/ast"
)

// Imports is the import graph of a workspace. Nodes are normalized file
// paths; an edge is one import statement.
type Imports struct {
	G *Graph[string]

	spans map[edge]ast.Span
	comp  map[string]int // node → index of its cyclic component, if any
}

type edge struct{ from, to string }

// ImportCycle is one cyclic component of the import graph.
type ImportCycle struct {
	File    string   // lexicographically smallest member; the cycle is reported here
	Span    ast.Span // the import statement in File that starts Path
	Path    []string // File → ... → File in import order
	Members []string // sorted
}

// String renders the path as "a.cue → b.cue → a.cue".
func (c ImportCycle) String() string {
	return strings.Join(c.Path, " → ")
}

// NewImports returns an empty import graph.
func NewImports() *Imports {
	return &Imports{G: New[string](), spans: make(map[edge]ast.Span)}
}

// AddFile registers path as a node even if it imports nothing.
func (im *Imports) AddFile(path string) {
	im.G.AddNode(path)
	im.comp = nil
}

// AddImport records that from imports to at span. The first span wins for
// repeated imports of the same file.
func (im *Imports) AddImport(from, to string, span ast.Span) {
	e := edge{from, to}
	if _, ok := im.spans[e]; !ok {
		im.spans[e] = span
	}
	im.G.AddEdge(from, to)
	im.comp = nil
}

// Cycles returns every cyclic component once, sorted by File.
func (im *Imports) Cycles() []ImportCycle {
	im.comp = make(map[string]int)
	var out []ImportCycle
	for _, scc := range Cycles(im.G) {
		members := slices.Clone(scc)
		slices.Sort(members)
		start := members[0]
		path := CyclePath(scc, im.G, start)
		out = append(out, ImportCycle{
			File:    start,
			Span:    im.spans[edge{path[0], path[1]}],
			Path:    path,
			Members: members,
		})
	}
	slices.SortFunc(out, func(a, b ImportCycle) int { return strings.Compare(a.File, b.File) })
	for i, c := range out {
		for _, m := range c.Members {
			im.comp[m] = i
		}
	}
	return out
}

// InCycle reports whether the import from → to lies inside a cyclic
// component. Such an import contributes no names.
func (im *Imports) InCycle(from, to string) bool {
	if im.comp == nil {
		im.Cycles()
	}
	if !im.G.HasEdge(from, to) {
		return false
	}
	cf, ok := im.comp[from]
	if !ok {
		return false
	}
	ct, ok := im.comp[to]
	return ok && cf == ct
}

// Levels orders files for compilation: every file comes after the files it
// imports, and files of one cyclic component share a level.
func (im *Imports) Levels() [][]string {
	return Levels(im.G)
}
