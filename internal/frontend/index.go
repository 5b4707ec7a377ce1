package frontend

import (
	"slices"
	"strconv"
	"strings"

	cueast "cuelang.org/go/cue/ast"

	"github.com/cameron5906/workpipe/internal/ast"
)

// spanIndex maps a field path to the byte spans of its label and value in
// the source. The evaluated cue.Value API reports positions of values only,
// so labels are read from the syntax tree.
type spanIndex struct {
	labels map[string]ast.Span
	values map[string]ast.Span
}

func key(path []string) string {
	return strings.Join(path, "\x1f")
}

func nodeSpan(n cueast.Node) ast.Span {
	return ast.Span{Start: n.Pos().Offset(), End: n.End().Offset()}
}

func indexFile(f *cueast.File) *spanIndex {
	ix := &spanIndex{labels: map[string]ast.Span{}, values: map[string]ast.Span{}}
	ix.decls(nil, f.Decls)
	return ix
}

func (ix *spanIndex) decls(prefix []string, decls []cueast.Decl) {
	for _, d := range decls {
		switch d := d.(type) {
		case *cueast.Field:
			name, _, err := cueast.LabelName(d.Label)
			if err != nil {
				continue
			}
			p := append(slices.Clone(prefix), name)
			k := key(p)
			if _, seen := ix.labels[k]; !seen {
				ix.labels[k] = nodeSpan(d.Label)
				ix.values[k] = nodeSpan(d.Value)
			}
			ix.expr(p, d.Value)
		case *cueast.EmbedDecl:
			ix.expr(prefix, d.Expr)
		}
	}
}

func (ix *spanIndex) expr(p []string, e cueast.Expr) {
	switch e := e.(type) {
	case *cueast.StructLit:
		ix.decls(p, e.Elts)
	case *cueast.ListLit:
		for i, el := range e.Elts {
			q := append(slices.Clone(p), strconv.Itoa(i))
			k := key(q)
			if _, seen := ix.values[k]; !seen {
				ix.values[k] = nodeSpan(el)
			}
			ix.expr(q, el)
		}
	}
}

// label returns the span of the label at path, falling back to the value.
func (ix *spanIndex) label(path []string) ast.Span {
	if s, ok := ix.labels[key(path)]; ok {
		return s
	}
	return ix.values[key(path)]
}

func (ix *spanIndex) value(path []string) ast.Span {
	return ix.values[key(path)]
}
