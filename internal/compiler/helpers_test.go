package compiler

import (
	"github.com/cameron5906/workpipe/internal/ast"
	"github.com/cameron5906/workpipe/internal/diag"
)

// fileBuilder assembles an ast.File by hand. Spans are handed out in
// increasing order so diagnostics sort in declaration order.
type fileBuilder struct {
	f   *ast.File
	pos int
}

func newFile(path string) *fileBuilder {
	return &fileBuilder{f: &ast.File{Path: path, Workflow: "", Triggers: []ast.Ident{{Name: "push"}}}}
}

func (b *fileBuilder) span(n int) ast.Span {
	b.pos += 10
	s := ast.Span{Start: b.pos, End: b.pos + n}
	b.pos += n
	return s
}

func (b *fileBuilder) ident(name string) ast.Ident {
	return ast.Ident{Name: name, Span: b.span(len(name))}
}

func (b *fileBuilder) job(name string, needs ...string) *ast.Job {
	j := &ast.Job{Kind: ast.KindJob, Name: b.ident(name), RunsOn: "ubuntu-latest"}
	for _, n := range needs {
		j.Needs = append(j.Needs, b.ident(n))
	}
	j.Span = ast.Span{Start: j.Name.Span.Start, End: b.pos}
	return j
}

func (b *fileBuilder) add(decls ...ast.Decl) *fileBuilder {
	b.f.Decls = append(b.f.Decls, decls...)
	return b
}

func (b *fileBuilder) output(j *ast.Job, name string, typ ast.TypeExpr) *ast.OutputDecl {
	o := &ast.OutputDecl{Name: b.ident(name), Type: typ, Value: "${{ steps.main.outputs." + name + " }}"}
	j.Outputs = append(j.Outputs, o)
	return o
}

func (b *fileBuilder) ref(j *ast.Job, unit, output string) ast.OutputRef {
	r := ast.OutputRef{Unit: unit, Output: output, Span: b.span(len(unit) + len(output) + 15)}
	j.Refs = append(j.Refs, r)
	return r
}

func (b *fileBuilder) cycle(name string, maxIters *int, until string, body ...ast.Decl) *ast.Cycle {
	cy := &ast.Cycle{Name: b.ident(name), Body: body}
	if maxIters != nil {
		cy.MaxIters = &ast.IntLit{Value: *maxIters, Span: b.span(1)}
	}
	if until != "" {
		cy.Until = &ast.Script{Body: until, Span: b.span(len(until))}
	}
	return cy
}

func (b *fileBuilder) typeDecl(name string, typ ast.TypeExpr) *ast.TypeDecl {
	td := &ast.TypeDecl{Name: b.ident(name), Type: typ}
	b.f.Types = append(b.f.Types, td)
	return td
}

func (b *fileBuilder) importNames(from string, names ...string) *ast.Import {
	imp := &ast.Import{From: from, FromSpan: b.span(len(from))}
	for _, n := range names {
		imp.Names = append(imp.Names, ast.ImportName{Name: n, Span: b.span(len(n))})
	}
	b.f.Imports = append(b.f.Imports, imp)
	return imp
}

func (b *fileBuilder) build() *ast.File {
	b.f.Span = ast.Span{Start: 0, End: b.pos}
	return b.f
}

func prim(name string) ast.TypeExpr { return &ast.PrimitiveType{Name: name} }

func named(name string) ast.TypeExpr { return &ast.NamedType{Name: name} }

func intp(v int) *int { return &v }

func codes(ds []diag.Diagnostic) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Code
	}
	return out
}

func errorCodes(ds []diag.Diagnostic) []string {
	var out []string
	for _, d := range ds {
		if d.IsError() {
			out = append(out, d.Code)
		}
	}
	return out
}
