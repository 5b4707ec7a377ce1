package compiler

import (
	"fmt"
	"path"
	"slices"

	"github.com/cameron5906/workpipe/internal/ast"
	"github.com/cameron5906/workpipe/internal/diag"
	"github.com/cameron5906/workpipe/internal/ir"
	"github.com/cameron5906/workpipe/internal/lower"
	"github.com/cameron5906/workpipe/internal/registry"
)

// NormalizeImport resolves an import path written in from against the
// directory of from, giving a workspace-relative path.
func NormalizeImport(from, to string) string {
	return path.Clean(path.Join(path.Dir(from), to))
}

// build fills the registry: generated names are reserved first so user
// units collide with them, then imports, types, templates and units are
// registered, and finally every named type reference is linked.
func (ctx *Context) build() {
	for _, d := range ctx.File.Decls {
		cy, ok := d.(*ast.Cycle)
		if !ok {
			continue
		}
		var body []string
		for _, j := range cy.Jobs() {
			body = append(body, j.Name.Name)
		}
		for _, n := range lower.PhaseNames(cy.Name.Name, body) {
			ctx.Reg.Reserve(n, cy.Name.Name)
		}
	}

	ctx.bindImports()

	for _, td := range ctx.File.Types {
		if d := ctx.Reg.RegisterType(td); d != nil {
			ctx.Diags.Add(*d)
		}
	}
	for _, t := range ctx.File.Templates {
		if d := ctx.Reg.RegisterTemplate(t, ctx.Diags); d != nil {
			ctx.Diags.Add(*d)
		}
	}

	ctx.registerDecls(ctx.File.Decls, "")
	ctx.Reg.Link(ctx.Diags)
}

func (ctx *Context) bindImports() {
	for _, imp := range ctx.File.Imports {
		target := NormalizeImport(ctx.File.Path, imp.From)
		if ctx.Resolver != nil && ctx.Resolver.Skip(ctx.File.Path, target) {
			// Part of an import cycle, reported once by the workspace.
			continue
		}
		var from *registry.Registry
		ok := false
		if ctx.Resolver != nil {
			from, ok = ctx.Resolver.Registry(target)
		}
		if !ok {
			ctx.Diags.Errorf(diag.ErrImportNotFound, imp.FromSpan,
				"imported file %q not found in workspace", imp.From)
			continue
		}
		for _, n := range imp.Names {
			b := registry.Binding{Local: n.Local(), Name: n.Name, From: target, Span: n.Span}
			if d := ctx.Reg.Import(b, from); d != nil {
				ctx.Diags.Add(*d)
			}
		}
	}
}

func (ctx *Context) registerDecls(decls []ast.Decl, cycle string) {
	for _, d := range decls {
		switch d := d.(type) {
		case *ast.Job:
			u := registry.Unit{
				Name:    d.Name.Name,
				Span:    d.Name.Span,
				Decl:    d,
				Outputs: ctx.unitOutputs(d),
				Cycle:   cycle,
			}
			if diagnostic := ctx.Reg.RegisterUnit(u); diagnostic != nil {
				ctx.Diags.Add(*diagnostic)
			}
		case *ast.Cycle:
			u := registry.Unit{Name: d.Name.Name, Span: d.Name.Span, Decl: d, Cycle: cycle}
			if diagnostic := ctx.Reg.RegisterUnit(u); diagnostic != nil {
				ctx.Diags.Add(*diagnostic)
			}
			ctx.registerDecls(d.Body, d.Name.Name)
		default:
			panic(fmt.Sprintf("compiler: unknown declaration %T", d))
		}
	}
}

// unitOutputs resolves the outputs of j: the template's first, then the
// job's own. A job output replaces a template output of the same name.
func (ctx *Context) unitOutputs(j *ast.Job) []registry.OutputDef {
	own := ctx.Reg.DeclareOutputs(j.Name.Name, j.Outputs, ctx.Diags)
	t := ctx.template(j)
	if t == nil {
		return own
	}
	out := make([]registry.OutputDef, 0, len(t.Outputs)+len(own))
	for _, o := range t.Outputs {
		if !slices.ContainsFunc(own, func(x registry.OutputDef) bool { return x.Name == o.Name }) {
			out = append(out, o)
		}
	}
	return append(out, own...)
}

// template resolves the template j uses, reporting E110 once per job when
// it does not exist.
func (ctx *Context) template(j *ast.Job) *registry.Template {
	if j.Uses == nil {
		return nil
	}
	t, ok := ctx.Reg.ResolveTemplate(j.Uses.Name)
	if !ok {
		ctx.Diags.Errorf(diag.ErrUndefinedTemplate, j.Uses.Span, "undefined template %q", j.Uses.Name)
		return nil
	}
	return t
}

// convert turns a registered job into an output unit. Needs on a cycle are
// redirected to its decide phase and guarded on the cycle being done.
func (ctx *Context) convert(j *ast.Job) ir.Unit {
	u := ir.Unit{
		Name:   j.Name.Name,
		Phase:  ir.PhaseUser,
		Agent:  j.Kind == ast.KindAgent,
		If:     j.If,
		RunsOn: j.RunsOn,
	}

	var tmpl *ast.Template
	if j.Uses != nil {
		if t, ok := ctx.Reg.ResolveTemplate(j.Uses.Name); ok {
			tmpl = t.Decl
		}
	}
	if tmpl != nil {
		if u.RunsOn == "" {
			u.RunsOn = tmpl.RunsOn
		}
		u.Env = convertKVs(tmpl.Env)
		u.Steps = convertSteps(tmpl.Steps)
		for _, o := range tmpl.Outputs {
			if !slices.ContainsFunc(j.Outputs, func(x *ast.OutputDecl) bool { return x.Name.Name == o.Name.Name }) {
				u.Outputs = append(u.Outputs, ir.KV{Key: o.Name.Name, Value: o.Value})
			}
		}
	}
	u.Env = mergeKVs(u.Env, convertKVs(j.Env))
	if u.Agent && j.Prompt != "" {
		u.Env = mergeKVs(u.Env, []ir.KV{{Key: "WP_PROMPT", Value: j.Prompt}})
	}
	u.Steps = append(u.Steps, convertSteps(j.Steps)...)
	for _, o := range j.Outputs {
		u.Outputs = append(u.Outputs, ir.KV{Key: o.Name.Name, Value: o.Value})
	}

	for _, n := range j.Needs {
		name := n.Name
		if ru, ok := ctx.Reg.ResolveUnit(name); ok && ru.Cycle == "" {
			if _, isCycle := ru.Decl.(*ast.Cycle); isCycle {
				name = lower.DecideName(n.Name)
				u.If = and(u.If, "needs."+name+".outputs.done == 'true'")
			}
		}
		if !slices.Contains(u.Needs, name) {
			u.Needs = append(u.Needs, name)
		}
	}
	return u
}

func and(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return "(" + a + ") && (" + b + ")"
	}
}

func convertKVs(kvs []ast.KV) []ir.KV {
	if len(kvs) == 0 {
		return nil
	}
	out := make([]ir.KV, len(kvs))
	for i, kv := range kvs {
		out[i] = ir.KV{Key: kv.Key, Value: kv.Value}
	}
	return out
}

// mergeKVs appends over to base, replacing entries with the same key in
// place so the first position of a key is kept.
func mergeKVs(base, over []ir.KV) []ir.KV {
	for _, kv := range over {
		i := slices.IndexFunc(base, func(x ir.KV) bool { return x.Key == kv.Key })
		if i >= 0 {
			base[i] = kv
			continue
		}
		base = append(base, kv)
	}
	return base
}

func convertSteps(steps []*ast.Step) []ir.Step {
	out := make([]ir.Step, 0, len(steps))
	for _, s := range steps {
		out = append(out, ir.Step{
			Name: s.Name,
			ID:   s.ID,
			If:   s.If,
			Uses: s.Uses,
			Run:  s.Run,
			With: convertKVs(s.With),
			Env:  convertKVs(s.Env),
		})
	}
	return out
}
