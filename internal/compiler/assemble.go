package compiler

import (
	"slices"

	"github.com/cameron5906/workpipe/internal/ast"
	"github.com/cameron5906/workpipe/internal/ir"
	"github.com/cameron5906/workpipe/internal/lower"
	"github.com/cameron5906/workpipe/internal/protocol"
)

const triggerDispatch = "workflow_dispatch"

// assemble builds the acyclic workflow: user jobs in source order with each
// valid cycle replaced by its phase units. Cycles that failed a check are
// left out; the errors already recorded keep the workflow from being used.
func (ctx *Context) assemble() *ir.Workflow {
	f := ctx.File
	wf := &ir.Workflow{
		Name:   ctx.workflowName(),
		Source: f.Path,
		Units:  ir.Units{},
	}
	for _, t := range f.Triggers {
		wf.Triggers = append(wf.Triggers, t.Name)
	}
	for _, p := range f.Permissions {
		wf.Permissions = append(wf.Permissions, ir.Permission{Scope: p.Scope, Level: p.Level})
	}

	opts := lower.Options{
		Namespace:    ctx.namespace(),
		WorkflowFile: ctx.workflowFile(),
		FileStem:     stem(f.Path),
		RunsOn:       ctx.Opts.RunsOn,
		Logger:       ctx.log,
	}

	var lowered []lower.Result
	for _, d := range f.Decls {
		switch d := d.(type) {
		case *ast.Job:
			wf.Units = append(wf.Units, ctx.convert(d))
		case *ast.Cycle:
			if len(lower.Check(d)) > 0 {
				continue
			}
			body := make([]ir.Unit, 0, len(d.Body))
			for _, j := range d.Jobs() {
				body = append(body, ctx.convert(j))
			}
			res, ok := lower.Lower(d, body, opts, ctx.Diags)
			if !ok {
				continue
			}
			lowered = append(lowered, res)
			wf.Units = append(wf.Units, res.Units...)
			wf.States = append(wf.States, res.State)
		}
	}

	if f.Concurrency != nil {
		wf.Concurrency = &ir.Concurrency{Group: f.Concurrency.Group, CancelInProgress: f.Concurrency.CancelInProgress}
	}
	if len(lowered) == 0 {
		return wf
	}

	if !slices.Contains(wf.Triggers, triggerDispatch) {
		wf.Triggers = append(wf.Triggers, triggerDispatch)
	}
	wf.Inputs = lower.DispatchInputs()
	wf.Permissions = mergePermissions(wf.Permissions, lower.Permissions())
	ctx.guardReinvocation(wf)

	// A single cycle's key serializes the whole workflow; the per-unit
	// groups would then wait on the run that holds them.
	if len(lowered) == 1 && wf.Concurrency == nil {
		c := lowered[0].Concurrency
		wf.Concurrency = &c
		for i := range wf.Units {
			wf.Units[i].Concurrency = nil
		}
	}
	return wf
}

// guardReinvocation keeps user jobs that have nothing to do with any cycle
// from running again when dispatch re-invokes the workflow for the next
// iteration. Jobs a cycle depends on, and jobs that depend on a cycle,
// keep their conditions.
func (ctx *Context) guardReinvocation(wf *ir.Workflow) {
	g := ctx.Units.G
	var cycles []string
	for _, d := range ctx.File.Decls {
		if cy, ok := d.(*ast.Cycle); ok {
			cycles = append(cycles, cy.Name.Name)
		}
	}

	upstream := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		for _, m := range g.Successors(n) {
			if !upstream[m] {
				upstream[m] = true
				walk(m)
			}
		}
	}
	for _, c := range cycles {
		walk(c)
	}

	downstream := make(map[string]bool)
	var reaches func(string, map[string]bool) bool
	reaches = func(n string, seen map[string]bool) bool {
		if slices.Contains(cycles, n) {
			return true
		}
		if seen[n] {
			return false
		}
		seen[n] = true
		for _, m := range g.Successors(n) {
			if reaches(m, seen) {
				return true
			}
		}
		return false
	}

	guard := "inputs." + protocol.InputConstruct + " == ''"
	for i := range wf.Units {
		u := &wf.Units[i]
		if u.Phase != ir.PhaseUser || upstream[u.Name] {
			continue
		}
		if !downstream[u.Name] && reaches(u.Name, map[string]bool{}) {
			downstream[u.Name] = true
		}
		if downstream[u.Name] {
			continue
		}
		u.If = and(u.If, guard)
	}
}

var permissionRank = map[string]int{"none": 0, "read": 1, "write": 2}

// mergePermissions adds the scopes in need, raising an existing scope's
// level only when need asks for more.
func mergePermissions(have, need []ir.Permission) []ir.Permission {
	out := slices.Clone(have)
	for _, p := range need {
		i := slices.IndexFunc(out, func(x ir.Permission) bool { return x.Scope == p.Scope })
		if i < 0 {
			out = append(out, p)
			continue
		}
		if permissionRank[p.Level] > permissionRank[out[i].Level] {
			out[i].Level = p.Level
		}
	}
	return out
}
