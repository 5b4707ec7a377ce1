package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cameron5906/workpipe/internal/ast"
	"github.com/cameron5906/workpipe/internal/diag"
	"github.com/cameron5906/workpipe/internal/lower"
	"github.com/cameron5906/workpipe/internal/registry"
)

// hydrateOutputs are the outputs a body member may read from its cycle's
// hydrate phase.
var hydrateOutputs = []string{"iteration", "key", "prev_run", "state"}

// validate runs the semantic checks over the built registry and graph. It
// records findings and never stops early.
func (ctx *Context) validate() {
	if len(ctx.File.Decls) == 0 {
		ctx.Diags.Record(diag.WarnEmptyWorkflow, diag.SeverityWarning,
			"workflow declares no jobs and no cycles", ctx.File.Span,
			diag.WithHint("the compiled workflow will be empty"))
	}

	ctx.validateDecls(ctx.File.Decls, nil)

	// Template references depend on the using job's needs and are checked
	// per use in validateJob; comparisons depend only on types.
	for _, t := range ctx.File.Templates {
		for _, cmp := range t.Comparisons {
			ctx.checkComparison(cmp)
		}
	}

	for _, td := range ctx.Reg.UnusedTypes(ctx.Keep) {
		ctx.Diags.Warnf(diag.WarnUnusedType, td.Span, "type %q is declared but never used", td.Name)
	}
	for _, b := range ctx.Reg.UnusedImports() {
		ctx.Diags.Warnf(diag.WarnUnusedImport, b.Span, "imported name %q from %s is never used", b.Local, b.From)
	}
}

func (ctx *Context) validateDecls(decls []ast.Decl, enclosing *ast.Cycle) {
	for _, d := range decls {
		switch d := d.(type) {
		case *ast.Job:
			ctx.validateJob(d, enclosing)
		case *ast.Cycle:
			if enclosing != nil {
				// Reported as E305 on the enclosing cycle; never lowered.
				continue
			}
			for _, f := range lower.Check(d) {
				ctx.Diags.Add(f)
			}
			ctx.validateDecls(d.Body, d)
		}
	}
}

func (ctx *Context) validateJob(j *ast.Job, enclosing *ast.Cycle) {
	ctx.checkRequired(j)

	cycle := ""
	if enclosing != nil {
		cycle = enclosing.Name.Name
	}
	for _, n := range j.Needs {
		ctx.checkNeed(j, n, cycle)
	}
	for _, ref := range j.Refs {
		ctx.checkRef(j, ref, cycle)
	}
	if j.Uses != nil {
		if t, ok := ctx.Reg.ResolveTemplate(j.Uses.Name); ok {
			for _, ref := range t.Decl.Refs {
				ctx.checkRef(j, ref, cycle)
			}
		}
	}
	for _, cmp := range j.Comparisons {
		ctx.checkComparison(cmp)
	}
}

// checkRequired reports E301 for a job without runs-on, directly or through
// its template, and for an agent job without a prompt.
func (ctx *Context) checkRequired(j *ast.Job) {
	runsOn := j.RunsOn
	if runsOn == "" && j.Uses != nil {
		if t, ok := ctx.Reg.ResolveTemplate(j.Uses.Name); ok {
			runsOn = t.Decl.RunsOn
		}
	}
	if runsOn == "" {
		ctx.Diags.Record(diag.ErrMissingField, diag.SeverityError,
			fmt.Sprintf("%s %q is missing required field runs-on", j.Kind, j.Name.Name), j.Name.Span,
			diag.WithHint("set runs-on or use a template that sets it"))
	}
	if j.Kind == ast.KindAgent && strings.TrimSpace(j.Prompt) == "" {
		ctx.Diags.Errorf(diag.ErrMissingField, j.Name.Span,
			"agent %q is missing required field prompt", j.Name.Name)
	}
}

// visible reports whether a unit in cycle may depend on target at all. A
// body member of one cycle is invisible outside it.
func (ctx *Context) visible(target *registry.Unit, cycle string) bool {
	return target.Cycle == "" || target.Cycle == cycle
}

func (ctx *Context) checkNeed(j *ast.Job, n ast.Ident, cycle string) {
	target, ok := ctx.Reg.ResolveUnit(n.Name)
	if !ok {
		if owner, reserved := ctx.Reg.Reserved(n.Name); reserved && owner == cycle && n.Name == lower.HydrateName(cycle) {
			return
		}
		ctx.Diags.Errorf(diag.ErrUndefinedUnit, n.Span, "%q needs undefined unit %q", j.Name.Name, n.Name)
		return
	}
	if !ctx.visible(target, cycle) {
		ctx.Diags.Record(diag.ErrCycleInternalRef, diag.SeverityError,
			fmt.Sprintf("%q needs %q, which is internal to cycle %q", j.Name.Name, n.Name, target.Cycle), n.Span,
			diag.WithHint(fmt.Sprintf("depend on cycle %q instead", target.Cycle)))
	}
}

func (ctx *Context) checkRef(j *ast.Job, ref ast.OutputRef, cycle string) {
	if cycle != "" && ref.Unit == lower.HydrateName(cycle) {
		if !slices.Contains(hydrateOutputs, ref.Output) {
			ctx.Diags.Record(diag.ErrUndefinedOutput, diag.SeverityError,
				fmt.Sprintf("%q has no output %q", ref.Unit, ref.Output), ref.Span,
				diag.WithHint("available outputs: ["+strings.Join(hydrateOutputs, ", ")+"]"))
		}
		return
	}

	target, ok := ctx.Reg.ResolveUnit(ref.Unit)
	if !ok {
		ctx.Diags.Errorf(diag.ErrUndefinedUnit, ref.Span, "reference to undefined unit %q", ref.Unit)
		return
	}
	if !ctx.visible(target, cycle) {
		ctx.Diags.Record(diag.ErrCycleInternalRef, diag.SeverityError,
			fmt.Sprintf("%q is internal to cycle %q and cannot be referenced here", ref.Unit, target.Cycle), ref.Span,
			diag.WithHint(fmt.Sprintf("depend on cycle %q and read its state instead", target.Cycle)))
		return
	}
	if !slices.ContainsFunc(j.Needs, func(n ast.Ident) bool { return n.Name == ref.Unit }) {
		ctx.Diags.Record(diag.ErrRefNotInNeeds, diag.SeverityError,
			fmt.Sprintf("%q reads outputs of %q but does not list it in needs", j.Name.Name, ref.Unit), ref.Span,
			diag.WithHint(fmt.Sprintf("add %q to needs", ref.Unit)))
	}
	if _, ok := ctx.Reg.ResolveOutput(ref.Unit, ref.Output); !ok {
		ctx.Diags.Record(diag.ErrUndefinedOutput, diag.SeverityError,
			fmt.Sprintf("unit %q has no output %q", ref.Unit, ref.Output), ref.Span,
			diag.WithHint("available outputs: ["+strings.Join(ctx.Reg.OutputNames(ref.Unit), ", ")+"]"))
	}
}

// checkComparison reports E201 when both operands have a known type and
// the types cannot meet in a comparison. Unresolvable references were
// already reported and are skipped here.
func (ctx *Context) checkComparison(c ast.Comparison) {
	left, lok := ctx.operandType(c.Left)
	right, rok := ctx.operandType(c.Right)
	if !lok || !rok {
		return
	}
	if ctx.Reg.Comparable(left, right) {
		return
	}
	ctx.Diags.Errorf(diag.ErrIncompatibleTypes, c.Span,
		"cannot compare %s with %s using %s", ctx.Reg.TypeString(left), ctx.Reg.TypeString(right), c.Op)
}

func (ctx *Context) operandType(o ast.Operand) (registry.TypeID, bool) {
	switch {
	case o.Ref != nil:
		out, ok := ctx.Reg.ResolveOutput(o.Ref.Unit, o.Ref.Output)
		if !ok {
			return registry.NoType, false
		}
		return out.Type, true
	case o.Literal != nil:
		return ctx.Reg.Arena().Literal(*o.Literal), true
	default:
		return registry.NoType, false
	}
}
