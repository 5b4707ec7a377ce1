// Package compiler runs the middle end over one file or a whole workspace:
// registry build, dependency graph, semantic validation, cycle lowering and
// assembly of the acyclic workflow.
//
// Findings in the source never surface as Go errors. Every pass records
// into the file's diagnostic collector and keeps going; errors only gate
// whether a workflow is produced.
package compiler

import (
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/cameron5906/workpipe/internal/ast"
	"github.com/cameron5906/workpipe/internal/diag"
	"github.com/cameron5906/workpipe/internal/graph"
	"github.com/cameron5906/workpipe/internal/ir"
	"github.com/cameron5906/workpipe/internal/registry"
)

// Options configure one compilation.
type Options struct {
	// Namespace prefixes state artifact names. Defaults to the workflow name.
	Namespace string
	// WorkflowFile is the emitted file the dispatch phase re-invokes.
	// Defaults to "<file stem>.yml".
	WorkflowFile string
	// RunsOn labels generated phase units.
	RunsOn string
	// Logger receives debug records of pass boundaries. Nil discards.
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// Resolver hands out the registries of already compiled files.
type Resolver interface {
	// Registry returns the registry of the file at the normalized path.
	Registry(path string) (*registry.Registry, bool)
	// Skip reports whether the import from → to lies in an import cycle and
	// must contribute nothing.
	Skip(from, to string) bool
}

// Context is the state of one file compilation. Passes receive it
// explicitly; nothing is kept at package level.
type Context struct {
	File     *ast.File
	Opts     Options
	Reg      *registry.Registry
	Units    *graph.Units
	Diags    *diag.Collector
	Resolver Resolver
	// Keep holds local names that other files import. They are never
	// reported unused.
	Keep map[string]bool

	log  *slog.Logger
	body map[string][]ir.Unit // cycle → converted body jobs
}

// NewContext prepares the compilation of f.
func NewContext(f *ast.File, opts Options) *Context {
	return &Context{
		File:  f,
		Opts:  opts,
		Reg:   registry.New(),
		Diags: diag.NewCollector(),
		Keep:  map[string]bool{},
		log:   opts.logger().With("file", f.Path),
		body:  make(map[string][]ir.Unit),
	}
}

// Result is the outcome of one file compilation.
type Result struct {
	Path        string
	Workflow    *ir.Workflow // nil when any error was recorded
	Diagnostics []diag.Diagnostic
	Registry    *registry.Registry
}

// HasErrors reports whether the compilation recorded an error.
func (r *Result) HasErrors() bool {
	return diag.HasErrors(r.Diagnostics)
}

// Compile compiles one file that imports nothing outside itself.
func Compile(f *ast.File, opts Options) *Result {
	return NewContext(f, opts).Run()
}

// Run executes every pass over the context's file.
func (ctx *Context) Run() *Result {
	ctx.log.Debug("compile start")

	ctx.build()
	ctx.log.Debug("registry built", "units", len(ctx.Reg.Units()))

	ctx.Units = graph.BuildUnits(ctx.File, ctx.Diags)
	ctx.validate()
	ctx.log.Debug("validated", "findings", ctx.Diags.Len())

	wf := ctx.assemble()

	res := &Result{
		Path:     ctx.File.Path,
		Registry: ctx.Reg,
	}
	hasErrors := ctx.Diags.HasErrors()
	res.Diagnostics = ctx.Diags.Drain()
	for i := range res.Diagnostics {
		res.Diagnostics[i].File = ctx.File.Path
	}
	if !hasErrors {
		res.Workflow = wf
	}
	ctx.log.Debug("compile done", "errors", hasErrors, "diagnostics", len(res.Diagnostics))
	return res
}

// stem is the file name without directory and extension.
func stem(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

func (ctx *Context) workflowName() string {
	if ctx.File.Workflow != "" {
		return ctx.File.Workflow
	}
	return stem(ctx.File.Path)
}

func (ctx *Context) namespace() string {
	if ctx.Opts.Namespace != "" {
		return ctx.Opts.Namespace
	}
	return ctx.workflowName()
}

func (ctx *Context) workflowFile() string {
	if ctx.Opts.WorkflowFile != "" {
		return ctx.Opts.WorkflowFile
	}
	return stem(ctx.File.Path) + ".yml"
}
