package compiler

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cameron5906/workpipe/internal/ast"
	"github.com/cameron5906/workpipe/internal/diag"
	"github.com/cameron5906/workpipe/internal/graph"
	"github.com/cameron5906/workpipe/internal/registry"
)

// WorkspaceResult holds every file's result in path order.
type WorkspaceResult struct {
	Files []*Result
}

// HasErrors reports whether any file recorded an error.
func (w *WorkspaceResult) HasErrors() bool {
	return slices.ContainsFunc(w.Files, (*Result).HasErrors)
}

// Diagnostics returns the findings of all files in path order.
func (w *WorkspaceResult) Diagnostics() []diag.Diagnostic {
	var out []diag.Diagnostic
	for _, f := range w.Files {
		out = append(out, f.Diagnostics...)
	}
	return out
}

// File looks up the result for a normalized path.
func (w *WorkspaceResult) File(path string) (*Result, bool) {
	for _, f := range w.Files {
		if f.Path == path {
			return f, true
		}
	}
	return nil, false
}

// workspace is the Resolver files of one workspace compile against.
type workspace struct {
	imports *graph.Imports

	mu   sync.RWMutex
	regs map[string]*registry.Registry
}

func (w *workspace) Registry(path string) (*registry.Registry, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	r, ok := w.regs[path]
	return r, ok
}

func (w *workspace) Skip(from, to string) bool {
	return w.imports.InCycle(from, to)
}

// CompileWorkspace compiles files in import order. Files of one level of
// the import graph compile in parallel, each reading only the registries of
// levels already finished. Every import cycle is reported once, as E303 in
// the file that starts it.
//
// The returned error is only ever ctx's; findings go to the diagnostics.
func CompileWorkspace(ctx context.Context, files []*ast.File, opts Options) (*WorkspaceResult, error) {
	log := opts.logger()

	byPath := make(map[string]*ast.File, len(files))
	ws := &workspace{imports: graph.NewImports(), regs: make(map[string]*registry.Registry)}
	for _, f := range files {
		byPath[f.Path] = f
		ws.imports.AddFile(f.Path)
	}

	// keep[path] holds the names other files import from path.
	keep := make(map[string]map[string]bool)
	for _, f := range files {
		for _, imp := range f.Imports {
			target := NormalizeImport(f.Path, imp.From)
			if _, ok := byPath[target]; !ok {
				continue
			}
			ws.imports.AddImport(f.Path, target, imp.Span)
			if keep[target] == nil {
				keep[target] = make(map[string]bool)
			}
			for _, n := range imp.Names {
				keep[target][n.Name] = true
			}
		}
	}

	cycles := ws.imports.Cycles()

	results := make(map[string]*Result, len(files))
	var mu sync.Mutex
	for i, level := range ws.imports.Levels() {
		log.Debug("compiling level", "level", i, "files", level)
		g, gctx := errgroup.WithContext(ctx)
		for _, p := range level {
			f := byPath[p]
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				c := NewContext(f, opts)
				c.Resolver = ws
				if k := keep[p]; k != nil {
					c.Keep = k
				}
				for _, ic := range cycles {
					if ic.File == p {
						c.Diags.Record(diag.ErrImportCycle, diag.SeverityError,
							fmt.Sprintf("circular import: %s", ic), ic.Span,
							diag.WithHint("move the shared declarations into a file that imports neither"))
					}
				}
				res := c.Run()

				ws.mu.Lock()
				ws.regs[p] = res.Registry
				ws.mu.Unlock()
				mu.Lock()
				results[p] = res
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("compile workspace: %w", err)
		}
	}

	out := &WorkspaceResult{}
	for _, f := range files {
		out.Files = append(out.Files, results[f.Path])
	}
	slices.SortFunc(out.Files, func(a, b *Result) int {
		switch {
		case a.Path < b.Path:
			return -1
		case a.Path > b.Path:
			return 1
		}
		return 0
	})
	return out, nil
}
