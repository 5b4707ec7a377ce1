package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cameron5906/workpipe/internal/ast"
	"github.com/cameron5906/workpipe/internal/diag"
)

func compileAll(t *testing.T, files ...*ast.File) *WorkspaceResult {
	t.Helper()
	ws, err := CompileWorkspace(context.Background(), files, Options{})
	require.NoError(t, err)
	require.Len(t, ws.Files, len(files))
	return ws
}

func countCode(ds []diag.Diagnostic, code string) int {
	n := 0
	for _, d := range ds {
		if d.Code == code {
			n++
		}
	}
	return n
}

func TestScenarioCircularImport(t *testing.T) {
	a := newFile("a.cue")
	a.typeDecl("A", prim("string"))
	a.importNames("./b.cue", "B")
	broken := a.job("lint")
	broken.RunsOn = ""
	a.add(broken)

	b := newFile("b.cue")
	b.typeDecl("B", prim("string"))
	b.importNames("a.cue", "A")
	b.add(b.job("x", "ghost"))

	ws := compileAll(t, a.build(), b.build())
	all := ws.Diagnostics()

	require.Equal(t, 1, countCode(all, diag.ErrImportCycle))
	ra, ok := ws.File("a.cue")
	require.True(t, ok)
	var cycle diag.Diagnostic
	for _, d := range ra.Diagnostics {
		if d.Code == diag.ErrImportCycle {
			cycle = d
		}
	}
	assert.Equal(t, "circular import: a.cue → b.cue → a.cue", cycle.Message)
	assert.Equal(t, "a.cue", cycle.File)

	// No secondary import errors, and each file keeps its own findings.
	assert.Zero(t, countCode(all, diag.ErrNotExported))
	assert.Zero(t, countCode(all, diag.ErrImportNotFound))
	assert.Contains(t, errorCodes(ra.Diagnostics), diag.ErrMissingField)
	rb, _ := ws.File("b.cue")
	assert.Contains(t, errorCodes(rb.Diagnostics), diag.ErrUndefinedUnit)
}

func TestImportTypes(t *testing.T) {
	lib := newFile("lib/types.cue")
	lib.typeDecl("Report", &ast.ObjectType{Fields: []ast.Field{
		{Name: "score", Type: prim("int")},
		{Name: "notes", Type: &ast.ArrayType{Elem: prim("string")}},
	}})

	app := newFile("app.cue")
	app.importNames("./lib/types.cue", "Report")
	j := app.job("review")
	app.output(j, "report", named("Report"))
	app.add(j)

	ws := compileAll(t, lib.build(), app.build())
	assert.False(t, ws.HasErrors(), "%v", ws.Diagnostics())

	rl, _ := ws.File("lib/types.cue")
	// Report is imported elsewhere, so it is not unused in lib.
	assert.Zero(t, countCode(rl.Diagnostics, diag.WarnUnusedType))

	ra, _ := ws.File("app.cue")
	td, ok := ra.Registry.ResolveType("Report")
	require.True(t, ok)
	assert.False(t, td.Local)
	lt, _ := rl.Registry.ResolveType("Report")
	assert.Equal(t, rl.Registry.TypeString(lt.Root), ra.Registry.TypeString(td.Root))
}

func TestImportIsNotTransitive(t *testing.T) {
	c := newFile("c.cue")
	c.typeDecl("Deep", prim("string"))

	b := newFile("b.cue")
	b.importNames("c.cue", "Deep")
	j := b.job("use")
	b.output(j, "d", named("Deep"))
	b.add(j)

	a := newFile("a.cue")
	imp := a.importNames("b.cue", "Deep")
	a.add(a.job("x"))

	ws := compileAll(t, a.build(), b.build(), c.build())
	ra, _ := ws.File("a.cue")
	require.Equal(t, []string{diag.ErrNotExported}, errorCodes(ra.Diagnostics))
	assert.Equal(t, imp.Names[0].Span, ra.Diagnostics[0].Span)
	assert.Equal(t, "the file exports nothing", ra.Diagnostics[0].Hint)

	rb, _ := ws.File("b.cue")
	assert.False(t, rb.HasErrors())
}

func TestImportMissingFile(t *testing.T) {
	a := newFile("a.cue")
	imp := a.importNames("missing.cue", "X")
	a.add(a.job("x"))

	ws := compileAll(t, a.build())
	require.Equal(t, []string{diag.ErrImportNotFound}, errorCodes(ws.Files[0].Diagnostics))
	assert.Equal(t, imp.FromSpan, ws.Files[0].Diagnostics[0].Span)
}

func TestUnusedImport(t *testing.T) {
	lib := newFile("lib.cue")
	lib.typeDecl("T", prim("string"))
	app := newFile("app.cue")
	app.importNames("lib.cue", "T")
	app.add(app.job("x"))

	ws := compileAll(t, app.build(), lib.build())
	ra, _ := ws.File("app.cue")
	assert.Equal(t, []string{diag.WarnUnusedImport}, codes(ra.Diagnostics))
}

func TestCompileWorkspaceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := CompileWorkspace(ctx, []*ast.File{newFile("a.cue").build()}, Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestNormalizeImport(t *testing.T) {
	tests := []struct{ from, to, want string }{
		{"a.cue", "b.cue", "b.cue"},
		{"a.cue", "./b.cue", "b.cue"},
		{"ci/a.cue", "../lib/b.cue", "lib/b.cue"},
		{"ci/a.cue", "shared/b.cue", "ci/shared/b.cue"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeImport(tt.from, tt.to), tt.from+" "+tt.to)
	}
}
