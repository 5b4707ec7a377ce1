package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cameron5906/workpipe/internal/ast"
)

func TestImports_TwoFileCycle(t *testing.T) {
	im := NewImports()
	im.AddImport("b.cue", "a.cue", ast.Span{Start: 3, End: 20})
	im.AddImport("a.cue", "b.cue", ast.Span{Start: 5, End: 22})

	cycles := im.Cycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, "a.cue", cycles[0].File)
	assert.Equal(t, ast.Span{Start: 5, End: 22}, cycles[0].Span)
	assert.Equal(t, []string{"a.cue", "b.cue", "a.cue"}, cycles[0].Path)
	assert.Equal(t, "a.cue → b.cue → a.cue", cycles[0].String())
	assert.True(t, im.InCycle("a.cue", "b.cue"))
	assert.True(t, im.InCycle("b.cue", "a.cue"))
}

func TestImports_EdgeLeavingCycleStillContributes(t *testing.T) {
	im := NewImports()
	im.AddImport("a.cue", "b.cue", ast.Span{})
	im.AddImport("b.cue", "a.cue", ast.Span{})
	im.AddImport("b.cue", "types.cue", ast.Span{})
	im.AddImport("app.cue", "a.cue", ast.Span{})

	require.Len(t, im.Cycles(), 1)
	assert.False(t, im.InCycle("b.cue", "types.cue"))
	assert.False(t, im.InCycle("app.cue", "a.cue"))
	assert.False(t, im.InCycle("a.cue", "types.cue"), "no such edge")
}

func TestImports_SelfImport(t *testing.T) {
	im := NewImports()
	im.AddImport("a.cue", "a.cue", ast.Span{Start: 1, End: 2})
	cycles := im.Cycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a.cue", "a.cue"}, cycles[0].Path)
}

func TestImports_ThreeFileCycleInImportOrder(t *testing.T) {
	im := NewImports()
	im.AddImport("c.cue", "a.cue", ast.Span{})
	im.AddImport("a.cue", "b.cue", ast.Span{})
	im.AddImport("b.cue", "c.cue", ast.Span{})

	cycles := im.Cycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a.cue", "b.cue", "c.cue", "a.cue"}, cycles[0].Path)
	assert.Equal(t, []string{"a.cue", "b.cue", "c.cue"}, cycles[0].Members)
}

func TestImports_Acyclic(t *testing.T) {
	im := NewImports()
	im.AddFile("solo.cue")
	im.AddImport("app.cue", "lib.cue", ast.Span{})
	assert.Empty(t, im.Cycles())
	assert.Equal(t, [][]string{{"lib.cue", "solo.cue"}, {"app.cue"}}, im.Levels())
}
