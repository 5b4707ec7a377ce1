package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cameron5906/workpipe/internal/ast"
)

func TestParseType(t *testing.T) {
	sp := ast.Span{Start: 4, End: 9}
	prim := func(n string) ast.TypeExpr { return &ast.PrimitiveType{Name: n, Span: sp} }
	lit := func(k ast.LiteralKind, v string) ast.TypeExpr {
		return &ast.LiteralType{Literal: ast.Literal{Kind: k, Value: v}, Span: sp}
	}

	tests := []struct {
		in   string
		want ast.TypeExpr
	}{
		{"string", prim("string")},
		{" path ", prim("path")},
		{"Report", &ast.NamedType{Name: "Report", Span: sp}},
		{"[]int", &ast.ArrayType{Elem: prim("int"), Span: sp}},
		{"[][]bool", &ast.ArrayType{Elem: &ast.ArrayType{Elem: prim("bool"), Span: sp}, Span: sp}},
		{`"ok"`, lit(ast.LitString, "ok")},
		{`'ok'`, lit(ast.LitString, "ok")},
		{"42", lit(ast.LitInt, "42")},
		{"-1.5", lit(ast.LitFloat, "-1.5")},
		{"true", lit(ast.LitBool, "true")},
		{`"pass" | "fail"`, &ast.UnionType{Members: []ast.TypeExpr{lit(ast.LitString, "pass"), lit(ast.LitString, "fail")}, Span: sp}},
		{`"a|b" | int`, &ast.UnionType{Members: []ast.TypeExpr{lit(ast.LitString, "a|b"), prim("int")}, Span: sp}},
		{"[](int | string)", &ast.ArrayType{Elem: &ast.UnionType{Members: []ast.TypeExpr{prim("int"), prim("string")}, Span: sp}, Span: sp}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseType(tt.in, sp)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTypeErrors(t *testing.T) {
	for _, in := range []string{"", "[]", "int |", "(int", "int)", `"open`, "a-b", "1x"} {
		t.Run(in, func(t *testing.T) {
			_, err := parseType(in, ast.Span{})
			assert.Error(t, err)
		})
	}
}

func TestScanComparisons(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string // op of each comparison found
	}{
		{"ref and int", "needs.a.outputs.n >= 2", []string{">="}},
		{"literal first", "'x' != needs.a.outputs.s", []string{"!="}},
		{"two refs", "needs.a.outputs.n == needs.b.outputs.m", []string{"=="}},
		{"conjunction", "needs.a.outputs.n < 3 && needs.a.outputs.s == 'ok'", []string{"<", "=="}},
		{"no ref side", "github.event_name == 'push'", nil},
		{"literals only", "1 == 1", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := []byte(tt.src)
			var ops []string
			for _, c := range scanComparisons(src, ast.Span{Start: 0, End: len(src)}) {
				ops = append(ops, c.Op)
			}
			assert.Equal(t, tt.want, ops)
		})
	}
}

func TestScanRefsOffsets(t *testing.T) {
	src := []byte(`xx "${{ needs.build.outputs.v }} ${{ needs.test.outputs.ok }}"`)
	refs := scanRefs(src, ast.Span{Start: 3, End: len(src)})
	require.Len(t, refs, 2)
	assert.Equal(t, "build", refs[0].Unit)
	assert.Equal(t, "needs.build.outputs.v", string(src[refs[0].Span.Start:refs[0].Span.End]))
	assert.Equal(t, "needs.test.outputs.ok", string(src[refs[1].Span.Start:refs[1].Span.End]))

	assert.Nil(t, scanRefs(src, ast.Span{Start: 5, End: 1000}))
}
