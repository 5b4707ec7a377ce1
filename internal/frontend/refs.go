package frontend

import (
	"regexp"

	"github.com/cameron5906/workpipe/internal/ast"
)

const refPattern = `needs\.([A-Za-z_][A-Za-z0-9_-]*)\.outputs\.([A-Za-z_][A-Za-z0-9_-]*)`

var (
	refRE = regexp.MustCompile(refPattern)

	operand = `(` + refPattern + `|'[^']*'|-?\b\d+(?:\.\d+)?\b|\btrue\b|\bfalse\b)`
	cmpRE   = regexp.MustCompile(operand + `\s*(==|!=|<=|>=|<|>)\s*` + operand)
)

// scanRefs finds every output reference written inside span of src. Spans
// are absolute offsets, so they point at the exact reference text.
func scanRefs(src []byte, span ast.Span) []ast.OutputRef {
	if !validSpan(src, span) {
		return nil
	}
	var refs []ast.OutputRef
	for _, m := range refRE.FindAllSubmatchIndex(src[span.Start:span.End], -1) {
		refs = append(refs, ast.OutputRef{
			Unit:   string(src[span.Start+m[2] : span.Start+m[3]]),
			Output: string(src[span.Start+m[4] : span.Start+m[5]]),
			Span:   ast.Span{Start: span.Start + m[0], End: span.Start + m[1]},
		})
	}
	return refs
}

// scanComparisons finds binary comparisons inside span of src that have
// an output reference on at least one side. Comparisons between literals
// or engine contexts carry no type information and are skipped.
func scanComparisons(src []byte, span ast.Span) []ast.Comparison {
	if !validSpan(src, span) {
		return nil
	}
	text := src[span.Start:span.End]
	var cmps []ast.Comparison
	for _, m := range cmpRE.FindAllSubmatchIndex(text, -1) {
		// Groups: 1 left operand (2,3 its ref parts), 4 op, 5 right operand.
		left := parseOperand(src, span.Start, m[2:8])
		right := parseOperand(src, span.Start, m[10:16])
		if left.Ref == nil && right.Ref == nil {
			continue
		}
		cmps = append(cmps, ast.Comparison{
			Op:    string(text[m[8]:m[9]]),
			Left:  left,
			Right: right,
			Span:  ast.Span{Start: span.Start + m[0], End: span.Start + m[1]},
		})
	}
	return cmps
}

// parseOperand reads one operand from the submatch indexes g: the whole
// operand, then the unit and output groups of a reference.
func parseOperand(src []byte, base int, g []int) ast.Operand {
	if g[2] >= 0 {
		return ast.Operand{Ref: &ast.OutputRef{
			Unit:   string(src[base+g[2] : base+g[3]]),
			Output: string(src[base+g[4] : base+g[5]]),
			Span:   ast.Span{Start: base + g[0], End: base + g[1]},
		}}
	}
	text := string(src[base+g[0] : base+g[1]])
	switch {
	case len(text) >= 2 && text[0] == '\'':
		return ast.Operand{Literal: &ast.Literal{Kind: ast.LitString, Value: text[1 : len(text)-1]}}
	case text == "true" || text == "false":
		return ast.Operand{Literal: &ast.Literal{Kind: ast.LitBool, Value: text}}
	}
	if lit, ok := numberLiteral(text); ok {
		return ast.Operand{Literal: &lit}
	}
	return ast.Operand{}
}

func validSpan(src []byte, s ast.Span) bool {
	return s.Start >= 0 && s.Start <= s.End && s.End <= len(src)
}
