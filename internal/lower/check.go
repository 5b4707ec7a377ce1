package lower

import (
	"fmt"
	"strings"

	"github.com/cameron5906/workpipe/internal/ast"
	"github.com/cameron5906/workpipe/internal/diag"
)

// Check returns the structural findings that stop cy from being lowered:
// no termination guarantee (E304), a nested cycle (E305), an empty body
// (E306) and a negative cap (E307). An empty result means cy may be
// lowered.
func Check(cy *ast.Cycle) []diag.Diagnostic {
	var out []diag.Diagnostic
	add := func(code string, span ast.Span, hint, format string, args ...any) {
		out = append(out, diag.Diagnostic{
			Code:     code,
			Severity: diag.SeverityError,
			Message:  fmt.Sprintf(format, args...),
			Span:     span,
			Hint:     hint,
		})
	}

	name := cy.Name.Name
	if cy.MaxIters == nil && !HasPredicate(cy) {
		add(diag.ErrNoTermination, cy.Name.Span,
			"add max_iters, until, or both",
			"cycle %q has neither max_iters nor until and may never terminate", name)
	}
	if cy.MaxIters != nil && cy.MaxIters.Value < 0 {
		add(diag.ErrInvalidCap, cy.MaxIters.Span, "",
			"cycle %q has negative max_iters %d", name, cy.MaxIters.Value)
	}
	if len(cy.Body) == 0 {
		add(diag.ErrEmptyCycleBody, cy.Name.Span, "",
			"cycle %q has an empty body", name)
	}
	for _, d := range cy.Body {
		if inner, ok := d.(*ast.Cycle); ok {
			add(diag.ErrNestedCycle, inner.Name.Span,
				"move the inner cycle to the top level and depend on it",
				"cycle %q is nested inside cycle %q; nested cycles are not supported", inner.Name.Name, name)
		}
	}
	return out
}

// HasPredicate reports whether cy has a non-blank until expression. A blank
// one can never make decide report done.
func HasPredicate(cy *ast.Cycle) bool {
	return cy.Until != nil && strings.TrimSpace(cy.Until.Body) != ""
}
