package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cameron5906/workpipe/internal/engine"
	"github.com/cameron5906/workpipe/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s %s\n", i+1, ev.Invocation, ev.Kind, renderDetail(ev.Detail))
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %s", i, err.Error()))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertIterations:
		return assertIterations(result, a)
	case AssertDecision:
		return assertDecision(result, a)
	case AssertArtifactChain:
		return assertArtifactChain(result, a)
	case AssertFinalState:
		return assertFinalState(result, a)
	case AssertTraceOrder:
		return assertTraceOrder(result, a)
	case AssertTraceCount:
		return assertTraceCount(result, a)
	case AssertFailure:
		return assertFailure(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertIterations counts the decisions made for a key.
func assertIterations(result *Result, a Assertion) error {
	got := len(result.Events(engine.EventDecide, a.Key))
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertIterations,
		Expected: fmt.Sprintf("%d iterations for key %s", a.Count, a.Key),
		Actual:   fmt.Sprintf("%d iterations", got),
		Trace:    result.Trace,
	}
}

// assertDecision checks fields of one iteration's decision (subset match).
func assertDecision(result *Result, a Assertion) error {
	for _, ev := range result.Events(engine.EventDecide, a.Key) {
		if ev.Detail["iteration"] != ir.Int(a.Iteration) {
			continue
		}
		var diffs []string
		for _, field := range sortedKeys(a.Decision) {
			want := a.Decision[field]
			if got, _ := ev.Detail[field].(ir.Bool); bool(got) != want {
				diffs = append(diffs, fmt.Sprintf("%s=%t", field, bool(got)))
			}
		}
		if len(diffs) == 0 {
			return nil
		}
		return &AssertionError{
			Type:     AssertDecision,
			Expected: fmt.Sprintf("iteration %d of key %s decided %v", a.Iteration, a.Key, a.Decision),
			Actual:   strings.Join(diffs, ", "),
			Trace:    result.Trace,
		}
	}
	return &AssertionError{
		Type:     AssertDecision,
		Expected: fmt.Sprintf("a decision for iteration %d of key %s", a.Iteration, a.Key),
		Actual:   "iteration never decided",
		Trace:    result.Trace,
	}
}

// assertArtifactChain compares the artifact names of a key, in order.
func assertArtifactChain(result *Result, a Assertion) error {
	var got []string
	for _, ev := range result.Events(engine.EventArtifact, a.Key) {
		got = append(got, detailString(ev.Detail, "name"))
	}
	if slices.Equal(got, a.Names) {
		return nil
	}
	return &AssertionError{
		Type:     AssertArtifactChain,
		Expected: fmt.Sprintf("[%s]", strings.Join(a.Names, ", ")),
		Actual:   fmt.Sprintf("[%s]", strings.Join(got, ", ")),
		Trace:    result.Trace,
	}
}

// assertFinalState checks captured outputs in the last artifact of a key
// (subset match).
func assertFinalState(result *Result, a Assertion) error {
	final, ok := result.Final[a.Key]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("an artifact for key %s", a.Key),
			Actual:   "no artifact written",
			Trace:    result.Trace,
		}
	}
	var diffs []string
	for _, field := range sortedKeys(a.Expect) {
		got, present := final[field]
		if !present {
			diffs = append(diffs, fmt.Sprintf("%s missing", field))
			continue
		}
		if got != a.Expect[field] {
			diffs = append(diffs, fmt.Sprintf("%s=%q", field, got))
		}
	}
	if len(diffs) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: fmt.Sprintf("%v", a.Expect),
		Actual:   strings.Join(diffs, ", "),
		Trace:    result.Trace,
	}
}

// assertTraceOrder checks that kinds appear in order. Intervening events
// are allowed.
func assertTraceOrder(result *Result, a Assertion) error {
	next := 0
	for _, ev := range result.Trace {
		if next == len(a.Kinds) {
			break
		}
		if a.Key != "" && ev.Key != a.Key {
			continue
		}
		if ev.Kind == a.Kinds[next] {
			next++
		}
	}
	if next == len(a.Kinds) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: strings.Join(a.Kinds, " → "),
		Actual:   fmt.Sprintf("%q not found after %s", a.Kinds[next], strings.Join(a.Kinds[:next], " → ")),
		Trace:    result.Trace,
	}
}

// assertTraceCount counts events of one kind.
func assertTraceCount(result *Result, a Assertion) error {
	got := len(result.Events(a.Kind, a.Key))
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d %s events", a.Count, a.Kind),
		Actual:   fmt.Sprintf("%d", got),
		Trace:    result.Trace,
	}
}

// assertFailure checks that an invocation failed with the given code.
func assertFailure(result *Result, a Assertion) error {
	var codes []string
	for _, ev := range result.Events(engine.EventFailed, a.Key) {
		code := detailString(ev.Detail, "code")
		if code == a.Code {
			return nil
		}
		codes = append(codes, code)
	}
	return &AssertionError{
		Type:     AssertFailure,
		Expected: fmt.Sprintf("a failure with code %s", a.Code),
		Actual:   fmt.Sprintf("failures %v", codes),
		Trace:    result.Trace,
	}
}
