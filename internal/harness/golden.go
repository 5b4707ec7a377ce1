package harness

import (
	"context"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/cameron5906/workpipe/internal/ir"
)

// FormatTrace renders a trace one event per line:
//
//	<invocation> <kind> <canonical JSON detail>
//
// Seq numbers and digests are left out; line order already is seq order.
func FormatTrace(name string, trace []TraceEvent) []byte {
	var b strings.Builder
	b.WriteString("# scenario: ")
	b.WriteString(name)
	b.WriteByte('\n')
	for _, ev := range trace {
		b.WriteString(ev.Invocation)
		b.WriteByte(' ')
		b.WriteString(ev.Kind)
		b.WriteByte(' ')
		b.WriteString(renderDetail(ev.Detail))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func renderDetail(d ir.Object) string {
	if d == nil {
		d = ir.Object{}
	}
	data, err := ir.MarshalCanonical(d)
	if err != nil {
		return "!" + err.Error()
	}
	return string(data)
}

// RunWithGolden executes a scenario, fails the test on any assertion
// error and compares the trace against testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's trace against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, FormatTrace(scenarioName, result.Trace))
	return nil
}
