package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cameron5906/workpipe/internal/ir"
)

// TestGoldenScenarios replays every scenario under testdata/scenarios and
// compares its trace byte for byte.
func TestGoldenScenarios(t *testing.T) {
	files, err := FindScenarios(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, path := range files {
		s, err := LoadScenario(path)
		require.NoError(t, err)
		t.Run(s.Name, func(t *testing.T) {
			require.NoError(t, RunWithGolden(t, s))
		})
	}
}

func TestFormatTrace(t *testing.T) {
	trace := []TraceEvent{
		{Invocation: "run-1", Kind: "started", Detail: ir.Object{"iteration": ir.Int(0)}},
		{Invocation: "run-1", Kind: "done"},
	}
	got := string(FormatTrace("demo", trace))
	assert.Equal(t, "# scenario: demo\nrun-1 started {\"iteration\":0}\nrun-1 done {}\n", got)
}
