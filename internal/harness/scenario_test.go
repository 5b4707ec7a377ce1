package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadScenario_ResolvesWorkflow(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "refine_converges.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "refine_converges", s.Name)
	assert.Equal(t, filepath.Join("testdata", "workflows", "review.cue"), s.Workflow)
	assert.Equal(t, []string{"pr-7"}, s.Keys)
	require.Len(t, s.Script, 2)
	assert.Equal(t, "9", s.Script[1].Outputs["critique"]["score"])
	require.NotNil(t, s.Script[1].Predicate)
	assert.True(t, *s.Script[1].Predicate)
	assert.Equal(t, map[string]string{"critique.score": "9", "revise.draft": "v2"}, s.Assertions[3].Expect)
}

func TestLoadScenario_MissingWorkflow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	writeFile(t, path, `name: s
workflow: missing.cue
cycle: c
keys: [k]
assertions:
  - type: trace_count
    kind: done
    count: 0
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workflow file not found")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	const head = "name: s\nworkflow: w.cue\ncycle: c\nkeys: [k]\n"

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", head + "flow: []\nassertions: [{type: failure, code: X}]\n", "field flow not found"},
		{"no name", "workflow: w.cue\ncycle: c\nkeys: [k]\nassertions: [{type: failure, code: X}]\n", "name is required"},
		{"no cycle", "name: s\nworkflow: w.cue\nkeys: [k]\nassertions: [{type: failure, code: X}]\n", "cycle is required"},
		{"no keys", "name: s\nworkflow: w.cue\ncycle: c\nassertions: [{type: failure, code: X}]\n", "keys list is required"},
		{"empty key", "name: s\nworkflow: w.cue\ncycle: c\nkeys: [\"\"]\nassertions: [{type: failure, code: X}]\n", "keys[0]"},
		{"no assertions", head, "assertions list is required"},
		{"negative max_steps", head + "max_steps: -1\nassertions: [{type: failure, code: X}]\n", "max_steps"},
		{"negative iteration", head + "script: [{iteration: -1}]\nassertions: [{type: failure, code: X}]\n", "script[0]"},
		{"unknown type", head + "assertions: [{type: trace_contains}]\n", "unknown assertion type"},
		{"decision without key", head + "assertions: [{type: decision, decision: {done: true}}]\n", "key is required for decision"},
		{"unknown decision field", head + "assertions: [{type: decision, key: k, decision: {finished: true}}]\n", "unknown decision field"},
		{"final_state without expect", head + "assertions: [{type: final_state, key: k}]\n", "expect is required"},
		{"trace_order without kinds", head + "assertions: [{type: trace_order}]\n", "kinds list is required"},
		{"failure without code", head + "assertions: [{type: failure}]\n", "code is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFindScenarios(t *testing.T) {
	files, err := FindScenarios(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata", "scenarios", "poll_quota.yaml"),
		filepath.Join("testdata", "scenarios", "refine_converges.yaml"),
		filepath.Join("testdata", "scenarios", "refine_rail.yaml"),
	}, files)

	single := filepath.Join("testdata", "scenarios", "refine_rail.yaml")
	files, err = FindScenarios(single)
	require.NoError(t, err)
	assert.Equal(t, []string{single}, files)

	_, err = FindScenarios(filepath.Join("testdata", "absent"))
	var nf *ScenarioNotFoundError
	require.ErrorAs(t, err, &nf)
}
