package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTest_GoldenAndAssertions(t *testing.T) {
	stdout, err := execute(t, "test", "testdata/project", "testdata/scenarios", "--filter", "converges")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ converges")
	assert.Contains(t, stdout, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTest_FailingScenario(t *testing.T) {
	stdout, err := execute(t, "test", "testdata/project", "testdata/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✓ converges")
	assert.Contains(t, stdout, "✗ stalls")
	assert.Contains(t, stdout, "Expected: 1 iterations for key pr-2")
	assert.Contains(t, stdout, "Test Summary: 1 passed, 1 failed, 2 total")
}

func TestTest_JSON(t *testing.T) {
	stdout, err := execute(t, "test", "testdata/project", "testdata/scenarios", "--format", "json")
	require.Error(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	require.Len(t, resp.Data.Scenarios, 2)
	assert.Equal(t, "converges", resp.Data.Scenarios[0].Name)
	assert.False(t, resp.Data.Scenarios[1].Pass)
}

func TestTest_GoldenMismatch(t *testing.T) {
	scenarios := t.TempDir()
	data, err := os.ReadFile("testdata/scenarios/converges.yaml")
	require.NoError(t, err)
	project, err := filepath.Abs("testdata/project/review.cue")
	require.NoError(t, err)
	data = []byte(strings.Replace(string(data), "../project/review.cue", project, 1))
	require.NoError(t, os.WriteFile(filepath.Join(scenarios, "converges.yaml"), data, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(scenarios, "golden"), 0o755))
	golden := filepath.Join(scenarios, "golden", "converges.golden")
	require.NoError(t, os.WriteFile(golden, []byte("# scenario: converges\n"), 0o644))

	stdout, err := execute(t, "test", "testdata/project", scenarios)
	require.Error(t, err)
	assert.Contains(t, stdout, "trace does not match golden file")

	_, err = execute(t, "test", "testdata/project", scenarios, "--update")
	require.NoError(t, err)
	want, err := os.ReadFile("testdata/scenarios/golden/converges.golden")
	require.NoError(t, err)
	got, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	_, err = execute(t, "test", "testdata/project", scenarios)
	require.NoError(t, err)
}

func TestTest_MissingScenarios(t *testing.T) {
	_, err := execute(t, "test", "testdata/project", "testdata/absent")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFilterScenarios(t *testing.T) {
	files := []string{"s/a_one.yaml", "s/a_two.yml", "s/b.yaml"}

	got, err := filterScenarios(files, "a_*")
	require.NoError(t, err)
	assert.Equal(t, []string{"s/a_one.yaml", "s/a_two.yml"}, got)

	got, err = filterScenarios(files, "")
	require.NoError(t, err)
	assert.Equal(t, files, got)

	_, err = filterScenarios(files, "[")
	assert.Error(t, err)
}
