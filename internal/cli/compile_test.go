package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestCompile_WritesYAML(t *testing.T) {
	out := t.TempDir()

	stdout, err := execute(t, "compile", "testdata/project", "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ Compiled 2 workflow(s)")
	assert.Contains(t, stdout, "review.cue →")

	data, err := os.ReadFile(filepath.Join(out, "review.yml"))
	require.NoError(t, err)

	var doc struct {
		Name string                 `yaml:"name"`
		Jobs map[string]interface{} `yaml:"jobs"`
	}
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, "review", doc.Name)
	for _, job := range []string{"refine_hydrate", "refine_body_critique", "refine_body_revise", "refine_decide", "refine_dispatch"} {
		assert.Contains(t, doc.Jobs, job)
	}

	_, err = os.Stat(filepath.Join(out, "poll.yml"))
	assert.NoError(t, err)
}

func TestCompile_JSON(t *testing.T) {
	out := t.TempDir()

	stdout, err := execute(t, "compile", "testdata/project", "-o", out, "--emit", "json", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Files, 2)
	assert.Equal(t, "poll.cue", resp.Data.Files[0].Source)
	assert.Equal(t, filepath.Join(out, "poll.json"), resp.Data.Files[0].Output)
	assert.Equal(t, 1, resp.Data.Files[1].Cycles)
	assert.NotEmpty(t, resp.Data.Files[1].Digest)

	data, err := os.ReadFile(filepath.Join(out, "review.json"))
	require.NoError(t, err)
	var w map[string]any
	require.NoError(t, json.Unmarshal(data, &w))
	assert.Equal(t, "review", w["name"])
}

func TestCompile_DefaultOutputDirFromConfig(t *testing.T) {
	dir := copyDir(t, "testdata/project")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "workpipe.yaml"), []byte("output_dir: gen\nnamespace: ci\n"), 0o644))

	_, err := execute(t, "compile", dir)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "gen", "review.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "ci-refine-iter-")
}

func TestCompile_ErrorsWriteNothing(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")

	stdout, err := execute(t, "compile", "testdata/broken", "-o", out)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "loop.cue:4:")
	assert.Contains(t, stdout, "E304")
	assert.Contains(t, stdout, "✗ Compilation failed with 1 error(s)")

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCompile_MissingDir(t *testing.T) {
	_, err := execute(t, "compile", "testdata/absent")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCompile_InvalidEmit(t *testing.T) {
	_, err := execute(t, "compile", "testdata/project", "--emit", "toml", "-o", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
