package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedTemplatesPresent(t *testing.T) {
	loader, err := NewLoader("")
	require.NoError(t, err)

	for _, name := range []string{Solver, Evaluator, ScriptWriter, SceneGenerator, SceneQA, SolveRetry, SceneRequest, SceneQARequest} {
		content, err := loader.Get(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, content, name)
	}
}

func TestRenderSubstitutesVariables(t *testing.T) {
	loader, err := NewLoader("")
	require.NoError(t, err)

	out, err := loader.Render(SolveRetry, map[string]string{
		"Query":            "Prove that sqrt(2) is irrational.",
		"PreviousSolution": "attempt one",
		"Evaluation":       "OVERALL ASSESSMENT: incorrect",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Prove that sqrt(2) is irrational.")
	assert.Contains(t, out, "attempt one")
	assert.NotContains(t, out, "{{Query}}")
}

func TestOverrideDirectoryWins(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "solver.md"), []byte("custom solver for {{Topic}}"), 0o644))

	loader, err := NewLoader(dir)
	require.NoError(t, err)

	out, err := loader.Render(Solver, map[string]string{"Topic": "limits"})
	require.NoError(t, err)
	assert.Equal(t, "custom solver for limits", out)

	evaluator, err := loader.Get(Evaluator)
	require.NoError(t, err)
	assert.Contains(t, evaluator, "OVERALL ASSESSMENT")
}

func TestUnknownTemplate(t *testing.T) {
	loader, err := NewLoader("")
	require.NoError(t, err)
	_, err = loader.Get("nope")
	require.Error(t, err)
}
