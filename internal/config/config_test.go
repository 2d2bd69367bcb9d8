package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 1, cfg.Workflow.MaxIterations)
	assert.False(t, cfg.Workflow.RequireAccept)
	assert.Equal(t, 5*time.Second, cfg.Poller.Interval)
}

func TestGeneratedDefaultParses(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Temperature("researcher", 1.0))
	assert.Equal(t, 0.7, cfg.Temperature("drafter", 0.0))
	assert.Equal(t, 0.2, cfg.Temperature("critic", 0.0))
	assert.Equal(t, 0.4, cfg.Temperature("humanizer", 0.0))
	assert.Equal(t, 0.6, cfg.Temperature("writer", 0.0))
}

func TestFromYAMLKeepsDefaultsForOmittedFields(t *testing.T) {
	cfg, err := FromYAML([]byte("llm:\n  model: gpt-4o\n"))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 4096, cfg.LLM.MaxTokens)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestFromYAMLRejectsBadValues(t *testing.T) {
	cases := []string{
		"llm:\n  model: \"\"\n",
		"llm:\n  temperatures:\n    critic: 3.5\n",
		"workflow:\n  max_iterations: 0\n",
		"poller:\n  interval: 0s\n",
		"server:\n  port: 70000\n",
	}
	for _, in := range cases {
		_, err := FromYAML([]byte(in))
		assert.Error(t, err, "input: %s", in)
	}
}

func TestFromYAMLInvalidSyntax(t *testing.T) {
	_, err := FromYAML([]byte("llm: [unclosed"))
	assert.Error(t, err)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	content := "workflow:\n  max_iterations: 4\n  require_accept: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bidforge.yml"), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Workflow.MaxIterations)
	assert.True(t, cfg.Workflow.RequireAccept)
}

func TestTemperatureFallback(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 0.7, cfg.Temperature("drafter", 0.7))
	cfg.LLM.Temperatures = map[string]float64{"drafter": 1.1}
	assert.Equal(t, 1.1, cfg.Temperature("drafter", 0.7))
}
