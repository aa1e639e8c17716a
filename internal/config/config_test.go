package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesNamedValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 2, cfg.Pipeline.MaxFixedPointRounds)
	assert.Equal(t, StructureBeforeRename, cfg.Pipeline.PassOrder)
	assert.Equal(t, 64, cfg.Opaque.ComplexityBound)
	assert.Equal(t, 30*time.Second, cfg.Stringdecoder.TraceBudget.Duration)
}

func TestLoad_EmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverlaysFileOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.toml")
	contents := `
[pipeline]
pass_order = "rename-before-structure"

[opaque]
complexity_bound = 128
confidence_threshold = 0.9
query_budget = "500ms"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, RenameBeforeStructure, cfg.Pipeline.PassOrder)
	assert.Equal(t, 128, cfg.Opaque.ComplexityBound)
	assert.Equal(t, 0.9, cfg.Opaque.ConfidenceThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.Opaque.QueryBudget.Duration)

	// Fields the file didn't mention keep their compiled-in defaults.
	assert.Equal(t, 2, cfg.Pipeline.MaxFixedPointRounds)
	assert.Equal(t, 200, cfg.Deflatten.ComplexityBound)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/pipeline.toml")
	assert.Error(t, err)
}
