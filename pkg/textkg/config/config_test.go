package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/randalmurphal/textkg/pkg/textkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTypedAccessors verifies typed extraction with defaults.
func TestTypedAccessors(t *testing.T) {
	cfg := config.New(map[string]any{
		"model":       "gpt-4o",
		"workers":     8,
		"temperature": 0.3,
		"force_json":  true,
		"timeout":     "45s",
	})

	assert.Equal(t, "gpt-4o", cfg.String("model", "default"))
	assert.Equal(t, "default", cfg.String("missing", "default"))
	assert.Equal(t, 8, cfg.Int("workers", 4))
	assert.Equal(t, 4, cfg.Int("missing", 4))
	assert.InDelta(t, 0.3, cfg.Float("temperature", 0.1), 1e-9)
	assert.True(t, cfg.Bool("force_json", false))
	assert.Equal(t, 45*time.Second, cfg.Duration("timeout", time.Second))
	assert.True(t, cfg.Has("model"))
	assert.False(t, cfg.Has("missing"))
}

// TestAccessorTypeMismatch verifies mismatched types fall back to defaults.
func TestAccessorTypeMismatch(t *testing.T) {
	cfg := config.New(map[string]any{
		"workers": "eight",
		"model":   42,
		"ratio":   "half",
	})

	assert.Equal(t, 4, cfg.Int("workers", 4))
	assert.Equal(t, "fallback", cfg.String("model", "fallback"))
	assert.InDelta(t, 0.5, cfg.Float("ratio", 0.5), 1e-9)
}

// TestIntFromFloat verifies float-to-int conversion rules.
func TestIntFromFloat(t *testing.T) {
	cfg := config.New(map[string]any{"whole": 8.0, "frac": 8.5})
	assert.Equal(t, 8, cfg.Int("whole", 1))
	assert.Equal(t, 1, cfg.Int("frac", 1))
}

// TestDurationFromNumber verifies numeric durations read as seconds.
func TestDurationFromNumber(t *testing.T) {
	cfg := config.New(map[string]any{"a": 30, "b": 1.5})
	assert.Equal(t, 30*time.Second, cfg.Duration("a", time.Second))
	assert.Equal(t, 1500*time.Millisecond, cfg.Duration("b", time.Second))
}

// TestFromYAML verifies YAML loading.
func TestFromYAML(t *testing.T) {
	cfg, err := config.FromYAML([]byte("model: gpt-4o-mini\nworkers: 6\n"))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.String("model", ""))
	assert.Equal(t, 6, cfg.Int("workers", 0))

	_, err = config.FromYAML([]byte("{invalid"))
	assert.Error(t, err)
}

// TestFromJSON verifies JSON loading.
func TestFromJSON(t *testing.T) {
	cfg, err := config.FromJSON([]byte(`{"model": "gpt-4o", "chunk_size": 2000}`))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.String("model", ""))
	assert.Equal(t, 2000, cfg.Int("chunk_size", 0))

	_, err = config.FromJSON([]byte("not json"))
	assert.Error(t, err)
}

// TestFromFile verifies extension detection.
func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("workers: 2\n"), 0o644))
	cfg, err := config.FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Int("workers", 0))

	jsonPath := filepath.Join(dir, "cfg.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"workers": 3}`), 0o644))
	cfg, err = config.FromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Int("workers", 0))

	txtPath := filepath.Join(dir, "cfg.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("x"), 0o644))
	_, err = config.FromFile(txtPath)
	assert.Error(t, err)

	_, err = config.FromFile(filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)
}
