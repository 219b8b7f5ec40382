package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crossflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
format: sarif
scan:
  project_root: ./webapp
  entry_points:
    - routes.py:get_user
  budget:
    max_depth: 5
    max_modules: 100
`), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "sarif", cfg.Format)
	assert.Equal(t, "./webapp", cfg.Scan.ProjectRoot)
	assert.Equal(t, []string{"routes.py:get_user"}, cfg.Scan.EntryPoints)
	assert.Equal(t, 5, cfg.Scan.Budget.MaxDepth)
	assert.Equal(t, 100, cfg.Scan.Budget.MaxModules)
}

func TestLoadConfigMissingOrEmpty(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Zero(t, *cfg)

	_, err = loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
