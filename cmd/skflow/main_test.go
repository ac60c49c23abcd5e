package main

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/YuminosukeSato/skflow/internal/runstore"
)

func TestRun(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "runs.db")
	path := filepath.Join(dir, "skflow.toml")
	assert.NilError(t, os.WriteFile(path, []byte(`
seed = 1
log_level = "error"

[data]
generate = "regression"
n_samples = 40
n_features = 2

[cv]
folds = 3

[model]
kind = "linear_regression"
`), 0o600))
	t.Setenv("SKFLOW_STORE_PATH", store)

	assert.NilError(t, run([]string{path}))

	s, err := runstore.Open(store)
	assert.NilError(t, err)
	defer s.Close()
	ids, err := s.List()
	assert.NilError(t, err)
	assert.Equal(t, len(ids), 1)
}

func TestRun_ConfigFromEnv(t *testing.T) {
	t.Setenv("SKFLOW_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, run(nil), "missing.toml")
}
