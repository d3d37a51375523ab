package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv removes SHIPWAY_* variables so tests see only their own overrides.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "SHIPWAY_") {
			name, _, _ := strings.Cut(kv, "=")
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
}

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "us-central1", cfg.Target.Region)
	assert.True(t, cfg.Target.AllowUnauthenticated)
	assert.Equal(t, ".", cfg.Build.SourceDir)
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.StepTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Pipeline.BuildTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.DeployTimeout)
	assert.Equal(t, 5, cfg.Pipeline.LookupAttempts)
	assert.Equal(t, 3*time.Second, cfg.Pipeline.LookupDelay)
	assert.Equal(t, "/_stcore/health", cfg.Probe.Path)
	assert.Equal(t, 10*time.Second, cfg.Probe.Interval)
	assert.Equal(t, 3*time.Second, cfg.Probe.Timeout)
	assert.Equal(t, 3, cfg.Probe.Retries)
	assert.Equal(t, "./data/shipway.db", cfg.Database.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
target:
  project: "p1"
  service: "svc"
  region: "europe-west1"
  image_repo: "gcr.io/p1/svc"

build:
  source_dir: "./web"

pipeline:
  step_timeout: 30s
  lookup_attempts: 10

probe:
  retries: 5

database:
  dsn: "/tmp/test-journal.db"

log:
  level: "debug"
  format: "json"
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "p1", cfg.Target.Project)
	assert.Equal(t, "svc", cfg.Target.Service)
	assert.Equal(t, "europe-west1", cfg.Target.Region)
	assert.Equal(t, "gcr.io/p1/svc", cfg.Target.ImageRepo)
	assert.Equal(t, "./web", cfg.Build.SourceDir)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.StepTimeout)
	assert.Equal(t, 10, cfg.Pipeline.LookupAttempts)
	assert.Equal(t, 5, cfg.Probe.Retries)
	assert.Equal(t, "/tmp/test-journal.db", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// Unset values keep their defaults.
	assert.Equal(t, 15*time.Minute, cfg.Pipeline.BuildTimeout)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("SHIPWAY_TARGET_PROJECT", "env-project")
	t.Setenv("SHIPWAY_TARGET_REGION", "asia-east1")
	t.Setenv("SHIPWAY_LOG_LEVEL", "error")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "env-project", cfg.Target.Project)
	assert.Equal(t, "asia-east1", cfg.Target.Region)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "us-central1", cfg.Target.Region)
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("target: [broken"), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}
