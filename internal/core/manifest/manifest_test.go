package manifest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/shipway/internal/core/release"
)

const sampleManifest = `
env:
  APP_MODE:
    value: production
  TELEGRAM_BOT_TOKEN:
    secret: env://TELEGRAM_BOT_TOKEN
  API_KEY:
    secret: file:///var/run/secrets/api_key

services:
  - cloudbuild.googleapis.com
  - run.googleapis.com

limits:
  memory: 1Gi
  concurrency: 40
  timeout: 120s
`

func TestParse_Valid(t *testing.T) {
	m, err := Parse(sampleManifest)
	require.NoError(t, err)

	assert.Len(t, m.Env, 3)
	assert.Equal(t, "production", m.Env["APP_MODE"].Value)
	assert.Equal(t, "env://TELEGRAM_BOT_TOKEN", m.Env["TELEGRAM_BOT_TOKEN"].SecretRef)
	assert.Equal(t, []string{"cloudbuild.googleapis.com", "run.googleapis.com"}, m.Services)
	assert.Equal(t, "1Gi", m.Limits.Memory)
	assert.Equal(t, 40, m.Limits.Concurrency)
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse("   \n")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestParse_BadYAML(t *testing.T) {
	_, err := Parse("env: [unclosed")
	assert.ErrorIs(t, err, ErrInvalidManifest)
}

func TestParse_EnvVarBothValueAndSecret(t *testing.T) {
	_, err := Parse(`
env:
  KEY:
    value: x
    secret: env://KEY
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both value and secret")
}

func TestParse_EnvVarNeitherValueNorSecret(t *testing.T) {
	_, err := Parse(`
env:
  KEY: {}
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither value nor secret")
}

func TestParse_BadTimeout(t *testing.T) {
	_, err := Parse(`
limits:
  timeout: soon
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limits.timeout")
}

func TestApplyLimits(t *testing.T) {
	m, err := Parse(sampleManifest)
	require.NoError(t, err)

	base := release.DefaultResourceLimits()
	out := m.ApplyLimits(base)

	// Overridden by the manifest.
	assert.Equal(t, "1Gi", out.Memory)
	assert.Equal(t, 40, out.Concurrency)
	assert.Equal(t, 120*time.Second, out.Timeout)

	// Left at defaults.
	assert.Equal(t, base.CPU, out.CPU)
	assert.Equal(t, base.MaxInstances, out.MaxInstances)
}

func TestApplyLimits_NoOverrides(t *testing.T) {
	m, err := Parse(`services: [run.googleapis.com]`)
	require.NoError(t, err)

	base := release.DefaultResourceLimits()
	assert.Equal(t, base, m.ApplyLimits(base))
}
