// Package manifest parses the service manifest: the declarative description
// of what gets deployed — environment variables (plain and secret-backed),
// platform services to enable, and resource limit overrides.
// Parsing is pure; secret references are resolved later by the shell.
package manifest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/artpar/shipway/internal/core/release"
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrEmptyInput      = errors.New("manifest is empty")
	ErrInvalidManifest = errors.New("invalid manifest")
)

// =============================================================================
// Manifest Types
// =============================================================================

// EnvVar is one environment variable injected into the running service.
// Exactly one of Value or SecretRef is set: SecretRef points at a secret
// provider (env://NAME or file:///path), never an inline literal.
type EnvVar struct {
	Value     string `yaml:"value,omitempty"`
	SecretRef string `yaml:"secret,omitempty"`
}

// Limits mirrors release.ResourceLimits with optional fields, so the
// manifest only overrides what it declares.
type Limits struct {
	Memory       string `yaml:"memory,omitempty"`
	CPU          int    `yaml:"cpu,omitempty"`
	Concurrency  int    `yaml:"concurrency,omitempty"`
	Timeout      string `yaml:"timeout,omitempty"`
	MaxInstances int    `yaml:"max_instances,omitempty"`
}

// Manifest is the parsed service manifest.
type Manifest struct {
	Env      map[string]EnvVar `yaml:"env,omitempty"`
	Services []string          `yaml:"services,omitempty"` // platform APIs to enable
	Limits   Limits            `yaml:"limits,omitempty"`
}

// =============================================================================
// Parsing
// =============================================================================

// Parse parses manifest YAML and validates it.
func Parse(content string) (*Manifest, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyInput
	}

	var m Manifest
	if err := yaml.Unmarshal([]byte(content), &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	if err := validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func validate(m *Manifest) error {
	for name, v := range m.Env {
		if name == "" {
			return fmt.Errorf("%w: env var with empty name", ErrInvalidManifest)
		}
		if v.Value != "" && v.SecretRef != "" {
			return fmt.Errorf("%w: env var %s declares both value and secret", ErrInvalidManifest, name)
		}
		if v.Value == "" && v.SecretRef == "" {
			return fmt.Errorf("%w: env var %s declares neither value nor secret", ErrInvalidManifest, name)
		}
	}
	for _, s := range m.Services {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: empty service name in services list", ErrInvalidManifest)
		}
	}
	if m.Limits.Timeout != "" {
		if _, err := time.ParseDuration(m.Limits.Timeout); err != nil {
			return fmt.Errorf("%w: bad limits.timeout %q: %v", ErrInvalidManifest, m.Limits.Timeout, err)
		}
	}
	return nil
}

// =============================================================================
// Merging
// =============================================================================

// ApplyLimits overlays the manifest's declared limits on top of base.
func (m *Manifest) ApplyLimits(base release.ResourceLimits) release.ResourceLimits {
	out := base
	if m.Limits.Memory != "" {
		out.Memory = m.Limits.Memory
	}
	if m.Limits.CPU > 0 {
		out.CPU = m.Limits.CPU
	}
	if m.Limits.Concurrency > 0 {
		out.Concurrency = m.Limits.Concurrency
	}
	if m.Limits.Timeout != "" {
		// Validated in Parse.
		d, _ := time.ParseDuration(m.Limits.Timeout)
		out.Timeout = d
	}
	if m.Limits.MaxInstances > 0 {
		out.MaxInstances = m.Limits.MaxInstances
	}
	return out
}
