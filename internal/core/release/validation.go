package release

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// Validation Limits
// =============================================================================

const (
	// MaxRequestTimeout is the longest request timeout the platform accepts.
	MaxRequestTimeout = 3600 * time.Second

	// MaxConcurrency is the highest per-instance concurrency the platform accepts.
	MaxConcurrency = 1000
)

// serviceNamePattern matches platform service names: lowercase alphanumeric
// and hyphens, starting with a letter, at most 63 characters.
var serviceNamePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]{0,61}[a-z0-9])?$`)

// memoryPattern matches resource memory declarations like "512Mi" or "2Gi".
var memoryPattern = regexp.MustCompile(`^([0-9]+)(Mi|Gi)$`)

// =============================================================================
// Config Validation
// =============================================================================

// ValidateConfig checks that a release config is acceptable before any
// external call is made. Returns the first problem found.
func ValidateConfig(cfg Config) error {
	if cfg.Project == "" {
		return fmt.Errorf("project is required")
	}
	if !serviceNamePattern.MatchString(cfg.Service) {
		return fmt.Errorf("invalid service name %q: must be lowercase alphanumeric with hyphens, max 63 chars", cfg.Service)
	}
	if cfg.Region == "" {
		return fmt.Errorf("region is required")
	}
	if cfg.ImageRepo == "" {
		return fmt.Errorf("image repository is required")
	}
	if strings.Contains(cfg.ImageRepo, ":") {
		return fmt.Errorf("image repository %q must not contain a tag", cfg.ImageRepo)
	}
	if cfg.VersionTag == "" {
		return fmt.Errorf("version tag is required")
	}
	return validateLimits(cfg.Limits)
}

// validateLimits checks the resource envelope against platform bounds.
func validateLimits(l ResourceLimits) error {
	m := memoryPattern.FindStringSubmatch(l.Memory)
	if m == nil {
		return fmt.Errorf("invalid memory %q: expected <n>Mi or <n>Gi", l.Memory)
	}
	if n, _ := strconv.Atoi(m[1]); n == 0 {
		return fmt.Errorf("invalid memory %q: must be non-zero", l.Memory)
	}
	if l.CPU < 1 {
		return fmt.Errorf("invalid cpu %d: must be at least 1", l.CPU)
	}
	if l.Concurrency < 1 || l.Concurrency > MaxConcurrency {
		return fmt.Errorf("invalid concurrency %d: must be 1-%d", l.Concurrency, MaxConcurrency)
	}
	if l.Timeout <= 0 || l.Timeout > MaxRequestTimeout {
		return fmt.Errorf("invalid timeout %s: must be positive and at most %s", l.Timeout, MaxRequestTimeout)
	}
	if l.MaxInstances < 1 {
		return fmt.Errorf("invalid max instances %d: must be at least 1", l.MaxInstances)
	}
	return nil
}
