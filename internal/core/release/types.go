// Package release provides pure domain types for a deployment run:
// the resolved configuration, the built artifact, the service endpoint,
// and the run state machine. This package contains no I/O.
package release

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrRunTerminal       = errors.New("run is in a terminal state")
)

// =============================================================================
// Resource Limits
// =============================================================================

// ResourceLimits declares the resource envelope for the deployed revision.
type ResourceLimits struct {
	Memory       string        `json:"memory"`        // e.g. "512Mi", "1Gi"
	CPU          int           `json:"cpu"`           // whole vCPUs
	Concurrency  int           `json:"concurrency"`   // max concurrent requests per instance
	Timeout      time.Duration `json:"timeout"`       // request timeout
	MaxInstances int           `json:"max_instances"` // autoscaling ceiling
}

// DefaultResourceLimits returns the limits used when the manifest does not
// override them.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		Memory:       "512Mi",
		CPU:          1,
		Concurrency:  80,
		Timeout:      300 * time.Second,
		MaxInstances: 3,
	}
}

// =============================================================================
// Release Config
// =============================================================================

// Config is the immutable parameter set for a single pipeline run.
// It is resolved once at startup (config file, manifest, secret resolution)
// and treated as read-only afterward.
type Config struct {
	Project    string            `json:"project"`
	Service    string            `json:"service"`
	Region     string            `json:"region"`
	ImageRepo  string            `json:"image_repo"` // repository path without tag
	VersionTag string            `json:"version_tag"`
	SourceDir  string            `json:"source_dir"` // build context directory
	Services   []string          `json:"services"`   // platform APIs to enable
	Limits     ResourceLimits    `json:"limits"`
	Env        map[string]string `json:"env"` // injected into the running service

	// AllowUnauthenticated exposes the service publicly. Web front-ends
	// default to true.
	AllowUnauthenticated bool `json:"allow_unauthenticated"`
}

// Artifact returns the image artifact this run builds and deploys.
func (c Config) Artifact() Artifact {
	return Artifact{Repo: c.ImageRepo, Tag: c.VersionTag}
}

// =============================================================================
// Artifact
// =============================================================================

// Artifact is a built, tagged container image reference. Created once per
// run by the build step and consumed by the deploy step.
type Artifact struct {
	Repo string `json:"repo"`
	Tag  string `json:"tag"`
}

// Ref returns the full image reference in repo:tag form.
func (a Artifact) Ref() string {
	return fmt.Sprintf("%s:%s", a.Repo, a.Tag)
}

// =============================================================================
// Endpoint
// =============================================================================

// Endpoint is the externally reachable URL of the deployed service.
// It exists only after the deploy step completes and the service record
// becomes visible.
type Endpoint struct {
	URL string `json:"url"`
}

// =============================================================================
// Run State Machine
// =============================================================================

// State represents the progress of a pipeline run.
type State string

const (
	StateInit            State = "init"
	StateAuthenticated   State = "authenticated"
	StateServicesEnabled State = "services_enabled"
	StateBuilt           State = "built"
	StateDeployed        State = "deployed"
	StateResolved        State = "resolved" // terminal success
	StateFailed          State = "failed"   // terminal failure
)

// stateOrder is the only legal forward progression.
var stateOrder = []State{
	StateInit,
	StateAuthenticated,
	StateServicesEnabled,
	StateBuilt,
	StateDeployed,
	StateResolved,
}

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool {
	return s == StateResolved || s == StateFailed
}

// Run tracks a single execution of the pipeline.
type Run struct {
	ID        string
	Config    Config
	State     State
	StartedAt time.Time

	// Populated as steps complete.
	Artifact *Artifact
	Endpoint *Endpoint

	// Populated on failure.
	FailedStep string
	Cause      error

	FinishedAt time.Time
}

// NewRun creates a run in the Init state for the given config.
func NewRun(cfg Config, now time.Time) *Run {
	return &Run{
		ID:        uuid.New().String(),
		Config:    cfg,
		State:     StateInit,
		StartedAt: now,
	}
}

// Advance moves the run to the next state. The target must be the immediate
// successor of the current state; anything else is an invalid transition.
func (r *Run) Advance(next State) error {
	if r.State.Terminal() {
		return fmt.Errorf("%w: cannot advance from %s", ErrRunTerminal, r.State)
	}
	for i, s := range stateOrder[:len(stateOrder)-1] {
		if s == r.State {
			if stateOrder[i+1] == next {
				r.State = next
				return nil
			}
			break
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.State, next)
}

// Fail marks the run as failed at the named step. Failing an already
// terminal run is an error.
func (r *Run) Fail(step string, cause error, now time.Time) error {
	if r.State.Terminal() {
		return fmt.Errorf("%w: cannot fail from %s", ErrRunTerminal, r.State)
	}
	r.State = StateFailed
	r.FailedStep = step
	r.Cause = cause
	r.FinishedAt = now
	return nil
}

// Finish stamps the completion time of a successful run.
func (r *Run) Finish(now time.Time) {
	r.FinishedAt = now
}
