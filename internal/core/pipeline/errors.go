// Package pipeline provides the ordered step runner that drives a
// deployment run. Steps are plain descriptors so the sequencing contract
// can be tested with fake implementations.
package pipeline

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Kinds
// =============================================================================

// Each step failure is classified by the kind of external call that failed.
var (
	ErrAuth         = errors.New("authentication failed")
	ErrProvisioning = errors.New("service provisioning failed")
	ErrBuild        = errors.New("image build failed")
	ErrDeploy       = errors.New("revision deploy failed")
	ErrLookup       = errors.New("endpoint lookup failed")
)

// StepError wraps a step failure with the step name and classification.
type StepError struct {
	Step string // step name, e.g. "BuildImage"
	Kind error  // one of the sentinel kinds above
	Err  error  // underlying platform error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v: %v", e.Step, e.Kind, e.Err)
}

// Unwrap makes both the kind and the underlying cause visible to errors.Is.
func (e *StepError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// NewStepError creates a StepError.
func NewStepError(step string, kind, err error) *StepError {
	return &StepError{Step: step, Kind: kind, Err: err}
}
