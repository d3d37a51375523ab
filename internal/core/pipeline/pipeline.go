package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/shipway/internal/core/release"
)

// =============================================================================
// Step Descriptor
// =============================================================================

// StepFunc performs one external call of the pipeline. It receives the run
// so it can read config and record produced values (artifact, endpoint).
type StepFunc func(ctx context.Context, run *release.Run) error

// Step is a named pipeline stage. Next is the run state entered when the
// step succeeds; Kind classifies its failures.
type Step struct {
	Name string
	Kind error // sentinel error kind for failures of this step
	Next release.State

	// Timeout bounds the step's external call. Zero means no step-level
	// bound beyond whatever the caller's context imposes.
	Timeout time.Duration

	Fn StepFunc
}

// =============================================================================
// Runner
// =============================================================================

// Runner executes steps strictly in order and halts on the first failure.
// It performs no retries and no rollback; a failed run reports which step
// failed and why.
type Runner struct {
	clock func() time.Time
}

// NewRunner creates a runner. clock may be nil, in which case time.Now is used.
func NewRunner(clock func() time.Time) *Runner {
	if clock == nil {
		clock = time.Now
	}
	return &Runner{clock: clock}
}

// Run drives the run through the given steps. On success the run ends in
// the last step's target state; on failure the run is marked failed and a
// *StepError is returned. The first failing step aborts the rest.
func (r *Runner) Run(ctx context.Context, run *release.Run, steps []Step) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			serr := NewStepError(step.Name, step.Kind, err)
			_ = run.Fail(step.Name, serr, r.clock())
			return serr
		}

		if err := r.runStep(ctx, run, step); err != nil {
			serr := classify(step, err)
			_ = run.Fail(step.Name, serr, r.clock())
			return serr
		}

		if err := run.Advance(step.Next); err != nil {
			serr := NewStepError(step.Name, step.Kind, err)
			_ = run.Fail(step.Name, serr, r.clock())
			return serr
		}
	}
	run.Finish(r.clock())
	return nil
}

// runStep invokes the step function under its timeout, if any.
func (r *Runner) runStep(ctx context.Context, run *release.Run, step Step) error {
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}
	return step.Fn(ctx, run)
}

// classify wraps err as a StepError unless the step already produced one.
func classify(step Step, err error) *StepError {
	var serr *StepError
	if errors.As(err, &serr) {
		return serr
	}
	return NewStepError(step.Name, step.Kind, err)
}
