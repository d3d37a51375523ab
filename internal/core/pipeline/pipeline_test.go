package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/shipway/internal/core/release"
)

func testRun() *release.Run {
	return release.NewRun(release.Config{
		Project:    "p1",
		Service:    "svc",
		Region:     "us-central1",
		ImageRepo:  "gcr.io/p1/svc",
		VersionTag: "v20240131-154502",
		Limits:     release.DefaultResourceLimits(),
	}, time.Now())
}

// fiveSteps builds the standard five-step shape with recording step funcs.
// calls collects step names in invocation order; failAt (by index, -1 for
// none) makes that step return an error.
func fiveSteps(calls *[]string, failAt int) []Step {
	names := []struct {
		name string
		kind error
		next release.State
	}{
		{"Authenticate", ErrAuth, release.StateAuthenticated},
		{"EnableServices", ErrProvisioning, release.StateServicesEnabled},
		{"BuildImage", ErrBuild, release.StateBuilt},
		{"DeployService", ErrDeploy, release.StateDeployed},
		{"ResolveEndpoint", ErrLookup, release.StateResolved},
	}

	steps := make([]Step, len(names))
	for i, n := range names {
		idx := i
		steps[i] = Step{
			Name: n.name,
			Kind: n.kind,
			Next: n.next,
			Fn: func(ctx context.Context, run *release.Run) error {
				*calls = append(*calls, names[idx].name)
				if idx == failAt {
					return fmt.Errorf("simulated failure at %s", names[idx].name)
				}
				return nil
			},
		}
	}
	return steps
}

// =============================================================================
// Sequencing Tests
// =============================================================================

func TestRunner_AllStepsInOrder(t *testing.T) {
	var calls []string
	run := testRun()

	err := NewRunner(nil).Run(context.Background(), run, fiveSteps(&calls, -1))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Authenticate", "EnableServices", "BuildImage", "DeployService", "ResolveEndpoint",
	}, calls)
	assert.Equal(t, release.StateResolved, run.State)
	assert.False(t, run.FinishedAt.IsZero())
}

// Injecting a failure at each step index must prevent every later step
// from running.
func TestRunner_FailureAbortsRemainingSteps(t *testing.T) {
	kinds := []error{ErrAuth, ErrProvisioning, ErrBuild, ErrDeploy, ErrLookup}

	for failAt := 0; failAt < 5; failAt++ {
		t.Run(fmt.Sprintf("fail_at_step_%d", failAt+1), func(t *testing.T) {
			var calls []string
			run := testRun()

			err := NewRunner(nil).Run(context.Background(), run, fiveSteps(&calls, failAt))
			require.Error(t, err)

			// Steps up to and including the failing one ran; nothing after.
			assert.Len(t, calls, failAt+1)

			var serr *StepError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, calls[failAt], serr.Step)
			assert.ErrorIs(t, err, kinds[failAt])

			assert.Equal(t, release.StateFailed, run.State)
			assert.Equal(t, calls[failAt], run.FailedStep)
		})
	}
}

func TestRunner_BuildFailureNeverDeploys(t *testing.T) {
	var calls []string
	run := testRun()

	err := NewRunner(nil).Run(context.Background(), run, fiveSteps(&calls, 2))
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrBuild)
	assert.NotContains(t, calls, "DeployService")
	assert.NotContains(t, calls, "ResolveEndpoint")
}

func TestRunner_ContextCancelledBeforeStep(t *testing.T) {
	var calls []string
	run := testRun()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewRunner(nil).Run(ctx, run, fiveSteps(&calls, -1))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, calls)
	assert.Equal(t, release.StateFailed, run.State)
}

func TestRunner_StepTimeoutApplied(t *testing.T) {
	run := testRun()

	steps := []Step{{
		Name:    "Authenticate",
		Kind:    ErrAuth,
		Next:    release.StateAuthenticated,
		Timeout: 10 * time.Millisecond,
		Fn: func(ctx context.Context, run *release.Run) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
				return nil
			}
		},
	}}

	err := NewRunner(nil).Run(context.Background(), run, steps)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrAuth)
}

// =============================================================================
// Error Taxonomy Tests
// =============================================================================

func TestStepError_PreservedWhenStepReturnsOne(t *testing.T) {
	run := testRun()
	underlying := errors.New("permission denied on project p1")

	steps := []Step{{
		Name: "Authenticate",
		Kind: ErrAuth,
		Next: release.StateAuthenticated,
		Fn: func(ctx context.Context, run *release.Run) error {
			return NewStepError("Authenticate", ErrAuth, underlying)
		},
	}}

	err := NewRunner(nil).Run(context.Background(), run, steps)
	require.Error(t, err)

	var serr *StepError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "Authenticate", serr.Step)
	assert.ErrorIs(t, err, ErrAuth)
	assert.ErrorIs(t, err, underlying)
}

func TestStepError_Message(t *testing.T) {
	err := NewStepError("BuildImage", ErrBuild, errors.New("compile error in app.py"))
	assert.Contains(t, err.Error(), "BuildImage")
	assert.Contains(t, err.Error(), "image build failed")
	assert.Contains(t, err.Error(), "compile error")
}
