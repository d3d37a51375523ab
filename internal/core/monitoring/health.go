// Package monitoring provides pure functions for endpoint health evaluation.
// The I/O side (actually probing the endpoint) lives in internal/shell/probe.
package monitoring

import "time"

// =============================================================================
// Health Status
// =============================================================================

type HealthStatus string

const (
	HealthStatusUnknown   HealthStatus = "unknown"
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// =============================================================================
// Probe Budget
// =============================================================================

// ProbeBudget declares how the platform polls the health endpoint: a fixed
// interval between probes, a per-probe timeout, and the number of
// consecutive failures tolerated before the instance is marked unhealthy.
type ProbeBudget struct {
	Interval time.Duration
	Timeout  time.Duration
	Retries  int
}

// DefaultProbeBudget returns the platform's default polling parameters.
func DefaultProbeBudget() ProbeBudget {
	return ProbeBudget{
		Interval: 10 * time.Second,
		Timeout:  3 * time.Second,
		Retries:  3,
	}
}

// =============================================================================
// Probe Evaluation (Pure Functions)
// =============================================================================

// ProbeResult is the outcome of a single health probe.
type ProbeResult struct {
	OK bool
	At time.Time
}

// Evaluate determines instance health from an ordered probe history.
// The instance is unhealthy once the trailing run of failures reaches the
// budget's retry count; a single success resets the count. With no results
// yet the verdict is unknown.
func Evaluate(results []ProbeResult, budget ProbeBudget) HealthStatus {
	if len(results) == 0 {
		return HealthStatusUnknown
	}

	consecutive := 0
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].OK {
			break
		}
		consecutive++
	}

	if consecutive >= budget.Retries {
		return HealthStatusUnhealthy
	}
	if results[len(results)-1].OK {
		return HealthStatusHealthy
	}
	// Failing, but still inside the retry budget.
	return HealthStatusUnknown
}
