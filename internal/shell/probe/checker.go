// Package probe polls a deployed service's health endpoint the way the
// platform does: fixed interval, bounded per-probe timeout, and a retry
// budget before the instance is declared unhealthy.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/artpar/shipway/internal/core/monitoring"
)

// =============================================================================
// Checker
// =============================================================================

// Checker probes an HTTP health endpoint and evaluates the results
// against a probe budget.
type Checker struct {
	client *http.Client
	budget monitoring.ProbeBudget
	logger *slog.Logger
}

// NewChecker creates a checker. Zero budget fields fall back to defaults.
func NewChecker(budget monitoring.ProbeBudget, logger *slog.Logger) *Checker {
	def := monitoring.DefaultProbeBudget()
	if budget.Interval == 0 {
		budget.Interval = def.Interval
	}
	if budget.Timeout == 0 {
		budget.Timeout = def.Timeout
	}
	if budget.Retries == 0 {
		budget.Retries = def.Retries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		client: &http.Client{Timeout: budget.Timeout},
		budget: budget,
		logger: logger.With("component", "probe"),
	}
}

// Watch probes the endpoint until a verdict is reached: healthy on the
// first passing probe, unhealthy once consecutive failures exhaust the
// retry budget. The context bounds the whole watch.
func (c *Checker) Watch(ctx context.Context, endpoint, path string) (monitoring.HealthStatus, error) {
	url := strings.TrimRight(endpoint, "/") + path

	var history []monitoring.ProbeResult

	ticker := time.NewTicker(c.budget.Interval)
	defer ticker.Stop()

	for {
		history = append(history, c.probeOnce(ctx, url))

		status := monitoring.Evaluate(history, c.budget)
		if status != monitoring.HealthStatusUnknown {
			c.logger.Info("health verdict", "url", url, "status", status, "probes", len(history))
			return status, nil
		}

		select {
		case <-ctx.Done():
			return monitoring.HealthStatusUnknown, ctx.Err()
		case <-ticker.C:
		}
	}
}

// probeOnce performs a single GET against the health endpoint.
func (c *Checker) probeOnce(ctx context.Context, url string) monitoring.ProbeResult {
	result := monitoring.ProbeResult{At: time.Now()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.Debug("probe request failed", "url", url, "error", err)
		return result
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("probe failed", "url", url, "error", err)
		return result
	}
	defer resp.Body.Close()

	result.OK = resp.StatusCode >= 200 && resp.StatusCode < 300
	if !result.OK {
		c.logger.Debug("probe returned non-success", "url", url, "status", resp.StatusCode)
	}
	return result
}

// CheckOnce performs a single probe and reports whether it passed.
func (c *Checker) CheckOnce(ctx context.Context, endpoint, path string) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	url := strings.TrimRight(endpoint, "/") + path
	res := c.probeOnce(ctx, url)
	if !res.OK {
		return false, fmt.Errorf("health probe failed: %s", url)
	}
	return true, nil
}
