package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/artpar/shipway/internal/core/manifest"
	"github.com/artpar/shipway/internal/core/monitoring"
	"github.com/artpar/shipway/internal/core/release"
	"github.com/artpar/shipway/internal/shell/deploy"
	"github.com/artpar/shipway/internal/shell/gcloud"
	"github.com/artpar/shipway/internal/shell/probe"
	"github.com/artpar/shipway/internal/shell/secrets"
	"github.com/artpar/shipway/internal/shell/store"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess       = 0
	ExitConfigError   = 1
	ExitDatabaseError = 2
	ExitPipelineError = 3
)

// =============================================================================
// Release Config Assembly
// =============================================================================

// buildReleaseConfig assembles the immutable release config from the
// application config, the optional service manifest, and resolved secrets.
// This happens once, before any external call.
func buildReleaseConfig(cfg *Config, manifestPath string, resolver secrets.Provider, now time.Time) (release.Config, error) {
	rc := release.Config{
		Project:              cfg.Target.Project,
		Service:              cfg.Target.Service,
		Region:               cfg.Target.Region,
		ImageRepo:            cfg.Target.ImageRepo,
		VersionTag:           release.NewVersionTag(now),
		SourceDir:            cfg.Build.SourceDir,
		Limits:               release.DefaultResourceLimits(),
		Env:                  map[string]string{},
		AllowUnauthenticated: cfg.Target.AllowUnauthenticated,
	}

	if rc.ImageRepo == "" && rc.Project != "" && rc.Service != "" {
		rc.ImageRepo = fmt.Sprintf("gcr.io/%s/%s", rc.Project, rc.Service)
	}

	if manifestPath != "" {
		content, err := os.ReadFile(manifestPath)
		if err != nil {
			return rc, fmt.Errorf("read manifest: %w", err)
		}
		m, err := manifest.Parse(string(content))
		if err != nil {
			return rc, fmt.Errorf("parse manifest %s: %w", manifestPath, err)
		}

		rc.Services = m.Services
		rc.Limits = m.ApplyLimits(rc.Limits)

		for name, v := range m.Env {
			if v.SecretRef != "" {
				val, err := resolver.Resolve(v.SecretRef)
				if err != nil {
					return rc, fmt.Errorf("resolve secret for %s: %w", name, err)
				}
				rc.Env[name] = val
				continue
			}
			rc.Env[name] = v.Value
		}
	}

	if err := release.ValidateConfig(rc); err != nil {
		return rc, err
	}
	return rc, nil
}

// =============================================================================
// Commands
// =============================================================================

// runDeploy wires up the control plane, journal, and prober, then executes
// the pipeline.
func runDeploy(ctx context.Context, cfg *Config, rc release.Config, verify bool, logger *slog.Logger, out io.Writer) int {
	client, err := gcloud.NewClient(gcloud.Options{
		Project: cfg.Target.Project,
		KeyFile: cfg.Auth.KeyFile,
	}, logger)
	if err != nil {
		logger.Error("control plane unavailable", "error", err)
		return ExitConfigError
	}

	journal, err := openJournal(cfg.Database.DSN)
	if err != nil {
		logger.Error("failed to open run journal", "error", err)
		return ExitDatabaseError
	}
	defer journal.Close()

	checker := probe.NewChecker(monitoring.ProbeBudget{
		Interval: cfg.Probe.Interval,
		Timeout:  cfg.Probe.Timeout,
		Retries:  cfg.Probe.Retries,
	}, logger)

	orchestrator := deploy.NewOrchestrator(client, journal, checker, deploy.Options{
		StepTimeout:    cfg.Pipeline.StepTimeout,
		BuildTimeout:   cfg.Pipeline.BuildTimeout,
		DeployTimeout:  cfg.Pipeline.DeployTimeout,
		LookupAttempts: cfg.Pipeline.LookupAttempts,
		LookupDelay:    cfg.Pipeline.LookupDelay,
		Verify:         verify,
		HealthPath:     cfg.Probe.Path,
	}, logger, out)

	if _, err := orchestrator.Run(ctx, rc); err != nil {
		return ExitPipelineError
	}
	return ExitSuccess
}

// runHistory prints recent journal entries for the configured service.
func runHistory(ctx context.Context, cfg *Config, out io.Writer, logger *slog.Logger) int {
	journal, err := openJournal(cfg.Database.DSN)
	if err != nil {
		logger.Error("failed to open run journal", "error", err)
		return ExitDatabaseError
	}
	defer journal.Close()

	runs, err := journal.ListRuns(ctx, store.ListOptions{Service: cfg.Target.Service})
	if err != nil {
		logger.Error("failed to list runs", "error", err)
		return ExitDatabaseError
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "no recorded runs")
		return ExitSuccess
	}

	for _, r := range runs {
		line := fmt.Sprintf("%s  %-16s %-10s %s", r.StartedAt.Format(time.RFC3339), r.VersionTag, r.State, r.Service)
		if r.State == release.StateFailed {
			line += fmt.Sprintf("  [%s] %s", r.FailedStep, r.Error)
		} else if r.URL != "" {
			line += "  " + r.URL
		}
		fmt.Fprintln(out, line)
	}
	return ExitSuccess
}

// openJournal opens the SQLite journal, creating its directory if needed.
func openJournal(dsn string) (*store.SQLiteStore, error) {
	if dir := filepath.Dir(dsn); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}
	return store.NewSQLiteStore(dsn)
}
