// Package deploy implements the deployment orchestrator: a strictly
// sequential five-step pipeline that authenticates against the platform,
// enables required services, builds the image, rolls out a new revision,
// and resolves the public endpoint. The first failing step aborts the run;
// there is no automatic retry and no rollback.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/artpar/shipway/internal/core/appconfig"
	"github.com/artpar/shipway/internal/core/monitoring"
	"github.com/artpar/shipway/internal/core/pipeline"
	"github.com/artpar/shipway/internal/core/release"
	"github.com/artpar/shipway/internal/shell/gcloud"
	"github.com/artpar/shipway/internal/shell/probe"
	"github.com/artpar/shipway/internal/shell/store"
)

// =============================================================================
// Options
// =============================================================================

// Options tunes orchestrator behavior.
type Options struct {
	// StepTimeout bounds the quick steps (auth, enable, lookup attempts).
	StepTimeout time.Duration

	// BuildTimeout bounds the image build, which routinely runs for minutes.
	BuildTimeout time.Duration

	// DeployTimeout bounds the revision rollout.
	DeployTimeout time.Duration

	// LookupAttempts and LookupDelay control endpoint-resolution retries.
	// The service record may lag the deploy (eventual consistency), so the
	// lookup step retries with backoff instead of failing on first miss.
	LookupAttempts int
	LookupDelay    time.Duration

	// Verify, when set, probes the resolved endpoint's health check after a
	// successful run and fails the verification (not the deploy) if the
	// instance is unhealthy.
	Verify     bool
	HealthPath string
}

// DefaultOptions returns the orchestrator defaults.
func DefaultOptions() Options {
	return Options{
		StepTimeout:    2 * time.Minute,
		BuildTimeout:   15 * time.Minute,
		DeployTimeout:  10 * time.Minute,
		LookupAttempts: 5,
		LookupDelay:    3 * time.Second,
		HealthPath:     "/_stcore/health",
	}
}

// =============================================================================
// Outcome
// =============================================================================

// Outcome is the result of a successful pipeline run.
type Outcome struct {
	Run      *release.Run
	Artifact release.Artifact
	Endpoint release.Endpoint

	// LogsHint tells the operator how to fetch service logs.
	LogsHint string

	// Health is set only when Verify was requested.
	Health monitoring.HealthStatus
}

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator drives a release through the pipeline against a control
// plane, printing step progress and journaling the run.
type Orchestrator struct {
	cp      ControlPlane
	journal store.Store    // optional; nil disables journaling
	checker *probe.Checker // optional; required only when Verify is set
	opts    Options
	logger  *slog.Logger
	out     io.Writer
}

// NewOrchestrator creates an orchestrator. journal and checker may be nil.
func NewOrchestrator(cp ControlPlane, journal store.Store, checker *probe.Checker, opts Options, logger *slog.Logger, out io.Writer) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = os.Stdout
	}
	def := DefaultOptions()
	if opts.StepTimeout == 0 {
		opts.StepTimeout = def.StepTimeout
	}
	if opts.BuildTimeout == 0 {
		opts.BuildTimeout = def.BuildTimeout
	}
	if opts.DeployTimeout == 0 {
		opts.DeployTimeout = def.DeployTimeout
	}
	if opts.LookupAttempts == 0 {
		opts.LookupAttempts = def.LookupAttempts
	}
	if opts.LookupDelay == 0 {
		opts.LookupDelay = def.LookupDelay
	}
	if opts.HealthPath == "" {
		opts.HealthPath = def.HealthPath
	}
	return &Orchestrator{
		cp:      cp,
		journal: journal,
		checker: checker,
		opts:    opts,
		logger:  logger.With("component", "orchestrator"),
		out:     out,
	}
}

// Run executes the full pipeline for the given release config.
// On failure the returned error is a *pipeline.StepError naming the failing
// step; the run journal records the terminal state either way.
func (o *Orchestrator) Run(ctx context.Context, cfg release.Config) (*Outcome, error) {
	if err := release.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid release config: %w", err)
	}

	run := release.NewRun(cfg, time.Now())
	o.logger.Info("starting pipeline run",
		"run_id", run.ID,
		"service", cfg.Service,
		"region", cfg.Region,
		"version", cfg.VersionTag,
	)
	o.journalCreate(ctx, run)

	steps := o.buildSteps(cfg)
	err := pipeline.NewRunner(nil).Run(ctx, run, steps)
	o.journalUpdate(ctx, run)

	if err != nil {
		var serr *pipeline.StepError
		if errors.As(err, &serr) {
			fmt.Fprintf(o.out, "FAILED at %s: %v\n", serr.Step, serr.Err)
		}
		o.logger.Error("pipeline run failed",
			"run_id", run.ID,
			"failed_step", run.FailedStep,
			"error", err,
		)
		return nil, err
	}

	outcome := &Outcome{
		Run:      run,
		Artifact: *run.Artifact,
		Endpoint: *run.Endpoint,
		LogsHint: fmt.Sprintf("gcloud run services logs read %s --region %s --project %s",
			cfg.Service, cfg.Region, cfg.Project),
	}

	fmt.Fprintf(o.out, "Deployed %s revision %s\n", cfg.Service, cfg.VersionTag)
	fmt.Fprintf(o.out, "URL: %s\n", outcome.Endpoint.URL)
	fmt.Fprintf(o.out, "Logs: %s\n", outcome.LogsHint)

	if o.opts.Verify && o.checker != nil {
		status, werr := o.checker.Watch(ctx, outcome.Endpoint.URL, o.opts.HealthPath)
		if werr != nil {
			return outcome, fmt.Errorf("health verification aborted: %w", werr)
		}
		outcome.Health = status
		fmt.Fprintf(o.out, "Health: %s\n", status)
		if status == monitoring.HealthStatusUnhealthy {
			return outcome, fmt.Errorf("service %s is unhealthy after deploy", cfg.Service)
		}
	}

	o.logger.Info("pipeline run resolved",
		"run_id", run.ID,
		"url", outcome.Endpoint.URL,
		"duration", run.FinishedAt.Sub(run.StartedAt),
	)
	return outcome, nil
}

// =============================================================================
// Step Construction
// =============================================================================

func (o *Orchestrator) buildSteps(cfg release.Config) []pipeline.Step {
	total := 5
	return []pipeline.Step{
		{
			Name:    "Authenticate",
			Kind:    pipeline.ErrAuth,
			Next:    release.StateAuthenticated,
			Timeout: o.opts.StepTimeout,
			Fn: func(ctx context.Context, run *release.Run) error {
				o.progress(1, total, "authenticating with platform")
				return o.cp.Authenticate(ctx)
			},
		},
		{
			Name:    "EnableServices",
			Kind:    pipeline.ErrProvisioning,
			Next:    release.StateServicesEnabled,
			Timeout: o.opts.StepTimeout,
			Fn: func(ctx context.Context, run *release.Run) error {
				o.progress(2, total, "enabling platform services")
				return o.cp.EnableServices(ctx, cfg.Services)
			},
		},
		{
			Name:    "BuildImage",
			Kind:    pipeline.ErrBuild,
			Next:    release.StateBuilt,
			Timeout: o.opts.BuildTimeout,
			Fn: func(ctx context.Context, run *release.Run) error {
				artifact := cfg.Artifact()
				o.progress(3, total, "building image "+artifact.Ref())
				if err := o.prepareBuildContext(cfg); err != nil {
					return err
				}
				if err := o.cp.SubmitBuild(ctx, gcloud.BuildRequest{
					ImageRef:  artifact.Ref(),
					SourceDir: cfg.SourceDir,
				}); err != nil {
					return err
				}
				run.Artifact = &artifact
				return nil
			},
		},
		{
			Name:    "DeployService",
			Kind:    pipeline.ErrDeploy,
			Next:    release.StateDeployed,
			Timeout: o.opts.DeployTimeout,
			Fn: func(ctx context.Context, run *release.Run) error {
				o.progress(4, total, "deploying revision "+cfg.VersionTag)
				return o.cp.DeployRevision(ctx, gcloud.DeployRequest{
					Service:              cfg.Service,
					Region:               cfg.Region,
					ImageRef:             run.Artifact.Ref(),
					Limits:               cfg.Limits,
					Env:                  cfg.Env,
					AllowUnauthenticated: cfg.AllowUnauthenticated,
				})
			},
		},
		{
			Name: "ResolveEndpoint",
			Kind: pipeline.ErrLookup,
			Next: release.StateResolved,
			Fn: func(ctx context.Context, run *release.Run) error {
				o.progress(5, total, "resolving service endpoint")
				return o.resolveEndpoint(ctx, run, cfg)
			},
		},
	}
}

// resolveEndpoint retries the lookup while the service record is inside its
// eventual-consistency window. Any other error is terminal immediately.
func (o *Orchestrator) resolveEndpoint(ctx context.Context, run *release.Run, cfg release.Config) error {
	var lastErr error
	for attempt := 1; attempt <= o.opts.LookupAttempts; attempt++ {
		info, err := o.cp.LookupEndpoint(ctx, cfg.Service, cfg.Region)
		if err == nil {
			run.Endpoint = &release.Endpoint{URL: info.URL}
			return nil
		}
		lastErr = err
		if !errors.Is(err, gcloud.ErrServiceNotVisible) {
			return err
		}
		o.logger.Debug("service record not yet visible, retrying",
			"attempt", attempt,
			"max_attempts", o.opts.LookupAttempts,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.opts.LookupDelay):
		}
	}
	return fmt.Errorf("endpoint not visible after %d attempts: %w", o.opts.LookupAttempts, lastErr)
}

// =============================================================================
// Build Context Preparation
// =============================================================================

// prepareBuildContext materializes the generated files into the source
// directory: the runtime config file always, the Dockerfile only when the
// application does not ship its own.
func (o *Orchestrator) prepareBuildContext(cfg release.Config) error {
	if cfg.SourceDir == "" {
		return fmt.Errorf("source directory is required")
	}

	spec := appconfig.DefaultBuildSpec()
	app := appconfig.DefaultAppConfig()
	app.Port = spec.Port

	configContent, err := appconfig.RenderConfigFile(app)
	if err != nil {
		return err
	}
	configPath := filepath.Join(cfg.SourceDir, spec.ConfigFileName)
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("write %s: %w", spec.ConfigFileName, err)
	}
	o.logger.Debug("wrote runtime config", "path", configPath)

	dockerfilePath := filepath.Join(cfg.SourceDir, "Dockerfile")
	if _, err := os.Stat(dockerfilePath); err == nil {
		o.logger.Debug("existing Dockerfile kept", "path", dockerfilePath)
		return nil
	}

	dockerfile, err := appconfig.RenderDockerfile(spec)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dockerfilePath, []byte(dockerfile), 0644); err != nil {
		return fmt.Errorf("write Dockerfile: %w", err)
	}
	o.logger.Debug("wrote generated Dockerfile", "path", dockerfilePath)
	return nil
}

// =============================================================================
// Journaling
// =============================================================================

// Journaling is advisory: a journal failure is logged, never fatal to the
// deploy itself.
func (o *Orchestrator) journalCreate(ctx context.Context, run *release.Run) {
	if o.journal == nil {
		return
	}
	if err := o.journal.CreateRun(ctx, store.NewRunRecord(run)); err != nil {
		o.logger.Warn("failed to journal run start", "run_id", run.ID, "error", err)
	}
}

func (o *Orchestrator) journalUpdate(ctx context.Context, run *release.Run) {
	if o.journal == nil {
		return
	}
	if err := o.journal.UpdateRun(ctx, store.NewRunRecord(run)); err != nil {
		o.logger.Warn("failed to journal run outcome", "run_id", run.ID, "error", err)
	}
}

// =============================================================================
// Progress Output
// =============================================================================

func (o *Orchestrator) progress(n, total int, msg string) {
	fmt.Fprintf(o.out, "==> [%d/%d] %s\n", n, total, msg)
}
