// Package gcloud implements the platform control-plane client by driving
// the gcloud CLI. This is part of the Imperative Shell - every method is a
// blocking call to an external control plane.
package gcloud

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
)

// =============================================================================
// Command Runner
// =============================================================================

// runner executes a CLI invocation and returns captured stdout.
// Swappable so client behavior is testable without executing anything.
type runner interface {
	run(ctx context.Context, args ...string) (stdout string, err error)
}

// execRunner runs the real binary.
type execRunner struct {
	binary string
}

func (r *execRunner) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// =============================================================================
// Client
// =============================================================================

// Options configures the CLI client.
type Options struct {
	// Binary is the CLI binary name or path. Defaults to "gcloud".
	Binary string

	// Project scopes every invocation.
	Project string

	// KeyFile is an optional service-account key file. When set and no
	// account is active, Authenticate activates it.
	KeyFile string
}

// Client drives the platform control plane through its CLI.
type Client struct {
	opts   Options
	runner runner
	logger *slog.Logger
}

// NewClient creates a client after verifying the CLI binary is available.
func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	if opts.Binary == "" {
		opts.Binary = "gcloud"
	}
	if logger == nil {
		logger = slog.Default()
	}

	path, err := exec.LookPath(opts.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBinaryNotFound, opts.Binary, err)
	}

	return &Client{
		opts:   opts,
		runner: &execRunner{binary: path},
		logger: logger.With("component", "gcloud"),
	}, nil
}

// =============================================================================
// Control Plane Operations
// =============================================================================

// Authenticate verifies an active credentialed account exists, activating
// the configured service-account key if necessary.
func (c *Client) Authenticate(ctx context.Context) error {
	args := c.scoped("auth", "list", "--filter=status:ACTIVE", "--format=value(account)")

	out, err := c.runner.run(ctx, args...)
	if err != nil {
		return NewCLIError("Authenticate", args, err.Error(), err)
	}

	if account := strings.TrimSpace(out); account != "" {
		c.logger.Debug("active account found", "account", account)
		return nil
	}

	if c.opts.KeyFile == "" {
		return NewCLIError("Authenticate", args, "", ErrNoActiveAccount)
	}

	activate := c.scoped("auth", "activate-service-account", "--key-file", c.opts.KeyFile)
	if _, err := c.runner.run(ctx, activate...); err != nil {
		return NewCLIError("Authenticate", activate, err.Error(), err)
	}
	c.logger.Info("service account activated", "key_file", c.opts.KeyFile)
	return nil
}

// EnableServices ensures the required platform APIs are active. Enabling an
// already-enabled service is a no-op on the platform side, so this is safe
// to repeat.
func (c *Client) EnableServices(ctx context.Context, services []string) error {
	if len(services) == 0 {
		return nil
	}

	args := c.scoped(append([]string{"services", "enable"}, services...)...)
	if _, err := c.runner.run(ctx, args...); err != nil {
		return NewCLIError("EnableServices", args, err.Error(), err)
	}
	c.logger.Debug("services enabled", "services", services)
	return nil
}

// SubmitBuild submits the build context to the remote build service and
// tags the resulting artifact. Each invocation produces a new artifact.
func (c *Client) SubmitBuild(ctx context.Context, req BuildRequest) error {
	args := c.scoped("builds", "submit", "--tag", req.ImageRef, req.SourceDir)
	if _, err := c.runner.run(ctx, args...); err != nil {
		return NewCLIError("SubmitBuild", args, err.Error(), err)
	}
	c.logger.Debug("build submitted", "image", req.ImageRef)
	return nil
}

// DeployRevision publishes a new revision of the service referencing the
// built artifact, with declared resource limits and environment. This is
// side-effecting: the platform may shift live traffic to the new revision.
func (c *Client) DeployRevision(ctx context.Context, req DeployRequest) error {
	args := []string{
		"run", "deploy", req.Service,
		"--image", req.ImageRef,
		"--region", req.Region,
		"--platform", "managed",
		"--memory", req.Limits.Memory,
		"--cpu", fmt.Sprintf("%d", req.Limits.CPU),
		"--concurrency", fmt.Sprintf("%d", req.Limits.Concurrency),
		"--timeout", fmt.Sprintf("%d", int(req.Limits.Timeout.Seconds())),
		"--max-instances", fmt.Sprintf("%d", req.Limits.MaxInstances),
	}
	if env := formatEnv(req.Env); env != "" {
		args = append(args, "--set-env-vars", env)
	}
	if req.AllowUnauthenticated {
		args = append(args, "--allow-unauthenticated")
	}
	args = c.scoped(args...)

	if _, err := c.runner.run(ctx, args...); err != nil {
		return NewCLIError("DeployRevision", args, err.Error(), err)
	}
	c.logger.Debug("revision deployed", "service", req.Service, "image", req.ImageRef)
	return nil
}

// LookupEndpoint queries the service's public URL. Immediately after a
// deploy the record may not be visible yet; that case is reported as
// ErrServiceNotVisible so the caller can retry with backoff.
func (c *Client) LookupEndpoint(ctx context.Context, service, region string) (*ServiceInfo, error) {
	args := c.scoped(
		"run", "services", "describe", service,
		"--region", region,
		"--platform", "managed",
		"--format=value(status.url)",
	)

	out, err := c.runner.run(ctx, args...)
	if err != nil {
		if strings.Contains(err.Error(), "could not be found") {
			return nil, NewCLIError("LookupEndpoint", args, err.Error(), ErrServiceNotVisible)
		}
		return nil, NewCLIError("LookupEndpoint", args, err.Error(), err)
	}

	url := strings.TrimSpace(out)
	if url == "" {
		return nil, NewCLIError("LookupEndpoint", args, "", ErrServiceNotVisible)
	}
	return &ServiceInfo{URL: url}, nil
}

// =============================================================================
// Helpers
// =============================================================================

// scoped appends the project scope to an argument list.
func (c *Client) scoped(args ...string) []string {
	if c.opts.Project == "" {
		return args
	}
	return append(args, "--project", c.opts.Project)
}

// formatEnv renders env vars as the CLI's KEY=VALUE,KEY=VALUE list, sorted
// for deterministic command lines.
func formatEnv(env map[string]string) string {
	if len(env) == 0 {
		return ""
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+env[k])
	}
	return strings.Join(pairs, ",")
}
