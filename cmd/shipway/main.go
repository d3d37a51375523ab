// Command shipway builds and deploys a containerized web front-end to a
// managed container platform through a fixed five-step pipeline:
// authenticate, enable services, build image, deploy revision, resolve
// endpoint. The first failing step aborts the run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/artpar/shipway/internal/shell/secrets"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	manifestPath := flag.String("manifest", "", "Path to service manifest")
	sourceDir := flag.String("source", "", "Build context directory (overrides config)")
	history := flag.Bool("history", false, "List recent pipeline runs and exit")
	verify := flag.Bool("verify", false, "Probe the health endpoint after deploy")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Handle version flag
	if *showVersion {
		fmt.Printf("shipway %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	// Load configuration
	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}
	if *sourceDir != "" {
		cfg.Build.SourceDir = *sourceDir
	}

	// Setup logger
	logger := SetupLogger(cfg)

	// Interrupt cancels the run; there is no finer-grained cancellation.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *history {
		return runHistory(ctx, cfg, os.Stdout, logger)
	}

	logger.Info("starting shipway",
		"version", Version,
		"service", cfg.Target.Service,
		"region", cfg.Target.Region,
	)

	// Resolve the immutable release config once, before any external call.
	rc, err := buildReleaseConfig(cfg, *manifestPath, secrets.NewProvider(), time.Now())
	if err != nil {
		logger.Error("invalid release configuration", "error", err)
		return ExitConfigError
	}

	return runDeploy(ctx, cfg, rc, *verify, logger, os.Stdout)
}
