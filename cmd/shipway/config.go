package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Target   TargetConfig   `mapstructure:"target"`
	Build    BuildConfig    `mapstructure:"build"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Probe    ProbeConfig    `mapstructure:"probe"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

// TargetConfig identifies what gets deployed and where.
type TargetConfig struct {
	Project   string `mapstructure:"project"`
	Service   string `mapstructure:"service"`
	Region    string `mapstructure:"region"`
	ImageRepo string `mapstructure:"image_repo"`

	// AllowUnauthenticated exposes the service publicly.
	AllowUnauthenticated bool `mapstructure:"allow_unauthenticated"`
}

// BuildConfig holds build context configuration.
type BuildConfig struct {
	SourceDir string `mapstructure:"source_dir"`
}

// AuthConfig holds platform authentication configuration.
type AuthConfig struct {
	// KeyFile is an optional service-account key file, activated when no
	// account is already credentialed.
	KeyFile string `mapstructure:"key_file"`
}

// PipelineConfig holds per-step timeouts and lookup retry behavior.
type PipelineConfig struct {
	StepTimeout    time.Duration `mapstructure:"step_timeout"`
	BuildTimeout   time.Duration `mapstructure:"build_timeout"`
	DeployTimeout  time.Duration `mapstructure:"deploy_timeout"`
	LookupAttempts int           `mapstructure:"lookup_attempts"`
	LookupDelay    time.Duration `mapstructure:"lookup_delay"`
}

// ProbeConfig holds health-check polling parameters.
type ProbeConfig struct {
	Path     string        `mapstructure:"path"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Retries  int           `mapstructure:"retries"`
}

// DatabaseConfig holds run journal configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("target.project", "")
	v.SetDefault("target.service", "")
	v.SetDefault("target.region", "us-central1")
	v.SetDefault("target.image_repo", "")
	v.SetDefault("target.allow_unauthenticated", true)
	v.SetDefault("build.source_dir", ".")
	v.SetDefault("auth.key_file", "")
	v.SetDefault("pipeline.step_timeout", "2m")
	v.SetDefault("pipeline.build_timeout", "15m")
	v.SetDefault("pipeline.deploy_timeout", "10m")
	v.SetDefault("pipeline.lookup_attempts", 5)
	v.SetDefault("pipeline.lookup_delay", "3s")
	v.SetDefault("probe.path", "/_stcore/health")
	v.SetDefault("probe.interval", "10s")
	v.SetDefault("probe.timeout", "3s")
	v.SetDefault("probe.retries", 3)
	v.SetDefault("database.dsn", "./data/shipway.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("SHIPWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
// Logs go to stderr; stdout is reserved for pipeline progress output.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
