// Package appconfig renders the files baked into the application image:
// the hosted framework's runtime config (TOML) and the two-stage Dockerfile.
// Rendering is pure; the orchestrator writes the results into the build
// context before submitting the build.
package appconfig

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// =============================================================================
// Runtime Config
// =============================================================================

// AppConfig declares the runtime configuration surface of the hosted
// framework: listening port and bind address, headless mode, log verbosity,
// upload size limit, and XSRF protection.
type AppConfig struct {
	Port            int
	Address         string
	Headless        bool
	LogLevel        string
	MaxUploadSizeMB int
	EnableXSRF      bool
}

// DefaultAppConfig returns the runtime configuration used when nothing is
// overridden. The platform injects the actual port at run time; 8080 is the
// build-time default.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Port:            8080,
		Address:         "0.0.0.0",
		Headless:        true,
		LogLevel:        "info",
		MaxUploadSizeMB: 50,
		EnableXSRF:      true,
	}
}

// configFile is the on-disk TOML shape consumed by the framework.
type configFile struct {
	Server serverSection `toml:"server"`
	Logger loggerSection `toml:"logger"`
}

type serverSection struct {
	Headless             bool   `toml:"headless"`
	Port                 int    `toml:"port"`
	Address              string `toml:"address"`
	MaxUploadSize        int    `toml:"maxUploadSize"`
	EnableXsrfProtection bool   `toml:"enableXsrfProtection"`
}

type loggerSection struct {
	Level string `toml:"level"`
}

// RenderConfigFile renders the runtime config file content.
func RenderConfigFile(cfg AppConfig) (string, error) {
	out, err := toml.Marshal(configFile{
		Server: serverSection{
			Headless:             cfg.Headless,
			Port:                 cfg.Port,
			Address:              cfg.Address,
			MaxUploadSize:        cfg.MaxUploadSizeMB,
			EnableXsrfProtection: cfg.EnableXSRF,
		},
		Logger: loggerSection{Level: cfg.LogLevel},
	})
	if err != nil {
		return "", fmt.Errorf("render config file: %w", err)
	}
	return string(out), nil
}

// =============================================================================
// Validation
// =============================================================================

// Validate checks the runtime config for values the framework rejects.
func Validate(cfg AppConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.Address == "" {
		return fmt.Errorf("address is required")
	}
	if cfg.MaxUploadSizeMB < 1 {
		return fmt.Errorf("invalid max upload size %d MB", cfg.MaxUploadSizeMB)
	}
	switch cfg.LogLevel {
	case "error", "warning", "info", "debug":
	default:
		return fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	return nil
}
