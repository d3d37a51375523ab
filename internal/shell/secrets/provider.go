// Package secrets resolves secret references for deploy-time environment
// injection. Secrets are never inlined in config or manifests; a reference
// names where the value lives (process environment or a mounted file) and
// resolution happens once, when the release config is built.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrUnknownScheme = errors.New("unknown secret scheme")
	ErrNotFound      = errors.New("secret not found")
	ErrEmptySecret   = errors.New("secret resolved to empty value")
)

// =============================================================================
// Provider
// =============================================================================

// Provider resolves secret references of the form scheme://location.
type Provider interface {
	// Resolve returns the secret value for ref.
	Resolve(ref string) (string, error)
}

const (
	schemeEnv  = "env://"
	schemeFile = "file://"
)

// ChainProvider resolves env:// refs from the process environment and
// file:// refs from the filesystem (secret-manager volume mounts appear as
// files inside the deploy environment).
type ChainProvider struct {
	// lookupEnv is swappable for tests; defaults to os.LookupEnv.
	lookupEnv func(string) (string, bool)
	// readFile is swappable for tests; defaults to os.ReadFile.
	readFile func(string) ([]byte, error)
}

// NewProvider creates the default provider backed by the process
// environment and the filesystem.
func NewProvider() *ChainProvider {
	return &ChainProvider{
		lookupEnv: os.LookupEnv,
		readFile:  os.ReadFile,
	}
}

// Resolve resolves ref. Values are trimmed of trailing newlines (file-mounted
// secrets commonly end with one) but otherwise passed through verbatim.
func (p *ChainProvider) Resolve(ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, schemeEnv):
		name := strings.TrimPrefix(ref, schemeEnv)
		val, ok := p.lookupEnv(name)
		if !ok {
			return "", fmt.Errorf("%w: environment variable %s is not set", ErrNotFound, name)
		}
		if val == "" {
			return "", fmt.Errorf("%w: environment variable %s", ErrEmptySecret, name)
		}
		return val, nil

	case strings.HasPrefix(ref, schemeFile):
		path := strings.TrimPrefix(ref, schemeFile)
		data, err := p.readFile(path)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
		}
		val := strings.TrimRight(string(data), "\r\n")
		if val == "" {
			return "", fmt.Errorf("%w: file %s", ErrEmptySecret, path)
		}
		return val, nil

	default:
		return "", fmt.Errorf("%w: %q (expected env:// or file://)", ErrUnknownScheme, ref)
	}
}
