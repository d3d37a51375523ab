package gcloud

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrBinaryNotFound is returned when the platform CLI is not on PATH.
	ErrBinaryNotFound = errors.New("platform CLI not found")

	// ErrNoActiveAccount is returned when no credentialed account is active
	// and no service-account key is configured.
	ErrNoActiveAccount = errors.New("no active credentialed account")

	// ErrServiceNotVisible is returned when the service record is not yet
	// visible after a deploy. Callers retry with backoff; this is an
	// eventual-consistency window, not a terminal failure.
	ErrServiceNotVisible = errors.New("service record not yet visible")
)

// CLIError wraps a failed CLI invocation with the operation, the command
// line, and captured stderr.
type CLIError struct {
	Op     string // operation that failed, e.g. "SubmitBuild"
	Args   []string
	Stderr string
	Err    error
}

func (e *CLIError) Error() string {
	msg := fmt.Sprintf("%s: gcloud %s: %v", e.Op, strings.Join(e.Args, " "), e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a CLIError.
func NewCLIError(op string, args []string, stderr string, err error) *CLIError {
	return &CLIError{Op: op, Args: args, Stderr: stderr, Err: err}
}
