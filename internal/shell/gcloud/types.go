package gcloud

import "github.com/artpar/shipway/internal/core/release"

// =============================================================================
// Request / Response Types
// =============================================================================

// BuildRequest submits a build context to the platform's build service.
type BuildRequest struct {
	// ImageRef is the full repo:tag the build service tags the artifact with.
	ImageRef string
	// SourceDir is the local build context directory.
	SourceDir string
}

// DeployRequest publishes a new revision of a service.
type DeployRequest struct {
	Service              string
	Region               string
	ImageRef             string
	Limits               release.ResourceLimits
	Env                  map[string]string
	AllowUnauthenticated bool
}

// ServiceInfo describes the deployed service as the platform reports it.
type ServiceInfo struct {
	URL string
}
