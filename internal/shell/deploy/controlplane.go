package deploy

import (
	"context"

	"github.com/artpar/shipway/internal/shell/gcloud"
)

// =============================================================================
// Control Plane Interface
// =============================================================================

// ControlPlane is the external management API the pipeline drives. Each
// method is one blocking call; *gcloud.Client is the production
// implementation, and tests substitute fakes to exercise the sequencing
// contract.
type ControlPlane interface {
	// Authenticate establishes credentials for subsequent calls.
	Authenticate(ctx context.Context) error

	// EnableServices idempotently ensures required platform APIs are active.
	EnableServices(ctx context.Context, services []string) error

	// SubmitBuild submits the build context and tags the resulting artifact.
	SubmitBuild(ctx context.Context, req gcloud.BuildRequest) error

	// DeployRevision publishes a new revision referencing the built artifact.
	DeployRevision(ctx context.Context, req gcloud.DeployRequest) error

	// LookupEndpoint queries the service's current public URL.
	LookupEndpoint(ctx context.Context, service, region string) (*gcloud.ServiceInfo, error)
}

var _ ControlPlane = (*gcloud.Client)(nil)
