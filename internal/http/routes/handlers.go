package routes

import (
	"context"

	"github.com/jmylchreest/leadscout-api/internal/http/handlers"
)

// DiscoveryRunHandlers defines the interface for discovery run operations.
type DiscoveryRunHandlers interface {
	CreateDiscoveryRun(ctx context.Context, input *handlers.CreateDiscoveryRunInput) (*handlers.CreateDiscoveryRunOutput, error)
	GetDiscoveryRun(ctx context.Context, input *handlers.RunIDInput) (*handlers.GetDiscoveryRunOutput, error)
	ListDiscoveryRuns(ctx context.Context, input *handlers.ListRunsInput) (*handlers.ListDiscoveryRunsOutput, error)
	DeleteDiscoveryRun(ctx context.Context, input *handlers.RunIDInput) (*struct{}, error)
	ExpandDiscoveryRun(ctx context.Context, input *handlers.RunIDInput) (*handlers.RunAcceptedOutput, error)
	EnrichCandidate(ctx context.Context, input *handlers.EnrichCandidateInput) (*handlers.EnrichCandidateOutput, error)
}

// SellerRunHandlers defines the interface for seller run operations.
type SellerRunHandlers interface {
	CreateSellerRun(ctx context.Context, input *handlers.CreateSellerRunInput) (*handlers.CreateSellerRunOutput, error)
	GetSellerRun(ctx context.Context, input *handlers.RunIDInput) (*handlers.GetSellerRunOutput, error)
	ListSellerRuns(ctx context.Context, input *handlers.ListRunsInput) (*handlers.ListSellerRunsOutput, error)
	DeleteSellerRun(ctx context.Context, input *handlers.RunIDInput) (*struct{}, error)
}

// Handlers aggregates all handler interfaces for route registration.
// The server passes real handlers, the OpenAPI generator passes stubs.
type Handlers struct {
	HealthCheck func(ctx context.Context, input *struct{}) (*handlers.HealthCheckOutput, error)

	// Kubernetes probes (hidden from docs)
	Livez  func(ctx context.Context, input *struct{}) (*handlers.LivezOutput, error)
	Readyz func(ctx context.Context, input *struct{}) (*handlers.ReadyzOutput, error)

	DiscoveryRuns DiscoveryRunHandlers
	SellerRuns    SellerRunHandlers // nil disables the seller endpoints
}

// IncludeSellerRuns returns true if seller run endpoints should be registered.
func (h *Handlers) IncludeSellerRuns() bool {
	return h.SellerRuns != nil
}
