package routes

import (
	"context"

	"github.com/jmylchreest/leadscout-api/internal/http/handlers"
)

// StubHandlers returns a Handlers instance with stub implementations.
// All handlers return nil responses. They are only used for OpenAPI generation
// where Huma extracts type information from function signatures.
func StubHandlers() *Handlers {
	return &Handlers{
		HealthCheck:   stubHealthCheck,
		Livez:         stubLivez,
		Readyz:        stubReadyz,
		DiscoveryRuns: &stubDiscoveryRunHandlers{},
		SellerRuns:    &stubSellerRunHandlers{},
	}
}

func stubHealthCheck(ctx context.Context, input *struct{}) (*handlers.HealthCheckOutput, error) {
	return nil, nil
}

func stubLivez(ctx context.Context, input *struct{}) (*handlers.LivezOutput, error) {
	return nil, nil
}

func stubReadyz(ctx context.Context, input *struct{}) (*handlers.ReadyzOutput, error) {
	return nil, nil
}

type stubDiscoveryRunHandlers struct{}

func (s *stubDiscoveryRunHandlers) CreateDiscoveryRun(ctx context.Context, input *handlers.CreateDiscoveryRunInput) (*handlers.CreateDiscoveryRunOutput, error) {
	return nil, nil
}

func (s *stubDiscoveryRunHandlers) GetDiscoveryRun(ctx context.Context, input *handlers.RunIDInput) (*handlers.GetDiscoveryRunOutput, error) {
	return nil, nil
}

func (s *stubDiscoveryRunHandlers) ListDiscoveryRuns(ctx context.Context, input *handlers.ListRunsInput) (*handlers.ListDiscoveryRunsOutput, error) {
	return nil, nil
}

func (s *stubDiscoveryRunHandlers) DeleteDiscoveryRun(ctx context.Context, input *handlers.RunIDInput) (*struct{}, error) {
	return nil, nil
}

func (s *stubDiscoveryRunHandlers) ExpandDiscoveryRun(ctx context.Context, input *handlers.RunIDInput) (*handlers.RunAcceptedOutput, error) {
	return nil, nil
}

func (s *stubDiscoveryRunHandlers) EnrichCandidate(ctx context.Context, input *handlers.EnrichCandidateInput) (*handlers.EnrichCandidateOutput, error) {
	return nil, nil
}

type stubSellerRunHandlers struct{}

func (s *stubSellerRunHandlers) CreateSellerRun(ctx context.Context, input *handlers.CreateSellerRunInput) (*handlers.CreateSellerRunOutput, error) {
	return nil, nil
}

func (s *stubSellerRunHandlers) GetSellerRun(ctx context.Context, input *handlers.RunIDInput) (*handlers.GetSellerRunOutput, error) {
	return nil, nil
}

func (s *stubSellerRunHandlers) ListSellerRuns(ctx context.Context, input *handlers.ListRunsInput) (*handlers.ListSellerRunsOutput, error) {
	return nil, nil
}

func (s *stubSellerRunHandlers) DeleteSellerRun(ctx context.Context, input *handlers.RunIDInput) (*struct{}, error) {
	return nil, nil
}
