package handlers

import (
	"context"
	"net/http"

	"github.com/jmylchreest/leadscout-api/internal/models"
	"github.com/jmylchreest/leadscout-api/internal/service"
)

// RunService is the discovery run API the handlers use.
type RunService interface {
	Create(ctx context.Context, actor service.Actor, in service.CreateRunInput) (*service.CreateRunResult, error)
	Get(ctx context.Context, actor service.Actor, id string) (*models.DiscoveryRun, error)
	List(ctx context.Context, actor service.Actor, status models.RunStatus, page, limit int) (*service.ListResult[models.RunSummary], error)
	Delete(ctx context.Context, actor service.Actor, id string) error
	Expand(ctx context.Context, actor service.Actor, id string) (*models.DiscoveryRun, error)
	Enrich(ctx context.Context, actor service.Actor, id string, index int) error
}

// DiscoveryRunHandler handles discovery run endpoints.
type DiscoveryRunHandler struct {
	runs RunService
}

// NewDiscoveryRunHandler creates a new discovery run handler.
func NewDiscoveryRunHandler(runs RunService) *DiscoveryRunHandler {
	return &DiscoveryRunHandler{runs: runs}
}

// ThresholdsInput overrides the default shipment thresholds of a run.
type ThresholdsInput struct {
	MinDomestic *int64 `json:"min_domestic,omitempty" minimum:"0" doc:"Minimum estimated monthly domestic shipments"`
	MinAbroad   *int64 `json:"min_abroad,omitempty" minimum:"0" doc:"Minimum estimated monthly shipments abroad"`
	MaxDomestic *int64 `json:"max_domestic,omitempty" minimum:"0" doc:"Domestic shipment cap (inclusive)"`
}

// CreateDiscoveryRunInput represents a discovery run request. Exactly one seed is used,
// in the order query, seed_url, seed_analysis_id.
type CreateDiscoveryRunInput struct {
	Body struct {
		Query          string           `json:"query,omitempty" maxLength:"500" doc:"Search query used verbatim"`
		SeedURL        string           `json:"seed_url,omitempty" maxLength:"2048" doc:"Website to find similar shops for"`
		SeedAnalysisID string           `json:"seed_analysis_id,omitempty" doc:"Existing site analysis to find similar shops for"`
		Thresholds     *ThresholdsInput `json:"thresholds,omitempty" doc:"Threshold overrides"`
	}
}

// CreateDiscoveryRunOutput is 202 for a new run and 200 for a reused recent run.
type CreateDiscoveryRunOutput struct {
	Status int
	Body   struct {
		RunID       string           `json:"run_id" doc:"Run ID"`
		Status      models.RunStatus `json:"status" doc:"Run status"`
		SearchQuery string           `json:"search_query" doc:"Resolved search query"`
		FromCache   bool             `json:"from_cache,omitempty" doc:"True when a recent completed run was returned"`
	}
}

// CreateDiscoveryRun starts a discovery run.
func (h *DiscoveryRunHandler) CreateDiscoveryRun(ctx context.Context, input *CreateDiscoveryRunInput) (*CreateDiscoveryRunOutput, error) {
	actor, err := getActor(ctx)
	if err != nil {
		return nil, err
	}

	in := service.CreateRunInput{
		Seed: service.Seed{
			Query:      input.Body.Query,
			URL:        input.Body.SeedURL,
			AnalysisID: input.Body.SeedAnalysisID,
		},
	}
	if t := input.Body.Thresholds; t != nil {
		in.Thresholds = &service.ThresholdOverrides{
			MinDomestic: t.MinDomestic,
			MinAbroad:   t.MinAbroad,
			MaxDomestic: t.MaxDomestic,
		}
	}

	result, err := h.runs.Create(ctx, actor, in)
	if err != nil {
		return nil, toHumaError(err, "create run")
	}

	out := &CreateDiscoveryRunOutput{Status: http.StatusAccepted}
	if result.FromCache {
		out.Status = http.StatusOK
	}
	out.Body.RunID = result.Run.ID
	out.Body.Status = result.Run.Status
	out.Body.SearchQuery = result.Run.SearchQuery
	out.Body.FromCache = result.FromCache
	return out, nil
}

// RunIDInput identifies a run.
type RunIDInput struct {
	ID string `path:"id" doc:"Run ID"`
}

// GetDiscoveryRunOutput is the full run.
type GetDiscoveryRunOutput struct {
	Body *models.DiscoveryRun
}

// GetDiscoveryRun returns a run with every candidate.
func (h *DiscoveryRunHandler) GetDiscoveryRun(ctx context.Context, input *RunIDInput) (*GetDiscoveryRunOutput, error) {
	actor, err := getActor(ctx)
	if err != nil {
		return nil, err
	}
	run, err := h.runs.Get(ctx, actor, input.ID)
	if err != nil {
		return nil, toHumaError(err, "get run")
	}
	return &GetDiscoveryRunOutput{Body: run}, nil
}

// ListDiscoveryRunsOutput is one page of run summaries.
type ListDiscoveryRunsOutput struct {
	Body struct {
		Runs       []models.RunSummary `json:"runs" doc:"Run summaries, newest first"`
		Pagination Pagination          `json:"pagination"`
	}
}

// ListDiscoveryRuns lists runs visible to the caller.
func (h *DiscoveryRunHandler) ListDiscoveryRuns(ctx context.Context, input *ListRunsInput) (*ListDiscoveryRunsOutput, error) {
	actor, err := getActor(ctx)
	if err != nil {
		return nil, err
	}
	status, err := parseStatus(input.Status)
	if err != nil {
		return nil, err
	}

	result, err := h.runs.List(ctx, actor, status, input.Page, input.Limit)
	if err != nil {
		return nil, toHumaError(err, "list runs")
	}

	out := &ListDiscoveryRunsOutput{}
	out.Body.Runs = result.Runs
	if out.Body.Runs == nil {
		out.Body.Runs = []models.RunSummary{}
	}
	out.Body.Pagination = Pagination{Page: result.Page, Limit: result.Limit, Total: result.Total, Pages: result.Pages}
	return out, nil
}

// DeleteDiscoveryRun removes a run owned by the caller.
func (h *DiscoveryRunHandler) DeleteDiscoveryRun(ctx context.Context, input *RunIDInput) (*struct{}, error) {
	actor, err := getActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.runs.Delete(ctx, actor, input.ID); err != nil {
		return nil, toHumaError(err, "delete run")
	}
	return nil, nil
}

// RunAcceptedOutput acknowledges queued work on a run.
type RunAcceptedOutput struct {
	Body struct {
		RunID  string           `json:"run_id" doc:"Run ID"`
		Status models.RunStatus `json:"status" doc:"Run status"`
	}
}

// ExpandDiscoveryRun queues the next batch of search pages for a finished run.
func (h *DiscoveryRunHandler) ExpandDiscoveryRun(ctx context.Context, input *RunIDInput) (*RunAcceptedOutput, error) {
	actor, err := getActor(ctx)
	if err != nil {
		return nil, err
	}
	run, err := h.runs.Expand(ctx, actor, input.ID)
	if err != nil {
		return nil, toHumaError(err, "expand run")
	}
	out := &RunAcceptedOutput{}
	out.Body.RunID = run.ID
	out.Body.Status = run.Status
	return out, nil
}

// EnrichCandidateInput identifies a candidate.
type EnrichCandidateInput struct {
	ID    string `path:"id" doc:"Run ID"`
	Index int    `path:"index" minimum:"0" doc:"Candidate index in the run's items"`
}

// EnrichCandidateOutput acknowledges a queued enrichment.
type EnrichCandidateOutput struct {
	Body struct {
		RunID  string `json:"run_id" doc:"Run ID"`
		Index  int    `json:"index" doc:"Candidate index"`
		Status string `json:"status" doc:"Always queued"`
	}
}

// EnrichCandidate queues contact extraction for an analyzed candidate.
func (h *DiscoveryRunHandler) EnrichCandidate(ctx context.Context, input *EnrichCandidateInput) (*EnrichCandidateOutput, error) {
	actor, err := getActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.runs.Enrich(ctx, actor, input.ID, input.Index); err != nil {
		return nil, toHumaError(err, "enrich candidate")
	}
	out := &EnrichCandidateOutput{}
	out.Body.RunID = input.ID
	out.Body.Index = input.Index
	out.Body.Status = "queued"
	return out, nil
}
