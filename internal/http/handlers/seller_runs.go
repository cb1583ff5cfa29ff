package handlers

import (
	"context"

	"github.com/jmylchreest/leadscout-api/internal/models"
	"github.com/jmylchreest/leadscout-api/internal/service"
)

// SellerService is the seller run API the handlers use.
type SellerService interface {
	Create(ctx context.Context, actor service.Actor, amazonURL string) (*models.SellerRun, error)
	Get(ctx context.Context, actor service.Actor, id string) (*models.SellerRun, error)
	List(ctx context.Context, actor service.Actor, status models.RunStatus, page, limit int) (*service.ListResult[models.SellerRunSummary], error)
	Delete(ctx context.Context, actor service.Actor, id string) error
}

// SellerRunHandler handles marketplace seller run endpoints.
type SellerRunHandler struct {
	sellers SellerService
}

// NewSellerRunHandler creates a new seller run handler.
func NewSellerRunHandler(sellers SellerService) *SellerRunHandler {
	return &SellerRunHandler{sellers: sellers}
}

// CreateSellerRunInput represents a seller run request.
type CreateSellerRunInput struct {
	Body struct {
		AmazonURL string `json:"amazon_url" required:"true" maxLength:"2048" doc:"Amazon search results URL (amazon.it, .fr, .de, .es, .co.uk, .com)"`
	}
}

// CreateSellerRunOutput acknowledges a queued seller run.
type CreateSellerRunOutput struct {
	Body struct {
		RunID       string           `json:"run_id" doc:"Run ID"`
		Status      models.RunStatus `json:"status" doc:"Run status"`
		Marketplace string           `json:"marketplace" doc:"Marketplace host"`
	}
}

// CreateSellerRun starts a seller run.
func (h *SellerRunHandler) CreateSellerRun(ctx context.Context, input *CreateSellerRunInput) (*CreateSellerRunOutput, error) {
	actor, err := getActor(ctx)
	if err != nil {
		return nil, err
	}
	run, err := h.sellers.Create(ctx, actor, input.Body.AmazonURL)
	if err != nil {
		return nil, toHumaError(err, "create seller run")
	}
	out := &CreateSellerRunOutput{}
	out.Body.RunID = run.ID
	out.Body.Status = run.Status
	out.Body.Marketplace = run.Marketplace
	return out, nil
}

// SellerRunOutput is a seller run plus the sellers that passed the phone check.
type SellerRunOutput struct {
	models.SellerRun
	QualifiedSellers []models.Seller `json:"qualified_sellers" doc:"Sellers whose phone matched the policy"`
}

// GetSellerRunOutput is the full seller run.
type GetSellerRunOutput struct {
	Body SellerRunOutput
}

// GetSellerRun returns a seller run.
func (h *SellerRunHandler) GetSellerRun(ctx context.Context, input *RunIDInput) (*GetSellerRunOutput, error) {
	actor, err := getActor(ctx)
	if err != nil {
		return nil, err
	}
	run, err := h.sellers.Get(ctx, actor, input.ID)
	if err != nil {
		return nil, toHumaError(err, "get seller run")
	}
	return &GetSellerRunOutput{Body: SellerRunOutput{SellerRun: *run, QualifiedSellers: run.QualifiedSellers()}}, nil
}

// ListSellerRunsOutput is one page of seller run summaries.
type ListSellerRunsOutput struct {
	Body struct {
		Runs       []models.SellerRunSummary `json:"runs" doc:"Seller run summaries, newest first"`
		Pagination Pagination                `json:"pagination"`
	}
}

// ListSellerRuns lists seller runs visible to the caller.
func (h *SellerRunHandler) ListSellerRuns(ctx context.Context, input *ListRunsInput) (*ListSellerRunsOutput, error) {
	actor, err := getActor(ctx)
	if err != nil {
		return nil, err
	}
	status, err := parseStatus(input.Status)
	if err != nil {
		return nil, err
	}

	result, err := h.sellers.List(ctx, actor, status, input.Page, input.Limit)
	if err != nil {
		return nil, toHumaError(err, "list seller runs")
	}

	out := &ListSellerRunsOutput{}
	out.Body.Runs = result.Runs
	if out.Body.Runs == nil {
		out.Body.Runs = []models.SellerRunSummary{}
	}
	out.Body.Pagination = Pagination{Page: result.Page, Limit: result.Limit, Total: result.Total, Pages: result.Pages}
	return out, nil
}

// DeleteSellerRun removes a seller run owned by the caller.
func (h *SellerRunHandler) DeleteSellerRun(ctx context.Context, input *RunIDInput) (*struct{}, error) {
	actor, err := getActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.sellers.Delete(ctx, actor, input.ID); err != nil {
		return nil, toHumaError(err, "delete seller run")
	}
	return nil, nil
}
