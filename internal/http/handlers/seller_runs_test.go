package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/jmylchreest/leadscout-api/internal/auth"
	"github.com/jmylchreest/leadscout-api/internal/models"
	"github.com/jmylchreest/leadscout-api/internal/service"
)

type fakeSellers struct {
	url  string
	run  *models.SellerRun
	list *service.ListResult[models.SellerRunSummary]
	err  error
}

func (f *fakeSellers) Create(_ context.Context, _ service.Actor, amazonURL string) (*models.SellerRun, error) {
	f.url = amazonURL
	return f.run, f.err
}

func (f *fakeSellers) Get(context.Context, service.Actor, string) (*models.SellerRun, error) {
	return f.run, f.err
}

func (f *fakeSellers) List(context.Context, service.Actor, models.RunStatus, int, int) (*service.ListResult[models.SellerRunSummary], error) {
	return f.list, f.err
}

func (f *fakeSellers) Delete(context.Context, service.Actor, string) error {
	return f.err
}

// ========================================
// SellerRunHandler Tests
// ========================================

func TestCreateSellerRun(t *testing.T) {
	fake := &fakeSellers{run: &models.SellerRun{ID: "s-1", Status: models.RunStatusProcessing, Marketplace: "amazon.it"}}
	h := NewSellerRunHandler(fake)

	input := &CreateSellerRunInput{}
	input.Body.AmazonURL = "https://www.amazon.it/s?k=borracce"
	out, err := h.CreateSellerRun(withUser("alice", auth.RoleBDR), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Body.RunID != "s-1" || out.Body.Marketplace != "amazon.it" {
		t.Errorf("Body = %+v", out.Body)
	}
	if fake.url != input.Body.AmazonURL {
		t.Errorf("url = %q, want %q", fake.url, input.Body.AmazonURL)
	}
}

func TestCreateSellerRun_InvalidMarketplace(t *testing.T) {
	h := NewSellerRunHandler(&fakeSellers{err: service.ErrInvalidMarketplace})
	input := &CreateSellerRunInput{}
	input.Body.AmazonURL = "https://www.ebay.it/sch/borracce"

	_, err := h.CreateSellerRun(withUser("alice", auth.RoleBDR), input)
	if got := statusOf(t, err); got != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", got)
	}
}

func TestGetSellerRun_QualifiedSellers(t *testing.T) {
	run := &models.SellerRun{
		ID:     "s-1",
		Status: models.RunStatusCompleted,
		Sellers: []models.Seller{
			{SellerID: "A1", Stage: models.SellerCompletedStage{}},
			{SellerID: "A2", Stage: models.SellerRejectedStage{Reason: "phone"}},
			{SellerID: "A3", Stage: models.SellerCompletedStage{}},
		},
	}
	h := NewSellerRunHandler(&fakeSellers{run: run})

	out, err := h.GetSellerRun(withUser("alice", auth.RoleBDR), &RunIDInput{ID: "s-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Body.Sellers) != 3 {
		t.Errorf("len(Sellers) = %d, want 3", len(out.Body.Sellers))
	}
	if len(out.Body.QualifiedSellers) != 2 {
		t.Fatalf("len(QualifiedSellers) = %d, want 2", len(out.Body.QualifiedSellers))
	}
	if out.Body.QualifiedSellers[1].SellerID != "A3" {
		t.Errorf("QualifiedSellers[1] = %q, want A3", out.Body.QualifiedSellers[1].SellerID)
	}
}

func TestListSellerRuns(t *testing.T) {
	h := NewSellerRunHandler(&fakeSellers{list: &service.ListResult[models.SellerRunSummary]{
		Runs:  []models.SellerRunSummary{{ID: "s-1", QualifiedCount: 4}},
		Page:  2,
		Limit: 1,
		Total: 2,
		Pages: 2,
	}})

	out, err := h.ListSellerRuns(withUser("alice", auth.RoleBDR), &ListRunsInput{Page: 2, Limit: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Body.Runs) != 1 || out.Body.Runs[0].QualifiedCount != 4 {
		t.Errorf("Runs = %+v", out.Body.Runs)
	}
	if out.Body.Pagination.Page != 2 || out.Body.Pagination.Pages != 2 {
		t.Errorf("Pagination = %+v", out.Body.Pagination)
	}
}

func TestDeleteSellerRun(t *testing.T) {
	h := NewSellerRunHandler(&fakeSellers{err: service.ErrForbidden})
	_, err := h.DeleteSellerRun(withUser("bob", auth.RoleBDR), &RunIDInput{ID: "s-1"})
	if got := statusOf(t, err); got != http.StatusForbidden {
		t.Errorf("status = %d, want 403", got)
	}

	h = NewSellerRunHandler(&fakeSellers{})
	if _, err := h.DeleteSellerRun(withUser("alice", auth.RoleBDR), &RunIDInput{ID: "s-1"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
