package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/leadscout-api/internal/service"
	"github.com/jmylchreest/leadscout-api/internal/source"
	"github.com/jmylchreest/leadscout-api/internal/worker"
)

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var se huma.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error %v is not a huma.StatusError", err)
	}
	return se.GetStatus()
}

// ========================================
// toHumaError Tests
// ========================================

func TestToHumaError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"run not found", service.ErrRunNotFound, http.StatusNotFound},
		{"wrapped run not found", fmt.Errorf("load: %w", service.ErrRunNotFound), http.StatusNotFound},
		{"item not found", service.ErrItemNotFound, http.StatusNotFound},
		{"analysis not found", service.ErrAnalysisNotFound, http.StatusNotFound},
		{"forbidden", service.ErrForbidden, http.StatusForbidden},
		{"processing", service.ErrRunProcessing, http.StatusBadRequest},
		{"not enrichable", service.ErrNotEnrichable, http.StatusBadRequest},
		{"invalid seed", service.ErrInvalidSeed, http.StatusBadRequest},
		{"invalid marketplace", service.ErrInvalidMarketplace, http.StatusBadRequest},
		{"invalid thresholds", service.ErrInvalidThresholds, http.StatusBadRequest},
		{"queue full", worker.ErrQueueFull, http.StatusServiceUnavailable},
		{"pool stopped", worker.ErrStopped, http.StatusServiceUnavailable},
		{"upstream", &source.Error{Kind: source.ErrTimeout, Capability: "search"}, http.StatusBadGateway},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := statusOf(t, toHumaError(tt.err, "do thing"))
			if got != tt.wantStatus {
				t.Errorf("status = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

func TestToHumaError_Nil(t *testing.T) {
	if err := toHumaError(nil, "do thing"); err != nil {
		t.Errorf("toHumaError(nil) = %v, want nil", err)
	}
}

func TestToHumaError_HidesInternalDetails(t *testing.T) {
	err := toHumaError(errors.New("password=hunter2"), "list runs")
	if strings.Contains(err.Error(), "hunter2") {
		t.Errorf("error %q leaks internal detail", err.Error())
	}
	if !strings.Contains(err.Error(), "failed to list runs") {
		t.Errorf("error %q should name the operation", err.Error())
	}
}

func TestToHumaError_UpstreamMessage(t *testing.T) {
	err := toHumaError(&source.Error{Kind: source.ErrQuotaExceeded, Capability: "traffic", StatusCode: 402}, "create run")
	if !strings.Contains(err.Error(), "upstream traffic lookup failed: quota_exceeded") {
		t.Errorf("error = %q", err.Error())
	}
}

// ========================================
// parseStatus Tests
// ========================================

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"processing", "processing", false},
		{"completed", "completed", false},
		{"failed", "failed", false},
		{"done", "", true},
		{"COMPLETED", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseStatus(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseStatus(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if string(got) != tt.want {
				t.Errorf("parseStatus(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if err != nil && statusOf(t, err) != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", statusOf(t, err))
			}
		})
	}
}
