package handlers

import (
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/leadscout-api/internal/models"
	"github.com/jmylchreest/leadscout-api/internal/service"
	"github.com/jmylchreest/leadscout-api/internal/source"
	"github.com/jmylchreest/leadscout-api/internal/worker"
)

// toHumaError maps service errors onto HTTP errors. Unknown errors are logged and
// returned as 500 without details.
func toHumaError(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrRunNotFound),
		errors.Is(err, service.ErrItemNotFound),
		errors.Is(err, service.ErrAnalysisNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrForbidden):
		return huma.Error403Forbidden(err.Error())
	case errors.Is(err, service.ErrRunProcessing),
		errors.Is(err, service.ErrNotEnrichable),
		errors.Is(err, service.ErrInvalidSeed),
		errors.Is(err, service.ErrInvalidMarketplace),
		errors.Is(err, service.ErrInvalidThresholds):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrStopped):
		return huma.Error503ServiceUnavailable("background workers are busy, retry later")
	}

	var srcErr *source.Error
	if errors.As(err, &srcErr) {
		slog.Warn("upstream data source failed", "operation", op, "capability", srcErr.Capability, "error", err)
		return huma.Error502BadGateway("upstream " + srcErr.Capability + " lookup failed: " + source.KindLabel(err))
	}

	slog.Error("request failed", "operation", op, "error", err)
	return huma.Error500InternalServerError("failed to " + op)
}

// parseStatus validates an optional status filter.
func parseStatus(s string) (models.RunStatus, error) {
	if s == "" {
		return "", nil
	}
	status := models.RunStatus(s)
	if !status.IsValid() {
		return "", huma.Error400BadRequest("status must be one of processing, completed, failed")
	}
	return status, nil
}
