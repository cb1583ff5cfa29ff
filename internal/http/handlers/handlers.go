// Package handlers contains HTTP handlers for the API.
package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/leadscout-api/internal/http/mw"
	"github.com/jmylchreest/leadscout-api/internal/service"
	"github.com/jmylchreest/leadscout-api/internal/version"
)

// HealthCheckOutput represents health check response.
type HealthCheckOutput struct {
	Body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
}

// HealthCheck returns the health status of the API.
func HealthCheck(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
	out := &HealthCheckOutput{}
	out.Body.Status = "healthy"
	out.Body.Version = version.Get().Short()
	return out, nil
}

// LivezOutput represents the liveness probe response.
type LivezOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Livez reports that the process is up.
func Livez(ctx context.Context, input *struct{}) (*LivezOutput, error) {
	out := &LivezOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// ReadyzOutput represents the readiness probe response.
type ReadyzOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// PingFunc checks a dependency. database.Ping bound to the pool satisfies it.
type PingFunc func(ctx context.Context) error

// ReadyzHandler reports readiness once the database answers.
type ReadyzHandler struct {
	ping PingFunc
}

// NewReadyzHandler creates a readiness handler. A nil ping is always ready.
func NewReadyzHandler(ping PingFunc) *ReadyzHandler {
	return &ReadyzHandler{ping: ping}
}

// Readyz returns 503 while the database is unreachable.
func (h *ReadyzHandler) Readyz(ctx context.Context, input *struct{}) (*ReadyzOutput, error) {
	if h.ping != nil {
		if err := h.ping(ctx); err != nil {
			return nil, huma.Error503ServiceUnavailable("database not ready")
		}
	}
	out := &ReadyzOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// getActor converts the request claims into a service actor.
func getActor(ctx context.Context) (service.Actor, error) {
	claims := mw.GetUserClaims(ctx)
	if claims == nil || claims.UserID == "" {
		return service.Actor{}, huma.Error401Unauthorized("unauthorized")
	}
	return service.Actor{ID: claims.UserID, Role: claims.Role}, nil
}

// Pagination is the paging block of list responses.
type Pagination struct {
	Page  int `json:"page" doc:"Current page (1-based)"`
	Limit int `json:"limit" doc:"Page size"`
	Total int `json:"total" doc:"Total matching runs"`
	Pages int `json:"pages" doc:"Total pages"`
}

// ListRunsInput holds the shared list query parameters.
type ListRunsInput struct {
	Page   int    `query:"page" default:"1" minimum:"1" doc:"Page number"`
	Limit  int    `query:"limit" default:"20" minimum:"1" maximum:"100" doc:"Page size"`
	Status string `query:"status" doc:"Filter by status: processing, completed, failed"`
}
