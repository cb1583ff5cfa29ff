// Package routes provides shared route registration for the LeadScout API.
// The server and the OpenAPI generator register the same routes so the
// published document always matches what is served.
package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/leadscout-api/internal/http/mw"
	"github.com/jmylchreest/leadscout-api/internal/version"
)

// NewHumaConfig creates the shared Huma configuration for the API.
func NewHumaConfig(baseURL string) huma.Config {
	cfg := huma.DefaultConfig("LeadScout API", version.Get().Short())
	cfg.Info.Description = "Lead discovery and qualification for business development: finds e-commerce shops and marketplace sellers and checks them against shipment and contact criteria."

	// No $schema field in responses.
	cfg.CreateHooks = nil

	if baseURL != "" {
		cfg.Servers = []*huma.Server{
			{URL: baseURL, Description: "API Server"},
		}
	}

	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		mw.SecurityScheme: {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
			Description:  "Team session token. Include it in the Authorization header as `Bearer <token>`.",
		},
	}

	cfg.Tags = []*huma.Tag{
		{Name: "Discovery Runs", Description: "Search-driven shop discovery and qualification", Extensions: map[string]any{"x-displayName": "Discovery Runs"}},
		{Name: "Seller Runs", Description: "Marketplace seller discovery and phone qualification", Extensions: map[string]any{"x-displayName": "Seller Runs"}},
		{Name: "Health", Description: "System health and status", Extensions: map[string]any{"x-displayName": "Health"}},
	}

	return cfg
}
