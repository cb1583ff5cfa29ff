package routes

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/leadscout-api/internal/http/mw"
)

// Register registers all API routes with the given Huma API instance.
func Register(api huma.API, h *Handlers) {
	// =========================================================================
	// Public Routes (no auth required)
	// =========================================================================

	mw.PublicGet(api, "/api/v1/health", h.HealthCheck,
		mw.WithTags("Health"),
		mw.WithSummary("Health check"),
		mw.WithOperationID("healthCheck"))

	mw.HiddenGet(api, "/healthz", h.Livez)
	mw.HiddenGet(api, "/readyz", h.Readyz)

	// =========================================================================
	// Protected Routes (require bearer auth)
	// =========================================================================

	// --- Discovery runs ---
	mw.ProtectedPost(api, "/api/v1/discovery-runs", h.DiscoveryRuns.CreateDiscoveryRun,
		mw.WithTags("Discovery Runs"),
		mw.WithSummary("Start discovery run"),
		mw.WithDescription("Starts a run from exactly one seed: a search query, a seed website or an existing analysis id. "+
			"Returns 202 for a new run. A recent completed run for the same seed is returned with 200 instead."),
		mw.WithOperationID("createDiscoveryRun"),
		mw.WithDefaultStatus(http.StatusAccepted))
	mw.ProtectedGet(api, "/api/v1/discovery-runs", h.DiscoveryRuns.ListDiscoveryRuns,
		mw.WithTags("Discovery Runs"),
		mw.WithSummary("List discovery runs"),
		mw.WithOperationID("listDiscoveryRuns"))
	mw.ProtectedGet(api, "/api/v1/discovery-runs/{id}", h.DiscoveryRuns.GetDiscoveryRun,
		mw.WithTags("Discovery Runs"),
		mw.WithSummary("Get discovery run"),
		mw.WithOperationID("getDiscoveryRun"))
	mw.ProtectedDelete(api, "/api/v1/discovery-runs/{id}", h.DiscoveryRuns.DeleteDiscoveryRun,
		mw.WithTags("Discovery Runs"),
		mw.WithSummary("Delete discovery run"),
		mw.WithOperationID("deleteDiscoveryRun"),
		mw.WithDefaultStatus(http.StatusNoContent))
	mw.ProtectedPost(api, "/api/v1/discovery-runs/{id}/expand", h.DiscoveryRuns.ExpandDiscoveryRun,
		mw.WithTags("Discovery Runs"),
		mw.WithSummary("Expand discovery run"),
		mw.WithDescription("Fetches further search result pages for a finished run and analyzes the new shops."),
		mw.WithOperationID("expandDiscoveryRun"),
		mw.WithDefaultStatus(http.StatusAccepted))
	mw.ProtectedPost(api, "/api/v1/discovery-runs/{id}/items/{index}/enrich", h.DiscoveryRuns.EnrichCandidate,
		mw.WithTags("Discovery Runs"),
		mw.WithSummary("Enrich candidate"),
		mw.WithDescription("Extracts contact details for an analyzed candidate."),
		mw.WithOperationID("enrichCandidate"),
		mw.WithDefaultStatus(http.StatusAccepted))

	// --- Seller runs ---
	if h.IncludeSellerRuns() {
		mw.ProtectedPost(api, "/api/v1/seller-runs", h.SellerRuns.CreateSellerRun,
			mw.WithTags("Seller Runs"),
			mw.WithSummary("Start seller run"),
			mw.WithDescription("Collects the sellers behind an Amazon search results page and checks their public phone numbers."),
			mw.WithOperationID("createSellerRun"),
			mw.WithDefaultStatus(http.StatusAccepted))
		mw.ProtectedGet(api, "/api/v1/seller-runs", h.SellerRuns.ListSellerRuns,
			mw.WithTags("Seller Runs"),
			mw.WithSummary("List seller runs"),
			mw.WithOperationID("listSellerRuns"))
		mw.ProtectedGet(api, "/api/v1/seller-runs/{id}", h.SellerRuns.GetSellerRun,
			mw.WithTags("Seller Runs"),
			mw.WithSummary("Get seller run"),
			mw.WithOperationID("getSellerRun"))
		mw.ProtectedDelete(api, "/api/v1/seller-runs/{id}", h.SellerRuns.DeleteSellerRun,
			mw.WithTags("Seller Runs"),
			mw.WithSummary("Delete seller run"),
			mw.WithOperationID("deleteSellerRun"),
			mw.WithDefaultStatus(http.StatusNoContent))
	}
}
