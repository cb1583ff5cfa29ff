package service

import "errors"

// Service errors. Handlers map these onto HTTP status codes.
var (
	ErrRunNotFound        = errors.New("run not found")
	ErrForbidden          = errors.New("not allowed to access this run")
	ErrRunProcessing      = errors.New("run is already processing")
	ErrNotEnrichable      = errors.New("only analyzed candidates can be enriched")
	ErrItemNotFound       = errors.New("item not found")
	ErrInvalidSeed        = errors.New("a query, seed url or seed analysis id is required")
	ErrInvalidMarketplace = errors.New("url is not a supported Amazon marketplace")
	ErrAnalysisNotFound   = errors.New("seed analysis not found")
	ErrInvalidThresholds  = errors.New("thresholds must be non-negative with max domestic at or above min domestic")
)
