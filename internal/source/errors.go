package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Error kinds returned by data source adapters.
var (
	// ErrUnauthorized indicates the provider rejected our credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrQuotaExceeded indicates the provider account has run out of credit.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrRateLimited indicates the provider throttled the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrUpstreamServer indicates a 5xx from the provider.
	ErrUpstreamServer = errors.New("upstream server error")

	// ErrTimeout indicates the call exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrConnection indicates a network failure before a response arrived.
	ErrConnection = errors.New("connection error")

	// ErrParse indicates the provider's payload could not be parsed into the expected structure.
	ErrParse = errors.New("parse error")

	// ErrNoData indicates the provider returned an empty result set.
	ErrNoData = errors.New("no data")

	// ErrBadRequest indicates any other 4xx; repeating the call will not help.
	ErrBadRequest = errors.New("request rejected")

	// ErrBlocked indicates a site answered with a bot-protection or challenge page.
	ErrBlocked = errors.New("blocked by bot protection")
)

// Error is a classified adapter failure.
type Error struct {
	// Kind is one of the sentinel errors above.
	Kind error

	// Capability that failed (search, traffic, technology, crawl, extract, products).
	Capability string

	// HTTP status code, if a response was received.
	StatusCode int

	// Underlying error.
	Err error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Capability != "" {
		msg = e.Capability + ": " + msg
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Classify maps a transport error or HTTP status onto an adapter error kind.
// It returns nil when there is nothing to report.
func Classify(capability string, err error, statusCode int) error {
	if err == nil && statusCode < http.StatusBadRequest {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return err
	}

	kind := classifyKind(err, statusCode)
	if kind == nil {
		return fmt.Errorf("%s: %w", capability, err)
	}
	return &Error{Kind: kind, Capability: capability, StatusCode: statusCode, Err: err}
}

func classifyKind(err error, statusCode int) error {
	switch {
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return ErrUnauthorized
	case statusCode == http.StatusPaymentRequired:
		return ErrQuotaExceeded
	case statusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case statusCode == http.StatusRequestTimeout, statusCode == http.StatusGatewayTimeout:
		return ErrTimeout
	case statusCode >= http.StatusInternalServerError:
		return ErrUpstreamServer
	}

	if statusCode >= http.StatusBadRequest {
		return ErrBadRequest
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrConnection
	}
	return nil
}

// IsRetryable reports whether a later attempt at the same call may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrUpstreamServer) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnection)
}

// KindLabel returns a short label for metrics and logs.
func KindLabel(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrUpstreamServer):
		return "upstream_server"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrConnection):
		return "connection"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrNoData):
		return "no_data"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrBlocked):
		return "blocked"
	}
	return "other"
}
