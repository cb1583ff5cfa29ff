package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryFixed calls fn up to attempts times, waiting delay between failures.
// An error wrapped with backoff.Permanent ends the loop at once and is
// returned unwrapped. A done ctx also ends it.
func retryFixed(ctx context.Context, attempts int, delay time.Duration, fn func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)),
		ctx,
	)
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		return fn(attempt)
	}, policy)
}
