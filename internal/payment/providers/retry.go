package providers

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultMaxAttempts bounds every provider call: the first attempt plus
	// two retries. Only transport faults are retried; business declines are
	// returned as backoff.Permanent by the caller.
	DefaultMaxAttempts = 3

	// DefaultRetryInterval is the first backoff delay; it doubles per attempt.
	DefaultRetryInterval = time.Second
)

// RetryTransport runs op with deterministic exponential backoff. The retry
// budget is also bounded by ctx, so a slow provider cannot hang initiation.
func RetryTransport[T any](ctx context.Context, initialInterval time.Duration, maxAttempts uint, op backoff.Operation[T]) (T, error) {
	if initialInterval <= 0 {
		initialInterval = DefaultRetryInterval
	}
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initialInterval
	policy.RandomizationFactor = 0
	policy.Multiplier = 2

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(maxAttempts),
	)
}
