// Package retrypolicy wraps retry-go with a small, reusable policy type so
// call sites share one definition of bounded exponential backoff with jitter
// instead of hand-rolling sleep loops.
package retrypolicy

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// Policy describes a bounded retry loop. The zero value is not usable;
// construct with New or fill all fields.
type Policy struct {
	Attempts  uint          // total attempts, including the first
	BaseDelay time.Duration // delay before the second attempt; doubles each retry
	MaxJitter time.Duration // upper bound of random jitter added per delay
}

// New returns a policy, substituting defaults for zero fields.
func New(attempts uint, baseDelay, maxJitter time.Duration) Policy {
	if attempts == 0 {
		attempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxJitter <= 0 {
		maxJitter = 500 * time.Millisecond
	}
	return Policy{Attempts: attempts, BaseDelay: baseDelay, MaxJitter: maxJitter}
}

// Do runs op until it succeeds, attempts are exhausted, or ctx is done.
// Only the last error is returned.
func (p Policy) Do(ctx context.Context, op func() error) error {
	return retry.Do(
		op,
		retry.Context(ctx),
		retry.Attempts(p.Attempts),
		retry.Delay(p.BaseDelay),
		retry.MaxJitter(p.MaxJitter),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
	)
}

// DoWithNotify is Do with a callback invoked after each failed attempt,
// used by callers that log between attempts.
func (p Policy) DoWithNotify(ctx context.Context, op func() error, onRetry func(attempt uint, err error)) error {
	return retry.Do(
		op,
		retry.Context(ctx),
		retry.Attempts(p.Attempts),
		retry.Delay(p.BaseDelay),
		retry.MaxJitter(p.MaxJitter),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if onRetry != nil {
				onRetry(n, err)
			}
		}),
	)
}
