package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is a capped exponential backoff. MaxAttempts of 1 disables retries.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Once never retries
func Once() Policy {
	return Policy{MaxAttempts: 1}
}

// Do runs op until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx is done. onRetry, when set, is called before each wait.
func Do(ctx context.Context, p Policy, retryable func(error) bool, op func() error, onRetry func(err error, wait time.Duration)) error {
	if p.MaxAttempts <= 1 {
		return op()
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0

	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)

	wrapped := func() error {
		err := op()
		if err != nil && retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		if onRetry != nil {
			onRetry(err, wait)
		}
	}

	return backoff.RetryNotify(wrapped, bo, notify)
}
