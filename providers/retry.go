// ABOUTME: Bounded retry combinator for provider calls
// ABOUTME: Retries transient and rate-limited failures with exponential backoff
package providers

import (
	"context"
	"time"
)

const (
	defaultMaxAttempts = 3
	baseBackoff        = 500 * time.Millisecond
	maxBackoff         = 30 * time.Second
)

// Retry runs fn up to maxAttempts times, backing off exponentially
// between attempts. Only transient-network and rate-limited errors are
// retried; auth, reconnect, and fatal errors return immediately.
func Retry(ctx context.Context, maxAttempts int, fn func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if waitErr := sleepBackoff(ctx, attempt); waitErr != nil {
				return waitErr
			}
		}

		err = fn()
		if err == nil {
			return nil
		}
		if !Retryable(KindOf(err)) {
			return err
		}
	}

	return err
}

func sleepBackoff(ctx context.Context, attempt int) error {
	backoff := baseBackoff << (attempt - 1)
	if backoff > maxBackoff {
		backoff = maxBackoff
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(backoff):
		return nil
	}
}
