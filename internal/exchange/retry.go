package exchange

import (
	"context"
	"time"
)

// RetryPolicy bounds retries of read-only polls. Orders and cancels never go
// through it.
type RetryPolicy struct {
	Retries int
	Base    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Retries: 2, Base: 500 * time.Millisecond}
}

// Delay is the wait before retry number attempt (0 based). A Retry-After
// hint on the error wins over the linear backoff.
func (p RetryPolicy) Delay(attempt int, err error) time.Duration {
	if exErr := ClassifyTransport(err); exErr != nil && exErr.RetryAfter > 0 {
		return exErr.RetryAfter
	}
	base := p.Base
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	return base * time.Duration(attempt+1)
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// retry budget is spent.
func Do[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= p.Retries; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !Retryable(err) || attempt == p.Retries {
			break
		}
		timer := time.NewTimer(p.Delay(attempt, err))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}
