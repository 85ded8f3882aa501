package netclient

import (
	"context"
	"time"
)

// RetryPolicy wraps a fallible attempt with bounded retries. The attempt
// function receives a zero-based index so the caller can pick a different
// proxy per attempt. Only transport-level errors reach the policy;
// application-level error responses are returned as normal responses and
// handled by the caller's status-code branching.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Do runs attempt until it succeeds or MaxAttempts is reached, waiting
// BaseDelay*(index+1) between attempts. Exhaustion yields a
// RetryExhaustedError wrapping the last error.
func (p RetryPolicy) Do(ctx context.Context, attempt func(index int) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = attempt(i)
		if lastErr == nil {
			return nil
		}
		if i == maxAttempts-1 {
			break
		}

		delay := p.BaseDelay * time.Duration(i+1)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return &RetryExhaustedError{Attempts: maxAttempts, Last: lastErr}
}
