package netclient

import (
	"fmt"
	"time"
)

// TimeoutError reports that a request exceeded its configured time bound.
type TimeoutError struct {
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s", e.Elapsed)
}

// RetryExhaustedError reports that every proxy-rotated attempt failed at the
// transport level. It wraps the last attempt's error.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}
