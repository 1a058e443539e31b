package connector

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMaxRetriesExceeded is returned once a retry loop has exhausted
	// max_retries attempts.
	ErrMaxRetriesExceeded = errors.New("connector: max retries exceeded")
	// ErrTimeout is returned when a per-call timeout expires.
	ErrTimeout = errors.New("connector: timeout")
	// ErrUnexpectedTermination is returned when a subprocess connector's
	// child process exits with a non-zero status.
	ErrUnexpectedTermination = errors.New("connector: process terminated unexpectedly")
)

// backoffDuration is the deterministic, testable backoff sequence:
// 100ms * 2^(retries-1).
func backoffDuration(retries uint32) time.Duration {
	return time.Duration(100*(1<<(retries-1))) * time.Millisecond
}

// runWithRetry runs attempt, retrying the whole call with exponential
// backoff until maxRetries is reached. attempt returns the elapsed time of
// a successful call (folded into the running response-time mean) and an
// error; a nil error marks success and ends the loop.
func runWithRetry(ctx context.Context, maxRetries uint32, tracker *metricsTracker, attempt func() (float64, error)) error {
	var retries uint32
	for {
		elapsedMS, err := attempt()
		if err == nil {
			tracker.recordSuccess(elapsedMS)
			tracker.setHealth(HealthyStatus())
			return nil
		}

		tracker.recordFailure()
		retries++
		if retries >= maxRetries {
			tracker.setHealth(UnhealthyStatus(err.Error()))
			return fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffDuration(retries)):
		}
	}
}
