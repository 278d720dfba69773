// Package retry provides a bounded retry policy for flaky operations.
package retry

import (
	"context"
	"errors"
	"log"
	"time"
)

// retryableError wraps a fault that is worth another attempt.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Transient marks err as retryable. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// Retryable reports whether err (or anything it wraps) was marked Transient.
func Retryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// Policy runs an operation up to Attempts times with a fixed Delay between
// attempts. Only errors marked Transient are retried; anything else is
// returned to the caller immediately.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// Do executes op under the policy. The error of the last attempt is
// returned when the budget is exhausted.
func (p Policy) Do(ctx context.Context, name string, op func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		log.Printf("[warn] %s attempt %d/%d failed: %v", name, attempt, attempts, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay):
		}
	}
	return err
}
