package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	policy := Policy{Attempts: 3, Delay: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return Transient(errors.New("flaky"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	policy := Policy{Attempts: 3, Delay: time.Millisecond}
	fatal := errors.New("invalid credentials")

	calls := 0
	err := policy.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return fatal
	})

	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls, "non-retryable errors must not consume the retry budget")
}

func TestDoExhaustsBudget(t *testing.T) {
	policy := Policy{Attempts: 3, Delay: time.Millisecond}
	flaky := errors.New("still down")

	calls := 0
	err := policy.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return Transient(flaky)
	})

	require.ErrorIs(t, err, flaky)
	assert.Equal(t, 3, calls)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	policy := Policy{Attempts: 5, Delay: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := policy.Do(ctx, "op", func(context.Context) error {
		calls++
		return Transient(errors.New("flaky"))
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(errors.New("plain")))
	assert.True(t, Retryable(Transient(errors.New("flaky"))))
	assert.Nil(t, Transient(nil))

	// Wrapping a transient error keeps it retryable.
	wrapped := Transient(errors.New("inner"))
	assert.True(t, Retryable(fmt.Errorf("outer: %w", wrapped)))
}
