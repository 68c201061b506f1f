package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetryer(policy RetryPolicy) *Retryer {
	r := NewRetryer(policy, NewDedupeGuard(), nil)
	r.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return r
}

func TestRetryer_RetriesTransientErrors(t *testing.T) {
	r := newTestRetryer(RetryPolicy{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	calls := 0
	err := r.Do(context.Background(), "op", nil, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &APIError{Status: 429, Op: "op"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryer_SurfacesFinalErrorUnchanged(t *testing.T) {
	r := newTestRetryer(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	final := &APIError{Status: 503, Op: "op", Message: "down"}
	calls := 0
	err := r.Do(context.Background(), "op", nil, func(ctx context.Context) error {
		calls++
		return final
	})
	assert.Equal(t, 3, calls)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 503, apiErr.Status)
	assert.Equal(t, "down", apiErr.Message)
}

func TestRetryer_NeverRetriesAuthFailures(t *testing.T) {
	r := newTestRetryer(RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	calls := 0
	err := r.Do(context.Background(), "op", nil, func(ctx context.Context) error {
		calls++
		return &APIError{Status: 403, Op: "op"}
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, ErrAuth)
}

func TestRetryer_NeverRetriesClientErrors(t *testing.T) {
	r := newTestRetryer(RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	calls := 0
	err := r.Do(context.Background(), "op", nil, func(ctx context.Context) error {
		calls++
		return &APIError{Status: 400, Op: "op", Message: "bad payload"}
	})
	assert.Equal(t, 1, calls)
	require.Error(t, err)
}

func TestRetryer_NetworkErrorsAreTransient(t *testing.T) {
	r := newTestRetryer(RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	calls := 0
	err := r.Do(context.Background(), "op", nil, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryer_IdempotencyConflict(t *testing.T) {
	r := newTestRetryer(RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	// Pin the clock so both calls land in the same key bucket.
	now := time.Now()
	r.now = func() time.Time { return now }

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- r.Do(context.Background(), "addRows", []string{"77"}, func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	err := r.Do(context.Background(), "addRows", []string{"77"}, func(ctx context.Context) error {
		t.Error("duplicate call must not reach the remote")
		return nil
	})
	assert.ErrorIs(t, err, ErrIdempotencyConflict)

	close(release)
	require.NoError(t, <-done)

	// After the first call finishes, the key is released.
	err = r.Do(context.Background(), "addRows", []string{"77"}, func(ctx context.Context) error { return nil })
	require.NoError(t, err)
}

func TestRetryer_DistinctKeysDoNotConflict(t *testing.T) {
	guard := NewDedupeGuard()
	require.NoError(t, guard.Acquire("addRows|1|0"))
	assert.NoError(t, guard.Acquire("addRows|2|0"))
	assert.ErrorIs(t, guard.Acquire("addRows|1|0"), ErrIdempotencyConflict)
	guard.Release("addRows|1|0")
	assert.NoError(t, guard.Acquire("addRows|1|0"))
}

func TestRetryer_BackoffCappedAtMaxDelay(t *testing.T) {
	r := NewRetryer(RetryPolicy{MaxAttempts: 10, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}, NewDedupeGuard(), nil)

	var delays []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	calls := 0
	_ = r.Do(context.Background(), "op", nil, func(ctx context.Context) error {
		calls++
		return &APIError{Status: 500}
	})
	require.Equal(t, 10, calls)
	assert.Equal(t, 500*time.Millisecond, delays[0])
	assert.Equal(t, time.Second, delays[1])
	for _, d := range delays {
		assert.LessOrEqual(t, d, 8*time.Second)
	}
	assert.Equal(t, 8*time.Second, delays[len(delays)-1])
}

func TestRetryer_ContextCancelStopsRetries(t *testing.T) {
	r := NewRetryer(RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, NewDedupeGuard(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.Do(ctx, "op", nil, func(ctx context.Context) error {
		calls++
		cancel()
		return &APIError{Status: 500}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
