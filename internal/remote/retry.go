package remote

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DedupeGuard tracks in-flight operations by idempotency key. It is an
// explicit dependency (constructed once per process, passed into the
// retryer) so tests can instantiate a fresh one per case. The guard is
// process-local and time-salted: it catches accidental immediate
// double-submission within one process, nothing more.
type DedupeGuard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewDedupeGuard() *DedupeGuard {
	return &DedupeGuard{inflight: make(map[string]struct{})}
}

// Acquire registers the key, failing fast if an identical operation is
// already in flight.
func (g *DedupeGuard) Acquire(key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.inflight[key]; ok {
		return fmt.Errorf("%w: %s", ErrIdempotencyConflict, key)
	}
	g.inflight[key] = struct{}{}
	return nil
}

func (g *DedupeGuard) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, key)
}

// RetryPolicy bounds the retry loop. BaseDelay doubles each attempt and is
// capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
	}
}

// Retryer executes remote operations with bounded exponential backoff, a
// client-side rate limiter and an idempotency guard. Callers receive either
// the successful result or the final error after exhausting retries;
// in-between states are never exposed.
type Retryer struct {
	policy  RetryPolicy
	guard   *DedupeGuard
	limiter *rate.Limiter

	// now and sleep are swappable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetryer(policy RetryPolicy, guard *DedupeGuard, limiter *rate.Limiter) *Retryer {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	if guard == nil {
		guard = NewDedupeGuard()
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Retryer{
		policy:  policy,
		guard:   guard,
		limiter: limiter,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Do runs fn under the retry policy. The idempotency key is derived from the
// operation name, its parameters and the issue time (bucketed to one second),
// so a repeated identical call while the first is still in flight fails fast
// with ErrIdempotencyConflict.
func (r *Retryer) Do(ctx context.Context, op string, keyParts []string, fn func(ctx context.Context) error) error {
	key := r.idempotencyKey(op, keyParts)
	if err := r.guard.Acquire(key); err != nil {
		return err
	}
	defer r.guard.Release(key)

	var lastErr error
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := r.backoff(attempt)
			log.Printf("[remote] op=%s attempt=%d retrying in %s: %v", op, attempt+1, delay, lastErr)
			if err := r.sleep(ctx, delay); err != nil {
				return err
			}
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}

	// The final attempt's error is surfaced unchanged.
	return lastErr
}

func (r *Retryer) idempotencyKey(op string, parts []string) string {
	bucket := r.now().Truncate(time.Second).Unix()
	return fmt.Sprintf("%s|%s|%d", op, strings.Join(parts, ","), bucket)
}

func (r *Retryer) backoff(attempt int) time.Duration {
	d := r.policy.BaseDelay << (attempt - 1)
	if d > r.policy.MaxDelay {
		return r.policy.MaxDelay
	}
	return d
}

// retryable reports whether the error represents a transient fault.
// Auth failures and non-429 client errors indicate a malformed request or
// rejected credential and are never retried.
func retryable(err error) bool {
	if errors.Is(err, ErrAuth) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == 429 || apiErr.Status >= 500
	}
	// Network-level failures are treated as transient.
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
