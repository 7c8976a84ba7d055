// Package ratelimit provides request pacing and retry with backoff for
// the remote API clients.
//
// Both remote APIs throttle aggressively, so every outbound call goes
// through a Limiter: a token bucket spaces the calls, and transient
// failures (timeouts, 429, 5xx) are retried with capped exponential
// backoff. Permanent failures are returned immediately.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// TransientError wraps a failure worth retrying. RetryAfter, when
// non-zero, carries a server-provided wait hint that overrides the
// computed backoff.
type TransientError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient marks err as retryable.
func Transient(err error) error {
	return &TransientError{Err: err}
}

// TransientAfter marks err as retryable with a wait hint (typically from a
// Retry-After header).
func TransientAfter(err error, wait time.Duration) error {
	return &TransientError{Err: err, RetryAfter: wait}
}

// IsTransient reports whether err, or anything it wraps, is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Policy configures pacing and retry behavior.
type Policy struct {
	APIDelay          time.Duration // minimum spacing between calls
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultPolicy returns the policy used for both remote APIs unless a
// client overrides it.
func DefaultPolicy() *Policy {
	return &Policy{
		APIDelay:          200 * time.Millisecond,
		MaxAttempts:       4,
		InitialBackoff:    500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// Limiter paces calls through a token bucket and retries transient
// failures per its Policy. A zero-value Limiter is not usable; construct
// with New.
type Limiter struct {
	limiter *rate.Limiter
	policy  *Policy
}

// New creates a Limiter. A nil policy selects DefaultPolicy.
func New(policy *Policy) *Limiter {
	if policy == nil {
		policy = DefaultPolicy()
	}
	rps := float64(time.Second) / float64(policy.APIDelay)
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		policy:  policy,
	}
}

// Wait blocks until the token bucket allows the next call.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// backoffFor computes the wait before retrying attempt (0-based). A
// server-provided RetryAfter hint wins over the exponential schedule.
func (l *Limiter) backoffFor(attempt int, err error) time.Duration {
	var te *TransientError
	if errors.As(err, &te) && te.RetryAfter > 0 {
		if te.RetryAfter > l.policy.MaxBackoff {
			return l.policy.MaxBackoff
		}
		return te.RetryAfter
	}

	wait := l.policy.InitialBackoff
	for i := 0; i < attempt; i++ {
		wait = time.Duration(float64(wait) * l.policy.BackoffMultiplier)
		if wait >= l.policy.MaxBackoff {
			return l.policy.MaxBackoff
		}
	}
	return wait
}

// Execute runs fn with pacing and retries. Transient errors are retried
// up to MaxAttempts; anything else is returned as-is on first failure.
func (l *Limiter) Execute(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < l.policy.MaxAttempts; attempt++ {
		if err := l.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err

		// No retry follows the final attempt, so no backoff either.
		if attempt == l.policy.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.backoffFor(attempt, err)):
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", l.policy.MaxAttempts, lastErr)
}
