// Package retry wraps calls to external services (page fetches, storage
// writes) with a fixed-count, fixed-delay retry on transient errors.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var ErrRetriesExhausted = errors.New("retry: request failed after multiple retries")

// Transient is implemented by errors that are worth retrying.
type Transient interface {
	Transient() bool
}

// IsTransient reports whether err (or anything it wraps) is marked transient.
func IsTransient(err error) bool {
	var t Transient
	return errors.As(err, &t) && t.Transient()
}

// Backoff is implemented by errors that carry a server-requested wait,
// such as an HTTP Retry-After header.
type Backoff interface {
	Backoff() time.Duration
}

// delayFor is the policy delay, raised to the error's requested backoff.
func delayFor(p Policy, err error) time.Duration {
	var b Backoff
	if errors.As(err, &b) && b.Backoff() > p.Delay {
		return b.Backoff()
	}
	return p.Delay
}

type Policy struct {
	MaxRetries int           // retries after the first attempt
	Delay      time.Duration // fixed wait between attempts
	Retryable  func(error) bool
	Logger     *slog.Logger
}

// Default is 3 retries, 5 seconds apart.
var Default = Policy{MaxRetries: 3, Delay: 5 * time.Second}

// Do calls fn until it succeeds, returns a non-retryable error, or the retry
// budget is spent. Exhaustion wraps ErrRetriesExhausted and the last error.
func Do(ctx context.Context, p Policy, op string, fn func(context.Context) error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var last error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		last = err
		if attempt == p.MaxRetries {
			break
		}
		delay := delayFor(p, err)
		logger.Warn("transient error, retrying", "op", op, "attempt", attempt+1, "delay", delay, "err", err)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrRetriesExhausted, last)
}

// Value is Do for calls that return a result.
func Value[T any](ctx context.Context, p Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
