package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type flaky struct{ msg string }

func (f flaky) Error() string   { return f.msg }
func (f flaky) Transient() bool { return true }

type throttled struct{ wait time.Duration }

func (throttled) Error() string            { return "throttled" }
func (throttled) Transient() bool          { return true }
func (e throttled) Backoff() time.Duration { return e.wait }

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxRetries: 3, Delay: time.Millisecond}, "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return flaky{"503"}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDo_ExhaustionIsFatal(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxRetries: 3, Delay: time.Millisecond}, "fetch", func(context.Context) error {
		calls++
		return flaky{"timeout"}
	})
	require.Equal(t, 4, calls, "one attempt plus three retries")
	require.True(t, errors.Is(err, ErrRetriesExhausted))
	require.ErrorContains(t, err, "timeout")
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	boom := errors.New("404")
	err := Do(context.Background(), Policy{MaxRetries: 3, Delay: time.Millisecond}, "op", func(context.Context) error {
		calls++
		return boom
	})
	require.Equal(t, 1, calls)
	require.ErrorIs(t, err, boom)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := Do(ctx, Policy{MaxRetries: 3, Delay: time.Hour}, "op", func(context.Context) error {
		cancel()
		return flaky{"x"}
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestValue(t *testing.T) {
	got, err := Value(context.Background(), Policy{MaxRetries: 1, Delay: time.Millisecond}, "op", func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", got)
}

func TestDo_HonorsRequestedBackoff(t *testing.T) {
	calls := 0
	start := time.Now()
	err := Do(context.Background(), Policy{MaxRetries: 1, Delay: time.Millisecond}, "op", func(context.Context) error {
		calls++
		if calls == 1 {
			return throttled{wait: 50 * time.Millisecond}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestDelayFor(t *testing.T) {
	p := Policy{Delay: time.Second}
	require.Equal(t, time.Second, delayFor(p, flaky{"x"}))
	require.Equal(t, time.Second, delayFor(p, throttled{wait: time.Millisecond}))
	require.Equal(t, 9*time.Second, delayFor(p, fmt.Errorf("wrapped: %w", throttled{wait: 9 * time.Second})))
}
