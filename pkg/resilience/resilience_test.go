package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestCircuitBreakerTrips(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     20 * time.Millisecond,
		OnStateChange: func(_ string, _, to State) {
			transitions = append(transitions, to)
		},
	})

	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})
	_ = cb.Execute(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.NoError(t, cb.Execute(func() error { return nil }))
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 2})
	_ = cb.Execute(func() error { return errBoom })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errBoom })
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	t.Run("succeeds after failures", func(t *testing.T) {
		var calls atomic.Int32
		err := Retry(context.Background(), "op", cfg, func() error {
			if calls.Add(1) < 3 {
				return errBoom
			}
			return nil
		})
		require.NoError(t, err)
		assert.EqualValues(t, 3, calls.Load())
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		var calls atomic.Int32
		err := Retry(context.Background(), "op", cfg, func() error {
			calls.Add(1)
			return errBoom
		})
		assert.ErrorIs(t, err, errBoom)
		assert.Contains(t, err.Error(), "all 3 attempts failed for op")
		assert.EqualValues(t, 3, calls.Load())
	})

	t.Run("permanent failure stops", func(t *testing.T) {
		var calls atomic.Int32
		permanent := errors.Join(ErrPermanent, errBoom)
		err := Retry(context.Background(), "op", cfg, func() error {
			calls.Add(1)
			return permanent
		})
		assert.Equal(t, permanent, err)
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("retryable predicate", func(t *testing.T) {
		var calls atomic.Int32
		only := cfg
		only.Retryable = func(err error) bool { return false }
		err := Retry(context.Background(), "op", only, func() error {
			calls.Add(1)
			return errBoom
		})
		assert.Equal(t, errBoom, err)
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Retry(ctx, "op", cfg, func() error { return errBoom })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestComputeDelayCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2, JitterFraction: 0.1}
	first := computeDelay(1, cfg)
	assert.InDelta(t, float64(100*time.Millisecond), float64(first), float64(10*time.Millisecond))
	assert.Equal(t, 300*time.Millisecond, computeDelay(10, cfg))
}

func TestCall(t *testing.T) {
	v, err := Call(context.Background(), 50*time.Millisecond, "fast", func(ctx context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = Call(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		return 1, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "slow")

	v, err = Call(context.Background(), 0, "direct", func(ctx context.Context) (int, error) {
		_, has := ctx.Deadline()
		assert.False(t, has)
		return 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestWithTimeoutParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithTimeout(ctx, time.Second, "op", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "parent context cancelled")
}
