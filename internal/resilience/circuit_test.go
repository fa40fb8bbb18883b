package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream unavailable")

func tripBreaker(cb *CircuitBreaker, failures int) {
	for i := 0; i < failures; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error {
			return errUpstream
		})
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3})

	tripBreaker(cb, 2)
	assert.Equal(t, CircuitClosed, cb.State())

	tripBreaker(cb, 1)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_RejectsWhileOpen(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1})
	tripBreaker(cb, 1)

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})

	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3})

	tripBreaker(cb, 2)
	require.NoError(t, cb.Execute(context.Background(), func(context.Context) error {
		return nil
	}))

	// The streak restarted, so two more failures keep the circuit closed.
	tripBreaker(cb, 2)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     30 * time.Second,
	})
	cb.now = func() time.Time { return now }

	tripBreaker(cb, 1)
	assert.Equal(t, CircuitOpen, cb.State())

	now = now.Add(31 * time.Second)
	assert.Equal(t, CircuitHalfOpen, cb.State())
}

func TestCircuitBreaker_ProbeSuccessCloses(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Second,
	})
	cb.now = func() time.Time { return now }

	tripBreaker(cb, 1)
	now = now.Add(2 * time.Second)

	require.NoError(t, cb.Execute(context.Background(), func(context.Context) error {
		return nil
	}))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_ProbeFailureReopens(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Second,
	})
	cb.now = func() time.Time { return now }

	tripBreaker(cb, 1)
	now = now.Add(2 * time.Second)

	tripBreaker(cb, 1)
	assert.Equal(t, CircuitOpen, cb.State())

	err := cb.Execute(context.Background(), func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_ShouldTripFiltersErrors(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ShouldTrip:       IsTransient,
	})

	// A permanent error passes through without tripping the breaker.
	err := cb.Execute(context.Background(), func(context.Context) error {
		return errors.New("invalid request")
	})
	require.Error(t, err)
	assert.Equal(t, CircuitClosed, cb.State())

	err = cb.Execute(context.Background(), func(context.Context) error {
		return NewTransientError(errUpstream, 503)
	})
	require.Error(t, err)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()

	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	tripBreaker(cb, 1)
	cb.Reset()

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, []string{"closed->open", "open->closed"}, transitions)
}

func TestExecuteVal(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1})

	val, err := ExecuteVal(context.Background(), cb, func(context.Context) (string, error) {
		return "embedding", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "embedding", val)

	tripBreaker(cb, 1)
	val, err = ExecuteVal(context.Background(), cb, func(context.Context) (string, error) {
		return "unreachable", nil
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Empty(t, val)
}

func TestCircuitState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}
