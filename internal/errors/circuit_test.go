package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unavailable() error {
	return New(ErrCodeStorageUnavailable, "bucket unreachable", nil)
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given: a circuit breaker with max 3 failures
	cb := NewCircuitBreaker("bucket", WithMaxFailures(3), WithResetTimeout(time.Second))

	// When: three storage calls fail
	for i := 0; i < 3; i++ {
		_ = cb.Execute(unavailable)
	}

	// Then: the circuit is open and calls fail fast
	assert.Equal(t, StateOpen, cb.State())
	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.False(t, IsRetryable(err))
}

func TestCircuitBreaker_IgnoresNonRetryableErrors(t *testing.T) {
	cb := NewCircuitBreaker("bucket", WithMaxFailures(1))

	err := cb.Execute(func() error { return errors.New("no such key") })

	assert.Error(t, err)
	assert.Equal(t, StateClosed, cb.State())
	assert.Zero(t, cb.Failures())
}

func TestCircuitBreaker_RecoversAfterTimeout(t *testing.T) {
	// Given: an open circuit
	cb := NewCircuitBreaker("bucket", WithMaxFailures(2), WithResetTimeout(50*time.Millisecond))
	for i := 0; i < 2; i++ {
		_ = cb.Execute(unavailable)
	}
	require.Equal(t, StateOpen, cb.State())

	// When: the reset timeout elapses
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	// Then: a successful probe closes it
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Zero(t, cb.Failures())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("bucket", WithMaxFailures(2), WithResetTimeout(50*time.Millisecond))
	for i := 0; i < 2; i++ {
		_ = cb.Execute(unavailable)
	}
	time.Sleep(60 * time.Millisecond)

	err := cb.Execute(unavailable)

	assert.True(t, HasCode(err, ErrCodeStorageUnavailable))
	assert.Equal(t, StateOpen, cb.State())
}

func TestGuard_ReturnsResult(t *testing.T) {
	cb := NewCircuitBreaker("bucket")

	got, err := Guard(cb, func() ([]string, error) { return []string{"a"}, nil })

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(9), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}
