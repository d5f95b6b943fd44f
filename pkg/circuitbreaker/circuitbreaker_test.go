package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func testConfig() Config {
	return Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             50 * time.Millisecond,
		HalfOpenMaxRequests: 2,
	}
}

func fail(cb *CircuitBreaker) error {
	return cb.Execute(func() error { return errBoom })
}

func succeed(cb *CircuitBreaker) error {
	return cb.Execute(func() error { return nil })
}

func TestClosedPassesThrough(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	require.NoError(t, succeed(cb))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, fail(cb), errBoom)
	}

	err := cb.Execute(func() error {
		t.Fatal("open breaker must not invoke fn")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	assert.Error(t, fail(cb))
	assert.Error(t, fail(cb))
	require.NoError(t, succeed(cb))
	assert.Error(t, fail(cb))
	assert.Error(t, fail(cb))

	// Still below the threshold thanks to the intervening success.
	require.NoError(t, succeed(cb))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpenProbeClosesAfterSuccesses(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	for i := 0; i < 3; i++ {
		assert.Error(t, fail(cb))
	}
	assert.ErrorIs(t, fail(cb), ErrCircuitBreakerOpen)

	time.Sleep(60 * time.Millisecond)

	require.NoError(t, succeed(cb))
	require.NoError(t, succeed(cb))
	require.NoError(t, succeed(cb))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpenProbeFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	for i := 0; i < 3; i++ {
		assert.Error(t, fail(cb))
	}
	assert.ErrorIs(t, fail(cb), ErrCircuitBreakerOpen)

	time.Sleep(60 * time.Millisecond)

	assert.ErrorIs(t, fail(cb), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())
	assert.ErrorIs(t, succeed(cb), ErrCircuitBreakerOpen)
}

func TestResetReturnsToClosed(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	for i := 0; i < 3; i++ {
		assert.Error(t, fail(cb))
	}
	assert.ErrorIs(t, fail(cb), ErrCircuitBreakerOpen)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	require.NoError(t, succeed(cb))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 2, cfg.SuccessThreshold)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.HalfOpenMaxRequests)
}
