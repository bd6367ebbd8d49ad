package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleRateLimiter_FirstWaitIsImmediate(t *testing.T) {
	limiter := NewSimpleRateLimiter(time.Hour, time.Hour)

	start := time.Now()
	require.NoError(t, limiter.Wait(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestSimpleRateLimiter_RespectsCancellation(t *testing.T) {
	limiter := NewSimpleRateLimiter(time.Hour, time.Hour)
	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := limiter.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAdaptiveRateLimiter_BacksOffAfterErrors(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(2*time.Second, 4*time.Second)

	for i := 0; i < 3; i++ {
		limiter.RecordError()
	}

	min, max := limiter.Delays()
	assert.Equal(t, 3*time.Second, min)
	assert.Equal(t, 6*time.Second, max)
}

func TestAdaptiveRateLimiter_RecoversButNotBelowFloor(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(2*time.Second, 4*time.Second)

	for i := 0; i < 30; i++ {
		limiter.RecordSuccess()
	}

	min, _ := limiter.Delays()
	assert.Equal(t, 2*time.Second, min)
}

func TestJitterBetween(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := jitterBetween(100*time.Millisecond, 200*time.Millisecond, true)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 200*time.Millisecond)
	}

	assert.Equal(t, 100*time.Millisecond, jitterBetween(100*time.Millisecond, 50*time.Millisecond, true))
	assert.Equal(t, 100*time.Millisecond, jitterBetween(100*time.Millisecond, 200*time.Millisecond, false))
}

func TestNoDelay_RecordsRequests(t *testing.T) {
	d := &NoDelay{}

	require.NoError(t, d.Pause(context.Background(), time.Second, 2*time.Second))
	require.NoError(t, d.Pause(context.Background(), 3*time.Second, 4*time.Second))

	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second}, d.Requested)
}

func TestHumanizer_ZeroWindowReturnsImmediately(t *testing.T) {
	h := NewHumanizer()
	start := time.Now()

	require.NoError(t, h.Pause(context.Background(), 0, 0))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
