package authz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRateLimiterAllowsWithinBurst(t *testing.T) {
	limiter := NewMemoryRateLimiter(DefaultRateLimitConfig())
	for i := 0; i < 10; i++ {
		assert.NoError(t, limiter.Allow(context.Background(), "client1"))
	}
}

func TestMemoryRateLimiterExhaustsBurst(t *testing.T) {
	limiter := NewMemoryRateLimiter(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})
	for i := 0; i < 5; i++ {
		_ = limiter.Allow(context.Background(), "client1")
	}
	err := limiter.Allow(context.Background(), "client1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestMemoryRateLimiterRefillsOverTime(t *testing.T) {
	limiter := NewMemoryRateLimiter(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})
	for i := 0; i < 5; i++ {
		_ = limiter.Allow(context.Background(), "client1")
	}
	time.Sleep(200 * time.Millisecond)
	assert.NoError(t, limiter.Allow(context.Background(), "client1"))
}

func TestMemoryRateLimiterIsPerClient(t *testing.T) {
	limiter := NewMemoryRateLimiter(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 2})
	_ = limiter.Allow(context.Background(), "client1")
	_ = limiter.Allow(context.Background(), "client1")
	assert.Error(t, limiter.Allow(context.Background(), "client1"))
	assert.NoError(t, limiter.Allow(context.Background(), "client2"))
}

func TestMemoryRateLimiterReset(t *testing.T) {
	limiter := NewMemoryRateLimiter(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 1})
	_ = limiter.Allow(context.Background(), "client1")
	require.Error(t, limiter.Allow(context.Background(), "client1"))

	require.NoError(t, limiter.Reset(context.Background(), "client1"))
	assert.NoError(t, limiter.Allow(context.Background(), "client1"))
}
