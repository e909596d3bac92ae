package infra

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"linkwatch/internal/config"
)

func newTestRateLimiter(t *testing.T, max int64) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := &config.Config{QueueRateLimitMax: max, QueueRateLimitDurationMs: 60_000}
	return NewRateLimiter(client, cfg, "test:dispatch"), mr
}

func TestRateLimiter_AllowsUpToMax(t *testing.T) {
	limiter, _ := newTestRateLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx)
		require.NoError(t, err)
		require.True(t, allowed, "call %d should be allowed", i)
	}

	allowed, err := limiter.Allow(ctx)
	require.NoError(t, err)
	require.False(t, allowed, "4th call should be rejected")
}

func TestRateLimiter_ZeroMaxDisablesLimit(t *testing.T) {
	limiter, _ := newTestRateLimiter(t, 0)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		allowed, err := limiter.Allow(ctx)
		require.NoError(t, err)
		require.True(t, allowed)
	}
}

func TestRateLimiter_NilReceiverAllows(t *testing.T) {
	var limiter *RateLimiter
	allowed, err := limiter.Allow(context.Background())
	require.NoError(t, err)
	require.True(t, allowed)
}
