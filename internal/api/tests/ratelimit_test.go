package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultpay/vaultpay-server/internal/api/testutils"
	"github.com/vaultpay/vaultpay-server/internal/security"
)

func TestRateLimiterFixedWindow(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	ctx := context.Background()
	limiter := security.NewRateLimiter(testCtx.Redis, 3)

	// The first N requests in a window pass, the (N+1)-th is rejected
	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "test:bucket")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := limiter.Allow(ctx, "test:bucket")
	require.NoError(t, err)
	assert.False(t, allowed)

	// The counter carries a 60 second expiry set on first use
	ttl := testCtx.Redis.TTL(ctx, "rl:test:bucket").Val()
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 60*time.Second)

	// Once the window expires the count resets
	require.NoError(t, testCtx.Redis.Del(ctx, "rl:test:bucket").Err())
	allowed, err = limiter.Allow(ctx, "test:bucket")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiterIsolatesKeys(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	ctx := context.Background()
	limiter := security.NewRateLimiter(testCtx.Redis, 1)

	allowed, err := limiter.Allow(ctx, "key-a")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.Allow(ctx, "key-a")
	require.NoError(t, err)
	assert.False(t, allowed)

	// A different key has its own window
	allowed, err = limiter.Allow(ctx, "key-b")
	require.NoError(t, err)
	assert.True(t, allowed)
}
