package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBucket(t *testing.T, capacity int, refill float64) *TokenBucket {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewTokenBucket(client, capacity, refill, time.Hour)
}

func TestAllowUserConsumesTokens(t *testing.T) {
	ctx := context.Background()
	bucket := newTestBucket(t, 2, 0)

	allowed, err := bucket.AllowUser(ctx, "staff-1")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = bucket.AllowUser(ctx, "staff-1")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = bucket.AllowUser(ctx, "staff-1")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestAllowUserBucketsArePerUser(t *testing.T) {
	ctx := context.Background()
	bucket := newTestBucket(t, 1, 0)

	allowed, err := bucket.AllowUser(ctx, "staff-1")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = bucket.AllowUser(ctx, "staff-1")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = bucket.AllowUser(ctx, "staff-2")
	require.NoError(t, err)
	assert.True(t, allowed)
}
