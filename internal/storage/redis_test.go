package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisCacheWithClient(client)
	t.Cleanup(func() { cache.Close() })
	return cache, mr
}

func TestAcquireRunLock(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	token, err := cache.AcquireRunLock(ctx, "int-1", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	stored, err := mr.Get("pipeline:lock:int-1")
	require.NoError(t, err)
	assert.Equal(t, token, stored)

	// A second acquisition while the lock is held returns no token.
	second, err := cache.AcquireRunLock(ctx, "int-1", time.Minute)
	require.NoError(t, err)
	assert.Empty(t, second)

	// Locks are scoped per integration.
	other, err := cache.AcquireRunLock(ctx, "int-2", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, other)
}

func TestAcquireRunLockAfterExpiry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	token, err := cache.AcquireRunLock(ctx, "int-1", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	mr.FastForward(2 * time.Minute)

	again, err := cache.AcquireRunLock(ctx, "int-1", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, again)
	assert.NotEqual(t, token, again)
}

func TestReleaseRunLock(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	token, err := cache.AcquireRunLock(ctx, "int-1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, cache.ReleaseRunLock(ctx, "int-1", token))

	again, err := cache.AcquireRunLock(ctx, "int-1", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, again)
}

func TestReleaseRunLockWrongTokenKeepsLock(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	token, err := cache.AcquireRunLock(ctx, "int-1", time.Minute)
	require.NoError(t, err)

	// A stale holder must not release a lock it no longer owns.
	require.NoError(t, cache.ReleaseRunLock(ctx, "int-1", "stale-token"))

	stored, err := mr.Get("pipeline:lock:int-1")
	require.NoError(t, err)
	assert.Equal(t, token, stored)
}

func TestCacheSetGetDel(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "metrics:int-1:2024-01-01", `{"revenue":"10.00"}`, time.Minute))

	value, err := cache.Get(ctx, "metrics:int-1:2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, `{"revenue":"10.00"}`, value)

	exists, err := cache.Exists(ctx, "metrics:int-1:2024-01-01")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, cache.Del(ctx, "metrics:int-1:2024-01-01"))

	_, err = cache.Get(ctx, "metrics:int-1:2024-01-01")
	assert.ErrorIs(t, err, redis.Nil)
}
