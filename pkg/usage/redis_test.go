package usage

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	store, err := NewRedisStore(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store, mr
}

func TestRedisStoreIncrUsage(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.IncrUsage(ctx, "key-1", "gemini-3-flash-preview", 100, 40))
	require.NoError(t, store.IncrUsage(ctx, "key-1", "gemini-3-flash-preview", 50, 10))
	require.NoError(t, store.IncrUsage(ctx, "key-1", "gemini-3-pro-preview", 7, 3))

	assert.Equal(t, "150", mr.HGet("usage:key-1", "gemini-3-flash-preview:input_tokens"))
	assert.Equal(t, "50", mr.HGet("usage:key-1", "gemini-3-flash-preview:output_tokens"))
	assert.Equal(t, "7", mr.HGet("usage:key-1", "gemini-3-pro-preview:input_tokens"))
	assert.Equal(t, "3", mr.HGet("usage:key-1", "gemini-3-pro-preview:output_tokens"))
}

func TestRedisStoreIncrRequests(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, store.IncrRequests(ctx, "key-1"))
	}
	require.NoError(t, store.IncrRequests(ctx, "key-2"))

	assert.Equal(t, "3", mr.HGet("usage:key-1", "requests"))
	assert.Equal(t, "1", mr.HGet("usage:key-2", "requests"))
}

func TestRedisStoreTouchLastUsed(t *testing.T) {
	store, mr := newTestRedisStore(t)

	before := time.Now().Unix()
	require.NoError(t, store.TouchLastUsed(context.Background(), "key-1"))

	stamp, err := strconv.ParseInt(mr.HGet("usage:key-1", "last_used"), 10, 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stamp, before)
	assert.LessOrEqual(t, stamp, time.Now().Unix())
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "not-a-url")
	assert.Error(t, err)
}

func TestNewRedisStoreFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(context.Background(), "redis://"+addr)
	assert.Error(t, err)
}
