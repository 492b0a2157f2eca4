package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedReport struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	in := cachedReport{Symbol: "ETHUSDT", Price: 3005.75}
	require.NoError(t, mc.Set(ctx, "report:latest", in, time.Minute))

	var out cachedReport
	require.NoError(t, mc.Get(ctx, "report:latest", &out))
	assert.Equal(t, in, out)

	ok, err := mc.Exists(ctx, "report:latest")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheMiss(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()

	var out string
	err := mc.Get(context.Background(), "absent", &out)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "short", "value", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	var out string
	assert.ErrorIs(t, mc.Get(ctx, "short", &out), ErrCacheMiss)
}

func TestMemoryCacheEvictsLRU(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	time.Sleep(time.Millisecond)

	// Touch "a" so "b" becomes the eviction candidate.
	var out string
	require.NoError(t, mc.Get(ctx, "a", &out))
	time.Sleep(time.Millisecond)

	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	assert.NoError(t, mc.Get(ctx, "a", &out))
	assert.ErrorIs(t, mc.Get(ctx, "b", &out), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "c", &out))
}

func TestMemoryCacheTryLock(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "lock:cycle", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second claim fails while the lock is held.
	ok, err = mc.TryLock(ctx, "lock:cycle", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mc.Unlock(ctx, "lock:cycle"))

	ok, err = mc.TryLock(ctx, "lock:cycle", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheLockExpires(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "lock:cycle", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	// An expired lock can be re-claimed.
	ok, err = mc.TryLock(ctx, "lock:cycle", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheExpire(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", "v", time.Hour))

	ok, err := mc.Expire(ctx, "k", 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	var out string
	assert.ErrorIs(t, mc.Get(ctx, "k", &out), ErrCacheMiss)

	ok, err = mc.Expire(ctx, "absent", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}
