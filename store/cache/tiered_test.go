package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingCache is an L2 whose writes always fail.
type failingCache struct {
	*LRU
}

func (f failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("l2 down")
}

func TestTiered_PromotesL2Hits(t *testing.T) {
	ctx := context.Background()
	l1 := NewLRU(DefaultLRUConfig())
	l2 := NewLRU(DefaultLRUConfig())
	tc := NewTiered(l1, l2, time.Minute)
	defer tc.Close()

	require.NoError(t, l2.Set(ctx, "k", []byte("from-l2"), 0))

	got, ok := tc.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("from-l2"), got)

	got, ok = l1.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("from-l2"), got)
}

func TestTiered_SetAndInvalidateBothTiers(t *testing.T) {
	ctx := context.Background()
	l1 := NewLRU(DefaultLRUConfig())
	l2 := NewLRU(DefaultLRUConfig())
	tc := NewTiered(l1, l2, time.Minute)
	defer tc.Close()

	require.NoError(t, tc.Set(ctx, "soulmap:u1", []byte("v"), 0))
	assert.Equal(t, 1, l1.Len())
	assert.Equal(t, 1, l2.Len())

	require.NoError(t, tc.Invalidate(ctx, "soulmap:*"))
	assert.Equal(t, 0, l1.Len())
	assert.Equal(t, 0, l2.Len())
}

func TestTiered_L2FailureDoesNotFailSet(t *testing.T) {
	ctx := context.Background()
	l1 := NewLRU(DefaultLRUConfig())
	tc := NewTiered(l1, failingCache{NewLRU(DefaultLRUConfig())}, time.Minute)
	defer tc.Close()

	require.NoError(t, tc.Set(ctx, "k", []byte("v"), 0))
	_, ok := tc.Get(ctx, "k")
	assert.True(t, ok)
}

func TestTiered_WithoutL2(t *testing.T) {
	ctx := context.Background()
	tc := NewTiered(NewLRU(DefaultLRUConfig()), nil, time.Minute)
	defer tc.Close()

	_, ok := tc.Get(ctx, "k")
	assert.False(t, ok)
	require.NoError(t, tc.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, tc.Invalidate(ctx, "k"))
	_, ok = tc.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedis_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()

	cfg := DefaultRedisConfig()
	cfg.Addr = addr
	cfg.KeyPrefix = "soulmap-test:"
	r, err := NewRedis(ctx, cfg)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Set(ctx, "a:1", []byte("x"), time.Minute))
	require.NoError(t, r.Set(ctx, "a:2", []byte("y"), time.Minute))
	got, ok := r.Get(ctx, "a:1")
	require.True(t, ok)
	assert.Equal(t, []byte("x"), got)

	require.NoError(t, r.Invalidate(ctx, "a:*"))
	_, ok = r.Get(ctx, "a:2")
	assert.False(t, ok)
}
