package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type page struct {
	IDs   []string `json:"ids"`
	Total int      `json:"total"`
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb), mr
}

func TestCache_NilClientIsNoop(t *testing.T) {
	ctx := context.Background()
	c := New(nil)

	found, err := c.GetJSON(ctx, "k", &page{})
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, c.SetJSON(ctx, "k", page{}, time.Minute))
	assert.NoError(t, c.InvalidateFeed(ctx))

	var nilCache *Cache
	found, err = nilCache.GetFeedPage(ctx, 10, 0, &page{})
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestCache_JSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.NoError(t, c.SetJSON(ctx, ViewerKey("u1"), page{IDs: []string{"a"}, Total: 1}, time.Minute))
	assert.True(t, mr.Exists("viewer:u1"))

	var got page
	found, err := c.GetJSON(ctx, ViewerKey("u1"), &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, got.Total)

	mr.FastForward(2 * time.Minute)
	found, err = c.GetJSON(ctx, ViewerKey("u1"), &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_CacheAside(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	calls := 0
	fetch := func(dest *page) func() error {
		return func() error {
			calls++
			dest.Total = 7
			return nil
		}
	}

	var first page
	require.NoError(t, c.CacheAside(ctx, "k", &first, time.Minute, fetch(&first)))
	var second page
	require.NoError(t, c.CacheAside(ctx, "k", &second, time.Minute, fetch(&second)))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 7, second.Total)

	boom := errors.New("boom")
	err := c.CacheAside(ctx, "other", &page{}, time.Minute, func() error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestCache_FeedPages(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.NoError(t, c.SetFeedPage(ctx, 0, 10, 0, page{IDs: []string{"p1"}, Total: 1}, time.Minute))
	require.NoError(t, c.SetFeedPage(ctx, 0, 10, 10, page{Total: 1}, time.Minute))

	var got page
	found, err := c.GetFeedPage(ctx, 10, 0, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"p1"}, got.IDs)

	require.NoError(t, c.InvalidateFeed(ctx))
	assert.False(t, mr.Exists("feed:pages"))
	found, err = c.GetFeedPage(ctx, 10, 10, &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_CacheAsideSkipsWriteBackAfterInvalidate(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	// The source changes and is invalidated while the first read is in flight
	var stale page
	require.NoError(t, c.CacheAside(ctx, ViewerKey("u1"), &stale, time.Minute, func() error {
		stale.Total = 1
		return c.Invalidate(ctx, ViewerKey("u1"))
	}))
	assert.Equal(t, 1, stale.Total)
	assert.False(t, mr.Exists("viewer:u1"))

	var fresh page
	require.NoError(t, c.CacheAside(ctx, ViewerKey("u1"), &fresh, time.Minute, func() error {
		fresh.Total = 2
		return nil
	}))

	var cached page
	found, err := c.GetJSON(ctx, ViewerKey("u1"), &cached)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, cached.Total)
}

func TestCache_SetFeedPageDropsPageFromOldGeneration(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	gen, err := c.FeedGeneration(ctx)
	require.NoError(t, err)
	require.NoError(t, c.InvalidateFeed(ctx))

	require.NoError(t, c.SetFeedPage(ctx, gen, 10, 0, page{Total: 1}, time.Minute))
	assert.False(t, mr.Exists("feed:pages"))

	gen, err = c.FeedGeneration(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
	require.NoError(t, c.SetFeedPage(ctx, gen, 10, 0, page{Total: 2}, time.Minute))

	var got page
	found, err := c.GetFeedPage(ctx, 10, 0, &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, got.Total)
}
