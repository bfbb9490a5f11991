package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roniherschmann/shorty-redirect/internal/store"
)

type statsCache interface {
	Get(ctx context.Context, linkID int64) (store.Counters, bool, error)
	Put(ctx context.Context, linkID int64, c store.Counters, ttl time.Duration) error
}

func runCacheContract(t *testing.T, c statsCache) {
	ctx := context.Background()
	last := time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)

	t.Run("miss", func(t *testing.T) {
		_, ok, err := c.Get(ctx, 404)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("put then get", func(t *testing.T) {
		want := store.Counters{TotalClicks: 3, UniqueClicks: 2, LastClickAt: &last}
		require.NoError(t, c.Put(ctx, 1, want, time.Minute))

		got, ok, err := c.Get(ctx, 1)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(3), got.TotalClicks)
		assert.Equal(t, int64(2), got.UniqueClicks)
		require.NotNil(t, got.LastClickAt)
		assert.True(t, last.Equal(*got.LastClickAt))
	})

	t.Run("no last click", func(t *testing.T) {
		require.NoError(t, c.Put(ctx, 2, store.Counters{}, time.Minute))
		got, ok, err := c.Get(ctx, 2)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Nil(t, got.LastClickAt)
	})

	t.Run("never goes backwards", func(t *testing.T) {
		require.NoError(t, c.Put(ctx, 3, store.Counters{TotalClicks: 10, UniqueClicks: 4}, time.Minute))
		require.NoError(t, c.Put(ctx, 3, store.Counters{TotalClicks: 9, UniqueClicks: 4}, time.Minute))
		got, ok, err := c.Get(ctx, 3)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(10), got.TotalClicks)

		require.NoError(t, c.Put(ctx, 3, store.Counters{TotalClicks: 11, UniqueClicks: 5}, time.Minute))
		got, _, err = c.Get(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(11), got.TotalClicks)
	})

	t.Run("expired entries are not served", func(t *testing.T) {
		require.NoError(t, c.Put(ctx, 4, store.Counters{TotalClicks: 1}, 50*time.Millisecond))
		_, ok, err := c.Get(ctx, 4)
		require.NoError(t, err)
		require.True(t, ok)

		time.Sleep(120 * time.Millisecond)
		_, ok, err = c.Get(ctx, 4)
		require.NoError(t, err)
		assert.False(t, ok)

		// a lower total may land once the old entry is gone
		require.NoError(t, c.Put(ctx, 4, store.Counters{TotalClicks: 0}, time.Minute))
		_, ok, err = c.Get(ctx, 4)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
