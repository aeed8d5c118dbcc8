package masterinventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestCacheFetchPopulatesOnce(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	calls := 0
	loader := func(context.Context) (MasterInventory, error) {
		calls++
		return MasterInventory{ProductID: 5, TotalQuantity: 12, StockStatus: StatusNormal}, nil
	}

	first, err := cache.FetchJSON(ctx, 5, loader)
	require.NoError(t, err)
	second, err := cache.FetchJSON(ctx, 5, loader)
	require.NoError(t, err)

	require.Equal(t, 1, calls)
	require.Equal(t, 12, second.TotalQuantity)
	require.Equal(t, first.StockStatus, second.StockStatus)
}

func TestCacheInvalidateAndBump(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	calls := 0
	loader := func(context.Context) (MasterInventory, error) {
		calls++
		return MasterInventory{ProductID: 8, TotalQuantity: calls}, nil
	}

	_, err := cache.FetchJSON(ctx, 8, loader)
	require.NoError(t, err)
	require.True(t, mr.Exists("stock:inventory:8:1"))

	require.NoError(t, cache.Invalidate(ctx, 8))
	require.False(t, mr.Exists("stock:inventory:8:1"))

	inv, err := cache.FetchJSON(ctx, 8, loader)
	require.NoError(t, err)
	require.Equal(t, 2, inv.TotalQuantity)

	require.NoError(t, cache.Bump(ctx))
	inv, err = cache.FetchJSON(ctx, 8, loader)
	require.NoError(t, err)
	require.Equal(t, 3, inv.TotalQuantity)
	require.True(t, mr.Exists("stock:inventory:8:2"))
}

func TestNilCachePassesThrough(t *testing.T) {
	var cache *Cache
	boom := errors.New("db down")
	_, err := cache.FetchJSON(context.Background(), 1, func(context.Context) (MasterInventory, error) {
		return MasterInventory{}, boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, cache.Invalidate(context.Background(), 1))
	require.NoError(t, cache.Bump(context.Background()))
}

func TestCacheLoaderErrorIsNotCached(t *testing.T) {
	cache, mr := newTestCache(t)
	_, err := cache.FetchJSON(context.Background(), 3, func(context.Context) (MasterInventory, error) {
		return MasterInventory{}, ErrNotFound
	})
	require.ErrorIs(t, err, ErrNotFound)
	require.False(t, mr.Exists("stock:inventory:3:1"))
}
