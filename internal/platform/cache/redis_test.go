package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client), mr
}

func TestLockerIsExclusive(t *testing.T) {
	ctx := context.Background()
	locker, _ := newLocker(t)

	lock, err := locker.Acquire(ctx, "sync", time.Minute)
	require.NoError(t, err)
	_, err = locker.Acquire(ctx, "sync", time.Minute)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, lock.Release(ctx))
	again, err := locker.Acquire(ctx, "sync", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestExpiredLockIsNotReleasedByFormerHolder(t *testing.T) {
	ctx := context.Background()
	locker, mr := newLocker(t)

	stale, err := locker.Acquire(ctx, "sync", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	current, err := locker.Acquire(ctx, "sync", time.Minute)
	require.NoError(t, err)
	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists("sync"))

	require.NoError(t, current.Release(ctx))
	assert.False(t, mr.Exists("sync"))
}

func TestNewFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := New(context.Background(), addr)
	require.Error(t, err)
}
