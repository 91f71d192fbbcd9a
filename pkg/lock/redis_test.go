package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fekuna/omnipos-stock-ledger/pkg/cache"
	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := cache.NewRedisClient(&cache.Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLocker(client, RedisLockerConfig{
		Prefix:     "stock:lock:",
		TTL:        time.Second,
		Attempts:   2,
		RetryDelay: time.Millisecond,
	}, logger.NewNop())
	return l, mr
}

func TestRedisLocker_ExclusiveUntilUnlock(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "i1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("stock:lock:i1"))
	assert.Equal(t, time.Second, mr.TTL("stock:lock:i1"))

	_, err = l.Lock(ctx, "i1")
	assert.ErrorIs(t, err, ErrNotAcquired)

	other, err := l.Lock(ctx, "i2")
	require.NoError(t, err)
	other()

	unlock()
	assert.False(t, mr.Exists("stock:lock:i1"))

	again, err := l.Lock(ctx, "i1")
	require.NoError(t, err)
	again()
}

func TestRedisLocker_ExpiredLockCanBeTaken(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	_, err := l.Lock(ctx, "i1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	unlock, err := l.Lock(ctx, "i1")
	require.NoError(t, err)
	unlock()
}

func TestRedisLocker_UnlockLeavesForeignToken(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "i1")
	require.NoError(t, err)

	// expired and taken over by another process
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("stock:lock:i1", "someone-else"))

	unlock()
	got, err := mr.Get("stock:lock:i1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLocker_HonoursContext(t *testing.T) {
	l, _ := newRedisLocker(t)

	unlock, err := l.Lock(context.Background(), "i1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Lock(ctx, "i1")
	assert.ErrorIs(t, err, context.Canceled)
}
