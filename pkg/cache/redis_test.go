package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisClient(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(&Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestRedisClient_GetSetDelete(t *testing.T) {
	c, mr := newRedisClient(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "stock:item:i1", []byte(`{"id":"i1"}`), time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("stock:item:i1"))

	v, ok, err := c.Get(ctx, "stock:item:i1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"id":"i1"}`), v)

	require.NoError(t, c.Delete(ctx, "stock:item:i1"))
	_, ok, err = c.Get(ctx, "stock:item:i1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, c.Delete(ctx))
}

func TestRedisClient_DeleteByPrefix(t *testing.T) {
	c, mr := newRedisClient(t)
	ctx := context.Background()

	// more keys than one SCAN batch
	for i := 0; i < 450; i++ {
		require.NoError(t, mr.Set(fmt.Sprintf("stock:list:t1:%d", i), "x"))
	}
	require.NoError(t, mr.Set("stock:list:t2:all", "x"))
	require.NoError(t, mr.Set("stock:item:i1", "x"))

	require.NoError(t, c.DeleteByPrefix(ctx, "stock:list:t1:"))
	assert.Equal(t, []string{"stock:item:i1", "stock:list:t2:all"}, mr.Keys())

	require.NoError(t, c.DeleteByPrefix(ctx, "nothing:"))
	assert.Len(t, mr.Keys(), 2)
}

func TestRedisClient_Locks(t *testing.T) {
	c, mr := newRedisClient(t)
	ctx := context.Background()

	ok, err := c.AcquireLock(ctx, "lock:i1", "a", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.AcquireLock(ctx, "lock:i1", "b", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, "lock:i1", "b"))
	assert.True(t, mr.Exists("lock:i1"))

	require.NoError(t, c.ReleaseLock(ctx, "lock:i1", "a"))
	assert.False(t, mr.Exists("lock:i1"))
}

func TestNewRedisClient_PingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(&Config{Addr: addr})
	assert.ErrorContains(t, err, "redis ping")
}
