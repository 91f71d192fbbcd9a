package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_TTL(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_DeleteByPrefix(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "stock:list:t1:a", []byte("1"), 0)
	_ = c.Set(ctx, "stock:list:t1:b", []byte("2"), 0)
	_ = c.Set(ctx, "stock:list:t2:a", []byte("3"), 0)

	require.NoError(t, c.DeleteByPrefix(ctx, "stock:list:t1:"))

	_, ok, _ := c.Get(ctx, "stock:list:t1:a")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "stock:list:t1:b")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "stock:list:t2:a")
	assert.True(t, ok)
}

type sample struct {
	Name  string
	Count int
}

func TestReadThrough_LoadsOnceThenServesFromCache(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	rt := NewReadThrough[*sample](c, time.Minute, logger.NewNop())
	ctx := context.Background()

	var loads int32
	load := func(context.Context) (*sample, error) {
		atomic.AddInt32(&loads, 1)
		return &sample{Name: "x", Count: 3}, nil
	}

	for i := 0; i < 3; i++ {
		v, err := rt.Get(ctx, "key", load)
		require.NoError(t, err)
		assert.Equal(t, "x", v.Name)
		assert.Equal(t, 3, v.Count)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))

	rt.Invalidate(ctx, "key")
	_, err := rt.Get(ctx, "key", load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&loads))
}

func TestReadThrough_LoaderErrorNotCached(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	rt := NewReadThrough[*sample](c, time.Minute, logger.NewNop())
	ctx := context.Background()

	boom := errors.New("boom")
	_, err := rt.Get(ctx, "key", func(context.Context) (*sample, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	_, ok, _ := c.Get(ctx, "key")
	assert.False(t, ok)
}

func TestReadThrough_ConcurrentMissesCollapse(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	rt := NewReadThrough[int](c, time.Minute, logger.NewNop())
	ctx := context.Background()

	var loads int32
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := rt.Get(ctx, "k", load)
			assert.NoError(t, err)
			assert.Equal(t, 7, v)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&loads), int32(2))
}

func TestReadThrough_NilCacheBypasses(t *testing.T) {
	rt := NewReadThrough[int](nil, time.Minute, logger.NewNop())
	v, err := rt.Get(context.Background(), "k", func(context.Context) (int, error) { return 5, nil })
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestReadThrough_InvalidateDuringLoadSkipsStore(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	rt := NewReadThrough[int](c, time.Minute, logger.NewNop())
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)
	go func() {
		v, err := rt.Get(ctx, "k", func(context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		assert.NoError(t, err)
		done <- v
	}()

	<-started
	rt.Invalidate(ctx, "k")
	close(release)
	assert.Equal(t, 1, <-done)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "value loaded before the invalidation must not be cached")

	v, err := rt.Get(ctx, "k", func(context.Context) (int, error) { return 2, nil })
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	_, ok, _ = c.Get(ctx, "k")
	assert.True(t, ok)
}

func TestReadThrough_RedeleteRemovesLateWrite(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	rt := NewReadThrough[int](c, time.Minute, logger.NewNop()).WithRedelete(20 * time.Millisecond)
	ctx := context.Background()

	rt.Invalidate(ctx, "k")
	rt.InvalidatePrefix(ctx, "list:")

	// stale writes from loaders this instance cannot see
	require.NoError(t, c.Set(ctx, "k", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "list:t1", []byte("[1]"), time.Minute))

	require.Eventually(t, func() bool {
		_, okKey, _ := c.Get(ctx, "k")
		_, okList, _ := c.Get(ctx, "list:t1")
		return !okKey && !okList
	}, time.Second, 5*time.Millisecond)
}
