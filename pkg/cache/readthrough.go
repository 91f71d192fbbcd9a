package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const redeleteTimeout = 2 * time.Second

// ReadThrough serves values of type T from a Cache, loading and storing them
// on a miss. Cache failures are logged and fall back to the loader; they never
// fail the read.
//
// A load that overlaps an invalidation is returned to its caller but not
// stored. Loaders in other processes are covered by the optional redelete,
// which repeats every invalidation after a delay.
type ReadThrough[T any] struct {
	cache    Cache
	ttl      time.Duration
	redelete time.Duration
	group    singleflight.Group
	logger   logger.ZapLogger

	mu  sync.Mutex
	gen uint64
}

func NewReadThrough[T any](c Cache, ttl time.Duration, log logger.ZapLogger) *ReadThrough[T] {
	return &ReadThrough[T]{cache: c, ttl: ttl, logger: log}
}

// WithRedelete schedules a second delete d after every invalidation.
func (r *ReadThrough[T]) WithRedelete(d time.Duration) *ReadThrough[T] {
	r.redelete = d
	return r
}

func (r *ReadThrough[T]) Get(ctx context.Context, key string, load func(context.Context) (T, error)) (T, error) {
	if r == nil || r.cache == nil {
		return load(ctx)
	}

	data, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			return v, nil
		}
		r.logger.Warn("cache entry undecodable", zap.String("key", key))
	}

	res, err, _ := r.group.Do(key, func() (interface{}, error) {
		gen := r.generation()
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		r.store(ctx, key, gen, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

func (r *ReadThrough[T]) Invalidate(ctx context.Context, keys ...string) {
	if r == nil || r.cache == nil {
		return
	}
	r.bump()
	del := func(ctx context.Context) error { return r.cache.Delete(ctx, keys...) }
	if err := del(ctx); err != nil {
		r.logger.Warn("cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
	}
	r.later(del, zap.Strings("keys", keys))
}

func (r *ReadThrough[T]) InvalidatePrefix(ctx context.Context, prefix string) {
	if r == nil || r.cache == nil {
		return
	}
	r.bump()
	del := func(ctx context.Context) error { return r.cache.DeleteByPrefix(ctx, prefix) }
	if err := del(ctx); err != nil {
		r.logger.Warn("cache prefix invalidate failed", zap.String("prefix", prefix), zap.Error(err))
	}
	r.later(del, zap.String("prefix", prefix))
}

func (r *ReadThrough[T]) generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

func (r *ReadThrough[T]) bump() {
	r.mu.Lock()
	r.gen++
	r.mu.Unlock()
}

// store writes v unless an invalidation ran since gen was taken. The check
// and the write share the mutex with bump, so a delete always follows any
// write it races with.
func (r *ReadThrough[T]) store(ctx context.Context, key string, gen uint64, v T) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		return
	}
	if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
		r.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *ReadThrough[T]) later(del func(context.Context) error, target zap.Field) {
	if r.redelete <= 0 {
		return
	}
	time.AfterFunc(r.redelete, func() {
		ctx, cancel := context.WithTimeout(context.Background(), redeleteTimeout)
		defer cancel()
		if err := del(ctx); err != nil {
			r.logger.Warn("cache redelete failed", target, zap.Error(err))
		}
	})
}
