package lock

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/pkg/cache"
	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type RedisLockerConfig struct {
	Prefix     string
	TTL        time.Duration
	Attempts   int
	RetryDelay time.Duration
}

// RedisLocker serializes across processes with SET NX plus a token-checked
// delete. The TTL bounds how long a crashed holder can block the key.
type RedisLocker struct {
	client *cache.RedisClient
	cfg    RedisLockerConfig
	logger logger.ZapLogger
}

func NewRedisLocker(client *cache.RedisClient, cfg RedisLockerConfig, log logger.ZapLogger) *RedisLocker {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	return &RedisLocker{client: client, cfg: cfg, logger: log}
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := r.cfg.Prefix + key
	token := uuid.New().String()

	for i := 0; i < r.cfg.Attempts; i++ {
		ok, err := r.client.AcquireLock(ctx, lockKey, token, r.cfg.TTL)
		if err != nil {
			r.logger.Error("failed to acquire lock redis error", zap.String("key", lockKey), zap.Error(err))
		}
		if ok {
			return func() {
				// the caller's ctx may already be cancelled; release regardless
				if err := r.client.ReleaseLock(context.Background(), lockKey, token); err != nil {
					r.logger.Warn("failed to release lock", zap.String("key", lockKey), zap.Error(err))
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.cfg.RetryDelay):
		}
	}
	return nil, ErrNotAcquired
}
