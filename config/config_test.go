package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadEnv_Defaults(t *testing.T) {
	cfg := LoadEnv()

	assert.Equal(t, ":8085", cfg.Server.GRPCPort)
	assert.Equal(t, StoreBackendPostgres, cfg.Stock.StoreBackend)
	assert.Equal(t, LockBackendLocal, cfg.Stock.LockBackend)
	assert.Equal(t, 5, cfg.Stock.MaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Stock.ReservationTTL)
	assert.Equal(t, 500*time.Millisecond, cfg.Stock.CacheRedelete)
	assert.Equal(t, 30, cfg.Alert.ExpiryHorizonDays)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("STOCK_STORE_BACKEND", StoreBackendMemory)
	t.Setenv("STOCK_MAX_ATTEMPTS", "3")
	t.Setenv("STOCK_RETRY_BACKOFF", "250ms")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("REDIS_ENABLED", "false")

	cfg := LoadEnv()
	assert.Equal(t, StoreBackendMemory, cfg.Stock.StoreBackend)
	assert.Equal(t, 3, cfg.Stock.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Stock.RetryBackoff)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("STOCK_MAX_ATTEMPTS", "many")
	t.Setenv("STOCK_CACHE_TTL", "soon")
	t.Setenv("TRACING_ENABLED", "maybe")

	cfg := LoadEnv()
	assert.Equal(t, 5, cfg.Stock.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Stock.CacheTTL)
	assert.False(t, cfg.Tracing.Enabled)
}
