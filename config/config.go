package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"

	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

type Config struct {
	Server   ServerConfig
	Logger   LoggerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Stock    StockConfig
	Alert    AlertConfig
	Tracing  TracingConfig
}

type ServerConfig struct {
	AppEnv      string
	GRPCPort    string
	MetricsPort string
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	ConnMaxIdleTime int
	MigrateOnStart  bool
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Enabled     bool
	Brokers     []string
	OrderTopic  string
	LedgerTopic string
	GroupID     string
}

type StockConfig struct {
	StoreBackend     string
	LockBackend      string
	LockTTL          time.Duration
	MaxAttempts      int
	RetryBackoff     time.Duration
	ReservationTTL   time.Duration
	CacheTTL         time.Duration
	CacheRedelete    time.Duration
	JanitorInterval  time.Duration
	JanitorBatchSize int
}

type AlertConfig struct {
	ExpiryHorizonDays int
}

type TracingConfig struct {
	Enabled  bool
	Endpoint string
}

func LoadEnv() *Config {
	return &Config{
		Server: ServerConfig{
			AppEnv:      getEnv("APP_ENV", "dev"),
			GRPCPort:    getEnv("GRPC_PORT", ":8085"),
			MetricsPort: getEnv("METRICS_PORT", ":9095"),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "debug"),
			Encoding:          getEnv("LOGGER_ENCODING", "console"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		Postgres: PostgresConfig{
			Host:            getEnv("POSTGRES_HOST", "localhost"),
			Port:            getEnv("POSTGRES_PORT", "5433"),
			User:            getEnv("POSTGRES_USER", "omnipos"),
			Password:        getEnv("POSTGRES_PASSWORD", "omnipos"),
			DBName:          getEnv("POSTGRES_DB", "omnipos_stock"),
			SSLMode:         getEnv("POSTGRES_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("POSTGRES_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvInt("POSTGRES_CONN_MAX_LIFETIME", 300),
			ConnMaxIdleTime: getEnvInt("POSTGRES_CONN_MAX_IDLE_TIME", 60),
			MigrateOnStart:  getEnvBool("POSTGRES_MIGRATE_ON_START", true),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled:     getEnvBool("KAFKA_ENABLED", true),
			Brokers:     getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			OrderTopic:  getEnv("KAFKA_TOPIC_ORDERS", "orders.events"),
			LedgerTopic: getEnv("KAFKA_TOPIC_LEDGER", "stock.ledger"),
			GroupID:     getEnv("KAFKA_GROUP_STOCK", "stock-ledger"),
		},
		Stock: StockConfig{
			StoreBackend:     getEnv("STOCK_STORE_BACKEND", StoreBackendPostgres),
			LockBackend:      getEnv("STOCK_LOCK_BACKEND", LockBackendLocal),
			LockTTL:          getEnvDuration("STOCK_LOCK_TTL", 5*time.Second),
			MaxAttempts:      getEnvInt("STOCK_MAX_ATTEMPTS", 5),
			RetryBackoff:     getEnvDuration("STOCK_RETRY_BACKOFF", 10*time.Millisecond),
			ReservationTTL:   getEnvDuration("STOCK_RESERVATION_TTL", 15*time.Minute),
			CacheTTL:         getEnvDuration("STOCK_CACHE_TTL", 5*time.Minute),
			CacheRedelete:    getEnvDuration("STOCK_CACHE_REDELETE", 500*time.Millisecond),
			JanitorInterval:  getEnvDuration("STOCK_JANITOR_INTERVAL", 30*time.Second),
			JanitorBatchSize: getEnvInt("STOCK_JANITOR_BATCH_SIZE", 100),
		},
		Alert: AlertConfig{
			ExpiryHorizonDays: getEnvInt("ALERT_EXPIRY_HORIZON_DAYS", 30),
		},
		Tracing: TracingConfig{
			Enabled:  getEnvBool("TRACING_ENABLED", false),
			Endpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("250ms", "15m").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		parts := strings.Split(value, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return fallback
}
