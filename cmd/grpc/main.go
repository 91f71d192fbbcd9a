package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/config"
	"github.com/fekuna/omnipos-stock-ledger/migrations"
	"github.com/fekuna/omnipos-stock-ledger/pkg/broker"
	"github.com/fekuna/omnipos-stock-ledger/pkg/cache"
	"github.com/fekuna/omnipos-stock-ledger/pkg/database/postgres"
	"github.com/fekuna/omnipos-stock-ledger/pkg/lock"
	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
	"github.com/fekuna/omnipos-stock-ledger/pkg/metrics"
	"github.com/fekuna/omnipos-stock-ledger/pkg/middleware"
	"github.com/fekuna/omnipos-stock-ledger/pkg/tracing"

	alertUCPkg "github.com/fekuna/omnipos-stock-ledger/internal/alert/usecase"
	analyticsUCPkg "github.com/fekuna/omnipos-stock-ledger/internal/analytics/usecase"

	"github.com/fekuna/omnipos-stock-ledger/internal/stock"
	stockH "github.com/fekuna/omnipos-stock-ledger/internal/stock/handler"
	stockJanitorPkg "github.com/fekuna/omnipos-stock-ledger/internal/stock/janitor"
	stockListenerPkg "github.com/fekuna/omnipos-stock-ledger/internal/stock/listener"
	stockRepoPkg "github.com/fekuna/omnipos-stock-ledger/internal/stock/repository"
	stockUCPkg "github.com/fekuna/omnipos-stock-ledger/internal/stock/usecase"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const serviceName = "omnipos-stock-ledger"

func main() {
	// 1. Load Configuration
	_ = godotenv.Load() // Load .env file if it exists
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          "json",
		Level:             "info",
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}

	if cfg.Server.AppEnv == "development" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = cfg.Logger.Encoding
		logConfig.Level = cfg.Logger.Level
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracing
	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracerProvider(ctx, serviceName, cfg.Tracing.Endpoint)
		if err != nil {
			appLogger.Warn("Could not initialize tracing", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				_ = tp.Shutdown(shutdownCtx)
			}()
			appLogger.Info("Tracing enabled", zap.String("endpoint", cfg.Tracing.Endpoint))
		}
	}

	// 4. Initialize Store
	var repo stock.Repository
	switch cfg.Stock.StoreBackend {
	case config.StoreBackendMemory:
		repo = stockRepoPkg.NewMemoryRepository()
		appLogger.Warn("Using in-memory stock store; data is lost on restart")
	default:
		db, err := postgres.NewPostgres(&postgres.Config{
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			DBName:          cfg.Postgres.DBName,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
		})
		if err != nil {
			appLogger.Fatal("Could not connect to database", zap.Error(err))
		}
		defer db.Close()
		appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

		if cfg.Postgres.MigrateOnStart {
			if err := postgres.Migrate(db, migrations.FS); err != nil {
				appLogger.Fatal("Could not run migrations", zap.Error(err))
			}
			appLogger.Info("Database migrations applied")
		}
		repo = stockRepoPkg.NewPGRepository(db)
	}

	// 5. Initialize Redis (read cache and cross-process item lock)
	var (
		readCache cache.Cache
		locker    lock.Locker = lock.NewKeyedMutex()
	)
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(&cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			appLogger.Warn("Could not connect to Redis, serving reads from the store", zap.Error(err))
		} else {
			defer redisClient.Close()
			readCache = redisClient
			if cfg.Stock.LockBackend == config.LockBackendRedis {
				locker = lock.NewRedisLocker(redisClient, lock.RedisLockerConfig{
					Prefix: "stock:lock:",
					TTL:    cfg.Stock.LockTTL,
				}, appLogger)
			}
			appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
		}
	}
	if readCache == nil {
		memCache := cache.NewMemoryCache(time.Minute)
		defer memCache.Close()
		readCache = memCache
	}
	if cfg.Stock.LockBackend == config.LockBackendRedis {
		if _, ok := locker.(*lock.KeyedMutex); ok {
			appLogger.Warn("Redis lock requested but unavailable, falling back to in-process lock")
		}
	}

	// 6. Metrics
	stockMetrics := metrics.NewStockMetrics("omnipos")
	metricsServer := &http.Server{
		Addr:              normalizePort(cfg.Server.MetricsPort),
		Handler:           metricsMux(stockMetrics),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("metrics server failed", zap.Error(err))
		}
	}()

	// 7. Initialize Kafka
	var publisher stockUCPkg.EventPublisher
	var kafkaConsumer *broker.KafkaConsumer
	if cfg.Kafka.Enabled {
		kafkaProducer := broker.NewProducer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.LedgerTopic,
		})
		defer kafkaProducer.Close()
		publisher = kafkaProducer

		kafkaConsumer = broker.NewConsumer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.OrderTopic,
			GroupID: cfg.Kafka.GroupID,
		})
		defer kafkaConsumer.Close()
		appLogger.Info("Connected to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("order_topic", cfg.Kafka.OrderTopic),
			zap.String("ledger_topic", cfg.Kafka.LedgerTopic),
		)
	}

	// 8. Initialize UseCases
	stockUC := stockUCPkg.NewStockUseCase(repo, stockUCPkg.Deps{
		Locker:    locker,
		Cache:     readCache,
		Publisher: publisher,
		Metrics:   stockMetrics,
	}, stockUCPkg.Config{
		MaxAttempts:    cfg.Stock.MaxAttempts,
		RetryBackoff:   cfg.Stock.RetryBackoff,
		ReservationTTL: cfg.Stock.ReservationTTL,
		CacheTTL:       cfg.Stock.CacheTTL,
		CacheRedelete:  cfg.Stock.CacheRedelete,
	}, appLogger)
	alertUC := alertUCPkg.NewAlertUseCase(repo, cfg.Alert.ExpiryHorizonDays, stockMetrics, appLogger)
	analyticsUC := analyticsUCPkg.NewAnalyticsUseCase(repo, appLogger)

	// 9. Background workers
	janitor := stockJanitorPkg.New(repo, stockUC, stockJanitorPkg.Config{
		Interval:  cfg.Stock.JanitorInterval,
		BatchSize: cfg.Stock.JanitorBatchSize,
	}, func(err error) bool {
		return errors.Is(err, stock.ErrReservationNotActive) || errors.Is(err, stock.ErrReservationNotFound)
	}, appLogger)
	go janitor.Start(ctx)

	if kafkaConsumer != nil {
		stockListener := stockListenerPkg.NewStockListener(kafkaConsumer, stockUC, appLogger)
		go stockListener.Start(ctx)
	}

	// 10. Initialize Handlers
	stockHandler := stockH.NewStockHandler(stockUC, alertUC, analyticsUC, appLogger)

	// 11. Start gRPC Server
	port := normalizePort(cfg.Server.GRPCPort)
	lis, err := net.Listen("tcp", port)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			middleware.ContextInterceptor(),
			middleware.LoggingInterceptor(appLogger),
		),
	)

	stockH.RegisterStockServiceServer(grpcServer, stockHandler)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(stockH.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	reflection.Register(grpcServer)

	appLogger.Info("Starting gRPC server", zap.String("port", port))

	// Graceful Shutdown
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	healthServer.Shutdown()
	cancel()
	grpcServer.GracefulStop()

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_ = metricsServer.Shutdown(shutdownCtx)
	appLogger.Info("Server stopped")
}

func metricsMux(m *metrics.StockMetrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func normalizePort(port string) string {
	if !strings.HasPrefix(port, ":") && !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}
