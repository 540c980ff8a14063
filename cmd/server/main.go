package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/quotalink/config"
	appmodel "github.com/sifan077/quotalink/internal/app/model"
	apprepository "github.com/sifan077/quotalink/internal/app/repository"
	appserver "github.com/sifan077/quotalink/internal/app/server"
	appservice "github.com/sifan077/quotalink/internal/app/service"
	"github.com/sifan077/quotalink/internal/http/util"
	"github.com/sifan077/quotalink/internal/infra/logger"
	infraNATS "github.com/sifan077/quotalink/internal/infra/nats"
	infraPostgres "github.com/sifan077/quotalink/internal/infra/postgres"
	infraPrometheus "github.com/sifan077/quotalink/internal/infra/prometheus"
	infraRedis "github.com/sifan077/quotalink/internal/infra/redis"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx := context.Background()
	instanceID := uuid.NewString()

	// Bootstrap logger from the raw environment; rebuilt once config is loaded.
	bootCfg := logger.ForApp(config.AppConfig{
		Env:      os.Getenv("APP_ENV"),
		LogLevel: os.Getenv("LOG_LEVEL"),
	}, instanceID)
	log := logger.MustInit(bootCfg)
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	if appCfg := logger.ForApp(cfg.App, instanceID); appCfg != bootCfg {
		log = logger.MustInit(appCfg)
	}
	isDev := cfg.IsDevelopment()

	log.Info("Configuration loaded successfully",
		zap.String("env", cfg.App.Env),
		zap.Int("port", cfg.App.Port),
		zap.String("base_url", cfg.App.BaseURL),
		zap.String("store_driver", cfg.App.StoreDriver),
		zap.Int("code_length", cfg.Shortener.CodeLength),
		zap.Int("max_per_owner", cfg.Shortener.MaxPerOwner),
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
	)

	var (
		store apprepository.MappingStore
		pool  *pgxpool.Pool
	)
	switch cfg.App.StoreDriver {
	case config.StoreDriverMemory:
		store = apprepository.NewMemoryMappingStore()
		log.Warn("Using in-memory mapping store; data is lost on restart")
	default:
		gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
		if err != nil {
			log.Fatal("Failed to open GORM connection", zap.Error(err))
		}
		sqlDB, err := gormDB.DB()
		if err != nil {
			log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
		}
		defer sqlDB.Close()

		if err := infraPostgres.AutoMigrate(ctx, gormDB, &appmodel.Mapping{}); err != nil {
			log.Fatal("Failed to run database migrations", zap.Error(err))
		}

		pool, err = infraPostgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			log.Fatal("Failed to connect to Postgres", zap.Error(err))
		}
		defer pool.Close()

		store = apprepository.NewMappingRepository(gormDB)
		log.Info("Connected to Postgres successfully",
			zap.String("postgres_host", cfg.Postgres.Host),
			zap.String("postgres_db", cfg.Postgres.Database),
		)
	}

	var (
		redisClient *redis.Client
		cache       apprepository.MappingCache
	)
	if cfg.Cache.Enabled {
		redisClient, err = infraRedis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		cache = apprepository.NewRedisMappingCache(redisClient, cfg.Cache.TTL)
		log.Info("Connected to Redis successfully", zap.String("redis_addr", infraRedis.Addr(cfg.Redis)))
	}

	var (
		natsConn *nats.Conn
		events   appservice.EventPublisher
	)
	if cfg.DeletionEventsEnabled() {
		var js nats.JetStreamContext
		natsConn, js, err = infraNATS.Connect(cfg.NATS, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer natsConn.Drain()
		if err := appservice.EnsureMappingStream(js); err != nil {
			log.Fatal("Failed to ensure mapping stream", zap.Error(err))
		}
		events = appservice.NewMappingEventPublisher(js)
		log.Info("Connected to NATS successfully", zap.String("nats_url", infraNATS.URL(cfg.NATS)))

		consumer := appservice.NewMappingEventConsumer(js, log, cache, instanceID)
		if err := consumer.Start(); err != nil {
			log.Fatal("Failed to start mapping event consumer", zap.Error(err))
		}
		defer consumer.Stop()
	} else {
		log.Info("Resolve cache disabled; skipping NATS deletion events")
	}

	if !isDev {
		promServer := infraPrometheus.NewServer(cfg.Prometheus)
		go func() {
			log.Info("Starting Prometheus metrics server",
				zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()

		gauge := appservice.NewMappingGaugeRefresher(log, store, cfg.Prometheus.RefreshInterval, cfg.Shortener.StoreTimeout)
		gauge.Start()
		defer gauge.Stop()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	generator := appservice.NewCodeGenerator(cfg.Shortener.CodeLength,
		appservice.WithIssuedFilter(cfg.Shortener.BloomCapacity))
	quota := appservice.NewQuotaGate(store, cfg.Shortener.MaxPerOwner, cfg.Shortener.StoreTimeout)

	shortener := appservice.NewShorteningService(appservice.ShorteningDeps{
		Logger:       log,
		Store:        store,
		Generator:    generator,
		Quota:        quota,
		MaxAttempts:  cfg.Shortener.MaxInsertAttempts,
		StoreTimeout: cfg.Shortener.StoreTimeout,
	})
	resolver := appservice.NewResolutionService(appservice.ResolutionDeps{
		Logger:       log,
		Store:        store,
		Cache:        cache,
		StoreTimeout: cfg.Shortener.StoreTimeout,
	})
	mappings := appservice.NewMappingService(appservice.MappingDeps{
		Logger:       log,
		Store:        store,
		Cache:        cache,
		Events:       events,
		Quota:        quota.Limit(),
		StoreTimeout: cfg.Shortener.StoreTimeout,
	})

	server := appserver.New(appserver.Dependencies{
		Logger:      log,
		Postgres:    pool,
		Redis:       redisClient,
		NATS:        natsConn,
		Shortener:   shortener,
		Resolver:    resolver,
		Mappings:    mappings,
		Verifier:    util.NewTokenVerifier([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer),
		BaseURL:     cfg.App.BaseURL,
		CORSOrigins: cfg.App.CORSOrigins,
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		log.Info("Starting HTTP server", zap.String("addr", addr))
		if err := server.Listen(addr); err != nil {
			log.Fatal("Fiber server exited", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("Shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}
}
