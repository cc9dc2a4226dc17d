package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sdko-org/fetch-cache/internal/config"
	"github.com/sdko-org/fetch-cache/internal/database"
	"github.com/sdko-org/fetch-cache/internal/handlers"
	httpserver "github.com/sdko-org/fetch-cache/internal/http"
	"github.com/sdko-org/fetch-cache/internal/logging"
	"github.com/sdko-org/fetch-cache/internal/origin"
	"github.com/sdko-org/fetch-cache/internal/proxy"
	"github.com/sdko-org/fetch-cache/internal/storage"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
}

func run(ctx context.Context, logger *logrus.Logger, cfg *config.Config) error {
	backend, closeBackend, err := newBackend(cfg)
	if err != nil {
		return fmt.Errorf("store backend: %w", err)
	}
	defer closeBackend()
	logger.WithField("backend", cfg.StoreBackend).Info("Object store ready")

	cache := proxy.New(
		logger,
		origin.NewClient(logger, cfg.OriginTimeout),
		storage.NewClient(logger, backend),
		proxy.Options{
			FallbackURL:      cfg.FallbackURL,
			WritePolicy:      proxy.WritePolicy(cfg.WritePolicy),
			RedirectPolicy:   proxy.RedirectPolicy(cfg.RedirectPolicy),
			Coalesce:         cfg.CoalesceRequests,
			SpoolMemoryLimit: cfg.SpoolMemoryLimit,
			TempDir:          cfg.TempDir,
		},
	)
	defer cache.Wait()

	var db *gorm.DB
	if cfg.DatabaseEnabled() {
		db, err = database.NewPostgresDB(logger, database.PostgresConfig{
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPassword,
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			DBName:   cfg.PostgresDatabase,
			SSLMode:  cfg.PostgresSSLMode,
		})
		if err != nil {
			return err
		}
		go database.NewAccessLogPruner(logger, db, cfg.AccessLogRetention, cfg.AccessLogPruneInterval).Start(ctx)
	}

	r := mux.NewRouter()
	r.Use(handlers.LoggingMiddleware(logger, db))
	if cfg.RateLimit > 0 {
		rl := handlers.NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow)
		go rl.Cleanup(ctx)
		r.Use(rl.Middleware)
	}
	handlers.RegisterRoutes(r, handlers.NewProxyHandler(logger, cache, cfg.APIToken))

	return httpserver.Run(ctx, logger, r, httpserver.Options{
		Addr:    cfg.ListenAddr,
		TLSAddr: cfg.TLSListenAddr,
	})
}

func newBackend(cfg *config.Config) (storage.Backend, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendS3:
		b, err := storage.NewS3Backend(storage.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, nil, err
		}
		return b, func() {}, nil
	case config.BackendLevelDB:
		b, err := storage.NewLevelDBBackend(cfg.LevelDBPath)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { b.Close() }, nil
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
		return storage.NewRedisBackend(rdb), func() { rdb.Close() }, nil
	case config.BackendMemory:
		return storage.NewMemoryBackend(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported backend %q", cfg.StoreBackend)
	}
}
