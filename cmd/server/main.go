package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"kvusers/internal/config"
	apphttp "kvusers/internal/http"
	"kvusers/internal/repository/kv"
	"kvusers/internal/service"
	"kvusers/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := configureLogger(logger, cfg); err != nil {
		logger.Fatalf("configure logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnf("close store: %v", err)
		}
	}()

	// the store may come up after us; requests fail individually until it does
	if err := store.Ping(ctx); err != nil {
		logger.Warnf("store not reachable yet: %v", err)
	}

	userRepo := kv.NewUserRepository(store)
	userService := service.NewUserService(userRepo, cfg.Users.ListLimit)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(userService, store, logger)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

func configureLogger(logger *logrus.Logger, cfg config.Config) error {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	if cfg.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}

func buildStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverRedis:
		logger.Infof("using redis store at %s (db %d)", cfg.Store.Addr, cfg.Store.DB)
		return storage.NewRedisStore(storage.RedisOptions{
			Addr:         cfg.Store.Addr,
			Password:     cfg.Store.Password,
			DB:           cfg.Store.DB,
			PoolSize:     cfg.Store.PoolSize,
			DialTimeout:  cfg.Store.DialTimeout,
			ReadTimeout:  cfg.Store.ReadTimeout,
			WriteTimeout: cfg.Store.WriteTimeout,
		}), nil
	case config.DriverSQLite:
		logger.Infof("using sqlite store at %s", cfg.Store.Path)
		return storage.OpenSQLiteStore(ctx, cfg.Store.Path)
	case config.DriverS3:
		return buildS3Store(ctx, cfg, logger)
	case config.DriverMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func buildS3Store(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Store, error) {
	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Store.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Store.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Store.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 store in bucket %s (region %s, prefix %q)", cfg.Store.Bucket, cfg.Store.Region, cfg.Store.KeyPrefix)
	return storage.NewS3Store(client, cfg.Store.Bucket, cfg.Store.KeyPrefix)
}
