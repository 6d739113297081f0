package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"mindspace/backend/internal/api/handler"
	"mindspace/backend/internal/attachments"
	"mindspace/backend/internal/auth"
	"mindspace/backend/internal/chathub"
	"mindspace/backend/internal/config"
	"mindspace/backend/internal/messaging"
	"mindspace/backend/internal/observability"
	"mindspace/backend/internal/storage"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupDependencies(cfg *config.Config, logger *slog.Logger) (*gorm.DB, *redis.Client) {
	gormCfg := &gorm.Config{}
	if cfg.IsProduction() {
		gormCfg.Logger = gormlogger.Default.LogMode(gormlogger.Warn)
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), gormCfg)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
	}

	logger.Info("database and redis connections established", "redis", cfg.RedisEnabled())
	return db, rdb
}

func main() {
	cfg := config.LoadConfig()
	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	logger.Info("starting messaging backend", "environment", cfg.Environment, "port", cfg.Port)

	db, rdb := setupDependencies(cfg, logger)
	store := storage.NewStorageService(db, rdb, logger)
	if err := store.Migrate(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	hub := chathub.NewManagerService(cfg.RingTimeout, metrics, logger)
	messages := messaging.NewService(store, hub, logger)
	hub.SetMessenger(messages)
	if rdb != nil {
		hub.SetBroker(store)
	}

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, store)
	uploads := attachments.NewSaver(cfg.UploadDir, handler.UploadsPath, logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if !cfg.IsProduction() {
		r.Use(gin.Logger())
	}
	handler.NewHandler(cfg, hub, messages, verifier, uploads, logger).Register(r)

	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()
	logger.Info("listening", "addr", server.Addr)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return server.Shutdown(ctx)
			},
			"chat-hub": func(ctx context.Context) error {
				stopHub()
				select {
				case <-hub.Done():
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
			"redis": func(ctx context.Context) error {
				if rdb == nil {
					return nil
				}
				return rdb.Close()
			},
		},
	)

	exitCode := <-wait
	logger.Info("shutdown complete", "exit_code", exitCode)
	os.Exit(exitCode)
}
