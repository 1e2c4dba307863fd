// Package main runs the background job worker (association repair with S3 reports).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-crm/backend/config"
	"github.com/aura-crm/backend/internal/associations"
	"github.com/aura-crm/backend/internal/companies"
	"github.com/aura-crm/backend/internal/realtime"
	"github.com/aura-crm/backend/internal/repair"
	"github.com/aura-crm/backend/internal/worker"
	"github.com/aura-crm/backend/pkg/database"
	"github.com/aura-crm/backend/pkg/queue"
	"github.com/aura-crm/backend/pkg/redis"
	"github.com/aura-crm/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		ReportsBucket:        cfg.AWS.ReportsBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	// Publish-only hub: events reach the API servers through Redis.
	hub := realtime.NewHub(logger, realtime.NewRedisPubSub(rdb.Client, logger), nil)

	repairSvc := repair.NewService(
		associations.NewRepository(pool),
		companies.NewRepository(pool),
		repair.NewRedisLocker(rdb.Client, cfg.Repair.Timeout+time.Minute, logger),
		hub,
		repair.OptionsFrom(cfg.Repair),
		logger,
	)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewRepairProcessor(repairSvc, s3Client, jobQueue, cfg.Repair.Timeout, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		processor.Run(workerCtx)
		close(done)
	}()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(cfg.Repair.Timeout):
		logger.Warn("worker did not stop in time")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
