// Package main runs the background job worker (conversion commission settlement).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meshmarket/backend/config"
	"github.com/meshmarket/backend/internal/commission"
	"github.com/meshmarket/backend/internal/realtime"
	"github.com/meshmarket/backend/internal/tracking"
	"github.com/meshmarket/backend/internal/worker"
	"github.com/meshmarket/backend/pkg/database"
	"github.com/meshmarket/backend/pkg/queue"
	"github.com/meshmarket/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	conversionRepo := commission.NewRepository(pool)
	linkRepo := tracking.NewRepository(pool)
	ledger := commission.NewLedger(cfg.Commission.PlatformRate, cfg.Commission.AffiliateRate)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	processor := worker.NewConversionProcessor(conversionRepo, linkRepo, ledger, jobQueue, redisPubSub, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
