// Package main runs the background worker (feedback notifications, session retention).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/poplygo/backend/config"
	"github.com/poplygo/backend/internal/feedback"
	"github.com/poplygo/backend/internal/sessions"
	"github.com/poplygo/backend/internal/worker"
	"github.com/poplygo/backend/pkg/database"
	"github.com/poplygo/backend/pkg/queue"
	"github.com/poplygo/backend/pkg/redis"
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

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	feedbackRepo := feedback.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	notifier := worker.NewFeedbackNotifier(feedbackRepo, jobQueue, cfg.Notify.WebhookURL, logger)

	sessionRepo := sessions.NewRepository(pool)
	janitor := worker.NewJanitor(sessionRepo, cfg.Retention.Days,
		time.Duration(cfg.Retention.SweepIntervalMin)*time.Minute, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go notifier.Run(workerCtx)
	go janitor.Run(workerCtx)
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
