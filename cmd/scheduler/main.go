package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"orgnotify/config"
	"orgnotify/internal/db"
	redisclient "orgnotify/internal/redis"
	"orgnotify/internal/repository"
	"orgnotify/internal/service"
	"orgnotify/internal/util"
	"orgnotify/pkg/logger"
	"orgnotify/pkg/mq"
)

func main() {
	cfg := config.Load()

	zl := logger.NewLogger()
	defer zl.Sync()

	zl.Info("Starting dispatch scheduler...")

	dbConn, err := db.NewConnection(cfg.DB, zl)
	if err != nil {
		zl.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	rdb := redisclient.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatalf("failed to init publisher: %v", err)
	}
	defer publisher.Close()

	notificationRepo := repository.NewNotificationRepository(dbConn)

	// Dedup TTL tracks the scan interval so an unclaimed notification is
	// re-enqueued on the next pass after its window expires.
	deduper := util.NewDeduper(rdb, 2*cfg.Dispatch.ScanInterval, zl)

	scheduler := service.NewScheduler(
		notificationRepo,
		publisher,
		deduper,
		cfg.Dispatch.ClaimTimeout,
		cfg.Dispatch.ScanInterval,
		cfg.Dispatch.BatchSize,
		zl,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler.Start(ctx)

	// Give in-flight publishes a moment before the connections close.
	time.Sleep(100 * time.Millisecond)
}
