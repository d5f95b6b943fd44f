package main

import (
	"log"
	"time"

	"go.uber.org/zap"

	"orgnotify/config"
	mqcontracts "orgnotify/contracts/mq"
	"orgnotify/internal/db"
	"orgnotify/internal/gateway"
	"orgnotify/internal/mqhandler"
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

	zl.Info("Starting dispatch worker...")

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

	if err := publisher.SetupDLQ(mqcontracts.RoutingKeyDispatch); err != nil {
		zl.Fatal("failed to set up DLQ topology", zap.Error(err))
	}

	// Repositories
	notificationRepo := repository.NewNotificationRepository(dbConn)
	ruleRepo := repository.NewAudienceRuleRepository(dbConn)
	directoryRepo := repository.NewDirectoryRepository(dbConn)
	deliveryLogRepo := repository.NewDeliveryLogRepository(dbConn)

	// Services
	resolver := service.NewCachedResolver(
		service.NewResolver(directoryRepo, zl),
		rdb,
		cfg.Dispatch.CacheTTL,
		zl,
	)
	pushClient := gateway.NewClient(cfg.Gateway, zl)
	dispatcher := service.NewDispatcher(
		notificationRepo,
		ruleRepo,
		resolver,
		pushClient,
		publisher,
		cfg.Dispatch.ClaimTimeout,
		cfg.Dispatch.BatchSize,
		zl,
	)

	retries := util.NewRetryCounter(rdb, time.Hour)
	deduper := util.NewDeduper(rdb, time.Hour, zl)

	// Handlers
	dispatchHandler := mqhandler.NewDispatchHandler(dispatcher, retries, publisher, zl)
	deliveryLogHandler := mqhandler.NewDeliveryLogHandler(deliveryLogRepo, deduper, zl)

	// (1) Consumer for dispatch triggers
	zl.Info("Initializing dispatch consumer", zap.String("queue", "notification.dispatch.q"))
	consumerDispatch, err := mq.NewConsumer(cfg.MQ.URL, "notification.dispatch.q", mqcontracts.RoutingKeyDispatch, zl)
	if err != nil {
		zl.Fatal("failed to init dispatch consumer", zap.Error(err))
	}
	consumerDispatch.SetHandler(dispatchHandler.HandleDispatch)
	go func() {
		zl.Info("Starting dispatch consumer")
		if err := consumerDispatch.StartConsuming(); err != nil {
			zl.Fatal("dispatch consumer failed", zap.Error(err))
		}
	}()
	defer consumerDispatch.Close()

	// (2) Consumer for delivery audit log
	zl.Info("Initializing delivery-log consumer", zap.String("queue", "notification.sent.q"))
	consumerSent, err := mq.NewConsumer(cfg.MQ.URL, "notification.sent.q", mqcontracts.RoutingKeySent, zl)
	if err != nil {
		zl.Fatal("failed to init delivery-log consumer", zap.Error(err))
	}
	consumerSent.SetHandler(deliveryLogHandler.HandleSent)
	go func() {
		zl.Info("Starting delivery-log consumer")
		if err := consumerSent.StartConsuming(); err != nil {
			zl.Fatal("delivery-log consumer failed", zap.Error(err))
		}
	}()
	defer consumerSent.Close()

	zl.Info("All consumers started, worker is ready to process messages")

	// Keep worker running
	select {}
}
