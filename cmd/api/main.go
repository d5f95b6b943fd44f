package main

import (
	"log"

	"go.uber.org/zap"

	"orgnotify/config"
	"orgnotify/internal/api"
	"orgnotify/internal/db"
	"orgnotify/internal/gateway"
	redisclient "orgnotify/internal/redis"
	"orgnotify/internal/repository"
	"orgnotify/internal/service"
	"orgnotify/pkg/logger"
	"orgnotify/pkg/mq"
)

func main() {
	cfg := config.Load()

	zl := logger.NewLogger()
	defer zl.Sync()

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

	// Repositories
	notificationRepo := repository.NewNotificationRepository(dbConn)
	ruleRepo := repository.NewAudienceRuleRepository(dbConn)
	receiptRepo := repository.NewReadReceiptRepository(dbConn)
	directoryRepo := repository.NewDirectoryRepository(dbConn)

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
	visibility := service.NewVisibilityService(notificationRepo, ruleRepo, directoryRepo, zl)
	reads := service.NewReadTracker(receiptRepo, notificationRepo, zl)

	// Router
	handler := api.NewNotificationHandler(dispatcher, visibility, reads, zl)
	router := api.NewRouter(handler)

	if err := router.Run(cfg.Server.Port); err != nil {
		zl.Fatal("server start failed", zap.Error(err))
	}
}
