package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	mqcontracts "orgnotify/contracts/mq"
)

type dueLister interface {
	ListDueIDs(ctx context.Context, now, staleBefore time.Time, limit int) ([]int64, error)
}

type dispatchDeduper interface {
	AcquireOnce(ctx context.Context, handler string, notificationID int64) bool
}

// Scheduler periodically scans for due notifications and fans them out as
// notification.dispatch events for the workers. Replicas may run in
// parallel: correctness rests entirely on the dispatch claim, the redis
// dedup only trims duplicate publishes within one TTL window.
type Scheduler struct {
	notifications dueLister
	publisher     EventPublisher
	deduper       dispatchDeduper
	claimTimeout  time.Duration
	interval      time.Duration
	batchSize     int
	logger        *zap.Logger
}

func NewScheduler(
	notifications dueLister,
	publisher EventPublisher,
	deduper dispatchDeduper,
	claimTimeout, interval time.Duration,
	batchSize int,
	logger *zap.Logger,
) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Scheduler{
		notifications: notifications,
		publisher:     publisher,
		deduper:       deduper,
		claimTimeout:  claimTimeout,
		interval:      interval,
		batchSize:     batchSize,
		logger:        logger,
	}
}

// Start runs the scan loop until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting dispatch scheduler",
		zap.Duration("interval", s.interval),
		zap.Int("batch_size", s.batchSize),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Dispatch scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("Scheduler scan failed", zap.Error(err))
			}
		}
	}
}

// RunOnce publishes a dispatch event for every due notification and returns
// how many were enqueued.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	now := time.Now()
	ids, err := s.notifications.ListDueIDs(ctx, now, now.Add(-s.claimTimeout), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list due notifications: %w", err)
	}

	enqueued := 0
	for _, id := range ids {
		if s.deduper != nil && !s.deduper.AcquireOnce(ctx, "dispatch", id) {
			continue
		}

		payload := mqcontracts.NotificationDispatchPayload{
			NotificationID: id,
			EnqueuedAt:     now,
		}
		if err := s.publisher.Publish(mqcontracts.RoutingKeyDispatch, payload); err != nil {
			s.logger.Error("Failed to publish dispatch event",
				zap.Int64("notification_id", id),
				zap.Error(err),
			)
			continue
		}

		enqueued++
		s.logger.Info("Enqueued due notification",
			zap.Int64("notification_id", id),
		)
	}

	return enqueued, nil
}
