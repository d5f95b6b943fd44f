package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce tries to acquire a dedup lock for a handler + notification id.
// Returns true if this is the first time within the TTL window, false on a
// duplicate. Dedup is an optimization only: the database claim is the real
// at-most-once guard, so redis being down means "allow".
func (d *Deduper) AcquireOnce(ctx context.Context, handler string, notificationID int64) bool {
	key := fmt.Sprintf("dedup:%s:%d", handler, notificationID)

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("Redis dedup check failed, allowing processing",
				zap.String("handler", handler),
				zap.Int64("notification_id", notificationID),
				zap.Error(err),
			)
		}
		return true
	}

	if !ok && d.logger != nil {
		d.logger.Info("Skipped duplicated event",
			zap.String("handler", handler),
			zap.Int64("notification_id", notificationID),
			zap.String("dedup_key", key),
		)
	}

	return ok
}

// Release drops the dedup key so the next attempt is not suppressed, used
// when processing failed and a retry should go through immediately.
func (d *Deduper) Release(ctx context.Context, handler string, notificationID int64) {
	key := fmt.Sprintf("dedup:%s:%d", handler, notificationID)
	if err := d.rdb.Del(ctx, key).Err(); err != nil && d.logger != nil {
		d.logger.Warn("Failed to release dedup key",
			zap.String("dedup_key", key),
			zap.Error(err),
		)
	}
}
