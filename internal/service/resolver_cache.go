package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"orgnotify/internal/model"
	"orgnotify/pkg/metrics"
)

// CachedResolver keeps resolved recipient sets in redis for a bounded TTL,
// keyed by notification id. Invalidation is explicit: whoever edits a
// notification's rules calls Invalidate. Cache trouble always degrades to a
// live resolution, never to a failed trigger.
type CachedResolver struct {
	inner  RecipientResolver
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedResolver(inner RecipientResolver, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedResolver {
	return &CachedResolver{
		inner:  inner,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func cacheKey(notificationID int64) string {
	return fmt.Sprintf("audience:%d", notificationID)
}

func (c *CachedResolver) ResolveFor(ctx context.Context, notificationID int64, rules []model.AudienceRule) (map[int64]struct{}, error) {
	start := time.Now()

	raw, err := c.rdb.Get(ctx, cacheKey(notificationID)).Bytes()
	if err == nil {
		var ids []int64
		if err := json.Unmarshal(raw, &ids); err == nil {
			metrics.ResolverCacheCount.WithLabelValues("hit").Inc()
			metrics.RecordResolveDuration("cache", time.Since(start))
			set := make(map[int64]struct{}, len(ids))
			for _, id := range ids {
				set[id] = struct{}{}
			}
			return set, nil
		}
		// A corrupt entry falls through to live resolution below.
		metrics.ResolverCacheCount.WithLabelValues("error").Inc()
	} else if err != redis.Nil {
		metrics.ResolverCacheCount.WithLabelValues("error").Inc()
		c.logger.Warn("Resolver cache read failed, resolving directly",
			zap.Int64("notification_id", notificationID),
			zap.Error(err),
		)
	} else {
		metrics.ResolverCacheCount.WithLabelValues("miss").Inc()
	}

	set, err := c.inner.ResolveFor(ctx, notificationID, rules)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(SortedIDs(set)); err == nil {
		if err := c.rdb.Set(ctx, cacheKey(notificationID), raw, c.ttl).Err(); err != nil {
			c.logger.Warn("Resolver cache write failed",
				zap.Int64("notification_id", notificationID),
				zap.Error(err),
			)
		}
	}

	return set, nil
}

// Invalidate drops the cached set for a notification, called when its
// audience rules change.
func (c *CachedResolver) Invalidate(ctx context.Context, notificationID int64) error {
	return c.rdb.Del(ctx, cacheKey(notificationID)).Err()
}
