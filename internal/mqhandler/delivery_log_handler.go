package mqhandler

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	mqcontracts "orgnotify/contracts/mq"
)

type deliveryLogStore interface {
	Insert(ctx context.Context, notificationID int64, recipientCount int, deliveredAt time.Time) (bool, error)
}

type sentDeduper interface {
	AcquireOnce(ctx context.Context, handler string, notificationID int64) bool
	Release(ctx context.Context, handler string, notificationID int64)
}

// DeliveryLogHandler consumes notification.sent events and writes the audit
// row. The unique constraint on the log table is the real idempotency guard;
// the redis dedup just saves a write on obvious redeliveries.
type DeliveryLogHandler struct {
	store   deliveryLogStore
	deduper sentDeduper
	logger  *zap.Logger
}

func NewDeliveryLogHandler(store deliveryLogStore, deduper sentDeduper, logger *zap.Logger) *DeliveryLogHandler {
	return &DeliveryLogHandler{
		store:   store,
		deduper: deduper,
		logger:  logger,
	}
}

func (h *DeliveryLogHandler) HandleSent(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.NotificationSentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal sent payload", zap.Error(err))
		return err
	}

	if h.deduper != nil && !h.deduper.AcquireOnce(ctx, "delivery-log", p.NotificationID) {
		return nil
	}

	inserted, err := h.store.Insert(ctx, p.NotificationID, p.RecipientCount, p.SentAt)
	if err != nil {
		if h.deduper != nil {
			h.deduper.Release(ctx, "delivery-log", p.NotificationID)
		}
		h.logger.Error("Failed to insert delivery log",
			zap.Int64("notification_id", p.NotificationID),
			zap.Error(err),
		)
		return err
	}

	if inserted {
		h.logger.Info("Delivery logged",
			zap.Int64("notification_id", p.NotificationID),
			zap.Int("recipient_count", p.RecipientCount),
		)
	}
	return nil
}
