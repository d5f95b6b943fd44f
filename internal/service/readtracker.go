package service

import (
	"context"

	"go.uber.org/zap"

	"orgnotify/internal/model"
	"orgnotify/pkg/metrics"
)

type ReadReceiptStore interface {
	Insert(ctx context.Context, notificationID, accountID int64) (bool, error)
	Exists(ctx context.Context, notificationID, accountID int64) (bool, error)
	ExistsBatch(ctx context.Context, notificationIDs []int64, accountID int64) (map[int64]bool, error)
}

type notificationGetter interface {
	GetByID(ctx context.Context, id int64) (*model.Notification, error)
}

// ReadTracker records first-view timestamps per (notification, account).
type ReadTracker struct {
	receipts      ReadReceiptStore
	notifications notificationGetter
	logger        *zap.Logger
}

func NewReadTracker(receipts ReadReceiptStore, notifications notificationGetter, logger *zap.Logger) *ReadTracker {
	return &ReadTracker{
		receipts:      receipts,
		notifications: notifications,
		logger:        logger,
	}
}

// MarkRead is idempotent: a second view of the same notification is a no-op,
// never an error, and read_at keeps its original value. An unknown
// notification id yields ErrNotFound rather than a phantom receipt.
func (t *ReadTracker) MarkRead(ctx context.Context, notificationID, accountID int64) error {
	if _, err := t.notifications.GetByID(ctx, notificationID); err != nil {
		return err
	}

	recorded, err := t.receipts.Insert(ctx, notificationID, accountID)
	if err != nil {
		return err
	}

	if recorded {
		metrics.ReadReceiptCount.WithLabelValues("recorded").Inc()
		t.logger.Debug("Read receipt recorded",
			zap.Int64("notification_id", notificationID),
			zap.Int64("account_id", accountID),
		)
	} else {
		metrics.ReadReceiptCount.WithLabelValues("duplicate").Inc()
	}
	return nil
}

func (t *ReadTracker) IsRead(ctx context.Context, notificationID, accountID int64) (bool, error) {
	return t.receipts.Exists(ctx, notificationID, accountID)
}

// ReadStatuses answers IsRead for many notifications in one lookup, so
// listings never pay a round trip per item.
func (t *ReadTracker) ReadStatuses(ctx context.Context, notificationIDs []int64, accountID int64) (map[int64]bool, error) {
	return t.receipts.ExistsBatch(ctx, notificationIDs, accountID)
}
