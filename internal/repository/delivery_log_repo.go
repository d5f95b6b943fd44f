package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DeliveryLogRepository struct {
	db *pgxpool.Pool
}

func NewDeliveryLogRepository(db *pgxpool.Pool) *DeliveryLogRepository {
	return &DeliveryLogRepository{db: db}
}

// Insert writes the audit row for a successful dispatch. The unique
// constraint on notification_id makes redelivered sent events a no-op.
func (r *DeliveryLogRepository) Insert(ctx context.Context, notificationID int64, recipientCount int, deliveredAt time.Time) (bool, error) {
	query := `
		INSERT INTO delivery_log (notification_id, recipient_count, delivered_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (notification_id) DO NOTHING
	`

	ct, err := r.db.Exec(ctx, query, notificationID, recipientCount, deliveredAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert delivery log: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}
