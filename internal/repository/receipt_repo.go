package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type ReadReceiptRepository struct {
	db *pgxpool.Pool
}

func NewReadReceiptRepository(db *pgxpool.Pool) *ReadReceiptRepository {
	return &ReadReceiptRepository{db: db}
}

// Insert records the first view of a notification by an account. Returns
// false without error when a receipt already exists; read_at is written
// exactly once per pair.
func (r *ReadReceiptRepository) Insert(ctx context.Context, notificationID, accountID int64) (bool, error) {
	query := `
		INSERT INTO read_receipts (notification_id, account_id, read_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (notification_id, account_id) DO NOTHING
	`

	ct, err := r.db.Exec(ctx, query, notificationID, accountID)
	if err != nil {
		return false, fmt.Errorf("failed to insert read receipt: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *ReadReceiptRepository) Exists(ctx context.Context, notificationID, accountID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM read_receipts
			WHERE notification_id = $1 AND account_id = $2
		)
	`

	var exists bool
	if err := r.db.QueryRow(ctx, query, notificationID, accountID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check read receipt: %w", err)
	}
	return exists, nil
}

// ExistsBatch resolves read state for many notifications in one query, so a
// listing never does a round trip per item.
func (r *ReadReceiptRepository) ExistsBatch(ctx context.Context, notificationIDs []int64, accountID int64) (map[int64]bool, error) {
	read := make(map[int64]bool, len(notificationIDs))
	if len(notificationIDs) == 0 {
		return read, nil
	}

	query := `
		SELECT notification_id
		FROM read_receipts
		WHERE account_id = $1 AND notification_id = ANY($2)
	`

	rows, err := r.db.Query(ctx, query, accountID, notificationIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to batch check read receipts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan read receipt id: %w", err)
		}
		read[id] = true
	}
	return read, rows.Err()
}
