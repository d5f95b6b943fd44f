package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"orgnotify/internal/model"
)

type NotificationRepository struct {
	db *pgxpool.Pool
}

func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `
	id, title, body, classification, event_id, scheduled_for,
	sent_at, is_sent, claimed_at, metadata, created_by, created_at
`

func scanNotification(row pgx.Row) (*model.Notification, error) {
	var n model.Notification
	err := row.Scan(
		&n.ID,
		&n.Title,
		&n.Body,
		&n.Classification,
		&n.EventID,
		&n.ScheduledFor,
		&n.SentAt,
		&n.IsSent,
		&n.ClaimedAt,
		&n.Metadata,
		&n.CreatedBy,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	n, err := scanNotification(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load notification %d: %w", id, err)
	}
	return n, nil
}

// Claim reserves an unsent notification for delivery. The conditional UPDATE
// is the only concurrency control the engine relies on: of N concurrent
// callers exactly one sees a row change. A claim older than staleBefore is
// treated as abandoned by a crashed worker and taken over.
func (r *NotificationRepository) Claim(ctx context.Context, id int64, staleBefore time.Time) (bool, error) {
	query := `
		UPDATE notifications
		SET claimed_at = NOW()
		WHERE id = $1
		  AND is_sent = FALSE
		  AND (claimed_at IS NULL OR claimed_at < $2)
	`

	ct, err := r.db.Exec(ctx, query, id, staleBefore)
	if err != nil {
		return false, fmt.Errorf("failed to claim notification %d: %w", id, err)
	}
	return ct.RowsAffected() == 1, nil
}

// ReleaseClaim reverts a claim after a failed delivery so a later trigger
// can retry. A no-op if the notification was finalized in the meantime.
func (r *NotificationRepository) ReleaseClaim(ctx context.Context, id int64) error {
	query := `
		UPDATE notifications
		SET claimed_at = NULL
		WHERE id = $1 AND is_sent = FALSE
	`

	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to release claim on notification %d: %w", id, err)
	}
	return nil
}

// MarkSent finalizes a claimed notification: is_sent is terminal once true,
// scheduled_for is cleared and the claim consumed.
func (r *NotificationRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	query := `
		UPDATE notifications
		SET is_sent = TRUE, sent_at = $2, scheduled_for = NULL, claimed_at = NULL
		WHERE id = $1 AND is_sent = FALSE
	`

	ct, err := r.db.Exec(ctx, query, id, sentAt)
	if err != nil {
		return fmt.Errorf("failed to mark notification %d sent: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("notification %d already finalized", id)
	}
	return nil
}

// ListDueIDs returns unsent notifications whose schedule has elapsed,
// including those whose claim went stale before staleBefore.
func (r *NotificationRepository) ListDueIDs(ctx context.Context, now, staleBefore time.Time, limit int) ([]int64, error) {
	query := `
		SELECT id
		FROM notifications
		WHERE is_sent = FALSE
		  AND scheduled_for IS NOT NULL
		  AND scheduled_for <= $1
		  AND (claimed_at IS NULL OR claimed_at < $2)
		ORDER BY scheduled_for ASC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, now, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due notifications: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan due notification id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListSentVisibleTo returns sent notifications the account may currently see,
// newest first. Visibility is an existence check over the audience rules
// against the account's live affiliation, pushed into SQL so listing stays a
// single round trip.
func (r *NotificationRepository) ListSentVisibleTo(ctx context.Context, accountID int64, limit int) ([]model.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications n
		WHERE n.is_sent = TRUE
		  AND EXISTS (
			SELECT 1
			FROM audience_rules ru
			LEFT JOIN account_affiliations af ON af.account_id = $1
			WHERE ru.notification_id = n.id
			  AND (
				ru.kind = 'all'
				OR (ru.kind = 'user' AND ru.target_id = $1)
				OR (ru.kind = 'province' AND ru.target_id = af.province_id)
				OR (ru.kind = 'region' AND ru.target_id = af.region_id)
				OR (ru.kind = 'community' AND ru.target_id = af.community_id)
			  )
		  )
		ORDER BY n.sent_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query visible notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}
