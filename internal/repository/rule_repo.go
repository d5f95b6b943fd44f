package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"orgnotify/internal/model"
)

type AudienceRuleRepository struct {
	db *pgxpool.Pool
}

func NewAudienceRuleRepository(db *pgxpool.Pool) *AudienceRuleRepository {
	return &AudienceRuleRepository{db: db}
}

func (r *AudienceRuleRepository) ListByNotification(ctx context.Context, notificationID int64) ([]model.AudienceRule, error) {
	query := `
		SELECT id, notification_id, kind, target_id
		FROM audience_rules
		WHERE notification_id = $1
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, notificationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audience rules for notification %d: %w", notificationID, err)
	}
	defer rows.Close()

	var rules []model.AudienceRule
	for rows.Next() {
		var rule model.AudienceRule
		if err := rows.Scan(&rule.ID, &rule.NotificationID, &rule.Kind, &rule.TargetID); err != nil {
			return nil, fmt.Errorf("failed to scan audience rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
