package service

import (
	"context"

	"go.uber.org/zap"

	"orgnotify/internal/model"
)

type VisibleNotificationStore interface {
	GetByID(ctx context.Context, id int64) (*model.Notification, error)
	ListSentVisibleTo(ctx context.Context, accountID int64, limit int) ([]model.Notification, error)
}

// AffiliationLookup is the slice of the directory visibility needs.
type AffiliationLookup interface {
	Affiliations(ctx context.Context, accountIDs []int64) (map[int64]model.AccountAffiliation, error)
}

// VisibilityService answers "can this account see this notification" without
// materializing the recipient set. Unlike delivery, which freezes its
// audience at send time, visibility is evaluated against the account's
// current affiliation on every request: an account that moves community
// after send time sees the updated visibility.
type VisibilityService struct {
	notifications VisibleNotificationStore
	rules         AudienceRuleStore
	directory     AffiliationLookup
	logger        *zap.Logger
}

func NewVisibilityService(
	notifications VisibleNotificationStore,
	rules AudienceRuleStore,
	directory AffiliationLookup,
	logger *zap.Logger,
) *VisibilityService {
	return &VisibilityService{
		notifications: notifications,
		rules:         rules,
		directory:     directory,
		logger:        logger,
	}
}

// CanView returns ErrNotFound for an unknown notification so callers can
// tell "no such notification" apart from "not visible".
func (s *VisibilityService) CanView(ctx context.Context, accountID, notificationID int64) (bool, error) {
	if _, err := s.notifications.GetByID(ctx, notificationID); err != nil {
		return false, err
	}

	rules, err := s.rules.ListByNotification(ctx, notificationID)
	if err != nil {
		return false, err
	}
	if len(rules) == 0 {
		// Zero rules means an empty audience, never a silent "all".
		return false, nil
	}

	affiliations, err := s.directory.Affiliations(ctx, []int64{accountID})
	if err != nil {
		return false, err
	}
	affiliation, hasAffiliation := affiliations[accountID]

	for _, rule := range rules {
		switch rule.Kind {
		case model.RuleKindAll:
			return true, nil
		case model.RuleKindUser:
			if rule.TargetID != nil && *rule.TargetID == accountID {
				return true, nil
			}
		case model.RuleKindProvince:
			if hasAffiliation && matchesTarget(rule.TargetID, affiliation.ProvinceID) {
				return true, nil
			}
		case model.RuleKindRegion:
			if hasAffiliation && matchesTarget(rule.TargetID, affiliation.RegionID) {
				return true, nil
			}
		case model.RuleKindCommunity:
			if hasAffiliation && matchesTarget(rule.TargetID, affiliation.CommunityID) {
				return true, nil
			}
		}
	}
	return false, nil
}

func matchesTarget(target, current *int64) bool {
	return target != nil && current != nil && *target == *current
}

// ListVisible returns already-sent notifications the account may see,
// ordered by send time descending.
func (s *VisibilityService) ListVisible(ctx context.Context, accountID int64, limit int) ([]model.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.notifications.ListSentVisibleTo(ctx, accountID, limit)
}
