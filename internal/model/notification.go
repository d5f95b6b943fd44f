package model

import "time"

// Classification values for notifications.
const (
	ClassificationEvent        = "event"
	ClassificationNews         = "news"
	ClassificationAnnouncement = "announcement"
	ClassificationBirthday     = "birthday"
	ClassificationFeastDay     = "feast_day"
	ClassificationDeath        = "death"
	ClassificationOther        = "other"
)

type Notification struct {
	ID             int64
	Title          string
	Body           string
	Classification string
	EventID        *int64
	ScheduledFor   *time.Time
	SentAt         *time.Time
	IsSent         bool
	ClaimedAt      *time.Time
	Metadata       map[string]string
	CreatedBy      int64
	CreatedAt      time.Time
}

// AudienceRule kinds. TargetID is required for every kind except all.
const (
	RuleKindAll       = "all"
	RuleKindUser      = "user"
	RuleKindProvince  = "province"
	RuleKindRegion    = "region"
	RuleKindCommunity = "community"
)

type AudienceRule struct {
	ID             int64
	NotificationID int64
	Kind           string
	TargetID       *int64
}

type ReadReceipt struct {
	NotificationID int64
	AccountID      int64
	ReadAt         time.Time
}

// DeliveryLog is the audit row written after a successful dispatch.
type DeliveryLog struct {
	ID             int64
	NotificationID int64
	RecipientCount int
	DeliveredAt    time.Time
}
