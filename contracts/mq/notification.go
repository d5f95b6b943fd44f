package mq

import "time"

// Routing keys on the notifications exchange.
const (
	RoutingKeyDispatch = "notification.dispatch"
	RoutingKeySent     = "notification.sent"
)

// NotificationDispatchPayload asks a worker to trigger delivery of a due
// notification. Redeliveries are harmless: the database claim makes the
// trigger itself at-most-once.
type NotificationDispatchPayload struct {
	NotificationID int64     `json:"notification_id"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

// NotificationSentPayload announces a finalized delivery for audit
// consumers.
type NotificationSentPayload struct {
	NotificationID int64     `json:"notification_id"`
	RecipientCount int       `json:"recipient_count"`
	SentAt         time.Time `json:"sent_at"`
}
