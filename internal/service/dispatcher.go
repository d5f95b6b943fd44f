package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	mqcontracts "orgnotify/contracts/mq"
	"orgnotify/internal/model"
	"orgnotify/pkg/metrics"
)

// DispatchResult enumerates the expected outcomes of a trigger. Only
// gateway failures and infrastructure errors come back as Go errors;
// already-sent and empty-audience are normal results.
type DispatchResult string

const (
	ResultSent           DispatchResult = "sent"
	ResultAlreadySent    DispatchResult = "already_sent"
	ResultNoRecipients   DispatchResult = "no_recipients"
	ResultGatewayFailure DispatchResult = "gateway_failure"
	ResultError          DispatchResult = "error"
)

type NotificationStore interface {
	GetByID(ctx context.Context, id int64) (*model.Notification, error)
	Claim(ctx context.Context, id int64, staleBefore time.Time) (bool, error)
	ReleaseClaim(ctx context.Context, id int64) error
	MarkSent(ctx context.Context, id int64, sentAt time.Time) error
	ListDueIDs(ctx context.Context, now, staleBefore time.Time, limit int) ([]int64, error)
}

type AudienceRuleStore interface {
	ListByNotification(ctx context.Context, notificationID int64) ([]model.AudienceRule, error)
}

// PushGateway is the external delivery collaborator: one batched call per
// trigger, success or failure per attempt, never per account.
type PushGateway interface {
	Send(ctx context.Context, n *model.Notification, accountIDs []int64) error
}

// EventPublisher fans out notification.sent events; nil disables publishing.
type EventPublisher interface {
	Publish(routingKey string, payload any) error
}

// Dispatcher owns the send lifecycle. The claim column in the notification
// store is the sole concurrency primitive; no in-process locking is trusted
// across trigger invocations.
type Dispatcher struct {
	notifications NotificationStore
	rules         AudienceRuleStore
	resolver      RecipientResolver
	gateway       PushGateway
	publisher     EventPublisher
	claimTimeout  time.Duration
	batchSize     int
	logger        *zap.Logger
}

func NewDispatcher(
	notifications NotificationStore,
	rules AudienceRuleStore,
	resolver RecipientResolver,
	gateway PushGateway,
	publisher EventPublisher,
	claimTimeout time.Duration,
	batchSize int,
	logger *zap.Logger,
) *Dispatcher {
	if claimTimeout <= 0 {
		claimTimeout = 5 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Dispatcher{
		notifications: notifications,
		rules:         rules,
		resolver:      resolver,
		gateway:       gateway,
		publisher:     publisher,
		claimTimeout:  claimTimeout,
		batchSize:     batchSize,
		logger:        logger,
	}
}

// TriggerNow attempts to deliver a notification exactly once. Concurrent
// callers race on the claim; every loser observes ResultAlreadySent without
// side effects. Once claimed the trigger runs to completion: success
// finalizes the sent marker, failure releases the claim so a later trigger
// can retry.
func (d *Dispatcher) TriggerNow(ctx context.Context, notificationID int64) (DispatchResult, error) {
	n, err := d.notifications.GetByID(ctx, notificationID)
	if err != nil {
		metrics.RecordDispatchResult(string(ResultError))
		return ResultError, err
	}

	if n.IsSent {
		metrics.RecordDispatchResult(string(ResultAlreadySent))
		return ResultAlreadySent, nil
	}

	claimed, err := d.notifications.Claim(ctx, notificationID, time.Now().Add(-d.claimTimeout))
	if err != nil {
		metrics.RecordDispatchResult(string(ResultError))
		return ResultError, err
	}
	if !claimed {
		// Either finalized or actively claimed by a concurrent trigger.
		metrics.RecordDispatchResult(string(ResultAlreadySent))
		return ResultAlreadySent, nil
	}

	result, err := d.deliver(ctx, n)
	metrics.RecordDispatchResult(string(result))
	return result, err
}

func (d *Dispatcher) deliver(ctx context.Context, n *model.Notification) (DispatchResult, error) {
	rules, err := d.rules.ListByNotification(ctx, n.ID)
	if err != nil {
		d.release(ctx, n.ID)
		return ResultError, err
	}

	recipients, err := d.resolver.ResolveFor(ctx, n.ID, rules)
	if err != nil {
		// Resolution against a partial directory would target the wrong
		// audience; abort the whole trigger instead.
		d.release(ctx, n.ID)
		return ResultError, err
	}

	sentAt := time.Now().UTC()

	if len(recipients) == 0 {
		// Still finalized: a notification nobody matches must not sit
		// unsent forever waiting for a manual retry.
		if err := d.notifications.MarkSent(ctx, n.ID, sentAt); err != nil {
			return ResultError, err
		}
		d.logger.Info("Notification sent with empty audience",
			zap.Int64("notification_id", n.ID),
		)
		d.publishSent(n.ID, 0, sentAt)
		return ResultNoRecipients, nil
	}

	accountIDs := SortedIDs(recipients)
	if err := d.gateway.Send(ctx, n, accountIDs); err != nil {
		d.release(ctx, n.ID)
		return ResultGatewayFailure, err
	}

	if err := d.notifications.MarkSent(ctx, n.ID, sentAt); err != nil {
		// The batch went out but the marker write failed; surfacing the
		// error beats silently retrying into a double send.
		return ResultError, fmt.Errorf("delivered but failed to finalize notification %d: %w", n.ID, err)
	}

	metrics.DispatchRecipientCount.Observe(float64(len(accountIDs)))
	d.logger.Info("Notification dispatched",
		zap.Int64("notification_id", n.ID),
		zap.Int("recipients", len(accountIDs)),
	)
	d.publishSent(n.ID, len(accountIDs), sentAt)

	return ResultSent, nil
}

func (d *Dispatcher) release(ctx context.Context, notificationID int64) {
	if err := d.notifications.ReleaseClaim(ctx, notificationID); err != nil {
		// The stale-claim takeover in Claim recovers this case eventually.
		d.logger.Error("Failed to release dispatch claim",
			zap.Int64("notification_id", notificationID),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) publishSent(notificationID int64, recipientCount int, sentAt time.Time) {
	if d.publisher == nil {
		return
	}
	payload := mqcontracts.NotificationSentPayload{
		NotificationID: notificationID,
		RecipientCount: recipientCount,
		SentAt:         sentAt,
	}
	if err := d.publisher.Publish(mqcontracts.RoutingKeySent, payload); err != nil {
		// Audit fan-out is best effort; a sent notification never un-sends.
		d.logger.Error("Failed to publish notification.sent event",
			zap.Int64("notification_id", notificationID),
			zap.Error(err),
		)
	}
}

// TriggerScheduled delivers every unsent notification whose schedule has
// elapsed, including ones whose claim went stale after a worker crash. Safe
// to invoke concurrently from multiple processes: the per-notification claim
// is the only safety net. Returns the number of notifications that reached
// the sent state.
func (d *Dispatcher) TriggerScheduled(ctx context.Context) (int, error) {
	now := time.Now()
	ids, err := d.notifications.ListDueIDs(ctx, now, now.Add(-d.claimTimeout), d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list due notifications: %w", err)
	}

	sent := 0
	for _, id := range ids {
		result, err := d.TriggerNow(ctx, id)
		if err != nil {
			d.logger.Error("Scheduled dispatch failed",
				zap.Int64("notification_id", id),
				zap.String("result", string(result)),
				zap.Error(err),
			)
			continue
		}
		if result == ResultSent || result == ResultNoRecipients {
			sent++
		}
	}

	if len(ids) > 0 {
		d.logger.Info("Scheduled dispatch pass completed",
			zap.Int("due", len(ids)),
			zap.Int("dispatched", sent),
		)
	}
	return sent, nil
}
