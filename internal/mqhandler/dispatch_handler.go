package mqhandler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	mqcontracts "orgnotify/contracts/mq"
	"orgnotify/internal/service"
	"orgnotify/internal/util"
)

const dispatchMaxRetries = 5

type triggerer interface {
	TriggerNow(ctx context.Context, notificationID int64) (service.DispatchResult, error)
}

type dlqPublisher interface {
	PublishToDLQ(routingKey string, payload []byte, originalError string) error
}

// DispatchHandler consumes notification.dispatch events and triggers
// delivery. The dispatcher's claim makes redelivery safe; the retry counter
// and DLQ only bound how long a poisoned or persistently failing message
// keeps cycling.
type DispatchHandler struct {
	dispatcher triggerer
	retries    *util.RetryCounter
	dlq        dlqPublisher
	logger     *zap.Logger
}

func NewDispatchHandler(dispatcher triggerer, retries *util.RetryCounter, dlq dlqPublisher, logger *zap.Logger) *DispatchHandler {
	return &DispatchHandler{
		dispatcher: dispatcher,
		retries:    retries,
		dlq:        dlq,
		logger:     logger,
	}
}

func (h *DispatchHandler) HandleDispatch(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.NotificationDispatchPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal dispatch payload", zap.Error(err))
		h.sendToDLQ(raw, err.Error())
		return nil
	}

	result, err := h.dispatcher.TriggerNow(ctx, p.NotificationID)
	if err == nil {
		h.logger.Info("Dispatch event processed",
			zap.Int64("notification_id", p.NotificationID),
			zap.String("result", string(result)),
		)
		if h.retries != nil {
			_ = h.retries.Reset(ctx, util.FormatRetryKey("dispatch", p.NotificationID))
		}
		return nil
	}

	retryable, errType := util.IsRetryableError(err)
	if !retryable {
		h.logger.Error("Dispatch failed with non-retryable error, moving to DLQ",
			zap.Int64("notification_id", p.NotificationID),
			zap.String("error_type", errType),
			zap.Error(err),
		)
		h.sendToDLQ(raw, err.Error())
		return nil
	}

	if h.retries != nil {
		count, cntErr := h.retries.IncrementAndGet(ctx, util.FormatRetryKey("dispatch", p.NotificationID))
		if cntErr == nil && count > dispatchMaxRetries {
			h.logger.Error("Dispatch retries exhausted, moving to DLQ",
				zap.Int64("notification_id", p.NotificationID),
				zap.Int64("attempts", count),
				zap.Error(err),
			)
			h.sendToDLQ(raw, err.Error())
			return nil
		}
	}

	h.logger.Warn("Dispatch failed, requeueing",
		zap.Int64("notification_id", p.NotificationID),
		zap.String("error_type", errType),
		zap.Error(err),
	)
	return err
}

func (h *DispatchHandler) sendToDLQ(raw json.RawMessage, reason string) {
	if h.dlq == nil {
		return
	}
	if err := h.dlq.PublishToDLQ(mqcontracts.RoutingKeyDispatch, raw, reason); err != nil {
		h.logger.Error("Failed to publish to DLQ", zap.Error(err))
	}
}
