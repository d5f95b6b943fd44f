package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"orgnotify/internal/model"
	"orgnotify/internal/service"
)

type NotificationHandler struct {
	dispatcher *service.Dispatcher
	visibility *service.VisibilityService
	reads      *service.ReadTracker
	logger     *zap.Logger
}

func NewNotificationHandler(
	dispatcher *service.Dispatcher,
	visibility *service.VisibilityService,
	reads *service.ReadTracker,
	logger *zap.Logger,
) *NotificationHandler {
	return &NotificationHandler{
		dispatcher: dispatcher,
		visibility: visibility,
		reads:      reads,
		logger:     logger,
	}
}

func parseID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return 0, false
	}
	return id, true
}

func parseAccountQuery(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Query("account_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account_id"})
		return 0, false
	}
	return id, true
}

// Dispatch handles POST /notifications/:id/dispatch
func (h *NotificationHandler) Dispatch(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.dispatcher.TriggerNow(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		case errors.Is(err, model.ErrGatewayFailure):
			c.JSON(http.StatusBadGateway, gin.H{"result": string(result), "error": "push gateway failed, notification remains retryable"})
		case errors.Is(err, model.ErrDirectoryUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"result": string(result), "error": "organization directory unavailable"})
		default:
			h.logger.Error("Dispatch failed", zap.Int64("notification_id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "dispatch failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": string(result)})
}

// RunScheduled handles POST /dispatch/run
func (h *NotificationHandler) RunScheduled(c *gin.Context) {
	dispatched, err := h.dispatcher.TriggerScheduled(c.Request.Context())
	if err != nil {
		h.logger.Error("Scheduled dispatch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scheduled dispatch failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"dispatched": dispatched})
}

type notificationItem struct {
	ID             int64             `json:"id"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Classification string            `json:"classification"`
	EventID        *int64            `json:"event_id,omitempty"`
	SentAt         *time.Time        `json:"sent_at"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Read           bool              `json:"read"`
}

// ListVisible handles GET /accounts/:account_id/notifications
func (h *NotificationHandler) ListVisible(c *gin.Context) {
	accountID, ok := parseID(c, "account_id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	notifications, err := h.visibility.ListVisible(c.Request.Context(), accountID, limit)
	if err != nil {
		h.logger.Error("Failed to list notifications", zap.Int64("account_id", accountID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notifications"})
		return
	}

	ids := make([]int64, 0, len(notifications))
	for _, n := range notifications {
		ids = append(ids, n.ID)
	}
	readStatuses, err := h.reads.ReadStatuses(c.Request.Context(), ids, accountID)
	if err != nil {
		h.logger.Error("Failed to load read statuses", zap.Int64("account_id", accountID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load read statuses"})
		return
	}

	items := make([]notificationItem, 0, len(notifications))
	for _, n := range notifications {
		items = append(items, notificationItem{
			ID:             n.ID,
			Title:          n.Title,
			Body:           n.Body,
			Classification: n.Classification,
			EventID:        n.EventID,
			SentAt:         n.SentAt,
			Metadata:       n.Metadata,
			Read:           readStatuses[n.ID],
		})
	}

	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

// CanView handles GET /notifications/:id/visibility
func (h *NotificationHandler) CanView(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	accountID, ok := parseAccountQuery(c)
	if !ok {
		return
	}

	visible, err := h.visibility.CanView(c.Request.Context(), accountID, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		h.logger.Error("Visibility check failed", zap.Int64("notification_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "visibility check failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"visible": visible})
}

// MarkRead handles POST /notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req struct {
		AccountID int64 `json:"account_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.AccountID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.reads.MarkRead(c.Request.Context(), id, req.AccountID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		h.logger.Error("Failed to mark read", zap.Int64("notification_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark read"})
		return
	}

	c.Status(http.StatusNoContent)
}

// ReadStatus handles GET /notifications/:id/read
func (h *NotificationHandler) ReadStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	accountID, ok := parseAccountQuery(c)
	if !ok {
		return
	}

	read, err := h.reads.IsRead(c.Request.Context(), id, accountID)
	if err != nil {
		h.logger.Error("Failed to check read status", zap.Int64("notification_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check read status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"read": read})
}
