package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"orgnotify/config"
	"orgnotify/internal/model"
	"orgnotify/pkg/circuitbreaker"
	"orgnotify/pkg/metrics"
)

// PushRequest is the single batched call per trigger. The gateway owns
// translating account ids into device tokens and swallows per-device
// failures; success or failure is reported per attempt only.
type PushRequest struct {
	NotificationID int64             `json:"notification_id"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Classification string            `json:"classification"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	AccountIDs     []int64           `json:"account_ids"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewClient(cfg config.GatewayConfig, logger *zap.Logger) *Client {
	cbConfig := circuitbreaker.Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 2,
	}

	return &Client{
		baseURL: cfg.URL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cb:     circuitbreaker.NewCircuitBreaker(cbConfig),
		logger: logger,
	}
}

// Send delivers the payload to the push gateway in one batch. Any failure,
// including a timeout or an open breaker, surfaces as ErrGatewayFailure so
// the dispatcher releases its claim and the notification stays retryable.
func (c *Client) Send(ctx context.Context, n *model.Notification, accountIDs []int64) error {
	payload := PushRequest{
		NotificationID: n.ID,
		Title:          n.Title,
		Body:           n.Body,
		Classification: n.Classification,
		Metadata:       n.Metadata,
		AccountIDs:     accountIDs,
	}

	err := c.cb.Execute(func() error {
		start := time.Now()

		b, marshalErr := json.Marshal(payload)
		if marshalErr != nil {
			return marshalErr
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/push", bytes.NewReader(b))
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Content-Type", "application/json")

		resp, doErr := c.httpClient.Do(req)
		latency := time.Since(start)

		if doErr != nil {
			metrics.RecordGatewayLatency("error", latency)
			return doErr
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			metrics.RecordGatewayLatency(fmt.Sprintf("%d", resp.StatusCode), latency)
			return fmt.Errorf("push gateway status %d", resp.StatusCode)
		}

		metrics.RecordGatewayLatency("success", latency)
		return nil
	})

	if err != nil {
		c.logger.Error("Push gateway call failed",
			zap.Int64("notification_id", n.ID),
			zap.Int("recipients", len(accountIDs)),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", model.ErrGatewayFailure, err)
	}

	return nil
}
