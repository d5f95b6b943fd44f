package util

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"

	"orgnotify/internal/model"
)

// IsRetryableError decides whether a failed dispatch attempt is worth
// redelivering. Returns (isRetryable, errorType).
func IsRetryableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	// Malformed payloads never get better on redelivery.
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false, "json_decode_error"
	}

	// Unknown notification id: the row will not appear later.
	if errors.Is(err, model.ErrNotFound) || errors.Is(err, pgx.ErrNoRows) {
		return false, "notification_not_found"
	}

	// Gateway and directory outages release the claim, so a retry is safe.
	if errors.Is(err, model.ErrGatewayFailure) {
		return true, "gateway_failure"
	}
	if errors.Is(err, model.ErrDirectoryUnavailable) {
		return true, "directory_unavailable"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true, "context_timeout"
	}

	errStr := err.Error()
	if strings.Contains(errStr, "duplicate key") {
		return false, "duplicate_key"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "timeout") {
		return true, "db_connection_error"
	}

	// Unknown errors default to retryable; the DLQ catches repeat offenders.
	return true, "unknown"
}
