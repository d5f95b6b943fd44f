package model

import "errors"

var (
	// ErrNotFound is returned when a notification id does not exist, so
	// callers can tell "no such notification" apart from "not visible" or
	// "already read".
	ErrNotFound = errors.New("notification not found")

	// ErrDirectoryUnavailable is returned when the organization directory
	// cannot be queried; a trigger aborts rather than resolving a partial
	// audience.
	ErrDirectoryUnavailable = errors.New("organization directory unavailable")

	// ErrGatewayFailure is returned when the push gateway call fails or
	// times out; the dispatch claim is released so a later trigger can retry.
	ErrGatewayFailure = errors.New("push gateway delivery failed")
)
