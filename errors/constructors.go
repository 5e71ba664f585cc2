package errors

import (
	"fmt"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *SyncError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *SyncError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// Transient wraps a network-level failure (dial, reset, timeout).
func Transient(op string, err error) *SyncError {
	return Wrap(err, ErrCodeTransientNetwork, fmt.Sprintf("%s failed", op)).
		WithDetail("op", op)
}

// HTTPStatus creates an error for an unexpected response status.
func HTTPStatus(op string, status int, message string) *SyncError {
	msg := fmt.Sprintf("%s returned status %d", op, status)
	if message != "" {
		msg = fmt.Sprintf("%s: %s", msg, message)
	}
	return New(ErrCodeHTTPStatus, msg).
		WithDetail("op", op).
		WithDetail("status", status)
}

// Malformed creates an error for a server payload that could not be decoded
// or did not match its schema.
func Malformed(what string, err error) *SyncError {
	return Wrap(err, ErrCodeMalformedPayload, fmt.Sprintf("malformed %s payload", what)).
		WithDetail("payload", what)
}

// Stale creates an error describing a result that arrived for a resource that
// is no longer selected.
func Stale(forID, currentID string) *SyncError {
	return New(ErrCodeStaleResult,
		fmt.Sprintf("result for %q discarded, %q is selected", forID, currentID)).
		WithDetail("for", forID).
		WithDetail("current", currentID)
}

// StreamUnrecoverable creates a stream failure error that stops the stream
// until the resource is selected again.
func StreamUnrecoverable(key string, err error) *SyncError {
	return Wrap(err, ErrCodeStreamUnrecoverable, fmt.Sprintf("stream %s disconnected", key)).
		WithDetail("key", key)
}

// ActionFailed creates an error for a remote action the server rejected.
func ActionFailed(action, reason string) *SyncError {
	return New(ErrCodeActionFailed, fmt.Sprintf("%s failed: %s", action, reason)).
		WithDetail("action", action)
}
