package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigNotFound   ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    ErrorCode = "CONFIG_INVALID"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Network errors. Transient failures are recovered by the next tick or
	// by the transport's own reconnect.
	ErrCodeTransientNetwork ErrorCode = "TRANSIENT_NETWORK"
	ErrCodeHTTPStatus       ErrorCode = "HTTP_STATUS"

	// Payload errors
	ErrCodeMalformedPayload ErrorCode = "MALFORMED_PAYLOAD"

	// Reconciliation outcomes
	ErrCodeStaleResult ErrorCode = "STALE_RESULT"

	// Stream errors
	ErrCodeStreamUnrecoverable ErrorCode = "STREAM_UNRECOVERABLE"

	// Remote actions (mark read, dismiss, ...)
	ErrCodeActionFailed ErrorCode = "ACTION_FAILED"

	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// SyncError represents a structured error with context
type SyncError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *SyncError) WithDetail(key string, value interface{}) *SyncError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *SyncError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new SyncError
func New(code ErrorCode, message string) *SyncError {
	return &SyncError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a SyncError
func Wrap(err error, code ErrorCode, message string) *SyncError {
	return &SyncError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error is a specific SyncError code
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	syncErr, ok := err.(*SyncError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return Is(unwrapper.Unwrap(), code)
		}
		return false
	}

	if syncErr.Code == code {
		return true
	}
	if syncErr.Cause != nil {
		return Is(syncErr.Cause, code)
	}
	return false
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	syncErr, ok := err.(*SyncError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return GetCode(unwrapper.Unwrap())
		}
		return ""
	}

	return syncErr.Code
}

// IsTransient reports whether err is expected to clear up on its own: a
// network failure or a 5xx/429 from the server. Tick loops use it to decide
// between a debug line and a warning.
func IsTransient(err error) bool {
	switch GetCode(err) {
	case ErrCodeTransientNetwork:
		return true
	case ErrCodeHTTPStatus:
		var status int
		if syncErr := find(err); syncErr != nil {
			if v, ok := syncErr.Details["status"].(int); ok {
				status = v
			}
		}
		return status == 429 || status >= 500
	}
	return false
}

func find(err error) *SyncError {
	for err != nil {
		if syncErr, ok := err.(*SyncError); ok {
			return syncErr
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil
		}
		err = unwrapper.Unwrap()
	}
	return nil
}
