package notify

import (
	"sync/atomic"
	"time"

	"github.com/grovetools/livesync/pkg/api"
)

// Notification is a server-side notification.
type Notification = api.Notification

const (
	// DefaultAlertTimeout is how long an alert stays visible.
	DefaultAlertTimeout = 8 * time.Second
	// DefaultErrorFactor stretches the timeout of error alerts.
	DefaultErrorFactor = 1.5
)

// Policy decides how long alerts stay visible.
type Policy struct {
	BaseTimeout time.Duration
	ErrorFactor float64
}

// DefaultPolicy returns the 8s / 12s display policy.
func DefaultPolicy() Policy {
	return Policy{BaseTimeout: DefaultAlertTimeout, ErrorFactor: DefaultErrorFactor}
}

// Timeout returns the display timeout for a severity.
func (p Policy) Timeout(severity api.Severity) time.Duration {
	base := p.BaseTimeout
	if base <= 0 {
		base = DefaultAlertTimeout
	}
	if severity == api.SeverityError {
		factor := p.ErrorFactor
		if factor <= 0 {
			factor = DefaultErrorFactor
		}
		return time.Duration(float64(base) * factor)
	}
	return base
}

var localKeys int64

// Alert is a notification selected for display.
type Alert struct {
	Notification Notification
	// Local alerts are raised by the client (refresh failing, stream
	// disconnected) and are never marked read on the server.
	Local   bool
	Timeout time.Duration
}

// Key identifies the alert on an AlertBoard.
func (a Alert) Key() int64 {
	return a.Notification.ID
}

// NewAlert wraps a server notification using the policy's timeout.
func (p Policy) NewAlert(n Notification) Alert {
	return Alert{Notification: n, Timeout: p.Timeout(n.Severity)}
}

// LocalAlert creates a client-side alert. Local alerts get negative keys so
// they never collide with server ids.
func (p Policy) LocalAlert(severity api.Severity, title, message string) Alert {
	n := Notification{
		ID:       -atomic.AddInt64(&localKeys, 1),
		Severity: severity,
		Title:    title,
		Message:  message,
	}
	return Alert{Notification: n, Local: true, Timeout: p.Timeout(severity)}
}
