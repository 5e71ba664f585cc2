package api

import (
	"bytes"
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"
)

// Severity of a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Flag decodes booleans the server stores as 0/1 integers.
type Flag bool

// UnmarshalJSON accepts true/false, 0/1 and null.
func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null", "false", "0":
		*f = false
		return nil
	case "true", "1":
		*f = true
		return nil
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid flag %s", data)
	}
	*f = n != 0
	return nil
}

// Notification is a server-side notification row.
type Notification struct {
	ID          int64    `json:"id"`
	Type        string   `json:"type,omitempty"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Message     string   `json:"message,omitempty"`
	Link        string   `json:"link,omitempty"`
	LinkType    string   `json:"link_type,omitempty"`
	ProjectID   string   `json:"project_id,omitempty"`
	ProjectName string   `json:"project_name,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
	IsRead      Flag     `json:"is_read"`
}

// Count is one row of a grouped unread count.
type Count struct {
	ProjectID string   `json:"project_id,omitempty"`
	Severity  Severity `json:"severity,omitempty"`
	Count     int      `json:"count"`
}

// UnreadResponse is the body of GET /api/notifications/unread.
type UnreadResponse struct {
	Notifications []Notification `json:"notifications"`
	Total         int            `json:"total"`
	ByProject     []Count        `json:"byProject"`
	BySeverity    []Count        `json:"bySeverity"`
}

// ListOptions filters the notification archive.
type ListOptions struct {
	ProjectID  string
	UnreadOnly bool
	Severity   Severity
	Search     string
	Limit      int
	Offset     int
}

// ListResponse is the body of GET /api/notifications.
type ListResponse struct {
	Notifications []Notification `json:"notifications"`
	Total         int            `json:"total"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
}

// ActionResponse is the body returned by the notification actions.
type ActionResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Trigger is a server-side rule that creates notifications for an event type.
type Trigger struct {
	ID        int64  `json:"id"`
	EventType string `json:"event_type"`
	Severity  string `json:"severity,omitempty"`
	IsEnabled Flag   `json:"is_enabled"`
}
