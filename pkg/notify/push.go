package notify

import (
	"github.com/grovetools/livesync/pkg/stream"
)

// Push stream event types.
const (
	EventNotification = "notification"
	EventCount        = "count"
)

// StreamKey is the key of the notification push stream.
const StreamKey = "notifications"

// HandleEvent applies an event from the notification push stream. Pushed
// notifications go through the same dedup as polled ones; the poller stays
// the fallback when the stream is down.
func (f *Feed) HandleEvent(ev stream.Event) {
	switch ev.Type {
	case EventNotification:
		var n Notification
		if err := ev.Decode(&n); err != nil || n.ID == 0 {
			f.logger.WithError(err).Warn("Dropping malformed pushed notification")
			return
		}
		f.Ingest(n)
	case EventCount:
		var body struct {
			Count int `json:"count"`
		}
		if err := ev.Decode(&body); err != nil {
			f.logger.WithError(err).Warn("Dropping malformed unread count")
			return
		}
		f.SetUnreadCount(body.Count)
	default:
		f.logger.WithField("type", ev.Type).Trace("Ignoring push event")
	}
}
