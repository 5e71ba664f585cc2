package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/grovetools/livesync/errors"
	"github.com/grovetools/livesync/pkg/snapshot"
)

// Dashboard fetches and validates the dashboard snapshot for a project.
func (c *Client) Dashboard(ctx context.Context, projectID string) (*snapshot.Dashboard, error) {
	payload, err := c.do(ctx, http.MethodGet, "/api/project/"+url.PathEscape(projectID)+"/dashboard", nil)
	if err != nil {
		return nil, err
	}
	return snapshot.DecodeDashboard(projectID, payload)
}

// Conversation fetches the full agent conversation of a task.
func (c *Client) Conversation(ctx context.Context, projectID, taskID string) ([]snapshot.ConversationMessage, error) {
	p := fmt.Sprintf("/api/project/%s/task/%s/conversation", url.PathEscape(projectID), url.PathEscape(taskID))
	payload, err := c.do(ctx, http.MethodGet, p, nil)
	if err != nil {
		return nil, err
	}
	return snapshot.DecodeConversation(payload)
}

// Unread fetches the most recent unread notifications with grouped counts.
func (c *Client) Unread(ctx context.Context) (*UnreadResponse, error) {
	var resp UnreadResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/notifications/unread", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Notifications lists the notification archive.
func (c *Client) Notifications(ctx context.Context, opts ListOptions) (*ListResponse, error) {
	q := url.Values{}
	if opts.ProjectID != "" {
		q.Set("project", opts.ProjectID)
	}
	if opts.UnreadOnly {
		q.Set("unread", "true")
	}
	if opts.Severity != "" {
		q.Set("severity", string(opts.Severity))
	}
	if opts.Search != "" {
		q.Set("search", opts.Search)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	p := "/api/notifications"
	if encoded := q.Encode(); encoded != "" {
		p += "?" + encoded
	}

	var resp ListResponse
	if err := c.doJSON(ctx, http.MethodGet, p, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MarkRead marks one notification as read.
func (c *Client) MarkRead(ctx context.Context, id int64) error {
	return c.action(ctx, "mark read", fmt.Sprintf("/api/notifications/%d/read", id), nil)
}

// Dismiss hides one notification from the unread feed.
func (c *Client) Dismiss(ctx context.Context, id int64) error {
	return c.action(ctx, "dismiss", fmt.Sprintf("/api/notifications/%d/dismiss", id), nil)
}

// ReadAll marks every unread notification as read, optionally limited to one project.
func (c *Client) ReadAll(ctx context.Context, projectID string) error {
	body := map[string]string{}
	if projectID != "" {
		body["project_id"] = projectID
	}
	return c.action(ctx, "read all", "/api/notifications/read-all", body)
}

// Triggers lists the notification trigger configuration.
func (c *Client) Triggers(ctx context.Context) ([]Trigger, error) {
	var triggers []Trigger
	if err := c.doJSON(ctx, http.MethodGet, "/api/notifications/triggers", nil, &triggers); err != nil {
		return nil, err
	}
	return triggers, nil
}

// ToggleTrigger flips a trigger between enabled and disabled.
func (c *Client) ToggleTrigger(ctx context.Context, id int64) error {
	return c.action(ctx, "toggle trigger", fmt.Sprintf("/api/notifications/triggers/%d/toggle", id), nil)
}

func (c *Client) action(ctx context.Context, name, p string, body any) error {
	var resp ActionResponse
	if err := c.doJSON(ctx, http.MethodPost, p, body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		reason := resp.Error
		if reason == "" {
			reason = "server did not confirm"
		}
		return errors.ActionFailed(name, reason)
	}
	return nil
}

// GitWatchURL is the SSE endpoint reporting git changes in a project.
func (c *Client) GitWatchURL(projectID string) string {
	return c.baseURL + "/api/project/" + url.PathEscape(projectID) + "/git/watch"
}

// TaskLiveURL is the SSE endpoint streaming a task's conversation.
func (c *Client) TaskLiveURL(projectID, taskID string) string {
	return fmt.Sprintf("%s/api/project/%s/task/%s/live", c.baseURL, url.PathEscape(projectID), url.PathEscape(taskID))
}

// NotificationStreamURL is the SSE endpoint pushing new notifications.
func (c *Client) NotificationStreamURL() string {
	return c.baseURL + "/api/notifications/stream"
}
