package tui

import (
	"encoding/json"
	"fmt"

	"github.com/grovetools/livesync/pkg/keypath"
)

// Frame is a point-in-time view of the store, decoded into what the
// renderers draw.
type Frame struct {
	ProjectID  string
	TaskID     string
	Generation int64

	Project    string
	Loaded     bool
	Done       int
	Total      int
	Percent    int
	TokenTotal *float64
	TokenCost  *float64
	Waves      []WaveRow
	Tasks      []TaskRow

	Connected    bool
	GitDirty     bool
	LastEventAt  string
	Conversation []MessageRow

	Alerts []AlertRow
	Unread int
	Theme  string
}

// WaveRow is one plan row of the dashboard.
type WaveRow struct {
	ID     string
	Name   string
	Status string
	Done   int
	Total  int
}

// TaskRow is one task of the dashboard.
type TaskRow struct {
	ID       string
	Title    string
	Status   string
	Assignee string
}

// MessageRow is one conversation message.
type MessageRow struct {
	ID        string
	Role      string
	Content   string
	ToolName  string
	Timestamp string
}

// AlertRow is one visible alert.
type AlertRow struct {
	Key      int64
	Severity string
	Title    string
	Message  string
	Link     string
	Project  string
	Local    bool
}

// Capture decodes the store into a Frame.
func Capture(store *keypath.Store) Frame {
	root := store.Snapshot()
	var f Frame

	sel := object(root["selection"])
	f.ProjectID = str(sel["projectId"])
	f.TaskID = str(sel["taskId"])
	f.Generation = int64(num(sel["generation"]))

	dash := object(root["dashboard"])
	if len(dash) > 0 {
		f.Loaded = true
		f.Project = str(object(dash["meta"])["project"])
		tp := object(object(dash["metrics"])["throughput"])
		f.Done, f.Total, f.Percent = int(num(tp["done"])), int(num(tp["total"])), int(num(tp["percent"]))
		if tokens := object(dash["tokens"]); tokens != nil {
			f.TokenTotal = optNum(tokens["total"])
			f.TokenCost = optNum(tokens["totalCost"])
		}
		for _, w := range list(dash["waves"]) {
			m := object(w)
			f.Waves = append(f.Waves, WaveRow{
				ID:     str(m["id"]),
				Name:   str(m["name"]),
				Status: str(m["status"]),
				Done:   int(num(m["done"])),
				Total:  int(num(m["total"])),
			})
		}
		for _, t := range list(dash["tasks"]) {
			m := object(t)
			id := str(m["task_id"])
			if id == "" {
				id = str(m["id"])
			}
			f.Tasks = append(f.Tasks, TaskRow{
				ID:       id,
				Title:    str(m["title"]),
				Status:   str(m["status"]),
				Assignee: str(m["assignee"]),
			})
		}
	}

	live := object(root["live"])
	f.Connected, _ = live["connected"].(bool)
	f.GitDirty, _ = live["gitDirty"].(bool)
	f.LastEventAt = str(live["lastEventAt"])
	for _, item := range list(live["conversation"]) {
		m := object(item)
		f.Conversation = append(f.Conversation, MessageRow{
			ID:        str(m["id"]),
			Role:      str(m["role"]),
			Content:   str(m["content"]),
			ToolName:  str(m["toolName"]),
			Timestamp: str(m["timestamp"]),
		})
	}

	for _, item := range list(root["alerts"]) {
		m := object(item)
		local, _ := m["local"].(bool)
		f.Alerts = append(f.Alerts, AlertRow{
			Key:      int64(num(m["key"])),
			Severity: str(m["severity"]),
			Title:    str(m["title"]),
			Message:  str(m["message"]),
			Link:     str(m["link"]),
			Project:  str(m["project"]),
			Local:    local,
		})
	}

	f.Unread = int(num(object(root["notifications"])["unread"]))
	f.Theme = str(object(root["prefs"])["theme"])
	return f
}

// Loading reports whether a project is selected but its first snapshot has
// not arrived.
func (f Frame) Loading() bool {
	return f.ProjectID != "" && !f.Loaded
}

func object(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func list(v any) []any {
	l, _ := v.([]any)
	return l
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func num(v any) float64 {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case float64:
		return t
	case json.Number:
		f, _ := t.Float64()
		return f
	}
	return 0
}

func optNum(v any) *float64 {
	if v == nil {
		return nil
	}
	n := num(v)
	return &n
}
