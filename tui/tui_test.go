package tui

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/grovetools/livesync/pkg/keypath"
	"github.com/grovetools/livesync/pkg/notify"
	"github.com/grovetools/livesync/pkg/reconcile"
	"github.com/grovetools/livesync/pkg/session"
	"github.com/grovetools/livesync/tui/theme"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore() *keypath.Store {
	s := keypath.New()
	s.Set(reconcile.PathSelection, map[string]any{"projectId": "P1", "taskId": "", "generation": uint64(3)})
	s.Set(reconcile.PathDashboard, map[string]any{
		"projectId": "P1",
		"meta":      map[string]any{"project": "Alpha", "projectId": "P1"},
		"metrics":   map[string]any{"throughput": map[string]any{"done": 3.0, "total": 4.0, "percent": 75.0}},
		"tokens":    map[string]any{"total": 1200.0, "totalCost": nil},
		"waves": []any{
			map[string]any{"id": "W1", "name": "Bootstrap", "status": "done", "done": 2.0, "total": 2.0},
		},
		"tasks": []any{
			map[string]any{"id": "1", "task_id": "T1", "title": "Write parser", "status": "doing"},
			map[string]any{"id": "2", "title": "Ship", "status": "todo", "assignee": "sam"},
		},
	})
	s.Set(reconcile.PathLive, map[string]any{"connected": true, "gitDirty": false})
	s.Set(session.PathAlerts, []any{
		map[string]any{"key": int64(9), "severity": "error", "title": "Build failed", "message": "wave 2", "link": "http://x/9", "local": false},
	})
	s.Set(notify.PathUnread, 4)
	s.Set(session.PathTheme, "gruvbox")
	return s
}

func TestCapture(t *testing.T) {
	f := Capture(seededStore())

	assert.Equal(t, "P1", f.ProjectID)
	assert.Equal(t, int64(3), f.Generation)
	assert.True(t, f.Loaded)
	assert.False(t, f.Loading())
	assert.Equal(t, "Alpha", f.Project)
	assert.Equal(t, 3, f.Done)
	assert.Equal(t, 75, f.Percent)
	require.NotNil(t, f.TokenTotal)
	assert.Equal(t, 1200.0, *f.TokenTotal)
	assert.Nil(t, f.TokenCost)
	assert.Equal(t, []WaveRow{{ID: "W1", Name: "Bootstrap", Status: "done", Done: 2, Total: 2}}, f.Waves)
	assert.Equal(t, []TaskRow{
		{ID: "T1", Title: "Write parser", Status: "doing"},
		{ID: "2", Title: "Ship", Status: "todo", Assignee: "sam"},
	}, f.Tasks)
	assert.True(t, f.Connected)
	require.Len(t, f.Alerts, 1)
	assert.Equal(t, int64(9), f.Alerts[0].Key)
	assert.Equal(t, 4, f.Unread)
	assert.Equal(t, "gruvbox", f.Theme)
}

func TestCaptureLoading(t *testing.T) {
	s := keypath.New()
	s.Set(reconcile.PathSelection, map[string]any{"projectId": "P1"})
	s.Set(reconcile.PathDashboard, map[string]any{})
	assert.True(t, Capture(s).Loading())
}

func TestRender(t *testing.T) {
	theme.UseASCIIIcons(true)
	defer theme.UseASCIIIcons(false)

	f := Capture(seededStore())
	out := render(f, theme.NewThemeWithName("voltrex"), view{width: 80})
	assert.Contains(t, out, "Alpha")
	assert.Contains(t, out, "3/4 tasks done")
	assert.Contains(t, out, "Bootstrap")
	assert.Contains(t, out, "T1 Write parser")
	assert.Contains(t, out, "Build failed: wave 2")
	assert.Contains(t, out, "4 unread")

	f.ProjectID = ""
	out = render(f, theme.NewThemeWithName("voltrex"), view{})
	assert.Contains(t, out, "No project selected")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hell…", truncate("hello world", 5))
	assert.Equal(t, "hello world", truncate("hello world", 0))
}

func TestPlainPrintsChanges(t *testing.T) {
	s := seededStore()
	var buf bytes.Buffer
	p := NewPlain(&buf, s)
	p.now = func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) }

	p.Flush()
	first := buf.String()
	assert.Contains(t, first, "12:00:00 project P1 selected")
	assert.Contains(t, first, "dashboard Alpha: 3/4 tasks done (75%), 1 waves")
	assert.Contains(t, first, "live stream connected")
	assert.Contains(t, first, "[error] Build failed: wave 2 <http://x/9>")

	buf.Reset()
	p.Flush()
	assert.Empty(t, buf.String(), "nothing changed")

	s.Set(reconcile.PathLiveGitDirty, true)
	s.Set(reconcile.PathSelection, map[string]any{"projectId": "P1", "taskId": "T1"})
	s.Set(reconcile.PathLiveConversation, []any{
		map[string]any{"id": "m1", "role": "assistant", "content": "working\non it"},
		map[string]any{"id": "m2", "role": "assistant", "toolName": "bash"},
	})
	p.Flush()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "following task T1")
	assert.Contains(t, lines[1], "git change detected")
	assert.Contains(t, lines[2], "[assistant] working on it")
	assert.Contains(t, lines[3], "bash")
}

type fakeController struct {
	mu        sync.Mutex
	tasks     [][2]string
	refreshes int
	dismissed []int64
	themes    []string
}

func (c *fakeController) SelectTask(projectID, taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = append(c.tasks, [2]string{projectID, taskID})
	return nil
}

func (c *fakeController) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshes++
}

func (c *fakeController) DismissAlert(key int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dismissed = append(c.dismissed, key)
	return true
}

func (c *fakeController) OpenAlert(key int64) (notify.Alert, bool) {
	return notify.Alert{Notification: notify.Notification{ID: key, Link: "http://x/9"}}, true
}

func (c *fakeController) SetTheme(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.themes = append(c.themes, name)
	return nil
}

func press(t *testing.T, m *Model, keyMsg tea.KeyMsg) tea.Msg {
	t.Helper()
	_, cmd := m.Update(keyMsg)
	if cmd == nil {
		return nil
	}
	msg := cmd()
	m.Update(msg)
	return msg
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelKeys(t *testing.T) {
	store := seededStore()
	ctl := &fakeController{}
	m := NewModel(store, ctl)
	defer m.stop()

	press(t, m, runes("j"))
	assert.Equal(t, 1, m.cursor)
	press(t, m, runes("j"))
	assert.Equal(t, 1, m.cursor, "cursor stops at the last task")
	press(t, m, runes("k"))

	press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	press(t, m, runes("r"))
	press(t, m, runes("x"))
	press(t, m, runes("o"))
	assert.Equal(t, "Link: http://x/9", m.status)
	press(t, m, runes("t"))

	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	assert.Equal(t, [][2]string{{"P1", "T1"}}, ctl.tasks)
	assert.Equal(t, 1, ctl.refreshes)
	assert.Equal(t, []int64{9}, ctl.dismissed)
	assert.Equal(t, []string{"kanagawa"}, ctl.themes, "gruvbox is followed by kanagawa")
}

func TestModelRedrawsOnStoreChange(t *testing.T) {
	store := seededStore()
	m := NewModel(store, &fakeController{})
	defer m.stop()

	store.Set(reconcile.PathSelection, map[string]any{"projectId": "P1", "taskId": "T1"})
	msg := waitForChange(m.changes)()
	assert.Equal(t, changedMsg{}, msg)
	m.Update(msg)
	assert.Equal(t, "T1", m.frame.TaskID)

	press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, "Back to project P1", m.status)

	store.Set(session.PathTheme, "kanagawa")
	m.Update(waitForChange(m.changes)())
	assert.Equal(t, "kanagawa", m.theme.Name)
}

func TestNextTheme(t *testing.T) {
	assert.Equal(t, "kanagawa", nextTheme("gruvbox"))
	assert.Equal(t, "gruvbox", nextTheme("voltrex"))
	assert.Equal(t, "gruvbox", nextTheme("unknown"))
}
