package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/grovetools/livesync/pkg/keypath"
	"github.com/grovetools/livesync/pkg/notify"
	"github.com/grovetools/livesync/tui/theme"
)

// Controller is the part of a session the live view drives.
type Controller interface {
	SelectTask(projectID, taskID string) error
	Refresh()
	DismissAlert(key int64) bool
	OpenAlert(key int64) (notify.Alert, bool)
	SetTheme(name string) error
}

type changedMsg struct{}

type actionMsg struct {
	status string
	err    error
}

// Model is the bubbletea live view of a session. Every controller call runs
// inside a tea.Cmd: the session's store listeners fire under its locks, so
// Update must never block on them.
type Model struct {
	store   *keypath.Store
	ctl     Controller
	changes <-chan struct{}
	stop    func()

	frame   Frame
	theme   *theme.Theme
	spinner spinner.Model
	help    help.Model

	width  int
	cursor int
	status string
}

// NewModel creates a live view over store.
func NewModel(store *keypath.Store, ctl Controller) *Model {
	changes, stop := watchStore(store)
	frame := Capture(store)
	th := theme.NewThemeWithName(frame.Theme)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = th.Highlight

	return &Model{
		store:   store,
		ctl:     ctl,
		changes: changes,
		stop:    stop,
		frame:   frame,
		theme:   th,
		spinner: s,
		help:    help.New(),
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForChange(m.changes))
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case changedMsg:
		m.refreshFrame()
		return m, waitForChange(m.changes)

	case actionMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = msg.status
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	f := m.frame
	switch {
	case key.Matches(msg, keys.Quit):
		m.stop()
		return tea.Quit

	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, keys.Down):
		if m.cursor < len(f.Tasks)-1 {
			m.cursor++
		}

	case key.Matches(msg, keys.Follow):
		if m.cursor >= len(f.Tasks) {
			return nil
		}
		project, task := f.ProjectID, f.Tasks[m.cursor].ID
		return m.do(func() (string, error) {
			return "Following task " + task, m.ctl.SelectTask(project, task)
		})

	case key.Matches(msg, keys.Unfollow):
		if f.TaskID == "" {
			return nil
		}
		project := f.ProjectID
		return m.do(func() (string, error) {
			return "Back to project " + project, m.ctl.SelectTask(project, "")
		})

	case key.Matches(msg, keys.Refresh):
		return m.do(func() (string, error) {
			m.ctl.Refresh()
			return "Refreshing", nil
		})

	case key.Matches(msg, keys.Dismiss):
		if len(f.Alerts) == 0 {
			return nil
		}
		alertKey := f.Alerts[0].Key
		return m.do(func() (string, error) {
			m.ctl.DismissAlert(alertKey)
			return "", nil
		})

	case key.Matches(msg, keys.Open):
		if len(f.Alerts) == 0 {
			return nil
		}
		alertKey := f.Alerts[0].Key
		return m.do(func() (string, error) {
			alert, ok := m.ctl.OpenAlert(alertKey)
			if !ok || alert.Notification.Link == "" {
				return "", nil
			}
			return "Link: " + alert.Notification.Link, nil
		})

	case key.Matches(msg, keys.Theme):
		next := nextTheme(m.theme.Name)
		return m.do(func() (string, error) {
			return fmt.Sprintf("Theme %s", next), m.ctl.SetTheme(next)
		})

	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return nil
}

func (m *Model) do(fn func() (string, error)) tea.Cmd {
	return func() tea.Msg {
		status, err := fn()
		return actionMsg{status: status, err: err}
	}
}

func (m *Model) refreshFrame() {
	m.frame = Capture(m.store)
	if m.frame.Theme != "" && theme.Resolve(m.frame.Theme) != m.theme.Name {
		m.theme = theme.NewThemeWithName(m.frame.Theme)
		m.spinner.Style = m.theme.Highlight
	}
	if m.cursor >= len(m.frame.Tasks) {
		m.cursor = max(len(m.frame.Tasks)-1, 0)
	}
}

func (m *Model) View() string {
	return render(m.frame, m.theme, view{
		width:   m.width,
		cursor:  m.cursor,
		spinner: m.spinner.View(),
		status:  m.status,
		help:    m.help.View(keys),
	})
}

// RunLive runs the live view until the user quits or ctx is cancelled.
func RunLive(ctx context.Context, store *keypath.Store, ctl Controller) error {
	InitializeTUI()
	model := NewModel(store, ctl)
	defer model.stop()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func nextTheme(current string) string {
	names := theme.Names()
	for i, name := range names {
		if name == current {
			return names[(i+1)%len(names)]
		}
	}
	return names[0]
}
