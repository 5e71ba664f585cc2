package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/grovetools/livesync/pkg/keypath"
	"golang.org/x/term"
)

// Plain prints one line per observed change. It is used when output is not
// a terminal or --plain is given.
type Plain struct {
	out   io.Writer
	store *keypath.Store
	width int
	now   func() time.Time

	prev       Frame
	started    bool
	seenMsgs   map[string]bool
	seenAlerts map[int64]bool
}

// NewPlain creates a plain renderer writing to out. Lines are cut to the
// terminal width when out is a terminal.
func NewPlain(out io.Writer, store *keypath.Store) *Plain {
	p := &Plain{
		out:        out,
		store:      store,
		now:        time.Now,
		seenMsgs:   make(map[string]bool),
		seenAlerts: make(map[int64]bool),
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil {
			p.width = w
		}
	}
	return p
}

// Run prints changes until ctx is cancelled.
func (p *Plain) Run(ctx context.Context) error {
	changes, stop := watchStore(p.store)
	defer stop()

	p.Flush()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			p.Flush()
		}
	}
}

// Flush prints the lines for everything that changed since the last call.
func (p *Plain) Flush() {
	cur := Capture(p.store)
	stamp := p.now().Format("15:04:05")
	for _, line := range p.diff(cur) {
		fmt.Fprintln(p.out, truncate(stamp+" "+line, p.width))
	}
	p.prev = cur
	p.started = true
}

func (p *Plain) diff(cur Frame) []string {
	prev := p.prev
	var lines []string

	if cur.ProjectID != prev.ProjectID || !p.started {
		if cur.ProjectID != "" {
			lines = append(lines, "project "+cur.ProjectID+" selected")
		}
		p.seenMsgs = make(map[string]bool)
	}
	if cur.TaskID != prev.TaskID {
		if cur.TaskID != "" {
			lines = append(lines, "following task "+cur.TaskID)
		} else if prev.TaskID != "" {
			lines = append(lines, "stopped following task "+prev.TaskID)
		}
		p.seenMsgs = make(map[string]bool)
	}

	if cur.Loaded && (!prev.Loaded || dashboardLine(cur) != dashboardLine(prev)) {
		lines = append(lines, dashboardLine(cur))
	}

	if cur.Connected != prev.Connected {
		if cur.Connected {
			lines = append(lines, "live stream connected")
		} else if prev.Connected {
			lines = append(lines, "live stream disconnected")
		}
	}
	if cur.GitDirty && !prev.GitDirty {
		lines = append(lines, "git change detected, refreshing")
	}

	for _, m := range cur.Conversation {
		if p.seenMsgs[m.ID] {
			continue
		}
		p.seenMsgs[m.ID] = true
		lines = append(lines, messageLine(m))
	}

	for _, a := range cur.Alerts {
		if p.seenAlerts[a.Key] {
			continue
		}
		p.seenAlerts[a.Key] = true
		lines = append(lines, alertLine(a))
	}

	if cur.Unread != prev.Unread {
		lines = append(lines, fmt.Sprintf("unread notifications: %d", cur.Unread))
	}
	return lines
}

func dashboardLine(f Frame) string {
	name := f.Project
	if name == "" {
		name = f.ProjectID
	}
	return fmt.Sprintf("dashboard %s: %d/%d tasks done (%d%%), %d waves", name, f.Done, f.Total, f.Percent, len(f.Waves))
}

func alertLine(a AlertRow) string {
	line := fmt.Sprintf("[%s] %s", a.Severity, a.Title)
	if a.Message != "" {
		line += ": " + a.Message
	}
	if a.Link != "" {
		line += " <" + a.Link + ">"
	}
	return line
}
