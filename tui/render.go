package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/livesync/tui/theme"
	"github.com/muesli/termenv"
)

const maxConversationLines = 12

// view carries the model state the renderer needs besides the frame.
type view struct {
	width   int
	cursor  int
	spinner string
	status  string
	help    string
}

func render(f Frame, th *theme.Theme, v view) string {
	var b strings.Builder

	b.WriteString(renderHeader(f, th))
	b.WriteString("\n\n")

	switch {
	case f.ProjectID == "":
		b.WriteString(th.Muted.Render("No project selected. Run with --project to pick one."))
		b.WriteString("\n")
	case f.Loading():
		b.WriteString(v.spinner + " " + th.Muted.Render("Loading dashboard for "+f.ProjectID+"..."))
		b.WriteString("\n")
	default:
		b.WriteString(renderDashboard(f, th, v))
	}

	if f.TaskID != "" {
		b.WriteString("\n")
		b.WriteString(renderConversation(f, th, v.width))
	}

	if len(f.Alerts) > 0 {
		b.WriteString("\n")
		b.WriteString(renderAlerts(f.Alerts, th, v.width))
	}

	if v.status != "" {
		b.WriteString("\n")
		b.WriteString(th.Muted.Render(v.status))
		b.WriteString("\n")
	}
	if v.help != "" {
		b.WriteString("\n")
		b.WriteString(v.help)
	}
	return b.String()
}

func renderHeader(f Frame, th *theme.Theme) string {
	name := f.Project
	if name == "" {
		name = f.ProjectID
	}
	parts := []string{th.Accent.Render("livesync")}
	if name != "" {
		parts = append(parts, th.Header.Render(name))
	}

	live := th.Muted.Render(theme.IconLive + " offline")
	if f.Connected {
		live = th.Success.Render(theme.IconLive + " live")
	}
	parts = append(parts, live)

	if f.GitDirty {
		parts = append(parts, th.Warning.Render(theme.IconGitBranch+" changes"))
	}
	if f.Unread > 0 {
		parts = append(parts, th.Highlight.Render(fmt.Sprintf("%d unread", f.Unread)))
	}
	return strings.Join(parts, "  ")
}

func renderDashboard(f Frame, th *theme.Theme, v view) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d/%d tasks done %s\n",
		th.Bold.Render("Progress"), f.Done, f.Total, progressBar(f.Percent, 20, th))

	if f.TokenTotal != nil || f.TokenCost != nil {
		var tokens []string
		if f.TokenTotal != nil {
			tokens = append(tokens, fmt.Sprintf("%.0f tokens", *f.TokenTotal))
		}
		if f.TokenCost != nil {
			tokens = append(tokens, fmt.Sprintf("$%.2f", *f.TokenCost))
		}
		b.WriteString(th.Muted.Render(strings.Join(tokens, " · ")))
		b.WriteString("\n")
	}

	if len(f.Waves) > 0 {
		b.WriteString("\n")
		for _, w := range f.Waves {
			fmt.Fprintf(&b, "  %s %-24s %s\n",
				statusIcon(w.Status, th), truncate(w.Name, 24),
				th.Muted.Render(fmt.Sprintf("%d/%d", w.Done, w.Total)))
		}
	}

	if len(f.Tasks) > 0 {
		b.WriteString("\n")
		for i, t := range f.Tasks {
			text := t.ID + " " + t.Title
			if t.Assignee != "" {
				text += " @" + t.Assignee
			}
			text = truncate(text, lineWidth(v.width)-4)
			if i == v.cursor {
				text = th.Selected.Render(text)
			}
			line := statusIcon(t.Status, th) + " " + text
			if t.ID == f.TaskID {
				line += " " + th.Accent.Render(theme.IconChat)
			}
			b.WriteString("  " + line + "\n")
		}
	}
	return b.String()
}

func renderConversation(f Frame, th *theme.Theme, width int) string {
	var lines []string
	lines = append(lines, th.Title.Render("Task "+f.TaskID))
	msgs := f.Conversation
	if len(msgs) > maxConversationLines {
		msgs = msgs[len(msgs)-maxConversationLines:]
	}
	if len(msgs) == 0 {
		lines = append(lines, th.Muted.Render("Waiting for messages..."))
	}
	for _, m := range msgs {
		lines = append(lines, truncate(messageLine(m), lineWidth(width)-4))
	}
	return th.Box.Render(strings.Join(lines, "\n")) + "\n"
}

func renderAlerts(alerts []AlertRow, th *theme.Theme, width int) string {
	var lines []string
	for _, a := range alerts {
		text := a.Title
		if a.Message != "" {
			text += ": " + a.Message
		}
		if a.Project != "" {
			text += " (" + a.Project + ")"
		}
		text = truncate(text, lineWidth(width)-8)
		line := th.Severity(a.Severity).Render(theme.SeverityIcon(a.Severity)) + " " + text
		if a.Link != "" {
			line += " " + th.Link.Render(termenv.Hyperlink(a.Link, "open"))
		}
		lines = append(lines, line)
	}
	return th.AlertBox.Render(strings.Join(lines, "\n")) + "\n"
}

func messageLine(m MessageRow) string {
	if m.ToolName != "" {
		return fmt.Sprintf("%s %s", theme.IconTool, m.ToolName)
	}
	content := strings.Join(strings.Fields(m.Content), " ")
	return fmt.Sprintf("[%s] %s", m.Role, content)
}

func statusIcon(status string, th *theme.Theme) string {
	switch status {
	case "done", "completed":
		return th.Success.Render(theme.IconSuccess)
	case "doing", "running", "in_progress":
		return th.Info.Render(theme.IconRunning)
	case "failed", "error":
		return th.Error.Render(theme.IconError)
	default:
		return th.Muted.Render(theme.IconPending)
	}
}

func progressBar(percent, width int, th *theme.Theme) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100
	bar := th.Success.Render(strings.Repeat("█", filled)) +
		th.Muted.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %d%%", bar, percent)
}

func lineWidth(width int) int {
	if width <= 0 {
		return 100
	}
	return width
}

// truncate shortens unstyled text to width display cells.
func truncate(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}
