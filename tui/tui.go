// Package tui renders a livesync session: a bubbletea live view for
// terminals and a line-per-event renderer for pipes and logs.
package tui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/livesync/pkg/keypath"
	"github.com/grovetools/livesync/pkg/notify"
	"github.com/grovetools/livesync/pkg/reconcile"
	"github.com/grovetools/livesync/pkg/session"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Mode selects how a session is rendered.
type Mode int

const (
	// ModeLive is the full-screen bubbletea view.
	ModeLive Mode = iota
	// ModePlain prints one line per change.
	ModePlain
)

// InitializeTUI honors CLICOLOR_FORCE and COLORTERM so colors survive when
// output is captured.
func InitializeTUI() {
	if os.Getenv("CLICOLOR_FORCE") == "1" || os.Getenv("COLORTERM") == "truecolor" {
		lipgloss.SetColorProfile(termenv.TrueColor)
	}
}

// DetectMode returns ModePlain when plain is requested or out is not a
// terminal.
func DetectMode(plain bool, out *os.File) Mode {
	if plain || out == nil {
		return ModePlain
	}
	fd := out.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return ModeLive
	}
	return ModePlain
}

// watchedPaths are the store paths a renderer redraws on.
var watchedPaths = []string{
	reconcile.PathSelection,
	reconcile.PathDashboard,
	reconcile.PathLive,
	reconcile.PathLiveConnected,
	reconcile.PathLiveGitDirty,
	reconcile.PathLiveConversation,
	session.PathAlerts,
	session.PathTheme,
	notify.PathUnread,
}

// watchStore coalesces writes to the watched paths into a single pending
// signal. Listeners never block, so they are safe to fire while the writer
// holds its own locks.
func watchStore(store *keypath.Store) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	unsubs := make([]func(), 0, len(watchedPaths))
	for _, path := range watchedPaths {
		unsubs = append(unsubs, store.Subscribe(path, func(any) {
			select {
			case ch <- struct{}{}:
			default:
			}
		}))
	}
	return ch, func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
