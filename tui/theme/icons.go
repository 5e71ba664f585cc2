package theme

import "os"

// Nerd Font icons
const (
	nerdIconSuccess   = "󰄬" // md-check (U+F012C)
	nerdIconError     = "" // cod-error (U+EA87)
	nerdIconWarning   = "" // fa-warning (U+F071)
	nerdIconInfo      = "󰋼" // md-information (U+F02FC)
	nerdIconRunning   = "" // fa-refresh (U+F021)
	nerdIconPending   = "󰦖" // md-progress_clock (U+F0996)
	nerdIconArrow     = "󰁔" // md-arrow_right (U+F0054)
	nerdIconBullet    = "" // oct-dot_fill (U+F444)
	nerdIconGitBranch = "" // dev-git_branch (U+E725)
	nerdIconChat      = "󰭹" // md-chat (U+F0B79)
	nerdIconTool      = "󰖷" // md-wrench (U+F05B7)
	nerdIconLive      = "󰐾" // md-access_point (U+F0003)
)

// ASCII fallback icons
const (
	asciiIconSuccess   = "✓"
	asciiIconError     = "✗"
	asciiIconWarning   = "⚠"
	asciiIconInfo      = "ℹ"
	asciiIconRunning   = "◐"
	asciiIconPending   = "…"
	asciiIconArrow     = "→"
	asciiIconBullet    = "•"
	asciiIconGitBranch = "⎇"
	asciiIconChat      = ">"
	asciiIconTool      = "#"
	asciiIconLive      = "*"
)

var (
	IconSuccess   string
	IconError     string
	IconWarning   string
	IconInfo      string
	IconRunning   string
	IconPending   string
	IconArrow     string
	IconBullet    string
	IconGitBranch string
	IconChat      string
	IconTool      string
	IconLive      string
)

func init() {
	UseASCIIIcons(os.Getenv("LIVESYNC_ICONS") == "ascii")
}

// UseASCIIIcons switches between the Nerd Font and ASCII icon sets.
func UseASCIIIcons(ascii bool) {
	if ascii {
		IconSuccess, IconError, IconWarning, IconInfo = asciiIconSuccess, asciiIconError, asciiIconWarning, asciiIconInfo
		IconRunning, IconPending, IconArrow, IconBullet = asciiIconRunning, asciiIconPending, asciiIconArrow, asciiIconBullet
		IconGitBranch, IconChat, IconTool, IconLive = asciiIconGitBranch, asciiIconChat, asciiIconTool, asciiIconLive
		return
	}
	IconSuccess, IconError, IconWarning, IconInfo = nerdIconSuccess, nerdIconError, nerdIconWarning, nerdIconInfo
	IconRunning, IconPending, IconArrow, IconBullet = nerdIconRunning, nerdIconPending, nerdIconArrow, nerdIconBullet
	IconGitBranch, IconChat, IconTool, IconLive = nerdIconGitBranch, nerdIconChat, nerdIconTool, nerdIconLive
}

// SeverityIcon returns the icon for a notification severity.
func SeverityIcon(severity string) string {
	switch severity {
	case "success":
		return IconSuccess
	case "error":
		return IconError
	case "warning":
		return IconWarning
	default:
		return IconInfo
	}
}
