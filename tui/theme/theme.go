package theme

import (
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const defaultThemeName = "voltrex"

// --- Voltrex palette ---
const (
	voltrexDarkGreen              = "#3DDC97"
	voltrexDarkYellow             = "#F5D547"
	voltrexDarkRed                = "#FF4F6D"
	voltrexDarkOrange             = "#FF9F43"
	voltrexDarkCyan               = "#2DE2E6"
	voltrexDarkBlue               = "#4C8DFF"
	voltrexDarkViolet             = "#A86BFF"
	voltrexDarkLightText          = "#E6E8F2"
	voltrexDarkMutedText          = "#7A7F99"
	voltrexDarkBorder             = "#2E3350"
	voltrexDarkSelectedBackground = "#1C2140"

	voltrexLightGreen              = "#1E8F62"
	voltrexLightYellow             = "#A88A00"
	voltrexLightRed                = "#D0233F"
	voltrexLightOrange             = "#C86A10"
	voltrexLightCyan               = "#00858A"
	voltrexLightBlue               = "#2456C8"
	voltrexLightViolet             = "#6B2FD0"
	voltrexLightLightText          = "#1A1D2E"
	voltrexLightMutedText          = "#6A6F85"
	voltrexLightBorder             = "#C5C9DA"
	voltrexLightSelectedBackground = "#E4E7F5"
)

// --- Kanagawa palette ---
const (
	kanagawaDarkGreen              = "#98BB6C"
	kanagawaDarkYellow             = "#FF9E3B"
	kanagawaDarkRed                = "#FF5D62"
	kanagawaDarkOrange             = "#FFA066"
	kanagawaDarkCyan               = "#7E9CD8"
	kanagawaDarkBlue               = "#7FB4CA"
	kanagawaDarkViolet             = "#957FB8"
	kanagawaDarkLightText          = "#DCD7BA"
	kanagawaDarkMutedText          = "#727169"
	kanagawaDarkBorder             = "#363646"
	kanagawaDarkSelectedBackground = "#223249"

	kanagawaLightGreen              = "#4E7C5A"
	kanagawaLightYellow             = "#A68A64"
	kanagawaLightRed                = "#C34043"
	kanagawaLightOrange             = "#CC6B4E"
	kanagawaLightCyan               = "#5B8BBE"
	kanagawaLightBlue               = "#4F7CAC"
	kanagawaLightViolet             = "#674D7A"
	kanagawaLightLightText          = "#2B2F42"
	kanagawaLightMutedText          = "#6C7086"
	kanagawaLightBorder             = "#B5BDC5"
	kanagawaLightSelectedBackground = "#E2E6F3"
)

// --- Gruvbox palette ---
const (
	gruvboxDarkGreen               = "#B8BB26"
	gruvboxLightGreen              = "#98971A"
	gruvboxDarkYellow              = "#FABD2F"
	gruvboxLightYellow             = "#D79921"
	gruvboxDarkRed                 = "#FB4934"
	gruvboxLightRed                = "#CC241D"
	gruvboxDarkOrange              = "#FE8019"
	gruvboxLightOrange             = "#D65D0E"
	gruvboxDarkCyan                = "#83A598"
	gruvboxLightCyan               = "#458588"
	gruvboxDarkBlue                = "#458588"
	gruvboxLightBlue               = "#076678"
	gruvboxDarkViolet              = "#B16286"
	gruvboxLightViolet             = "#8F3F71"
	gruvboxDarkLightText           = "#EBDBB2"
	gruvboxLightLightText          = "#3C3836"
	gruvboxDarkMutedText           = "#BDAE93"
	gruvboxLightMutedText          = "#928374"
	gruvboxDarkBorder              = "#504945"
	gruvboxLightBorder             = "#D5C4A1"
	gruvboxDarkSelectedBackground  = "#32302F"
	gruvboxLightSelectedBackground = "#F2E5BC"
)

// Colors is the palette of a theme.
type Colors struct {
	Green              lipgloss.TerminalColor
	Yellow             lipgloss.TerminalColor
	Red                lipgloss.TerminalColor
	Orange             lipgloss.TerminalColor
	Cyan               lipgloss.TerminalColor
	Blue               lipgloss.TerminalColor
	Violet             lipgloss.TerminalColor
	LightText          lipgloss.TerminalColor
	MutedText          lipgloss.TerminalColor
	Border             lipgloss.TerminalColor
	SelectedBackground lipgloss.TerminalColor
}

// Theme holds the pre-configured styles of the live view.
type Theme struct {
	Name   string
	Colors Colors

	// Headers and titles
	Header lipgloss.Style
	Title  lipgloss.Style

	// Status indicators
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	// Text styles - visual hierarchy
	Bold     lipgloss.Style
	Normal   lipgloss.Style
	Muted    lipgloss.Style
	Selected lipgloss.Style

	// Containers
	Box      lipgloss.Style
	AlertBox lipgloss.Style

	Highlight lipgloss.Style
	Accent    lipgloss.Style
	Link      lipgloss.Style
}

var themeRegistry = map[string]func() Colors{
	"voltrex":  newVoltrexColors,
	"kanagawa": newKanagawaColors,
	"gruvbox":  newGruvboxColors,
}

var themeAliases = map[string]string{
	"kanagawa-dark":   "kanagawa",
	"kanagawa-dragon": "kanagawa",
	"gruvbox-dark":    "gruvbox",
	"gruvbox-light":   "gruvbox",
}

// DefaultTheme is the theme selected by LIVESYNC_THEME, or voltrex.
var DefaultTheme = NewThemeWithName(os.Getenv("LIVESYNC_THEME"))

// Names lists the registered themes.
func Names() []string {
	names := make([]string, 0, len(themeRegistry))
	for name := range themeRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the registered name for name, or "" when unknown.
func Resolve(name string) string {
	key := normalizeThemeName(name)
	if alias, ok := themeAliases[key]; ok {
		key = alias
	}
	if _, ok := themeRegistry[key]; ok {
		return key
	}
	return ""
}

// NewThemeWithName constructs a theme from a palette name. Unknown names fall
// back to the default theme.
func NewThemeWithName(name string) *Theme {
	key := Resolve(name)
	if key == "" {
		key = defaultThemeName
	}
	return newThemeFromColors(themeRegistry[key](), key)
}

// Severity returns the style for a notification severity.
func (t *Theme) Severity(severity string) lipgloss.Style {
	switch severity {
	case "success":
		return t.Success
	case "error":
		return t.Error
	case "warning":
		return t.Warning
	default:
		return t.Info
	}
}

// RenderStatus renders text with the appropriate status style.
func RenderStatus(status, text string) string {
	return DefaultTheme.Severity(status).Render(text)
}

func newThemeFromColors(colors Colors, name string) *Theme {
	return &Theme{
		Name:   name,
		Colors: colors,

		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.LightText),

		Title: lipgloss.NewStyle().
			Bold(true).
			Underline(true),

		Success: lipgloss.NewStyle().
			Foreground(colors.Green).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(colors.Red).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(colors.Yellow).
			Bold(true),

		Info: lipgloss.NewStyle().
			Foreground(colors.Cyan).
			Bold(true),

		Bold: lipgloss.NewStyle().
			Bold(true),

		Normal: lipgloss.NewStyle(),

		Muted: lipgloss.NewStyle().
			Foreground(colors.MutedText),

		Selected: lipgloss.NewStyle().
			Background(colors.SelectedBackground).
			Foreground(colors.LightText),

		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colors.Border).
			Padding(0, 1),

		AlertBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colors.Violet).
			Padding(0, 1),

		Highlight: lipgloss.NewStyle().
			Foreground(colors.Orange).
			Bold(true),

		Accent: lipgloss.NewStyle().
			Foreground(colors.Violet).
			Bold(true),

		Link: lipgloss.NewStyle().
			Foreground(colors.Blue).
			Underline(true),
	}
}

func normalizeThemeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.ReplaceAll(normalized, "_", "-")
	return normalized
}

func newVoltrexColors() Colors {
	return Colors{
		Green:              lipgloss.AdaptiveColor{Light: voltrexLightGreen, Dark: voltrexDarkGreen},
		Yellow:             lipgloss.AdaptiveColor{Light: voltrexLightYellow, Dark: voltrexDarkYellow},
		Red:                lipgloss.AdaptiveColor{Light: voltrexLightRed, Dark: voltrexDarkRed},
		Orange:             lipgloss.AdaptiveColor{Light: voltrexLightOrange, Dark: voltrexDarkOrange},
		Cyan:               lipgloss.AdaptiveColor{Light: voltrexLightCyan, Dark: voltrexDarkCyan},
		Blue:               lipgloss.AdaptiveColor{Light: voltrexLightBlue, Dark: voltrexDarkBlue},
		Violet:             lipgloss.AdaptiveColor{Light: voltrexLightViolet, Dark: voltrexDarkViolet},
		LightText:          lipgloss.AdaptiveColor{Light: voltrexLightLightText, Dark: voltrexDarkLightText},
		MutedText:          lipgloss.AdaptiveColor{Light: voltrexLightMutedText, Dark: voltrexDarkMutedText},
		Border:             lipgloss.AdaptiveColor{Light: voltrexLightBorder, Dark: voltrexDarkBorder},
		SelectedBackground: lipgloss.AdaptiveColor{Light: voltrexLightSelectedBackground, Dark: voltrexDarkSelectedBackground},
	}
}

func newKanagawaColors() Colors {
	return Colors{
		Green:              lipgloss.AdaptiveColor{Light: kanagawaLightGreen, Dark: kanagawaDarkGreen},
		Yellow:             lipgloss.AdaptiveColor{Light: kanagawaLightYellow, Dark: kanagawaDarkYellow},
		Red:                lipgloss.AdaptiveColor{Light: kanagawaLightRed, Dark: kanagawaDarkRed},
		Orange:             lipgloss.AdaptiveColor{Light: kanagawaLightOrange, Dark: kanagawaDarkOrange},
		Cyan:               lipgloss.AdaptiveColor{Light: kanagawaLightCyan, Dark: kanagawaDarkCyan},
		Blue:               lipgloss.AdaptiveColor{Light: kanagawaLightBlue, Dark: kanagawaDarkBlue},
		Violet:             lipgloss.AdaptiveColor{Light: kanagawaLightViolet, Dark: kanagawaDarkViolet},
		LightText:          lipgloss.AdaptiveColor{Light: kanagawaLightLightText, Dark: kanagawaDarkLightText},
		MutedText:          lipgloss.AdaptiveColor{Light: kanagawaLightMutedText, Dark: kanagawaDarkMutedText},
		Border:             lipgloss.AdaptiveColor{Light: kanagawaLightBorder, Dark: kanagawaDarkBorder},
		SelectedBackground: lipgloss.AdaptiveColor{Light: kanagawaLightSelectedBackground, Dark: kanagawaDarkSelectedBackground},
	}
}

func newGruvboxColors() Colors {
	return Colors{
		Green:              lipgloss.AdaptiveColor{Light: gruvboxLightGreen, Dark: gruvboxDarkGreen},
		Yellow:             lipgloss.AdaptiveColor{Light: gruvboxLightYellow, Dark: gruvboxDarkYellow},
		Red:                lipgloss.AdaptiveColor{Light: gruvboxLightRed, Dark: gruvboxDarkRed},
		Orange:             lipgloss.AdaptiveColor{Light: gruvboxLightOrange, Dark: gruvboxDarkOrange},
		Cyan:               lipgloss.AdaptiveColor{Light: gruvboxLightCyan, Dark: gruvboxDarkCyan},
		Blue:               lipgloss.AdaptiveColor{Light: gruvboxLightBlue, Dark: gruvboxDarkBlue},
		Violet:             lipgloss.AdaptiveColor{Light: gruvboxLightViolet, Dark: gruvboxDarkViolet},
		LightText:          lipgloss.AdaptiveColor{Light: gruvboxLightLightText, Dark: gruvboxDarkLightText},
		MutedText:          lipgloss.AdaptiveColor{Light: gruvboxLightMutedText, Dark: gruvboxDarkMutedText},
		Border:             lipgloss.AdaptiveColor{Light: gruvboxLightBorder, Dark: gruvboxDarkBorder},
		SelectedBackground: lipgloss.AdaptiveColor{Light: gruvboxLightSelectedBackground, Dark: gruvboxDarkSelectedBackground},
	}
}
