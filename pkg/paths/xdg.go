// Package paths provides XDG-compliant path resolution for livesync.
//
// Resolution order:
// 1. LIVESYNC_HOME (portable root) → $LIVESYNC_HOME/{config,state}
// 2. XDG env vars → $XDG_*_HOME/livesync
// 3. Platform defaults → ~/.config/livesync, ~/.local/state/livesync
package paths

import (
	"os"
	"path/filepath"
)

const appName = "livesync"

// getConfigHome returns the base config home directory.
func getConfigHome() string {
	if home := os.Getenv("LIVESYNC_HOME"); home != "" {
		return filepath.Join(home, "config")
	}
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return xdgConfigHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config")
	}
	return ""
}

// getStateHome returns the base state home directory.
func getStateHome() string {
	if home := os.Getenv("LIVESYNC_HOME"); home != "" {
		return filepath.Join(home, "state")
	}
	if xdgStateHome := os.Getenv("XDG_STATE_HOME"); xdgStateHome != "" {
		return xdgStateHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "state")
	}
	return ""
}

// ConfigDir returns the livesync configuration directory.
// Used for livesync.toml / livesync.yml.
func ConfigDir() string {
	base := getConfigHome()
	if base == "" {
		return ""
	}
	if os.Getenv("LIVESYNC_HOME") != "" {
		return base
	}
	return filepath.Join(base, appName)
}

// StateDir returns the livesync state directory.
// Used for the preferences file and logs.
func StateDir() string {
	base := getStateHome()
	if base == "" {
		return ""
	}
	if os.Getenv("LIVESYNC_HOME") != "" {
		return base
	}
	return filepath.Join(base, appName)
}

// PrefsFilePath returns the path of the persisted preferences file.
func PrefsFilePath() string {
	return filepath.Join(StateDir(), "prefs.yml")
}

// LogDir returns the directory for file logs.
func LogDir() string {
	return filepath.Join(StateDir(), "logs")
}

// EnsureDirs creates all livesync directories if they don't exist.
func EnsureDirs() error {
	dirs := []string{
		ConfigDir(),
		StateDir(),
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
