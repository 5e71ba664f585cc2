package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLivesyncHomeOverridesXDG(t *testing.T) {
	t.Setenv("LIVESYNC_HOME", "/tmp/ls-home")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")

	assert.Equal(t, filepath.Join("/tmp/ls-home", "config"), ConfigDir())
	assert.Equal(t, filepath.Join("/tmp/ls-home", "state"), StateDir())
	assert.Equal(t, filepath.Join("/tmp/ls-home", "state", "prefs.yml"), PrefsFilePath())
}

func TestXDGDirs(t *testing.T) {
	t.Setenv("LIVESYNC_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg-state")

	assert.Equal(t, filepath.Join("/tmp/xdg-config", "livesync"), ConfigDir())
	assert.Equal(t, filepath.Join("/tmp/xdg-state", "livesync", "logs"), LogDir())
}
