package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grovetools/livesync/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("LIVESYNC_HOME", home)
	t.Setenv("LIVESYNC_SERVER_URL", "")
	t.Setenv("LIVESYNC_TOKEN", "")
	t.Chdir(home)
	return home
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestPrefsRoundTrip(t *testing.T) {
	home := isolate(t)

	_, err := run(t, "prefs", "set", "theme", "Gruvbox")
	require.NoError(t, err)
	out, err := run(t, "prefs", "get", "theme")
	require.NoError(t, err)
	assert.Equal(t, "gruvbox\n", out)

	_, err = run(t, "prefs", "set", "theme", "solarized")
	require.Error(t, err)

	_, err = run(t, "prefs", "set", "last-notification-id", "12")
	require.NoError(t, err)
	cursor, err := state.Open(filepath.Join(home, "state", "prefs.yml")).LoadCursor()
	require.NoError(t, err)
	assert.Equal(t, int64(12), cursor)

	_, err = run(t, "prefs", "unset", "theme")
	require.NoError(t, err)
	out, err = run(t, "prefs", "get")
	require.NoError(t, err)
	assert.NotContains(t, out, "theme")
	assert.Contains(t, out, "last-notification-id = 12")
}

func TestSchemaCommands(t *testing.T) {
	isolate(t)

	out, err := run(t, "schema", "config")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)))

	out, err = run(t, "schema", "snapshot", "dashboard")
	require.NoError(t, err)
	assert.Contains(t, out, "waves")

	_, err = run(t, "schema", "snapshot", "bogus")
	require.Error(t, err)
}

func TestVersionJSON(t *testing.T) {
	isolate(t)
	out, err := run(t, "version", "--json")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "dev", info["version"])
}

func TestPathsJSON(t *testing.T) {
	home := isolate(t)
	out, err := run(t, "paths", "--json")
	require.NoError(t, err)

	var p PathsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, filepath.Join(home, "state", "prefs.yml"), p.PrefsFile)
}

func TestNotificationsCommands(t *testing.T) {
	isolate(t)

	var posted []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/notifications":
			assert.Equal(t, "true", r.URL.Query().Get("unread"))
			assert.Equal(t, "error", r.URL.Query().Get("severity"))
			fmt.Fprint(w, `{"notifications":[{"id":4,"severity":"error","title":"Build failed","project_id":"7","created_at":"2026-10-18 10:00:00","is_read":0}],"total":1,"limit":50,"offset":0}`)
		case r.Method == http.MethodPost:
			posted = append(posted, r.URL.Path)
			fmt.Fprint(w, `{"success":true}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()
	t.Setenv("LIVESYNC_SERVER_URL", server.URL)

	out, err := run(t, "notifications", "--unread", "--severity", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Build failed")
	assert.Contains(t, out, "1 of 1")

	_, err = run(t, "notifications", "read", "4")
	require.NoError(t, err)
	_, err = run(t, "notifications", "dismiss", "5")
	require.NoError(t, err)
	_, err = run(t, "notifications", "read-all", "--project", "7")
	require.NoError(t, err)
	_, err = run(t, "notifications", "read", "abc")
	require.Error(t, err)

	assert.Equal(t, []string{
		"/api/notifications/4/read",
		"/api/notifications/5/dismiss",
		"/api/notifications/read-all",
	}, posted)
}

func TestConfigMasksToken(t *testing.T) {
	isolate(t)
	t.Setenv("LIVESYNC_TOKEN", "s3cret")

	out, err := run(t, "config")
	require.NoError(t, err)
	assert.NotContains(t, out, "s3cret")
	assert.True(t, strings.Contains(out, "********"))
}
