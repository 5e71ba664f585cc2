package config

import (
	"fmt"
	"time"

	"github.com/grovetools/livesync/logging"
	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"
)

//go:generate sh -c "cd .. && go run ./tools/schema-generator/"

// Default values applied by SetDefaults.
const (
	DefaultBaseURL               = "http://127.0.0.1:3847"
	DefaultTimeout               = 15 * time.Second
	DefaultDashboardInterval     = 30 * time.Second
	DefaultNotificationsInterval = 10 * time.Second
	DefaultStreamRetry           = 3 * time.Second
	DefaultAlertTimeout          = 8 * time.Second
	DefaultErrorFactor           = 1.5
	DefaultFailureThreshold      = 3
	DefaultTheme                 = "voltrex"
)

// Duration is a time.Duration written as a Go duration string ("30s", "1m").
type Duration time.Duration

// UnmarshalText parses a duration string. yaml.v3 and go-toml both use it.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// JSONSchema describes Duration as a duration string.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
		Description: "Go duration string, e.g. 30s or 1m30s",
	}
}

// ServerConfig locates the dashboard server.
type ServerConfig struct {
	BaseURL string   `yaml:"base_url,omitempty" toml:"base_url,omitempty" jsonschema:"description=Base URL of the dashboard server (default: http://127.0.0.1:3847)" jsonschema_extras:"x-layer=global,x-priority=10,x-important=true"`
	Token   string   `yaml:"token,omitempty" toml:"token,omitempty" jsonschema:"description=Bearer token sent with every request" jsonschema_extras:"x-layer=global,x-priority=11,x-sensitive=true"`
	Timeout Duration `yaml:"timeout,omitempty" toml:"timeout,omitempty" jsonschema:"description=Per-request timeout (default: 15s)" jsonschema_extras:"x-layer=global,x-priority=12"`
	Retries *int     `yaml:"retries,omitempty" toml:"retries,omitempty" jsonschema:"description=Retries for transient request failures (default: 2),minimum=0"`
}

// IntervalsConfig holds polling intervals.
type IntervalsConfig struct {
	Dashboard     Duration `yaml:"dashboard,omitempty" toml:"dashboard,omitempty" jsonschema:"description=Dashboard refresh interval (default: 30s)" jsonschema_extras:"x-priority=20"`
	Notifications Duration `yaml:"notifications,omitempty" toml:"notifications,omitempty" jsonschema:"description=Unread notification polling interval (default: 10s)" jsonschema_extras:"x-priority=21"`
	Jitter        float64  `yaml:"jitter,omitempty" toml:"jitter,omitempty" jsonschema:"description=Spread ticks by up to this fraction of the interval,minimum=0,maximum=0.5"`
	// FailureThreshold is the number of consecutive failed refreshes that raise an alert.
	FailureThreshold int `yaml:"failure_threshold,omitempty" toml:"failure_threshold,omitempty" jsonschema:"description=Consecutive refresh failures before an alert (default: 3),minimum=1"`
}

// StreamConfig controls live event streams.
type StreamConfig struct {
	Live          *bool    `yaml:"live,omitempty" toml:"live,omitempty" jsonschema:"description=Open the project's git activity stream (default: true)" jsonschema_extras:"x-priority=30"`
	Retry         Duration `yaml:"retry,omitempty" toml:"retry,omitempty" jsonschema:"description=Initial SSE reconnect delay until the server sends one (default: 3s)"`
	MaxReconnects int      `yaml:"max_reconnects,omitempty" toml:"max_reconnects,omitempty" jsonschema:"description=Consecutive failed reconnects before giving up; 0 retries forever,minimum=0"`
	Notifications *bool    `yaml:"notifications,omitempty" toml:"notifications,omitempty" jsonschema:"description=Subscribe to the notification push stream in addition to polling (default: true)"`
}

// NotificationsConfig controls alert display and filtering.
type NotificationsConfig struct {
	AlertTimeout Duration `yaml:"alert_timeout,omitempty" toml:"alert_timeout,omitempty" jsonschema:"description=How long an alert stays visible (default: 8s)"`
	ErrorFactor  float64  `yaml:"error_factor,omitempty" toml:"error_factor,omitempty" jsonschema:"description=Timeout multiplier for error alerts (default: 1.5),minimum=1"`
	// Mute holds patterns matched against "<projectId>/<severity>".
	Mute []string `yaml:"mute,omitempty" toml:"mute,omitempty" jsonschema:"description=Patterns matched against <projectId>/<severity>; matching notifications are not alerted"`
}

// TUIConfig holds terminal view settings.
type TUIConfig struct {
	Theme string `yaml:"theme,omitempty" toml:"theme,omitempty" jsonschema:"description=Color theme; the theme preference overrides it,enum=voltrex,enum=kanagawa,enum=gruvbox" jsonschema_extras:"x-layer=global,x-priority=51,x-important=true"`
	Plain bool   `yaml:"plain,omitempty" toml:"plain,omitempty" jsonschema:"description=Always use line output instead of the interactive view"`
}

// Config represents livesync.toml / livesync.yml.
type Config struct {
	Version       string              `yaml:"version,omitempty" toml:"version,omitempty" jsonschema:"description=Configuration version (e.g. 1.0)"`
	Server        ServerConfig        `yaml:"server,omitempty" toml:"server,omitempty" jsonschema:"description=Dashboard server connection"`
	Intervals     IntervalsConfig     `yaml:"intervals,omitempty" toml:"intervals,omitempty" jsonschema:"description=Polling intervals"`
	Stream        StreamConfig        `yaml:"stream,omitempty" toml:"stream,omitempty" jsonschema:"description=Live event streams"`
	Notifications NotificationsConfig `yaml:"notifications,omitempty" toml:"notifications,omitempty" jsonschema:"description=Notification alerts"`
	TUI           TUIConfig           `yaml:"tui,omitempty" toml:"tui,omitempty" jsonschema:"description=Terminal view settings"`
	Logging       logging.Config      `yaml:"logging,omitempty" toml:"logging,omitempty" jsonschema:"description=Logging settings"`

	// Extensions captures all other top-level keys for extensibility.
	Extensions map[string]interface{} `yaml:",inline" toml:"-" jsonschema:"-"`
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = DefaultBaseURL
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = Duration(DefaultTimeout)
	}
	if c.Server.Retries == nil {
		retries := 2
		c.Server.Retries = &retries
	}
	if c.Intervals.Dashboard == 0 {
		c.Intervals.Dashboard = Duration(DefaultDashboardInterval)
	}
	if c.Intervals.Notifications == 0 {
		c.Intervals.Notifications = Duration(DefaultNotificationsInterval)
	}
	if c.Intervals.FailureThreshold == 0 {
		c.Intervals.FailureThreshold = DefaultFailureThreshold
	}
	if c.Stream.Live == nil {
		live := true
		c.Stream.Live = &live
	}
	if c.Stream.Notifications == nil {
		push := true
		c.Stream.Notifications = &push
	}
	if c.Stream.Retry == 0 {
		c.Stream.Retry = Duration(DefaultStreamRetry)
	}
	if c.Notifications.AlertTimeout == 0 {
		c.Notifications.AlertTimeout = Duration(DefaultAlertTimeout)
	}
	if c.Notifications.ErrorFactor == 0 {
		c.Notifications.ErrorFactor = DefaultErrorFactor
	}
	if c.TUI.Theme == "" {
		c.TUI.Theme = DefaultTheme
	}
}

// LiveEnabled reports whether the project stream should be opened.
func (c *Config) LiveEnabled() bool {
	return c.Stream.Live == nil || *c.Stream.Live
}

// PushEnabled reports whether the notification push stream should be used.
func (c *Config) PushEnabled() bool {
	return c.Stream.Notifications == nil || *c.Stream.Notifications
}

// UnmarshalExtension decodes a specific extension's configuration into the
// provided target struct. The target must be a pointer. A missing key leaves
// target untouched.
//
// Example:
//
//	var hooks myapp.HooksConfig
//	err := cfg.UnmarshalExtension("hooks", &hooks)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}

// ConfigSource identifies the origin of a configuration layer.
type ConfigSource string

const (
	SourceDefault ConfigSource = "default"
	SourceGlobal  ConfigSource = "global"
	SourceProject ConfigSource = "project"
	SourceEnv     ConfigSource = "env"
	SourceFlag    ConfigSource = "flag"
)
