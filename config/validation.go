package config

import (
	"fmt"
	"net/url"

	"github.com/grovetools/livesync/errors"
	"github.com/moby/patternmatcher"
	"github.com/sirupsen/logrus"
)

var themes = map[string]bool{
	"voltrex":  true,
	"kanagawa": true,
	"gruvbox":  true,
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New(errors.ErrCodeConfigValidation, "server.base_url must be an absolute http(s) URL").
			WithDetail("base_url", c.Server.BaseURL)
	}
	if c.Server.Retries != nil && *c.Server.Retries < 0 {
		return errors.New(errors.ErrCodeConfigValidation, "server.retries cannot be negative")
	}

	if err := validatePositive("server.timeout", c.Server.Timeout); err != nil {
		return err
	}
	if err := validatePositive("intervals.dashboard", c.Intervals.Dashboard); err != nil {
		return err
	}
	if err := validatePositive("intervals.notifications", c.Intervals.Notifications); err != nil {
		return err
	}
	if c.Intervals.Jitter < 0 || c.Intervals.Jitter > 0.5 {
		return errors.New(errors.ErrCodeConfigValidation, "intervals.jitter must be between 0 and 0.5").
			WithDetail("jitter", c.Intervals.Jitter)
	}
	if c.Intervals.FailureThreshold < 1 {
		return errors.New(errors.ErrCodeConfigValidation, "intervals.failure_threshold must be at least 1")
	}

	if c.Stream.MaxReconnects < 0 {
		return errors.New(errors.ErrCodeConfigValidation, "stream.max_reconnects cannot be negative")
	}
	if err := validatePositive("stream.retry", c.Stream.Retry); err != nil {
		return err
	}

	if err := validatePositive("notifications.alert_timeout", c.Notifications.AlertTimeout); err != nil {
		return err
	}
	if c.Notifications.ErrorFactor < 1 {
		return errors.New(errors.ErrCodeConfigValidation, "notifications.error_factor must be at least 1").
			WithDetail("error_factor", c.Notifications.ErrorFactor)
	}
	if _, err := patternmatcher.New(c.Notifications.Mute); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid notifications.mute pattern")
	}

	if !themes[c.TUI.Theme] {
		return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("unknown theme '%s'", c.TUI.Theme)).
			WithDetail("theme", c.TUI.Theme)
	}

	if c.Logging.Level != "" {
		if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid logging.level")
		}
	}
	return nil
}

func validatePositive(field string, d Duration) error {
	if d <= 0 {
		return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("%s must be positive", field)).
			WithDetail("field", field)
	}
	return nil
}
