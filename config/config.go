package config

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/grovetools/livesync/errors"
	"github.com/grovetools/livesync/logging"
	"github.com/grovetools/livesync/pkg/paths"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// configNames are searched in order in every directory.
var configNames = []string{
	"livesync.toml",
	"livesync.yml",
	"livesync.yaml",
	".livesync.toml",
	".livesync.yml",
	".livesync.yaml",
}

// Load reads, validates and completes a single configuration file.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := loadInto(&cfg, path); err != nil {
		return nil, err
	}
	applyEnv(&cfg)
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault loads the layered configuration starting from the current directory.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}
	return LoadFrom(cwd)
}

// LoadFrom loads configuration with hierarchical merging:
// 1. Global config (~/.config/livesync/livesync.toml) - base layer
// 2. Project config found from startDir upwards - overrides global
// 3. LIVESYNC_* environment variables - override both
//
// Neither file is required.
func LoadFrom(startDir string) (*Config, error) {
	logger := logging.NewLogger("config")
	var cfg Config

	if globalPath := FindGlobalConfigFile(); globalPath != "" {
		logger.WithField("path", globalPath).Debug("Loading global configuration")
		if err := loadInto(&cfg, globalPath); err != nil {
			return nil, err
		}
	}

	if projectPath, err := FindConfigFile(startDir); err == nil {
		logger.WithField("path", projectPath).Debug("Loading project configuration")
		if err := loadInto(&cfg, projectPath); err != nil {
			return nil, err
		}
	}

	applyEnv(&cfg)
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if logger.Logger.IsLevelEnabled(logrus.DebugLevel) {
		if data, err := yaml.Marshal(redacted(cfg)); err == nil {
			logger.Debugf("Merged configuration:\n%s", string(data))
		}
	}
	return &cfg, nil
}

// LoadFromBytes parses a configuration document. format is "toml" or "yaml".
func LoadFromBytes(data []byte, format string) (*Config, error) {
	var cfg Config
	if err := decodeInto(&cfg, data, format, "<bytes>"); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FindConfigFile searches startDir and its parents for a livesync config
// file, stopping before the global config directory.
func FindConfigFile(startDir string) (string, error) {
	globalDir := paths.ConfigDir()
	dir := startDir
	for {
		if dir != globalDir {
			for _, name := range configNames {
				path := filepath.Join(dir, name)
				if info, err := os.Stat(path); err == nil && !info.IsDir() {
					return path, nil
				}
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

// FindGlobalConfigFile returns the global config file, or "" if there is none.
func FindGlobalConfigFile() string {
	dir := paths.ConfigDir()
	if dir == "" {
		return ""
	}
	for _, name := range []string{"livesync.toml", "livesync.yml", "livesync.yaml"} {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return "toml"
	default:
		return "yaml"
	}
}

// loadInto decodes path over cfg. Keys absent from the file keep the values
// of earlier layers.
func loadInto(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.ConfigNotFound(path)
		}
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}
	return decodeInto(cfg, data, formatOf(path), path)
}

func decodeInto(cfg *Config, data []byte, format, source string) error {
	expanded := []byte(expandEnvVars(string(data)))

	raw, err := decodeRaw(expanded, format)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse configuration").
			WithDetail("path", source)
	}
	if err := validateRaw(raw); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "schema validation failed").
			WithDetail("path", source)
	}

	switch format {
	case "toml":
		if err := toml.NewDecoder(bytes.NewReader(expanded)).Decode(cfg); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse TOML configuration").
				WithDetail("path", source)
		}
		// go-toml has no inline maps; collect the unknown top-level tables by hand.
		for key, value := range raw {
			if knownKeys[key] {
				continue
			}
			if cfg.Extensions == nil {
				cfg.Extensions = make(map[string]interface{})
			}
			cfg.Extensions[key] = value
		}
	default:
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse YAML configuration").
				WithDetail("path", source)
		}
	}
	return nil
}

var knownKeys = map[string]bool{
	"version":       true,
	"server":        true,
	"intervals":     true,
	"stream":        true,
	"notifications": true,
	"tui":           true,
	"logging":       true,
}

func decodeRaw(data []byte, format string) (map[string]interface{}, error) {
	raw := map[string]interface{}{}
	if format == "toml" {
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		return raw, nil
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// applyEnv applies LIVESYNC_* overrides.
func applyEnv(cfg *Config) {
	if v := os.Getenv("LIVESYNC_SERVER_URL"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := os.Getenv("LIVESYNC_TOKEN"); v != "" {
		cfg.Server.Token = v
	}
	if v := os.Getenv("LIVESYNC_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("LIVESYNC_DASHBOARD_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Intervals.Dashboard = Duration(d)
		}
	}
	if v := os.Getenv("LIVESYNC_NOTIFICATIONS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Intervals.Notifications = Duration(d)
		}
	}
	if v := os.Getenv("LIVESYNC_LIVE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Stream.Live = &b
		}
	}
	if v := os.Getenv("LIVESYNC_THEME"); v != "" {
		cfg.TUI.Theme = v
	}
}

// expandEnvVars replaces ${VAR} with environment variable values
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		// Handle default values: ${VAR:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}

func redacted(cfg Config) Config {
	if cfg.Server.Token != "" {
		cfg.Server.Token = "********"
	}
	return cfg
}

// Redacted returns a copy of cfg with secrets masked, for display.
func (c Config) Redacted() Config {
	return redacted(c)
}
