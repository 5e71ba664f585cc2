package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/grovetools/livesync/pkg/paths"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex

	activeConfig Config
	debugMode    bool
)

// Configure sets the logging configuration used by loggers created after the call.
// The CLI calls it once after loading livesync.toml, before any component starts.
func Configure(cfg Config) {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	activeConfig = cfg
}

// SetDebug forces debug level and stderr output for loggers created after the call.
func SetDebug(enabled bool) {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	debugMode = enabled
}

// NewLogger creates and returns a pre-configured logger for a specific component.
// It uses a singleton pattern per component to avoid re-initializing.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	logCfg := activeConfig
	logger := logrus.New()

	levelStr := "info"
	if env := os.Getenv("LIVESYNC_LOG_LEVEL"); env != "" {
		levelStr = env
	} else if logCfg.Level != "" {
		levelStr = logCfg.Level
	}
	if debugMode {
		levelStr = "debug"
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if os.Getenv("LIVESYNC_LOG_CALLER") == "true" || logCfg.ReportCaller {
		logger.SetReportCaller(true)
	}

	isInteractive := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

	switch logCfg.Format.Preset {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "simple":
		logger.SetFormatter(&TextFormatter{Config: FormatConfig{
			DisableTimestamp: true,
			DisableComponent: true,
		}})
	default:
		logger.SetFormatter(&TextFormatter{Config: logCfg.Format})
	}

	var writers []io.Writer

	logFilePath := ""
	if logCfg.File.Path != "" {
		logFilePath = expandPath(logCfg.File.Path)
	} else if logCfg.File.Enabled {
		dateStr := time.Now().Format("2006-01-02")
		logFilePath = filepath.Join(paths.LogDir(), fmt.Sprintf("%s-%s.log", component, dateStr))
	}
	if logFilePath != "" {
		dir := filepath.Dir(logFilePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Warnf("Failed to create log directory %s: %v", dir, err)
		} else if file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			writers = append(writers, file)
		} else {
			logger.Warnf("Failed to open log file %s: %v", logFilePath, err)
		}
	}

	stderrMode := "auto"
	if logCfg.Format.StructuredToStderr != "" {
		stderrMode = logCfg.Format.StructuredToStderr
	}

	shouldLogToStderr := false
	switch stderrMode {
	case "always":
		shouldLogToStderr = true
	case "never":
		shouldLogToStderr = false
	default:
		// Interactive sessions own the terminal (TUI), so structured logs only
		// go to stderr when debugging or when output is piped.
		isDebug := debugMode || logger.GetLevel() >= logrus.DebugLevel
		shouldLogToStderr = isDebug || !isInteractive
	}
	if shouldLogToStderr {
		writers = append(writers, os.Stderr)
		if tf, ok := logger.Formatter.(*TextFormatter); ok && isInteractive && len(writers) == 1 {
			tf.Color = true
		}
	}

	switch len(writers) {
	case 0:
		logger.SetOutput(io.Discard)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}

	entry := logger.WithField("component", component)
	loggers[component] = entry
	return entry
}

// expandPath expands tilde in file paths
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
