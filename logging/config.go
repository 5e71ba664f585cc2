package logging

// Config defines the `logging` section of livesync.toml / livesync.yml.
type Config struct {
	// Level is the minimum log level to output (e.g., "debug", "info", "warn", "error").
	// Can be overridden by the LIVESYNC_LOG_LEVEL environment variable.
	Level string `yaml:"level,omitempty" toml:"level,omitempty" json:"level,omitempty"`

	// ReportCaller, if true, includes the file, line, and function name in the log output.
	// Can be enabled with the LIVESYNC_LOG_CALLER=true environment variable.
	ReportCaller bool `yaml:"report_caller,omitempty" toml:"report_caller,omitempty" json:"report_caller,omitempty"`

	// File configures logging to a file.
	File FileSinkConfig `yaml:"file,omitempty" toml:"file,omitempty" json:"file,omitempty"`

	// Format configures the appearance of the log output.
	Format FormatConfig `yaml:"format,omitempty" toml:"format,omitempty" json:"format,omitempty"`
}

// FileSinkConfig configures the file logging sink.
type FileSinkConfig struct {
	Enabled bool `yaml:"enabled,omitempty" toml:"enabled,omitempty" json:"enabled,omitempty"`
	// Path is the full path to the log file. Defaults to <state>/logs/<component>-<date>.log.
	Path string `yaml:"path,omitempty" toml:"path,omitempty" json:"path,omitempty"`
}

// FormatConfig controls the log output format.
type FormatConfig struct {
	// Preset can be "default" (rich text), "simple" (minimal text), or "json".
	Preset string `yaml:"preset,omitempty" toml:"preset,omitempty" json:"preset,omitempty" jsonschema:"enum=default,enum=simple,enum=json"`
	// DisableTimestamp disables the timestamp from the "default" and "simple" formats.
	DisableTimestamp bool `yaml:"disable_timestamp,omitempty" toml:"disable_timestamp,omitempty" json:"disable_timestamp,omitempty"`
	// DisableComponent disables the component name from the "default" and "simple" formats.
	DisableComponent bool `yaml:"disable_component,omitempty" toml:"disable_component,omitempty" json:"disable_component,omitempty"`
	// StructuredToStderr controls when structured logs are sent to stderr.
	// Can be "auto" (default), "always", or "never".
	StructuredToStderr string `yaml:"structured_to_stderr,omitempty" toml:"structured_to_stderr,omitempty" json:"structured_to_stderr,omitempty" jsonschema:"enum=auto,enum=always,enum=never"`
}
