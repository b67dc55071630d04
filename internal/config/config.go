// Package config loads and validates the mailprobe configuration
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/busybox42/mailprobe/internal/logging"
	"github.com/busybox42/mailprobe/internal/sink"
	"github.com/busybox42/mailprobe/internal/smtpclient"
	"github.com/busybox42/mailprobe/internal/watch"
)

// maxConfigBytes bounds how much configuration LoadConfig will read
const maxConfigBytes = 1 << 20

// Config represents the application configuration. Interval and timeout
// values are plain seconds in the TOML file.
type Config struct {
	// Analysis endpoint the probes are submitted to
	Endpoint struct {
		Host  string `toml:"host"`
		Port  int    `toml:"port"`
		Hello string `toml:"hello"`
	} `toml:"endpoint"`

	// Per-case submission behavior
	Submit struct {
		ConnectTimeout int `toml:"connect_timeout"`
		Timeout        int `toml:"timeout"`
		Pause          int `toml:"pause"`
	} `toml:"submit"`

	// Catalogue source; empty file means the builtin five cases
	Catalogue struct {
		File string `toml:"file"`
	} `toml:"catalogue"`

	// Soak mode configuration
	Watch struct {
		Interval         int `toml:"interval"`
		FailureThreshold int `toml:"failure_threshold"`
		Cooldown         int `toml:"cooldown"`
	} `toml:"watch"`

	// Metrics exposition configuration
	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Listen  string `toml:"listen"`
	} `toml:"metrics"`

	// Local capture sink configuration
	Sink struct {
		Listen     string `toml:"listen"`
		Domain     string `toml:"domain"`
		MaxSize    int64  `toml:"max_size"`
		MaxStored  int    `toml:"max_stored"`
		RejectFrom string `toml:"reject_from"`
	} `toml:"sink"`

	// Logging configuration
	Logging struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"logging"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Endpoint.Host = "localhost"
	cfg.Endpoint.Port = 2525
	cfg.Endpoint.Hello = "mailprobe.local"

	cfg.Submit.ConnectTimeout = 10
	cfg.Submit.Timeout = 30
	cfg.Submit.Pause = 1

	cfg.Watch.Interval = 60
	cfg.Watch.FailureThreshold = 3
	cfg.Watch.Cooldown = 120

	cfg.Metrics.Enabled = false
	cfg.Metrics.Listen = ":9090"

	cfg.Sink.Listen = ":2525"
	cfg.Sink.Domain = "sink.local"
	cfg.Sink.MaxSize = 10 * 1024 * 1024
	cfg.Sink.MaxStored = 1000

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	return cfg
}

// FindConfigFile looks for a configuration file in common locations
func FindConfigFile(configPath string) (string, error) {
	// If a specific path is provided, check only that
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
		return "", fmt.Errorf("config file not found at specified path: %s", configPath)
	}

	locations := []string{
		"./mailprobe.toml",
		"./config/mailprobe.toml",
		os.ExpandEnv("$HOME/.mailprobe.toml"),
		"/etc/mailprobe/mailprobe.toml",
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc, nil
		}
	}

	return "", fmt.Errorf("no config file found")
}

// LoadConfig loads the configuration: defaults first, then the file overlay.
// A missing file is only an error when the caller asked for a specific path.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	configFile, err := FindConfigFile(configPath)
	if err != nil {
		if configPath != "" {
			return nil, err
		}
		slog.Debug("no config file found, using defaults")
		return cfg, nil
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if len(data) > maxConfigBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max: %d)", len(data), maxConfigBytes)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing TOML configuration: %w", err)
	}

	slog.Debug("configuration loaded", "file", configFile)
	return cfg, nil
}

// SaveConfig writes the configuration to a file in TOML format
func (c *Config) SaveConfig(configPath string) error {
	tomlContent := fmt.Sprintf(`# Mailprobe configuration

[endpoint]
host = "%s"
port = %d
hello = "%s"

[submit]
# timings in seconds
connect_timeout = %d
timeout = %d
pause = %d

[catalogue]
# path to a TOML catalogue; empty uses the builtin five cases
file = "%s"

[watch]
interval = %d
failure_threshold = %d
cooldown = %d

[metrics]
enabled = %t
listen = "%s"

[sink]
listen = "%s"
domain = "%s"
max_size = %d
max_stored = %d
reject_from = "%s"

[logging]
level = "%s"
format = "%s"
`,
		c.Endpoint.Host, c.Endpoint.Port, c.Endpoint.Hello,
		c.Submit.ConnectTimeout, c.Submit.Timeout, c.Submit.Pause,
		c.Catalogue.File,
		c.Watch.Interval, c.Watch.FailureThreshold, c.Watch.Cooldown,
		c.Metrics.Enabled, c.Metrics.Listen,
		c.Sink.Listen, c.Sink.Domain, c.Sink.MaxSize, c.Sink.MaxStored, c.Sink.RejectFrom,
		c.Logging.Level, c.Logging.Format)

	if err := os.WriteFile(configPath, []byte(tomlContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// CreateDefaultConfig writes the default configuration to a file
func CreateDefaultConfig(path string) error {
	return DefaultConfig().SaveConfig(path)
}

// ClientConfig converts the endpoint and submit sections into the
// submission client's configuration
func (c *Config) ClientConfig() smtpclient.Config {
	return smtpclient.Config{
		Host:           c.Endpoint.Host,
		Port:           c.Endpoint.Port,
		Hello:          c.Endpoint.Hello,
		ConnectTimeout: time.Duration(c.Submit.ConnectTimeout) * time.Second,
		SubmitTimeout:  time.Duration(c.Submit.Timeout) * time.Second,
	}
}

// Pause returns the inter-case pacing as a duration
func (c *Config) Pause() time.Duration {
	return time.Duration(c.Submit.Pause) * time.Second
}

// WatchConfig converts the watch and metrics sections into the watcher's
// configuration
func (c *Config) WatchConfig() watch.Config {
	wc := watch.Config{
		Interval:         time.Duration(c.Watch.Interval) * time.Second,
		FailureThreshold: c.Watch.FailureThreshold,
		Cooldown:         time.Duration(c.Watch.Cooldown) * time.Second,
	}
	if c.Metrics.Enabled {
		wc.MetricsListen = c.Metrics.Listen
	}
	return wc
}

// SinkConfig converts the sink section into the capture server's
// configuration
func (c *Config) SinkConfig() sink.Config {
	sc := sink.DefaultConfig()
	sc.Listen = c.Sink.Listen
	sc.Domain = c.Sink.Domain
	sc.MaxMessageBytes = c.Sink.MaxSize
	sc.MaxStored = c.Sink.MaxStored
	sc.RejectFrom = c.Sink.RejectFrom
	return sc
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error in field '%s': %s (current value: %v)", e.Field, e.Message, e.Value)
}

// ValidationResult holds the results of configuration validation
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
	Valid    bool
}

// AddError adds a validation error
func (vr *ValidationResult) AddError(field string, value interface{}, message string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: message})
	vr.Valid = false
}

// AddWarning adds a validation warning
func (vr *ValidationResult) AddWarning(field string, value interface{}, message string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: message})
}

// Validate performs validation over the whole configuration
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{Valid: true}

	c.validateEndpoint(result)
	c.validateSubmit(result)
	c.validateCatalogue(result)
	c.validateWatch(result)
	c.validateMetrics(result)
	c.validateSink(result)
	c.validateLogging(result)

	return result
}

func (c *Config) validateEndpoint(result *ValidationResult) {
	if c.Endpoint.Host == "" {
		result.AddError("endpoint.host", c.Endpoint.Host, "endpoint host must not be empty")
	}
	if c.Endpoint.Port < 1 || c.Endpoint.Port > 65535 {
		result.AddError("endpoint.port", c.Endpoint.Port, "port must be between 1 and 65535")
	}
	if c.Endpoint.Hello == "" {
		result.AddError("endpoint.hello", c.Endpoint.Hello, "EHLO hostname must not be empty")
	} else if strings.ContainsAny(c.Endpoint.Hello, " \r\n") {
		result.AddError("endpoint.hello", c.Endpoint.Hello, "EHLO hostname must not contain spaces or line breaks")
	}
}

func (c *Config) validateSubmit(result *ValidationResult) {
	if c.Submit.ConnectTimeout <= 0 {
		result.AddError("submit.connect_timeout", c.Submit.ConnectTimeout, "connect timeout must be positive")
	}
	if c.Submit.Timeout <= 0 {
		result.AddError("submit.timeout", c.Submit.Timeout, "submit timeout must be positive")
	}
	if c.Submit.Pause < 0 {
		result.AddError("submit.pause", c.Submit.Pause, "pause must not be negative")
	}
	if c.Submit.ConnectTimeout > 0 && c.Submit.Timeout > 0 && c.Submit.ConnectTimeout > c.Submit.Timeout {
		result.AddWarning("submit.connect_timeout", c.Submit.ConnectTimeout, "connect timeout exceeds the whole-submission timeout")
	}
}

func (c *Config) validateCatalogue(result *ValidationResult) {
	if c.Catalogue.File == "" {
		return
	}
	if _, err := os.Stat(c.Catalogue.File); err != nil {
		result.AddWarning("catalogue.file", c.Catalogue.File, "catalogue file does not exist")
	}
}

func (c *Config) validateWatch(result *ValidationResult) {
	if c.Watch.Interval < 1 {
		result.AddError("watch.interval", c.Watch.Interval, "interval must be at least 1 second")
	}
	if c.Watch.FailureThreshold < 1 {
		result.AddError("watch.failure_threshold", c.Watch.FailureThreshold, "failure threshold must be at least 1")
	}
	if c.Watch.Cooldown < 1 {
		result.AddError("watch.cooldown", c.Watch.Cooldown, "cooldown must be at least 1 second")
	}
}

func (c *Config) validateMetrics(result *ValidationResult) {
	if !c.Metrics.Enabled {
		return
	}
	if c.Metrics.Listen == "" {
		result.AddError("metrics.listen", c.Metrics.Listen, "metrics listen address required when metrics are enabled")
		return
	}
	if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
		result.AddError("metrics.listen", c.Metrics.Listen, "metrics listen address must be host:port")
	}
}

func (c *Config) validateSink(result *ValidationResult) {
	if c.Sink.Listen == "" {
		result.AddError("sink.listen", c.Sink.Listen, "sink listen address must not be empty")
	} else if _, _, err := net.SplitHostPort(c.Sink.Listen); err != nil {
		result.AddError("sink.listen", c.Sink.Listen, "sink listen address must be host:port")
	}
	if c.Sink.Domain == "" {
		result.AddError("sink.domain", c.Sink.Domain, "sink domain must not be empty")
	}
	if c.Sink.MaxSize <= 0 {
		result.AddError("sink.max_size", c.Sink.MaxSize, "sink message size limit must be positive")
	}
	if c.Sink.MaxStored < 0 {
		result.AddError("sink.max_stored", c.Sink.MaxStored, "sink store bound must not be negative")
	} else if c.Sink.MaxStored == 0 {
		result.AddWarning("sink.max_stored", c.Sink.MaxStored, "unbounded capture store, memory grows with traffic")
	}
}

func (c *Config) validateLogging(result *ValidationResult) {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		result.AddError("logging.level", c.Logging.Level, "level must be one of debug, info, warn, error")
	}
	if !logging.ValidFormat(c.Logging.Format) {
		result.AddError("logging.format", c.Logging.Format, "format must be text or json")
	}
}
