// Package config provides YAML and TOML configuration parsing for Aether.
//
// This package enables running Aether as a standalone binary with a
// configuration file, as an alternative to embedding it as a library.
//
// Example configuration:
//
//	host: 0.0.0.0
//	port: 3000
//	shards: 64
//	outbox_size: 500
//	sweep_interval: 500ms
//	global_channel: ${AETHER_GLOBAL_CHANNEL:-global}
//	log_level: debug
//
// The same keys are accepted in a .toml file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied by [Parse] and [ParseTOML] to unset fields.
const (
	DefaultHost             = "127.0.0.1"
	DefaultPort             = 3000
	DefaultShards           = 32
	DefaultOutboxSize       = 1000
	DefaultSweepInterval    = time.Second
	DefaultSweepConcurrency = 4
	DefaultGlobalChannel    = "global"
	DefaultWriteTimeout     = 5 * time.Second
	DefaultMaxMessageBytes  = 1 << 20
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
)

// minSweepInterval keeps the sweeper from spinning on a misconfigured file.
const minSweepInterval = 10 * time.Millisecond

// Config is the root configuration structure for Aether.
//
// It maps directly to the configuration file. Use [Load], [Parse] or
// [ParseTOML] to create one.
type Config struct {
	// Title is the console page title. Defaults to "Aether" if not set.
	Title string `yaml:"title" toml:"title"`

	// Host is the interface to bind. Supports ${VAR} substitution.
	Host string `yaml:"host" toml:"host"`

	// Port is the HTTP server port. Defaults to 3000.
	Port int `yaml:"port" toml:"port"`

	// Shards is the number of lock shards in the store and the registry.
	Shards int `yaml:"shards" toml:"shards"`

	// OutboxSize bounds each session's queue of pending deliveries.
	OutboxSize int `yaml:"outbox_size" toml:"outbox_size"`

	// SweepInterval is the time between expiry sweeps. Minimum 10ms.
	SweepInterval Duration `yaml:"sweep_interval" toml:"sweep_interval"`

	// SweepConcurrency bounds how many shards are swept at once.
	SweepConcurrency int `yaml:"sweep_concurrency" toml:"sweep_concurrency"`

	// GlobalChannel names the channel every session receives.
	// Supports ${VAR} substitution.
	GlobalChannel string `yaml:"global_channel" toml:"global_channel"`

	// DisableGlobalChannel turns the global channel into a regular one.
	DisableGlobalChannel bool `yaml:"disable_global_channel" toml:"disable_global_channel"`

	// WriteTimeout bounds every frame written to a client.
	WriteTimeout Duration `yaml:"write_timeout" toml:"write_timeout"`

	// MaxMessageBytes is the largest frame a client may send.
	MaxMessageBytes int64 `yaml:"max_message_bytes" toml:"max_message_bytes"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" toml:"log_level"`

	// LogFormat is json or text.
	LogFormat string `yaml:"log_format" toml:"log_format"`
}

// Duration wraps time.Duration for YAML and TOML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText implements encoding.TextUnmarshaler, which the TOML
// decoder uses for string values.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// SlogLevel maps LogLevel onto a slog level. Call it on a validated config.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		varName := submatches[1]
		hasDefault := submatches[2] != ""

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return submatches[3]
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a configuration file. Files ending in .toml are
// decoded as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParseTOML(data)
	}
	return Parse(data)
}

// Parse parses YAML configuration data, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return finish(&cfg)
}

// ParseTOML parses TOML configuration data, applies defaults and validates.
func ParseTOML(data []byte) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.applyDefaults()
	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Shards == 0 {
		c.Shards = DefaultShards
	}
	if c.OutboxSize == 0 {
		c.OutboxSize = DefaultOutboxSize
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = Duration(DefaultSweepInterval)
	}
	if c.SweepConcurrency == 0 {
		c.SweepConcurrency = DefaultSweepConcurrency
	}
	if c.GlobalChannel == "" {
		c.GlobalChannel = DefaultGlobalChannel
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = Duration(DefaultWriteTimeout)
	}
	if c.MaxMessageBytes == 0 {
		c.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
}

// Validate checks a configuration that was built in code rather than parsed.
func (c *Config) Validate() error {
	return c.expandAndValidate()
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	host, err := expandEnvVars(c.Host)
	if err != nil {
		return fmt.Errorf("host: %w", err)
	}
	c.Host = host

	channel, err := expandEnvVars(c.GlobalChannel)
	if err != nil {
		return fmt.Errorf("global_channel: %w", err)
	}
	c.GlobalChannel = channel

	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", c.Port)
	}
	if c.Shards < 1 {
		return fmt.Errorf("shards must be at least 1, got %d", c.Shards)
	}
	if c.OutboxSize < 1 {
		return fmt.Errorf("outbox_size must be at least 1, got %d", c.OutboxSize)
	}
	if c.SweepInterval.Duration() < minSweepInterval {
		return fmt.Errorf("sweep_interval must be at least %s, got %s", minSweepInterval, c.SweepInterval.Duration())
	}
	if c.SweepConcurrency < 1 {
		return fmt.Errorf("sweep_concurrency must be at least 1, got %d", c.SweepConcurrency)
	}
	if c.GlobalChannel == "" && !c.DisableGlobalChannel {
		return errors.New("global_channel cannot be empty unless disable_global_channel is set")
	}
	if c.WriteTimeout.Duration() <= 0 {
		return fmt.Errorf("write_timeout must be positive, got %s", c.WriteTimeout.Duration())
	}
	if c.MaxMessageBytes < 1 {
		return fmt.Errorf("max_message_bytes must be at least 1, got %d", c.MaxMessageBytes)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("log_format must be json or text, got %q", c.LogFormat)
	}

	return nil
}
