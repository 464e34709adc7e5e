// ABOUTME: Configuration loading and parsing for the mattermost bot
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete bot configuration
type Config struct {
	Database Database `yaml:"database"`
	Answer   Answer   `yaml:"answer"`
	Bot      Bot      `yaml:"bot"`
	Logging  Logging  `yaml:"logging"`
}

// Database holds database configuration
type Database struct {
	Path string `yaml:"path"`
}

// Answer holds answer-service client configuration
type Answer struct {
	URL string `yaml:"url"`
}

// Bot holds supervisor timing and sizing configuration
type Bot struct {
	RefreshInterval      time.Duration `yaml:"-"`
	ReconnectDelay       time.Duration `yaml:"-"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	WorkerPoolSize       int           `yaml:"worker_pool_size"`
	MaxContextMessages   int           `yaml:"max_context_messages"`
	MaxMessageLength     int           `yaml:"max_message_length"`

	// Raw string values for YAML unmarshaling
	RefreshIntervalRaw string `yaml:"refresh_interval"`
	ReconnectDelayRaw  string `yaml:"reconnect_delay"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Answer.URL == "" {
		return fmt.Errorf("answer.url is required")
	}
	if c.Bot.MaxReconnectAttempts < 0 {
		return fmt.Errorf("bot.max_reconnect_attempts must not be negative")
	}
	if c.Bot.WorkerPoolSize < 0 {
		return fmt.Errorf("bot.worker_pool_size must not be negative")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Bot.RefreshIntervalRaw != "" {
		cfg.Bot.RefreshInterval, err = time.ParseDuration(cfg.Bot.RefreshIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing refresh_interval %q: %w", cfg.Bot.RefreshIntervalRaw, err)
		}
	}

	if cfg.Bot.ReconnectDelayRaw != "" {
		cfg.Bot.ReconnectDelay, err = time.ParseDuration(cfg.Bot.ReconnectDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing reconnect_delay %q: %w", cfg.Bot.ReconnectDelayRaw, err)
		}
	}

	return nil
}
