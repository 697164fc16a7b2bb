// ABOUTME: Configuration loading and parsing for coven-bridge
// ABOUTME: Supports YAML files with environment variable expansion and URL resolution

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// urlOverrideEnv overrides any configured gateway URL when set.
const urlOverrideEnv = "COVEN_GATEWAY_URL"

// Config represents the complete coven-bridge configuration
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Auth     AuthConfig     `yaml:"auth"`
	History  HistoryConfig  `yaml:"history"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GatewayConfig holds gateway endpoint and protocol configuration
type GatewayConfig struct {
	// URL is the production gateway WebSocket endpoint.
	URL string `yaml:"url"`
	// DevURL is used instead of URL when Mode is "dev".
	DevURL string `yaml:"dev_url"`
	// Mode selects the endpoint: "prod" (default) or "dev".
	Mode string `yaml:"mode"`
	// Protocol selects the wire dialect: "gateway" (default) or "legacy".
	Protocol string `yaml:"protocol"`

	ChannelID string `yaml:"channel_id"`
	AccountID string `yaml:"account_id"`
}

// AuthConfig holds the auth token source
type AuthConfig struct {
	// Token is the raw auth token. Usually "${COVEN_TOKEN}".
	Token string `yaml:"token"`
	// TokenFile is read when Token is empty.
	TokenFile string `yaml:"token_file"`
}

// HistoryConfig holds local message history configuration
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TimeoutsConfig holds connection timing overrides
type TimeoutsConfig struct {
	// Dial bounds transport dial and handshake, in time.ParseDuration
	// syntax ("15s", "1m"). Empty keeps the built-in default.
	Dial string `yaml:"dial"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// DefaultPath returns the first existing config file location, checking
// COVEN_BRIDGE_CONFIG, ./bridge.yaml, then ~/.config/coven/bridge.yaml.
// Falls back to ./bridge.yaml when none exist.
func DefaultPath() string {
	if p := os.Getenv("COVEN_BRIDGE_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("bridge.yaml"); err == nil {
		return "bridge.yaml"
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "bridge.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	p := filepath.Join(configDir, "coven", "bridge.yaml")
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return "bridge.yaml"
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Gateway.URL == "" && c.Gateway.DevURL == "" && os.Getenv(urlOverrideEnv) == "" {
		return fmt.Errorf("gateway.url is required (or set %s)", urlOverrideEnv)
	}

	switch c.Gateway.Mode {
	case "", "prod", "dev":
	default:
		return fmt.Errorf("gateway.mode must be prod or dev, got %q", c.Gateway.Mode)
	}

	switch c.Gateway.Protocol {
	case "", "gateway", "legacy":
	default:
		return fmt.Errorf("gateway.protocol must be gateway or legacy, got %q", c.Gateway.Protocol)
	}

	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}

	if c.Timeouts.Dial != "" {
		if _, err := time.ParseDuration(c.Timeouts.Dial); err != nil {
			return fmt.Errorf("parsing timeouts.dial: %w", err)
		}
	}

	return nil
}

// DialTimeout returns the configured dial timeout, or zero when unset so
// the bridge falls back to its default. Validate has already checked the
// duration syntax.
func (c *Config) DialTimeout() time.Duration {
	if c.Timeouts.Dial == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Timeouts.Dial)
	if err != nil {
		return 0
	}
	return d
}

// ResolveURL returns the gateway URL for the next connection attempt.
// The COVEN_GATEWAY_URL environment variable wins over the config file;
// otherwise the mode selects between url and dev_url.
func (c *Config) ResolveURL() string {
	if override := os.Getenv(urlOverrideEnv); override != "" {
		return override
	}
	if c.Gateway.Mode == "dev" && c.Gateway.DevURL != "" {
		return c.Gateway.DevURL
	}
	return c.Gateway.URL
}
