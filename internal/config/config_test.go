// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, validation and URL resolution

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		path := writeConfig(t, `
gateway:
  url: "wss://gateway.example.com/ws"
  dev_url: "ws://localhost:8080/ws"
  mode: "prod"
  protocol: "gateway"
  channel_id: "general"
  account_id: "me"

auth:
  token_file: "/tmp/token"

history:
  enabled: true
  path: "/tmp/bridge.db"

logging:
  level: "debug"
  format: "json"
`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "wss://gateway.example.com/ws", cfg.Gateway.URL)
		assert.Equal(t, "ws://localhost:8080/ws", cfg.Gateway.DevURL)
		assert.Equal(t, "gateway", cfg.Gateway.Protocol)
		assert.Equal(t, "general", cfg.Gateway.ChannelID)
		assert.Equal(t, "me", cfg.Gateway.AccountID)
		assert.Equal(t, "/tmp/token", cfg.Auth.TokenFile)
		assert.True(t, cfg.History.Enabled)
		assert.Equal(t, "/tmp/bridge.db", cfg.History.Path)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "json", cfg.Logging.Format)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeConfig(t, "gateway: [not: valid")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("env var expansion", func(t *testing.T) {
		t.Setenv("TEST_BRIDGE_TOKEN", "tok-12345")
		path := writeConfig(t, `
gateway:
  url: "wss://gateway.example.com/ws"
auth:
  token: "${TEST_BRIDGE_TOKEN}"
`)

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "tok-12345", cfg.Auth.Token)
	})

	t.Run("unset env var expands to empty", func(t *testing.T) {
		path := writeConfig(t, `
gateway:
  url: "wss://gateway.example.com/ws"
auth:
  token: "${DEFINITELY_NOT_SET_ANYWHERE_42}"
`)

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Empty(t, cfg.Auth.Token)
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{Gateway: GatewayConfig{URL: "wss://g/ws"}}
	}

	t.Run("url required", func(t *testing.T) {
		cfg := &Config{}
		assert.ErrorContains(t, cfg.Validate(), "gateway.url")
	})

	t.Run("bad mode", func(t *testing.T) {
		cfg := base()
		cfg.Gateway.Mode = "staging"
		assert.ErrorContains(t, cfg.Validate(), "gateway.mode")
	})

	t.Run("bad protocol", func(t *testing.T) {
		cfg := base()
		cfg.Gateway.Protocol = "grpc"
		assert.ErrorContains(t, cfg.Validate(), "gateway.protocol")
	})

	t.Run("history requires a path", func(t *testing.T) {
		cfg := base()
		cfg.History.Enabled = true
		assert.ErrorContains(t, cfg.Validate(), "history.path")
	})

	t.Run("bad dial timeout", func(t *testing.T) {
		cfg := base()
		cfg.Timeouts.Dial = "fifteen seconds"
		assert.ErrorContains(t, cfg.Validate(), "timeouts.dial")
	})

	t.Run("defaults pass", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})
}

func TestResolveURL(t *testing.T) {
	cfg := &Config{Gateway: GatewayConfig{
		URL:    "wss://prod/ws",
		DevURL: "ws://localhost:8080/ws",
	}}

	t.Run("prod by default", func(t *testing.T) {
		assert.Equal(t, "wss://prod/ws", cfg.ResolveURL())
	})

	t.Run("dev mode selects dev url", func(t *testing.T) {
		cfg.Gateway.Mode = "dev"
		defer func() { cfg.Gateway.Mode = "" }()
		assert.Equal(t, "ws://localhost:8080/ws", cfg.ResolveURL())
	})

	t.Run("dev mode without dev url falls back", func(t *testing.T) {
		only := &Config{Gateway: GatewayConfig{URL: "wss://prod/ws", Mode: "dev"}}
		assert.Equal(t, "wss://prod/ws", only.ResolveURL())
	})

	t.Run("environment override wins", func(t *testing.T) {
		t.Setenv("COVEN_GATEWAY_URL", "ws://override/ws")
		assert.Equal(t, "ws://override/ws", cfg.ResolveURL())
	})
}

func TestDialTimeout(t *testing.T) {
	t.Run("parses the configured duration", func(t *testing.T) {
		path := writeConfig(t, `
gateway:
  url: "wss://gateway.example.com/ws"
timeouts:
  dial: "5s"
`)

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 5*time.Second, cfg.DialTimeout())
	})

	t.Run("unset means zero, the caller's default", func(t *testing.T) {
		cfg := &Config{Gateway: GatewayConfig{URL: "wss://g/ws"}}
		assert.Equal(t, time.Duration(0), cfg.DialTimeout())
	})

	t.Run("malformed duration fails load", func(t *testing.T) {
		path := writeConfig(t, `
gateway:
  url: "wss://gateway.example.com/ws"
timeouts:
  dial: "soon"
`)

		_, err := Load(path)
		assert.ErrorContains(t, err, "timeouts.dial")
	})
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestDefaultPath(t *testing.T) {
	t.Run("explicit env var wins", func(t *testing.T) {
		t.Setenv("COVEN_BRIDGE_CONFIG", "/etc/coven/bridge.yaml")
		assert.Equal(t, "/etc/coven/bridge.yaml", DefaultPath())
	})

	t.Run("falls back to local file name", func(t *testing.T) {
		t.Setenv("COVEN_BRIDGE_CONFIG", "")
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		chdir(t, t.TempDir())
		assert.Equal(t, "bridge.yaml", DefaultPath())
	})

	t.Run("finds the xdg config", func(t *testing.T) {
		configDir := t.TempDir()
		t.Setenv("COVEN_BRIDGE_CONFIG", "")
		t.Setenv("XDG_CONFIG_HOME", configDir)
		chdir(t, t.TempDir())

		path := filepath.Join(configDir, "coven", "bridge.yaml")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("gateway:\n  url: x\n"), 0644))

		assert.Equal(t, path, DefaultPath())
	})
}
