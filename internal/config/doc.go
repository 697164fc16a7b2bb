// Package config handles configuration loading for coven-bridge.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and URL resolution for the gateway endpoint.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COVEN_BRIDGE_CONFIG environment variable
//  2. ./bridge.yaml (current directory)
//  3. ~/.config/coven/bridge.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  token: "${COVEN_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Configuration Sections
//
// Gateway endpoint and protocol:
//
//	gateway:
//	  url: "wss://gateway.example.com/ws"
//	  dev_url: "ws://localhost:8080/ws"
//	  mode: "prod"         # prod, dev
//	  protocol: "gateway"  # gateway, legacy
//	  channel_id: "general"
//	  account_id: "me"
//
// The COVEN_GATEWAY_URL environment variable overrides both URLs when set.
//
// Authentication:
//
//	auth:
//	  token: "${COVEN_TOKEN}"
//	  token_file: "~/.config/coven/token"
//
// Local message history:
//
//	history:
//	  enabled: true
//	  path: "~/.local/share/coven/bridge.db"
//
// Connection timing:
//
//	timeouts:
//	  dial: "15s"  # time.ParseDuration syntax
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - A gateway URL is configured (or overridable via environment)
//   - Mode and protocol values are recognized
//   - A history path is present when history is enabled
//   - Timeout durations parse
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load(config.DefaultPath())
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
