// Package config loads and validates the tool subsystem configuration from
// environment variables or a JSON file. Loading never fails outright:
// malformed input is logged and replaced with defaults so a bad deployment
// still comes up in a degraded but working state.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/umbra-intel/shrike/pkg/logging"
)

// Environment variable names. The JSON file form uses the lowercase key
// after the prefix, e.g. SHRIKE_MCP_SERVER_PORT is "server_port".
const (
	EnvEnabled       = "SHRIKE_MCP_ENABLED"
	EnvClientEnabled = "SHRIKE_MCP_CLIENT_ENABLED"
	EnvServerEnabled = "SHRIKE_MCP_SERVER_ENABLED"
	EnvServerPort    = "SHRIKE_MCP_SERVER_PORT"
	EnvServerHost    = "SHRIKE_MCP_SERVER_HOST"
	EnvServers       = "SHRIKE_MCP_SERVERS"
	EnvTimeout       = "SHRIKE_MCP_TIMEOUT"
	EnvMaxRetries    = "SHRIKE_MCP_MAX_RETRIES"
	EnvDebug         = "SHRIKE_MCP_DEBUG"
)

// Config holds the tool subsystem settings.
type Config struct {
	Enabled       bool              `json:"enabled"`
	ClientEnabled bool              `json:"client_enabled"`
	ServerEnabled bool              `json:"server_enabled"`
	ServerPort    int               `json:"server_port"`
	ServerHost    string            `json:"server_host"`
	Servers       map[string]string `json:"servers"`
	Timeout       int               `json:"timeout"` // seconds
	MaxRetries    int               `json:"max_retries"`
	Debug         bool              `json:"debug"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Enabled:       true,
		ClientEnabled: true,
		ServerEnabled: false,
		ServerPort:    9060,
		ServerHost:    "127.0.0.1",
		Servers:       map[string]string{},
		Timeout:       30,
		MaxRetries:    2,
		Debug:         false,
	}
}

// TimeoutDuration returns the per-call timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// FromEnv loads configuration from environment variables, falling back to
// defaults for anything unset or unparseable.
func FromEnv() *Config {
	logger := logging.WithComponent("config")
	cfg := Default()

	cfg.Enabled = envBool(EnvEnabled, cfg.Enabled)
	cfg.ClientEnabled = envBool(EnvClientEnabled, cfg.ClientEnabled)
	cfg.ServerEnabled = envBool(EnvServerEnabled, cfg.ServerEnabled)
	cfg.ServerPort = envInt(EnvServerPort, cfg.ServerPort)
	if host := os.Getenv(EnvServerHost); host != "" {
		cfg.ServerHost = host
	}
	cfg.Timeout = envInt(EnvTimeout, cfg.Timeout)
	cfg.MaxRetries = envInt(EnvMaxRetries, cfg.MaxRetries)
	cfg.Debug = envBool(EnvDebug, cfg.Debug)

	if raw := os.Getenv(EnvServers); raw != "" {
		servers := map[string]string{}
		if err := json.Unmarshal([]byte(raw), &servers); err != nil {
			logger.Warn("failed to parse servers JSON, using empty map",
				"var", EnvServers, "error", err)
			servers = map[string]string{}
		}
		cfg.Servers = servers
	}

	return cfg
}

// FromFile loads configuration from a JSON file. A missing or unreadable
// file, or malformed JSON, falls back to the environment.
func FromFile(path string) *Config {
	logger := logging.WithComponent("config")

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("config file unavailable, falling back to environment",
			"path", path, "error", err)
		return FromEnv()
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		logger.Error("failed to parse config file, falling back to environment",
			"path", path, "error", err)
		return FromEnv()
	}
	if cfg.Servers == nil {
		cfg.Servers = map[string]string{}
	}
	return cfg
}

// Load returns the configuration from path when given, otherwise from the
// environment. Invalid values are logged; the returned config is always
// usable.
func Load(path string) *Config {
	logger := logging.WithComponent("config")

	var cfg *Config
	if path != "" {
		cfg = FromFile(path)
	} else {
		cfg = FromEnv()
	}

	if err := cfg.Validate(); err != nil {
		logger.Warn("configuration validation failed, some features may not work",
			"error", err)
	}
	if cfg.Debug {
		logger.Debug("loaded configuration",
			"servers", len(cfg.Servers), "port", cfg.ServerPort, "timeout", cfg.Timeout)
	}
	return cfg
}

// Validate checks value ranges. Callers decide whether a validation failure
// is fatal; loading itself never treats it as one.
func (c *Config) Validate() error {
	v := NewValidator()
	v.ValidatePort("server_port", c.ServerPort)
	v.RequireNonEmpty("server_host", c.ServerHost)
	v.RequirePositive("timeout", c.Timeout)
	v.ValidateRange("max_retries", c.MaxRetries, 0, 10)
	return v.Error()
}

func (c *Config) String() string {
	return fmt.Sprintf("Config(enabled=%t, servers=%d, port=%d)", c.Enabled, len(c.Servers), c.ServerPort)
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	return strings.EqualFold(raw, "true") || raw == "1"
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		logging.WithComponent("config").Warn("invalid integer value, using default",
			"var", name, "value", raw, "default", fallback)
		return fallback
	}
	return n
}
