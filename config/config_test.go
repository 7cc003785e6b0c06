package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	shrikeerrors "github.com/umbra-intel/shrike/errors"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if !cfg.Enabled || !cfg.ClientEnabled || cfg.ServerEnabled {
		t.Fatalf("unexpected enable flags: %+v", cfg)
	}
	if cfg.ServerPort != 9060 || cfg.ServerHost != "127.0.0.1" {
		t.Fatalf("unexpected server defaults: %+v", cfg)
	}
	if cfg.Timeout != 30 || cfg.MaxRetries != 2 {
		t.Fatalf("unexpected client defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvServerEnabled, "true")
	t.Setenv(EnvServerPort, "7000")
	t.Setenv(EnvTimeout, "5")
	t.Setenv(EnvServers, `{"a": "http://x", "b": "ws://y"}`)

	cfg := FromEnv()
	if !cfg.ServerEnabled || cfg.ServerPort != 7000 || cfg.Timeout != 5 {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if len(cfg.Servers) != 2 || cfg.Servers["a"] != "http://x" {
		t.Fatalf("servers not parsed: %v", cfg.Servers)
	}
}

func TestFromEnvMalformedValuesFallBack(t *testing.T) {
	t.Setenv(EnvServerPort, "not-a-number")
	t.Setenv(EnvServers, "{broken json")

	cfg := FromEnv()
	if cfg.ServerPort != 9060 {
		t.Fatalf("bad port should fall back to default, got %d", cfg.ServerPort)
	}
	if len(cfg.Servers) != 0 {
		t.Fatalf("bad servers JSON should yield empty map, got %v", cfg.Servers)
	}
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.json")
	data := `{"server_enabled": true, "server_port": 8100, "servers": {"local": "stdio://./srv"}, "timeout": 10}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := FromFile(path)
	if !cfg.ServerEnabled || cfg.ServerPort != 8100 || cfg.Timeout != 10 {
		t.Fatalf("file not applied: %+v", cfg)
	}
	if cfg.Servers["local"] != "stdio://./srv" {
		t.Fatalf("servers not loaded: %v", cfg.Servers)
	}
}

func TestFromFileMissingFallsBackToEnv(t *testing.T) {
	t.Setenv(EnvTimeout, "7")
	cfg := FromFile(filepath.Join(t.TempDir(), "absent.json"))
	if cfg.Timeout != 7 {
		t.Fatalf("missing file should fall back to env, got %+v", cfg)
	}
}

func TestFromFileMalformedFallsBackToEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := FromFile(path)
	if cfg.ServerPort != 9060 {
		t.Fatalf("malformed file should yield defaults, got %+v", cfg)
	}
}

func TestLoadNeverFails(t *testing.T) {
	t.Setenv(EnvServerPort, "99999")
	cfg := Load("")
	if cfg == nil {
		t.Fatal("Load returned nil")
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for out-of-range port")
	} else if !errors.Is(err, shrikeerrors.ErrInvalidConfig) {
		t.Fatalf("error should wrap ErrInvalidConfig, got %v", err)
	}
}

func TestValidatorChaining(t *testing.T) {
	v := NewValidator()
	v.ValidatePort("server_port", 0).
		RequireNonEmpty("server_host", "").
		RequirePositive("timeout", -1)
	if !v.HasErrors() {
		t.Fatal("expected errors")
	}
	if len(v.Errors()) != 3 {
		t.Fatalf("got %d errors, want 3", len(v.Errors()))
	}
}
