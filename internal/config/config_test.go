package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Daemon.HTTPAddr != ":8080" {
		t.Fatalf("default http addr = %q", cfg.Daemon.HTTPAddr)
	}
	if cfg.Redis.Enabled {
		t.Fatal("redis must be opt-in")
	}
	if len(cfg.Resolver.Strategies) != 1 || cfg.Resolver.Strategies[0] != "header" {
		t.Fatalf("default strategies = %v", cfg.Resolver.Strategies)
	}
}

func TestLoadFromFileMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := []byte(`{
		"postgres": {"dsn": "postgres://db:5432/x"},
		"resolver": {"strategies": ["subdomain", "header"], "base_domain": "app.example.com"},
		"daemon": {"log_format": "json"}
	}`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Postgres.DSN != "postgres://db:5432/x" {
		t.Fatalf("dsn = %q", cfg.Postgres.DSN)
	}
	if cfg.Resolver.BaseDomain != "app.example.com" {
		t.Fatalf("base domain = %q", cfg.Resolver.BaseDomain)
	}
	// Untouched fields keep their defaults.
	if cfg.Daemon.HTTPAddr != ":8080" {
		t.Fatalf("http addr lost its default: %q", cfg.Daemon.HTTPAddr)
	}
	if cfg.Daemon.LogFormat != "json" {
		t.Fatalf("log format = %q", cfg.Daemon.LogFormat)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("UMBRA_POSTGRES_DSN", "postgres://env:5432/y")
	t.Setenv("UMBRA_REDIS_ADDR", "redis:6379")
	t.Setenv("UMBRA_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Postgres.DSN != "postgres://env:5432/y" {
		t.Fatalf("dsn = %q", cfg.Postgres.DSN)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis:6379" {
		t.Fatalf("redis config = %+v", cfg.Redis)
	}
	if cfg.Daemon.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.Daemon.LogLevel)
	}
}
