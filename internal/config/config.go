package config

import (
	"encoding/json"
	"os"
	"time"
)

// PostgresConfig holds directory and backend database settings
type PostgresConfig struct {
	DSN string `json:"dsn"`
}

// RedisConfig holds Redis connection settings for the shared lookup cache
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// ResolverConfig selects how inbound requests are pinned to a tenant
type ResolverConfig struct {
	// Strategies are tried in order: header, subdomain, path.
	Strategies []string      `json:"strategies"`
	Header     string        `json:"header"`
	BaseDomain string        `json:"base_domain"`
	PathPrefix string        `json:"path_prefix"`
	CacheTTL   time.Duration `json:"cache_ttl"`
}

// TelemetryConfig holds tracing settings
type TelemetryConfig struct {
	Enabled    bool    `json:"enabled"`
	Exporter   string  `json:"exporter"`
	Endpoint   string  `json:"endpoint"`
	SampleRate float64 `json:"sample_rate"`
}

// DaemonConfig holds daemon-specific settings
type DaemonConfig struct {
	HTTPAddr  string `json:"http_addr"`
	GRPCAddr  string `json:"grpc_addr"`
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

// Config is the central configuration struct embedding all component configs
type Config struct {
	Postgres  PostgresConfig  `json:"postgres"`
	Redis     RedisConfig     `json:"redis"`
	Resolver  ResolverConfig  `json:"resolver"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Daemon    DaemonConfig    `json:"daemon"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Postgres: PostgresConfig{
			DSN: "postgres://localhost:5432/umbra?sslmode=disable",
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
		},
		Resolver: ResolverConfig{
			Strategies: []string{"header"},
			Header:     "X-Tenant-ID",
			PathPrefix: "/t/",
			CacheTTL:   30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled:    false,
			Exporter:   "otlp-http",
			Endpoint:   "localhost:4318",
			SampleRate: 1.0,
		},
		Daemon: DaemonConfig{
			HTTPAddr:  ":8080",
			GRPCAddr:  "",
			LogLevel:  "info",
			LogFormat: "text",
		},
	}
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the config
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("UMBRA_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("UMBRA_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("UMBRA_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("UMBRA_HTTP_ADDR"); v != "" {
		cfg.Daemon.HTTPAddr = v
	}
	if v := os.Getenv("UMBRA_GRPC_ADDR"); v != "" {
		cfg.Daemon.GRPCAddr = v
	}
	if v := os.Getenv("UMBRA_LOG_LEVEL"); v != "" {
		cfg.Daemon.LogLevel = v
	}
	if v := os.Getenv("UMBRA_LOG_FORMAT"); v != "" {
		cfg.Daemon.LogFormat = v
	}
	if v := os.Getenv("UMBRA_TENANT_HEADER"); v != "" {
		cfg.Resolver.Header = v
	}
	if v := os.Getenv("UMBRA_BASE_DOMAIN"); v != "" {
		cfg.Resolver.BaseDomain = v
	}
	if v := os.Getenv("UMBRA_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.Endpoint = v
		cfg.Telemetry.Enabled = true
	}
}
