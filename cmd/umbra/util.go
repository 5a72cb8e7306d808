package main

import (
	"context"

	"github.com/oriys/umbra/internal/config"
	"github.com/oriys/umbra/internal/store"
)

func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)

	if pgDSN != "" {
		cfg.Postgres.DSN = pgDSN
	}
	return cfg, nil
}

func getStore(ctx context.Context) (*store.PostgresStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return store.NewPostgresStore(ctx, cfg.Postgres.DSN)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func boolLabel(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}
