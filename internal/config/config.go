package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port         string        `env:"PORT" envDefault:"8080"`
	DBPath       string        `env:"DB_PATH" envDefault:"celoeapi.db"`
	Workers      int           `env:"WORKERS" envDefault:"2"`
	PageSize     int64         `env:"PAGE_SIZE" envDefault:"1000"`
	PageRetries  int           `env:"PAGE_RETRIES" envDefault:"3"`
	APITokens    []string      `env:"API_TOKENS" envSeparator:","`
	StuckTimeout time.Duration `env:"STUCK_TIMEOUT" envDefault:"6h"`
	ReapInterval time.Duration `env:"REAP_INTERVAL" envDefault:"10m"`
	// Schedule is a cron spec for automatic incremental runs ("0 2 * * *").
	// Empty disables scheduled runs; jobs can still be triggered over HTTP.
	Schedule string `env:"ETL_SCHEDULE"`
}

func Load() Config {
	var c Config
	if err := env.Parse(&c); err != nil {
		slog.Error("parse config", "error", err)
		os.Exit(1)
	}
	return c
}
