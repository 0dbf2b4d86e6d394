package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// overrides holds the settings that may come from the environment.
type overrides struct {
	Database     string `env:"ARCHIVIST_DB"`
	Mode         string `env:"ARCHIVIST_MODE"`
	Workers      *int   `env:"ARCHIVIST_PRUNE_WORKERS"`
	QueueSize    *int   `env:"ARCHIVIST_PRUNE_QUEUE"`
	Backpressure string `env:"ARCHIVIST_PRUNE_BACKPRESSURE"`
}

// ApplyEnv overrides cfg with ARCHIVIST_* environment variables.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, env.Options{})
}

func applyEnv(cfg *Config, opts env.Options) error {
	var o overrides
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	if o.Mode != "" {
		cfg.Mode = o.Mode
	}
	if o.Workers != nil {
		cfg.Prune.Workers = *o.Workers
	}
	if o.QueueSize != nil {
		cfg.Prune.QueueSize = *o.QueueSize
	}
	if o.Backpressure != "" {
		cfg.Prune.Backpressure = o.Backpressure
	}
	return nil
}
