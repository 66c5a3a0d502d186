package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabasePath string `envconfig:"DATABASE_PATH" default:"data/homedog.db"`

	DedupThreshold      float64 `envconfig:"DEDUP_THRESHOLD" default:"0.82"`
	DedupPriceTolerance float64 `envconfig:"DEDUP_PRICE_TOLERANCE" default:"0.05"`
	DedupSizeTolerance  float64 `envconfig:"DEDUP_SIZE_TOLERANCE" default:"0.08"`

	NotifyChannel string `envconfig:"NOTIFY_CHANNEL" default:"telegram"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.DedupThreshold <= 0 || c.DedupThreshold > 1 {
		return fmt.Errorf("DEDUP_THRESHOLD must be in (0, 1]")
	}
	if c.DedupPriceTolerance < 0 || c.DedupPriceTolerance >= 1 {
		return fmt.Errorf("DEDUP_PRICE_TOLERANCE must be in [0, 1)")
	}
	if c.DedupSizeTolerance < 0 || c.DedupSizeTolerance >= 1 {
		return fmt.Errorf("DEDUP_SIZE_TOLERANCE must be in [0, 1)")
	}
	if strings.TrimSpace(c.NotifyChannel) == "" {
		return fmt.Errorf("NOTIFY_CHANNEL is required")
	}
	return nil
}
