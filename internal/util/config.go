package util

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds runtime settings. Values come from the environment; main
// overrides DSN and user from flags.
type Config struct {
	DSN          string        `env:"DATABASE_URL"`
	DeepSeekKey  string        `env:"DEEPSEEK_API_KEY"`
	GeminiKey    string        `env:"GEMINI_API_KEY"`
	Backend      string        `env:"FABLE_BACKEND" envDefault:"deepseek"` // deepseek|gemini
	UserID       string        `env:"FABLE_USER"`
	Tier         string        `env:"FABLE_TIER" envDefault:"free"` // free|premium|master
	CacheTTL     time.Duration `env:"FABLE_CACHE_TTL" envDefault:"5m"`
	SyncInterval time.Duration `env:"FABLE_SYNC_INTERVAL" envDefault:"30s"`
	GenTimeout   time.Duration `env:"FABLE_GEN_TIMEOUT" envDefault:"60s"`
}

// Load parses Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
