// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults for policy values.
const (
	DefaultRefreshInterval = 15 * time.Minute
	DefaultRetention       = 7 * 24 * time.Hour
	DefaultReadDwell       = 2 * time.Second
)

// Config holds the application configuration.
type Config struct {
	DatabasePath    string
	LogLevel        string
	AnthropicAPIKey string
	RaindropToken   string
	FirefoxProfile  string
	RefreshInterval time.Duration
	Retention       time.Duration
	ReadDwell       time.Duration
}

// Load reads configuration from environment variables. API keys are
// optional; a missing key disables the corresponding background job
// kind.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:    os.Getenv("DATABASE_PATH"),
		LogLevel:        os.Getenv("LOG_LEVEL"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		RaindropToken:   os.Getenv("RAINDROP_TOKEN"),
		FirefoxProfile:  os.Getenv("FIREFOX_PROFILE_DIR"),
		RefreshInterval: DefaultRefreshInterval,
		Retention:       DefaultRetention,
		ReadDwell:       DefaultReadDwell,
	}

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "./data/reader.db"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if raw := os.Getenv("REFRESH_INTERVAL_MINUTES"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			return nil, fmt.Errorf("invalid REFRESH_INTERVAL_MINUTES %q", raw)
		}
		cfg.RefreshInterval = time.Duration(minutes) * time.Minute
	}
	if raw := os.Getenv("RETENTION_DAYS"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			return nil, fmt.Errorf("invalid RETENTION_DAYS %q", raw)
		}
		cfg.Retention = time.Duration(days) * 24 * time.Hour
	}
	if raw := os.Getenv("READ_DWELL_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return nil, fmt.Errorf("invalid READ_DWELL_SECONDS %q", raw)
		}
		cfg.ReadDwell = time.Duration(seconds) * time.Second
	}

	return cfg, nil
}
