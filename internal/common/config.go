// Package common provides shared utilities for FinLens
package common

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for FinLens.
// Unknown keys in a config file are a hard error: a typo in a deployment
// file should fail at startup, not be silently ignored.
type Config struct {
	Environment string         `toml:"environment"`
	Server      ServerConfig   `toml:"server"`
	Source      SourceConfig   `toml:"source"`
	Cache       CacheConfig    `toml:"cache"`
	Pipeline    PipelineConfig `toml:"pipeline"`
	Storage     StorageConfig  `toml:"storage"`
	Logging     LoggingConfig  `toml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// SourceConfig holds the market data source configuration.
type SourceConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the source call timeout.
func (c *SourceConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// CacheConfig holds analysis cache configuration.
type CacheConfig struct {
	Capacity int    `toml:"capacity"`
	TTL      string `toml:"ttl"`
}

// GetTTL parses and returns the cache freshness deadline.
func (c *CacheConfig) GetTTL() time.Duration {
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return time.Hour
	}
	return d
}

// PipelineConfig holds job orchestration configuration.
type PipelineConfig struct {
	Workers        int    `toml:"workers"`
	MaxRetries     int    `toml:"max_retries"`
	RetryInterval  string `toml:"retry_interval"`
	StageTimeout   string `toml:"stage_timeout"`
	PruneSchedule  string `toml:"prune_schedule"`  // cron spec for maintenance runs, empty disables
	RawCacheMaxAge string `toml:"raw_cache_max_age"`
	JobRetention   string `toml:"job_retention"` // how long terminal jobs stay queryable
}

// GetRetryInterval parses and returns the initial retry backoff interval.
func (c *PipelineConfig) GetRetryInterval() time.Duration {
	d, err := time.ParseDuration(c.RetryInterval)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// GetStageTimeout parses and returns the per-stage timeout.
func (c *PipelineConfig) GetStageTimeout() time.Duration {
	d, err := time.ParseDuration(c.StageTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetJobRetention parses and returns how long terminal jobs remain
// queryable before the maintenance sweep drops them.
func (c *PipelineConfig) GetJobRetention() time.Duration {
	d, err := time.ParseDuration(c.JobRetention)
	if err != nil {
		return time.Hour
	}
	return d
}

// GetRawCacheMaxAge parses and returns the raw series cache retention.
func (c *PipelineConfig) GetRawCacheMaxAge() time.Duration {
	d, err := time.ParseDuration(c.RawCacheMaxAge)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// StorageConfig holds the injected storage roots. The engine never derives
// paths from the working directory; every root arrives here explicitly.
type StorageConfig struct {
	ChartsPath   string `toml:"charts_path"`
	ReportsPath  string `toml:"reports_path"`
	UserDataPath string `toml:"user_data_path"`
	RawCachePath string `toml:"raw_cache_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// NewDefaultConfig returns a Config with development defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Source: SourceConfig{
			BaseURL:   "https://eodhd.com/api",
			RateLimit: 10,
			Timeout:   "30s",
		},
		Cache: CacheConfig{
			Capacity: 256,
			TTL:      "1h",
		},
		Pipeline: PipelineConfig{
			Workers:        4,
			MaxRetries:     3,
			RetryInterval:  "500ms",
			StageTimeout:   "60s",
			PruneSchedule:  "0 3 * * *",
			RawCacheMaxAge: "24h",
			JobRetention:   "1h",
		},
		Storage: StorageConfig{
			ChartsPath:   "data/charts",
			ReportsPath:  "data/reports",
			UserDataPath: "data/user",
			RawCachePath: "data/rawcache",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
// Later files override earlier ones. Missing files are skipped; malformed
// files and unrecognized keys are errors.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("FINLENS_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("FINLENS_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("FINLENS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("FINLENS_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if key := os.Getenv("FINLENS_SOURCE_API_KEY"); key != "" {
		config.Source.APIKey = key
	}

	if url := os.Getenv("FINLENS_SOURCE_URL"); url != "" {
		config.Source.BaseURL = url
	}

	if path := os.Getenv("FINLENS_DATA_PATH"); path != "" {
		config.Storage.ChartsPath = filepath.Join(path, "charts")
		config.Storage.ReportsPath = filepath.Join(path, "reports")
		config.Storage.UserDataPath = filepath.Join(path, "user")
		config.Storage.RawCachePath = filepath.Join(path, "rawcache")
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required")
	}
	if c.Source.RateLimit <= 0 {
		return fmt.Errorf("source.rate_limit must be positive, got %d", c.Source.RateLimit)
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity)
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be positive, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("pipeline.max_retries must not be negative, got %d", c.Pipeline.MaxRetries)
	}
	for name, path := range map[string]string{
		"storage.charts_path":    c.Storage.ChartsPath,
		"storage.reports_path":   c.Storage.ReportsPath,
		"storage.user_data_path": c.Storage.UserDataPath,
		"storage.raw_cache_path": c.Storage.RawCachePath,
	} {
		if path == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	return nil
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}
