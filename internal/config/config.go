// Package config provides configuration management for the stac-cube pipeline.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	Catalog CatalogConfig `envPrefix:"CATALOG_"`
	Search  SearchConfig  `envPrefix:"SEARCH_"`
	Cube    CubeConfig    `envPrefix:"CUBE_"`
	Pool    PoolConfig    `envPrefix:"POOL_"`
	Preview PreviewConfig `envPrefix:"PREVIEW_"`
	Logging LoggingConfig `envPrefix:"LOG_"`
}

// CatalogConfig contains STAC catalog client configuration.
type CatalogConfig struct {
	BaseURL string        `env:"BASE_URL" envDefault:"https://earth-search.aws.element84.com/v1"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// SearchConfig contains search paging defaults.
type SearchConfig struct {
	Limit    int `env:"LIMIT" envDefault:"100"`
	MaxPages int `env:"MAX_PAGES" envDefault:"50"`
}

// CubeConfig contains virtual cube assembly defaults.
type CubeConfig struct {
	ChunkX int `env:"CHUNK_X" envDefault:"512"`
	ChunkY int `env:"CHUNK_Y" envDefault:"512"`

	// GroupSolarDay merges same-solar-day acquisitions into one time slice.
	GroupSolarDay bool `env:"GROUP_SOLAR_DAY" envDefault:"true"`

	// AlternatePolicy controls what happens when an asset has no rewritten
	// URL: "fallback" uses the default href, "require" fails the load.
	AlternatePolicy string `env:"ALTERNATE_POLICY" envDefault:"fallback"`

	// BandsDir is the directory of per-collection band definition JSON files.
	BandsDir string `env:"BANDS_DIR" envDefault:"./bands"`
}

// PoolConfig contains worker pool provisioning bounds.
type PoolConfig struct {
	MinWorkers int `env:"MIN_WORKERS" envDefault:"1"`
	MaxWorkers int `env:"MAX_WORKERS" envDefault:"8"`
}

// PreviewConfig contains preview server configuration.
type PreviewConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses configuration from environment variables.
// It returns an error if required fields are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	opts := env.Options{
		RequiredIfNoDef: true,
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog base URL is required")
	}

	if c.Catalog.Timeout <= 0 {
		return fmt.Errorf("catalog timeout must be positive, got %s", c.Catalog.Timeout)
	}

	if c.Search.Limit < 1 {
		return fmt.Errorf("search limit must be at least 1, got %d", c.Search.Limit)
	}

	if c.Search.MaxPages < 1 {
		return fmt.Errorf("search max pages must be at least 1, got %d", c.Search.MaxPages)
	}

	if c.Cube.ChunkX < 1 || c.Cube.ChunkY < 1 {
		return fmt.Errorf("cube chunk sizes must be positive, got %dx%d", c.Cube.ChunkX, c.Cube.ChunkY)
	}

	if c.Cube.AlternatePolicy != "fallback" && c.Cube.AlternatePolicy != "require" {
		return fmt.Errorf("cube alternate policy must be 'fallback' or 'require', got %q", c.Cube.AlternatePolicy)
	}

	if c.Pool.MinWorkers < 1 {
		return fmt.Errorf("pool min workers must be at least 1, got %d", c.Pool.MinWorkers)
	}

	if c.Pool.MaxWorkers < c.Pool.MinWorkers {
		return fmt.Errorf("pool max workers (%d) must be >= min workers (%d)", c.Pool.MaxWorkers, c.Pool.MinWorkers)
	}

	if c.Preview.Port < 1 || c.Preview.Port > 65535 {
		return fmt.Errorf("preview port must be between 1 and 65535, got %d", c.Preview.Port)
	}

	if c.Preview.ReadTimeout <= 0 {
		return fmt.Errorf("preview read timeout must be positive, got %s", c.Preview.ReadTimeout)
	}

	if c.Preview.WriteTimeout <= 0 {
		return fmt.Errorf("preview write timeout must be positive, got %s", c.Preview.WriteTimeout)
	}

	if c.Preview.ShutdownTimeout <= 0 {
		return fmt.Errorf("preview shutdown timeout must be positive, got %s", c.Preview.ShutdownTimeout)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", c.Logging.Format)
	}

	return nil
}

// Address returns the preview server listen address in the format "host:port".
func (p *PreviewConfig) Address() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}
