// Package application wires the domain pieces into runnable experiments:
// configuration, the experiment runner, sweeps, and the interactive menu.
package application

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/axonlabs/axonfit/internal/data"
	"github.com/axonlabs/axonfit/internal/domain/axon"
	monitor "github.com/axonlabs/axonfit/internal/interfaces/http"
	"github.com/axonlabs/axonfit/internal/persistence"
	"github.com/axonlabs/axonfit/internal/tune/opt"
)

// Config is the full experiment configuration, one section per concern.
type Config struct {
	Data    data.Config      `json:"data" yaml:"data"`
	Train   axon.TrainConfig `json:"train" yaml:"train"`
	Search  SearchConfig     `json:"search" yaml:"search"`
	Refine  RefineConfig     `json:"refine" yaml:"refine"`
	Storage StorageConfig    `json:"storage" yaml:"storage"`
	Cache   CacheConfig      `json:"cache" yaml:"cache"`
	Monitor MonitorConfig    `json:"monitor" yaml:"monitor"`
}

// SearchConfig selects and tunes the derivative-free minimizer.
type SearchConfig struct {
	Algorithm string     `json:"algorithm" yaml:"algorithm"` // oneplusone or coordinate (default: oneplusone)
	Options   opt.Config `json:"options" yaml:"options"`
}

// RefineConfig tunes the gradient-refinement stage. Structural parameters
// (passes, nonlinearity, seed) come from the train section so the two
// stages cannot drift apart.
type RefineConfig struct {
	Epochs       int     `json:"epochs" yaml:"epochs"`               // Gradient epochs (default: 1000)
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate"` // Adam step size (default: 0.01)
	LogEvery     int     `json:"log_every" yaml:"log_every"`         // Epochs between progress logs (default: 100)
}

// StorageConfig controls where sweeps are persisted.
type StorageConfig struct {
	Dir      string                     `json:"dir" yaml:"dir"` // Sweep output directory (default: out/results)
	Postgres persistence.PostgresConfig `json:"postgres" yaml:"postgres"`
	Breaker  persistence.GuardConfig    `json:"breaker" yaml:"breaker"`
}

// CacheConfig controls the trained-bundle cache.
type CacheConfig struct {
	TTLSeconds int `json:"ttl_seconds" yaml:"ttl_seconds"` // Bundle cache TTL (default: 86400)
}

// TTL returns the cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// MonitorConfig controls the optional monitor HTTP server.
type MonitorConfig struct {
	Enabled bool                 `json:"enabled" yaml:"enabled"` // Serve the monitor API (default: false)
	Server  monitor.ServerConfig `json:"server" yaml:"server"`
}

// DefaultConfig returns the reference experiment configuration.
func DefaultConfig() Config {
	return Config{
		Data:  data.DefaultConfig(),
		Train: axon.DefaultTrainConfig(),
		Search: SearchConfig{
			Algorithm: opt.AlgorithmOnePlusOne,
			Options:   opt.DefaultConfig(),
		},
		Refine: RefineConfig{
			Epochs:       1000,
			LearningRate: 0.01,
			LogEvery:     100,
		},
		Storage: StorageConfig{
			Dir:      "out/results",
			Postgres: persistence.DefaultPostgresConfig(),
			Breaker:  persistence.DefaultGuardConfig("sweep-store"),
		},
		Cache: CacheConfig{TTLSeconds: 86400},
		Monitor: MonitorConfig{
			Enabled: false,
			Server:  monitor.DefaultServerConfig(),
		},
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Data.Validate(); err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if err := c.Train.Validate(); err != nil {
		return fmt.Errorf("train: %w", err)
	}
	if c.Search.Algorithm != opt.AlgorithmOnePlusOne && c.Search.Algorithm != opt.AlgorithmCoordinate {
		return fmt.Errorf("search: unknown algorithm %q", c.Search.Algorithm)
	}
	if err := c.Search.Options.Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if c.Refine.Epochs < 1 {
		return fmt.Errorf("refine: epochs must be at least 1, got %d", c.Refine.Epochs)
	}
	if c.Refine.LearningRate <= 0 {
		return fmt.Errorf("refine: learning_rate must be positive, got %g", c.Refine.LearningRate)
	}
	if c.Storage.Dir == "" {
		return fmt.Errorf("storage: dir must not be empty")
	}
	if c.Storage.Postgres.Enabled && c.Storage.Postgres.DSN == "" {
		return fmt.Errorf("storage: postgres enabled without a dsn")
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache: ttl_seconds must be positive, got %d", c.Cache.TTLSeconds)
	}
	if c.Monitor.Enabled {
		if err := c.Monitor.Server.Validate(); err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
	}
	return nil
}

// LoadConfig reads a YAML config over the defaults, so a partial file only
// overrides the sections it names.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}
