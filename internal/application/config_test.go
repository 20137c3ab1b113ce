package application

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "oneplusone", cfg.Search.Algorithm)
	assert.Equal(t, 1000, cfg.Refine.Epochs)
	assert.Equal(t, "out/results", cfg.Storage.Dir)
	assert.False(t, cfg.Monitor.Enabled)
	assert.False(t, cfg.Storage.Postgres.Enabled)
}

func TestConfig_ValidateSectionPrefixes(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errHas string
	}{
		{name: "data", mutate: func(c *Config) { c.Data.Samples = 1 }, errHas: "data:"},
		{name: "train", mutate: func(c *Config) { c.Train.BasisCount = 0 }, errHas: "train:"},
		{name: "search_algorithm", mutate: func(c *Config) { c.Search.Algorithm = "simplex" }, errHas: "search:"},
		{name: "search_options", mutate: func(c *Config) { c.Search.Options.MaxEvaluations = 0 }, errHas: "search:"},
		{name: "refine_epochs", mutate: func(c *Config) { c.Refine.Epochs = 0 }, errHas: "refine:"},
		{name: "refine_learning_rate", mutate: func(c *Config) { c.Refine.LearningRate = 0 }, errHas: "refine:"},
		{name: "storage_dir", mutate: func(c *Config) { c.Storage.Dir = "" }, errHas: "storage:"},
		{name: "postgres_without_dsn", mutate: func(c *Config) { c.Storage.Postgres.Enabled = true }, errHas: "storage:"},
		{name: "cache_ttl", mutate: func(c *Config) { c.Cache.TTLSeconds = 0 }, errHas: "cache:"},
		{name: "monitor_server", mutate: func(c *Config) {
			c.Monitor.Enabled = true
			c.Monitor.Server.Port = 0
		}, errHas: "monitor:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errHas)
		})
	}
}

func TestLoadConfig_PartialFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
train:
  basis_count: 5
storage:
  dir: /tmp/axonfit-results
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Train.BasisCount)
	assert.Equal(t, "/tmp/axonfit-results", cfg.Storage.Dir)

	// Unnamed sections keep their defaults.
	assert.Equal(t, 1000, cfg.Data.Samples)
	assert.Equal(t, 2, cfg.Train.Passes)
	assert.Equal(t, 1000, cfg.Refine.Epochs)
	assert.Equal(t, 86400, cfg.Cache.TTLSeconds)
}

func TestLoadConfig_Rejections(t *testing.T) {
	t.Run("missing_file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config")
	})

	t.Run("malformed_yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("train: [not: a: mapping"), 0o644))

		_, err := LoadConfig(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to unmarshal config")
	})

	t.Run("invalid_values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("train:\n  basis_count: -1\n"), 0o644))

		_, err := LoadConfig(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config validation failed")
		assert.Contains(t, err.Error(), "train:")
	})
}

func TestCacheConfig_TTL(t *testing.T) {
	assert.Equal(t, 86400, DefaultConfig().Cache.TTLSeconds)
	assert.Equal(t, float64(60), CacheConfig{TTLSeconds: 60}.TTL().Seconds())
}
