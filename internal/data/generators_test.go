package data

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGenConfig() Config {
	return Config{
		Samples:  100,
		Interval: [2]float64{0, 1},
		Ratio:    0.2,
		Seed:     DefaultSeed,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errHas string
	}{
		{name: "default_is_valid", mutate: func(c *Config) {}},
		{name: "too_few_samples", mutate: func(c *Config) { c.Samples = 3 }, errHas: "at least 4"},
		{name: "inverted_interval", mutate: func(c *Config) { c.Interval = [2]float64{1, 0} }, errHas: "must be increasing"},
		{name: "empty_interval", mutate: func(c *Config) { c.Interval = [2]float64{0.5, 0.5} }, errHas: "must be increasing"},
		{name: "negative_ratio", mutate: func(c *Config) { c.Ratio = -0.1 }, errHas: "ratio"},
		{name: "ratio_of_one", mutate: func(c *Config) { c.Ratio = 1 }, errHas: "ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.errHas == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errHas)
			}
		})
	}
}

func TestGenerate1D_SplitSizes(t *testing.T) {
	ds, err := Generate1D(testGenConfig(), func(x float64) float64 { return x })
	require.NoError(t, err)

	assert.Len(t, ds.XTrain, 80)
	assert.Len(t, ds.YTrain, 80)
	assert.Len(t, ds.XVal, 20)
	assert.Len(t, ds.YVal, 20)
}

func TestGenerate1D_TargetsMatchInputs(t *testing.T) {
	// Shuffling must keep each row paired with its own target.
	ds, err := Convex1D(testGenConfig())
	require.NoError(t, err)

	for i, x := range ds.XTrain {
		require.Len(t, x, 1)
		assert.Equal(t, x[0]*x[0], ds.YTrain[i])
	}
	for i, x := range ds.XVal {
		assert.Equal(t, x[0]*x[0], ds.YVal[i])
	}
}

func TestGenerate1D_DeterministicShuffle(t *testing.T) {
	first, err := Generate1D(testGenConfig(), math.Sqrt)
	require.NoError(t, err)
	second, err := Generate1D(testGenConfig(), math.Sqrt)
	require.NoError(t, err)

	assert.Equal(t, first.XTrain, second.XTrain)
	assert.Equal(t, first.YVal, second.YVal)

	reseeded := testGenConfig()
	reseeded.Seed = 7
	third, err := Generate1D(reseeded, math.Sqrt)
	require.NoError(t, err)
	assert.NotEqual(t, first.XTrain, third.XTrain, "a different seed shuffles differently")
}

func TestGenerate1D_CoversInterval(t *testing.T) {
	cfg := testGenConfig()
	cfg.Ratio = 0

	ds, err := Generate1D(cfg, func(x float64) float64 { return x })
	require.NoError(t, err)
	require.Len(t, ds.XTrain, 100)
	assert.Empty(t, ds.XVal)

	low, high := math.Inf(1), math.Inf(-1)
	for _, x := range ds.XTrain {
		low = math.Min(low, x[0])
		high = math.Max(high, x[0])
	}
	assert.Equal(t, 0.0, low)
	assert.InDelta(t, 1.0, high, 1e-12)
}

func TestGenerate2D_MeshSize(t *testing.T) {
	cfg := testGenConfig()
	cfg.Samples = 90
	cfg.Interval = [2]float64{-1, 1}

	ds, err := Generate2D(cfg, func(x1, x2 float64) float64 { return x1 + x2 })
	require.NoError(t, err)

	// 90 samples floor to a 9x9 mesh.
	total := len(ds.XTrain) + len(ds.XVal)
	assert.Equal(t, 81, total)
	assert.Len(t, ds.XVal, 16)

	for _, x := range ds.XTrain {
		require.Len(t, x, 2)
		assert.GreaterOrEqual(t, x[0], -1.0)
		assert.LessOrEqual(t, x[1], 1.0)
	}
}

func TestReferenceTasks(t *testing.T) {
	cfg := testGenConfig()
	cfg.Interval = [2]float64{-1, 1}

	t.Run("non_convex_1d", func(t *testing.T) {
		ds, err := NonConvex1D(cfg)
		require.NoError(t, err)
		for i, x := range ds.XTrain {
			assert.Equal(t, math.Sin(2*math.Pi*x[0]), ds.YTrain[i])
		}
	})

	t.Run("convex_2d", func(t *testing.T) {
		ds, err := Convex2D(cfg)
		require.NoError(t, err)
		for i, x := range ds.XTrain {
			assert.Equal(t, x[0]*x[0]+x[1]*x[1], ds.YTrain[i])
		}
	})

	t.Run("non_convex_2d", func(t *testing.T) {
		ds, err := NonConvex2D(cfg)
		require.NoError(t, err)
		for i, x := range ds.XTrain {
			assert.Equal(t, math.Sin(2*math.Pi*x[0])*math.Cos(2*math.Pi*x[1]), ds.YTrain[i])
		}
	})
}

func TestGenerate_RejectsInvalidConfig(t *testing.T) {
	cfg := testGenConfig()
	cfg.Samples = 2

	_, err := Generate1D(cfg, math.Sqrt)
	require.Error(t, err)

	_, err = Generate2D(cfg, func(x1, x2 float64) float64 { return 0 })
	require.Error(t, err)
}
