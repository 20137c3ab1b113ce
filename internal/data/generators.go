package data

import (
	"fmt"
	"math"
	"math/rand"
)

// DefaultSeed is the reference shuffle seed. It is carried as explicit
// configuration; nothing in this package keeps global random state.
const DefaultSeed = 42

// Config parameterizes synthetic dataset generation.
type Config struct {
	Samples  int        `json:"samples" yaml:"samples"`   // Total samples before splitting (default: 1000)
	Interval [2]float64 `json:"interval" yaml:"interval"` // Input range per axis (default: [0, 1])
	Ratio    float64    `json:"ratio" yaml:"ratio"`       // Validation fraction (default: 0.2)
	Seed     int64      `json:"seed" yaml:"seed"`         // Shuffle seed (default: 42)
}

// DefaultConfig returns the reference generation parameters.
func DefaultConfig() Config {
	return Config{
		Samples:  1000,
		Interval: [2]float64{0, 1},
		Ratio:    0.2,
		Seed:     DefaultSeed,
	}
}

// Validate checks the generation parameters.
func (c Config) Validate() error {
	if c.Samples < 4 {
		return fmt.Errorf("samples must be at least 4, got %d", c.Samples)
	}
	if c.Interval[0] >= c.Interval[1] {
		return fmt.Errorf("interval must be increasing, got [%g, %g]", c.Interval[0], c.Interval[1])
	}
	if c.Ratio < 0 || c.Ratio >= 1 {
		return fmt.Errorf("ratio must be in [0, 1), got %g", c.Ratio)
	}
	return nil
}

// Dataset holds a shuffled train/validation split, samples as rows.
type Dataset struct {
	XTrain [][]float64
	XVal   [][]float64
	YTrain []float64
	YVal   []float64
}

// Generate1D samples f on evenly spaced points across the interval and
// splits the result.
func Generate1D(cfg Config, f func(x float64) float64) (Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return Dataset{}, err
	}

	inputs := make([][]float64, cfg.Samples)
	targets := make([]float64, cfg.Samples)
	step := (cfg.Interval[1] - cfg.Interval[0]) / float64(cfg.Samples-1)
	for i := range inputs {
		x := cfg.Interval[0] + float64(i)*step
		inputs[i] = []float64{x}
		targets[i] = f(x)
	}

	return split(inputs, targets, cfg.Ratio, cfg.Seed), nil
}

// Generate2D samples f on a ⌊√samples⌋-per-axis mesh over the square and
// splits the result.
func Generate2D(cfg Config, f func(x1, x2 float64) float64) (Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return Dataset{}, err
	}

	perAxis := int(math.Sqrt(float64(cfg.Samples)))
	if perAxis < 2 {
		return Dataset{}, fmt.Errorf("samples %d gives a degenerate %dx%d grid", cfg.Samples, perAxis, perAxis)
	}

	grid := make([]float64, perAxis)
	step := (cfg.Interval[1] - cfg.Interval[0]) / float64(perAxis-1)
	for i := range grid {
		grid[i] = cfg.Interval[0] + float64(i)*step
	}

	inputs := make([][]float64, 0, perAxis*perAxis)
	targets := make([]float64, 0, perAxis*perAxis)
	for i := 0; i < perAxis; i++ {
		for j := 0; j < perAxis; j++ {
			x := []float64{grid[j], grid[i]}
			inputs = append(inputs, x)
			targets = append(targets, f(x[0], x[1]))
		}
	}

	return split(inputs, targets, cfg.Ratio, cfg.Seed), nil
}

// Convex1D is the reference convex task y = x².
func Convex1D(cfg Config) (Dataset, error) {
	return Generate1D(cfg, func(x float64) float64 { return x * x })
}

// NonConvex1D is the reference non-convex task y = sin(2πx).
func NonConvex1D(cfg Config) (Dataset, error) {
	return Generate1D(cfg, func(x float64) float64 { return math.Sin(2 * math.Pi * x) })
}

// Convex2D is the reference convex task y = x1² + x2².
func Convex2D(cfg Config) (Dataset, error) {
	return Generate2D(cfg, func(x1, x2 float64) float64 { return x1*x1 + x2*x2 })
}

// NonConvex2D is the reference non-convex task y = sin(2πx1)·cos(2πx2).
func NonConvex2D(cfg Config) (Dataset, error) {
	return Generate2D(cfg, func(x1, x2 float64) float64 {
		return math.Sin(2*math.Pi*x1) * math.Cos(2*math.Pi*x2)
	})
}

func split(inputs [][]float64, targets []float64, ratio float64, seed int64) Dataset {
	n := len(inputs)
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	nVal := int(float64(n) * ratio)

	ds := Dataset{
		XTrain: make([][]float64, 0, n-nVal),
		XVal:   make([][]float64, 0, nVal),
		YTrain: make([]float64, 0, n-nVal),
		YVal:   make([]float64, 0, nVal),
	}
	for i, idx := range perm {
		if i < nVal {
			ds.XVal = append(ds.XVal, inputs[idx])
			ds.YVal = append(ds.YVal, targets[idx])
		} else {
			ds.XTrain = append(ds.XTrain, inputs[idx])
			ds.YTrain = append(ds.YTrain, targets[idx])
		}
	}
	return ds
}
