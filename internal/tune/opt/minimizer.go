package opt

import (
	"context"
	"fmt"
	"time"
)

// Objective is a scalar function of a fixed-length real vector. Callers
// guarantee it is side-effect free so minimizers may evaluate candidates
// concurrently.
type Objective func(w []float64) float64

// Minimizer is the minimal derivative-free search contract: minimize an
// objective over a vector of the given dimension within the configured
// evaluation budget and return the best vector found.
type Minimizer interface {
	Minimize(ctx context.Context, f Objective, dim int) (Result, error)
}

// Config defines the configuration shared by the search strategies.
type Config struct {
	MaxEvaluations    int     `json:"max_evaluations" yaml:"max_evaluations"`       // Objective evaluation budget (default: 1200)
	Tolerance         float64 `json:"tolerance" yaml:"tolerance"`                   // Improvement below this counts as stagnation (default: 1e-9)
	InitialStep       float64 `json:"initial_step" yaml:"initial_step"`             // Initial mutation/step scale (default: 1.0)
	BacktrackingRatio float64 `json:"backtracking_ratio" yaml:"backtracking_ratio"` // Step shrink factor on failure (default: 0.5)
	MinStep           float64 `json:"min_step" yaml:"min_step"`                     // Step floor, reaching it means convergence (default: 1e-9)
	EarlyStopWindow   int     `json:"early_stop_window" yaml:"early_stop_window"`   // Evaluations without improvement before stopping (default: 0 = off)
	Seed              uint64  `json:"seed" yaml:"seed"`                             // Random seed for deterministic behavior
	Restarts          int     `json:"restarts" yaml:"restarts"`                     // Independent searches run by the portfolio (default: 1)
	Workers           int     `json:"workers" yaml:"workers"`                       // Concurrent restarts (default: all at once)
}

// DefaultConfig returns the reference search configuration.
func DefaultConfig() Config {
	return Config{
		MaxEvaluations:    1200,
		Tolerance:         1e-9,
		InitialStep:       1.0,
		BacktrackingRatio: 0.5,
		MinStep:           1e-9,
		Seed:              uint64(time.Now().UnixNano()),
		Restarts:          1,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxEvaluations < 1 {
		return fmt.Errorf("max_evaluations must be at least 1, got %d", c.MaxEvaluations)
	}
	if c.InitialStep <= 0 {
		return fmt.Errorf("initial_step must be positive, got %g", c.InitialStep)
	}
	if c.MinStep <= 0 {
		return fmt.Errorf("min_step must be positive, got %g", c.MinStep)
	}
	if c.BacktrackingRatio <= 0 || c.BacktrackingRatio >= 1 {
		return fmt.Errorf("backtracking_ratio must be in (0, 1), got %g", c.BacktrackingRatio)
	}
	if c.Restarts < 0 {
		return fmt.Errorf("restarts must not be negative, got %d", c.Restarts)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}

// Improvement is one accepted step in the search history.
type Improvement struct {
	Evaluation int     `json:"evaluation"`
	Value      float64 `json:"value"`
	Step       float64 `json:"step"`
}

// Result holds the outcome of one search.
type Result struct {
	Best        []float64     `json:"best"`
	Value       float64       `json:"value"`
	Evaluations int           `json:"evaluations"`
	Converged   bool          `json:"converged"`
	Elapsed     time.Duration `json:"elapsed"`
	History     []Improvement `json:"history,omitempty"`
}

// Algorithm names accepted by New.
const (
	AlgorithmOnePlusOne = "oneplusone"
	AlgorithmCoordinate = "coordinate"
)

// New builds a minimizer by algorithm name, wrapping it in a parallel
// restart portfolio when the configuration asks for more than one restart.
func New(algorithm string, cfg Config) (Minimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search config: %w", err)
	}

	if cfg.Restarts > 1 {
		return NewPortfolio(algorithm, cfg)
	}

	switch algorithm {
	case "", AlgorithmOnePlusOne:
		return NewOnePlusOne(cfg), nil
	case AlgorithmCoordinate:
		return NewCoordinateDescent(cfg), nil
	default:
		return nil, fmt.Errorf("unknown search algorithm %q", algorithm)
	}
}
