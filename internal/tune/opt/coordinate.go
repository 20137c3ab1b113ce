package opt

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// CoordinateDescent minimizes by cycling through coordinates, probing both
// directions with the current step size and backtracking the step when a
// full cycle yields no improvement. A cheaper, more exploitative
// alternative to OnePlusOne for smooth objectives.
type CoordinateDescent struct {
	cfg Config
	rng *rand.Rand
}

// NewCoordinateDescent creates a coordinate descent search.
func NewCoordinateDescent(cfg Config) *CoordinateDescent {
	return &CoordinateDescent{
		cfg: cfg,
		rng: rand.New(rand.NewSource(int64(cfg.Seed))),
	}
}

// Minimize runs coordinate descent until the budget is spent or the step
// size backtracks below the configured floor.
func (cd *CoordinateDescent) Minimize(ctx context.Context, f Objective, dim int) (Result, error) {
	if dim < 1 {
		return Result{}, fmt.Errorf("dimension must be at least 1, got %d", dim)
	}
	started := time.Now()

	current := make([]float64, dim)
	currentValue := f(current)
	evals := 1

	step := cd.cfg.InitialStep
	converged := false
	sinceImprovement := 0
	history := []Improvement{{Evaluation: evals, Value: currentValue, Step: step}}

	probe := make([]float64, dim)
	for evals < cd.cfg.MaxEvaluations {
		improved := false

		for coord := 0; coord < dim && evals < cd.cfg.MaxEvaluations; coord++ {
			if err := ctx.Err(); err != nil {
				return Result{}, fmt.Errorf("search canceled: %w", err)
			}

			directions := [2]float64{1, -1}
			if cd.rng.Float64() < 0.5 {
				directions[0], directions[1] = directions[1], directions[0]
			}

			for _, direction := range directions {
				if evals >= cd.cfg.MaxEvaluations {
					break
				}

				copy(probe, current)
				probe[coord] += direction * step
				probeValue := f(probe)
				evals++

				if probeValue < currentValue {
					if currentValue-probeValue > cd.cfg.Tolerance {
						improved = true
						sinceImprovement = 0
						history = append(history, Improvement{Evaluation: evals, Value: probeValue, Step: step})
					}
					copy(current, probe)
					currentValue = probeValue
					break
				}
				sinceImprovement++
			}
		}

		if !improved {
			step *= cd.cfg.BacktrackingRatio
			if step < cd.cfg.MinStep {
				converged = true
				break
			}
		}
		if cd.cfg.EarlyStopWindow > 0 && sinceImprovement >= cd.cfg.EarlyStopWindow {
			break
		}
	}

	best := make([]float64, dim)
	copy(best, current)

	return Result{
		Best:        best,
		Value:       currentValue,
		Evaluations: evals,
		Converged:   converged,
		Elapsed:     time.Since(started),
		History:     history,
	}, nil
}
