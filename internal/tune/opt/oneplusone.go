package opt

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// OnePlusOne is a (1+1) evolution strategy: a single parent mutated by
// isotropic Gaussian noise, keeping the child when it does not score worse,
// with the mutation scale adapted by the one-fifth success rule (double on
// success, shrink by 2^(-1/4) on failure). Search starts at the origin,
// where the objective's penalty region pushes it outward.
//
// Instances are not safe for concurrent use; independent searches get
// independent instances (see Portfolio).
type OnePlusOne struct {
	cfg Config
	rng *rand.Rand
}

// NewOnePlusOne creates the strategy with its own deterministic random
// stream. Successive Minimize calls continue the stream, so retries of a
// failed round explore differently while the run as a whole stays
// reproducible for a fixed seed.
func NewOnePlusOne(cfg Config) *OnePlusOne {
	return &OnePlusOne{
		cfg: cfg,
		rng: rand.New(rand.NewSource(int64(cfg.Seed))),
	}
}

// Minimize runs the strategy until the evaluation budget is spent, the
// mutation scale collapses below the configured floor, or the early-stop
// window passes without improvement.
func (es *OnePlusOne) Minimize(ctx context.Context, f Objective, dim int) (Result, error) {
	if dim < 1 {
		return Result{}, fmt.Errorf("dimension must be at least 1, got %d", dim)
	}
	started := time.Now()

	parent := make([]float64, dim)
	parentValue := f(parent)
	evals := 1

	sigma := es.cfg.InitialStep
	sinceImprovement := 0
	converged := false
	history := []Improvement{{Evaluation: evals, Value: parentValue, Step: sigma}}

	child := make([]float64, dim)
	for evals < es.cfg.MaxEvaluations {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("search canceled: %w", err)
		}

		for i := range child {
			child[i] = parent[i] + sigma*es.rng.NormFloat64()
		}
		childValue := f(child)
		evals++

		if childValue <= parentValue {
			improved := parentValue-childValue > es.cfg.Tolerance
			copy(parent, child)
			parentValue = childValue
			sigma *= 2
			if improved {
				sinceImprovement = 0
				history = append(history, Improvement{Evaluation: evals, Value: parentValue, Step: sigma})
			} else {
				sinceImprovement++
			}
		} else {
			sigma *= math.Pow(2, -0.25)
			sinceImprovement++
		}

		if sigma < es.cfg.MinStep {
			converged = true
			break
		}
		if es.cfg.EarlyStopWindow > 0 && sinceImprovement >= es.cfg.EarlyStopWindow {
			break
		}
	}

	best := make([]float64, dim)
	copy(best, parent)

	return Result{
		Best:        best,
		Value:       parentValue,
		Evaluations: evals,
		Converged:   converged,
		Elapsed:     time.Since(started),
		History:     history,
	}, nil
}
