package opt

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
)

// Portfolio runs several independent searches concurrently and keeps the
// best outcome. Objective evaluations within a round are side-effect free,
// so restarts parallelize without coordination; each restart gets its own
// deterministically derived seed, keeping the portfolio as reproducible as
// a single search.
type Portfolio struct {
	cfg       Config
	algorithm string
}

// NewPortfolio builds a parallel restart portfolio over the named
// algorithm.
func NewPortfolio(algorithm string, cfg Config) (*Portfolio, error) {
	switch algorithm {
	case "", AlgorithmOnePlusOne, AlgorithmCoordinate:
	default:
		return nil, fmt.Errorf("unknown search algorithm %q", algorithm)
	}
	if cfg.Restarts < 2 {
		return nil, fmt.Errorf("portfolio needs at least 2 restarts, got %d", cfg.Restarts)
	}
	return &Portfolio{cfg: cfg, algorithm: algorithm}, nil
}

func (p *Portfolio) newSearch(restart int) Minimizer {
	cfg := p.cfg
	cfg.Restarts = 1
	// Offset by a prime so neighboring restarts do not share streams.
	cfg.Seed = p.cfg.Seed + uint64(restart)*7919

	if p.algorithm == AlgorithmCoordinate {
		return NewCoordinateDescent(cfg)
	}
	return NewOnePlusOne(cfg)
}

// Minimize fans the restarts out across workers and returns the best
// result, with evaluations summed across all restarts. Ties break toward
// the lowest restart index so results do not depend on scheduling.
func (p *Portfolio) Minimize(ctx context.Context, f Objective, dim int) (Result, error) {
	started := time.Now()

	workers := p.cfg.Workers
	if workers <= 0 {
		workers = p.cfg.Restarts
	}

	results := make([]Result, p.cfg.Restarts)
	workPool := pool.New().WithContext(ctx).WithMaxGoroutines(workers)
	for i := 0; i < p.cfg.Restarts; i++ {
		workPool.Go(func(ctx context.Context) error {
			r, err := p.newSearch(i).Minimize(ctx, f, dim)
			if err != nil {
				return fmt.Errorf("restart %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := workPool.Wait(); err != nil {
		return Result{}, err
	}

	best := results[0]
	totalEvals := results[0].Evaluations
	for _, r := range results[1:] {
		totalEvals += r.Evaluations
		if r.Value < best.Value {
			best = r
		}
	}

	best.Evaluations = totalEvals
	best.Elapsed = time.Since(started)
	return best, nil
}
