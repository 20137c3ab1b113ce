package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/axonlabs/axonfit/internal/domain/axon"
	"github.com/axonlabs/axonfit/internal/domain/functions"
	"github.com/axonlabs/axonfit/internal/infrastructure/cache"
	axlog "github.com/axonlabs/axonfit/internal/log"
	"github.com/axonlabs/axonfit/internal/persistence"
	"github.com/axonlabs/axonfit/internal/train/grad"
	"github.com/axonlabs/axonfit/internal/tune/opt"
)

// sweepSeedStride separates per-basis-count search seeds within one sweep.
const sweepSeedStride = 7919

// RoundEvent is emitted once per completed round (greedy) or per trained
// model (refinement sweep) for progress displays, metrics, and websocket
// subscribers.
type RoundEvent struct {
	RunID         string        `json:"run_id"`
	Function      string        `json:"function"`
	Trainer       string        `json:"trainer"`
	Round         int           `json:"round"`
	Total         int           `json:"total"`
	RelativeError float64       `json:"relative_error"`
	Evaluations   int           `json:"evaluations"`
	Elapsed       time.Duration `json:"elapsed"`
}

// SweepOutcome is one persisted error sweep.
type SweepOutcome struct {
	RunID    string        `json:"run_id"`
	Function string        `json:"function"`
	Epsilon  *float64      `json:"epsilon,omitempty"`
	Trainer  string        `json:"trainer"`
	Errors   []float64     `json:"errors"`
	Elapsed  time.Duration `json:"elapsed"`
}

// RefineOutcome pairs a greedy bundle with its gradient-refined version.
type RefineOutcome struct {
	Greedy  *axon.Bundle `json:"greedy"`
	Refined *axon.Bundle `json:"refined"`
	History []float64    `json:"history"`
}

// Runner executes experiments: greedy training, error sweeps, gradient
// refinement. It owns the stores and the bundle cache; training itself is
// delegated to the domain packages.
type Runner struct {
	cfg     Config
	files   *persistence.FileStore
	history persistence.Saver
	pg      *persistence.PostgresStore
	bundles *cache.Bundles
	log     zerolog.Logger
	onRound func(RoundEvent)
}

// NewRunner builds the stores and cache from cfg. The Postgres history is
// optional; when enabled it is wrapped in the circuit breaker so a dead
// database degrades to file-only persistence instead of failing runs.
func NewRunner(ctx context.Context, cfg Config, logger zerolog.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	files, err := persistence.NewFileStore(cfg.Storage.Dir)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:     cfg,
		files:   files,
		bundles: cache.NewBundles(cache.NewAuto(), cfg.Cache.TTL()),
		log:     logger,
	}

	if cfg.Storage.Postgres.Enabled {
		pg, err := persistence.NewPostgresStore(ctx, cfg.Storage.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("postgres history: %w", err)
		}
		r.pg = pg
		r.history = persistence.NewGuarded(pg, cfg.Storage.Breaker, logger)
	}
	return r, nil
}

// OnRound registers the per-round notification callback. Not safe to call
// while a run is in progress.
func (r *Runner) OnRound(fn func(RoundEvent)) {
	r.onRound = fn
}

// Bundles exposes the cache for the monitor server.
func (r *Runner) Bundles() *cache.Bundles { return r.bundles }

// Files exposes the sweep file store for the monitor server.
func (r *Runner) Files() *persistence.FileStore { return r.files }

// Close releases the optional database connection.
func (r *Runner) Close() error {
	if r.pg != nil {
		return r.pg.Close()
	}
	return nil
}

func (r *Runner) emit(ev RoundEvent) {
	if r.onRound != nil {
		r.onRound(ev)
	}
}

// newMinimizer builds the configured search with the round budget from the
// train section and an explicit seed.
func (r *Runner) newMinimizer(seed uint64) (opt.Minimizer, error) {
	options := r.cfg.Search.Options
	options.MaxEvaluations = r.cfg.Train.Budget
	options.Seed = seed
	return opt.New(r.cfg.Search.Algorithm, options)
}

// gradConfig assembles the refinement configuration for a given round
// count, inheriting the structural parameters from the train section.
func (r *Runner) gradConfig(rounds int, seed uint64) grad.Config {
	return grad.Config{
		Rounds:       rounds,
		Epochs:       r.cfg.Refine.Epochs,
		LearningRate: r.cfg.Refine.LearningRate,
		Passes:       r.cfg.Train.Passes,
		Nonlinearity: r.cfg.Train.Nonlinearity,
		RePUExponent: r.cfg.Train.RePUExponent,
		Seed:         seed,
		LogEvery:     r.cfg.Refine.LogEvery,
	}
}

// TrainGreedy trains one greedy model on the target's reference grid and
// caches the resulting bundle.
func (r *Runner) TrainGreedy(ctx context.Context, functionName string, epsilon float64) (*axon.Bundle, error) {
	target, err := functions.Lookup(functionName, epsilon)
	if err != nil {
		return nil, err
	}
	inputs, targets, err := target.Sample(r.cfg.Data.Samples)
	if err != nil {
		return nil, err
	}

	minimizer, err := r.newMinimizer(r.cfg.Train.Seed)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	trainer := axon.NewTrainer(r.cfg.Train, minimizer, r.log)
	trainer.OnProgress(func(p axon.RoundProgress) {
		r.emit(RoundEvent{
			RunID:         runID,
			Function:      target.Name,
			Trainer:       axon.TrainedByGreedy,
			Round:         p.Round,
			Total:         p.Total,
			RelativeError: p.RelativeError,
			Evaluations:   p.Evaluations,
			Elapsed:       p.Elapsed,
		})
	})

	bundle, err := trainer.Train(ctx, inputs, targets)
	if err != nil {
		return nil, err
	}
	bundle.Function = target.Name

	r.cacheBundle(bundle)
	return bundle, nil
}

// SweepGreedy trains one greedy model at the full basis count and persists
// its per-round error curve. Greedy growth is nested, so the k-round errors
// of a single run are exactly the per-basis-count sweep.
func (r *Runner) SweepGreedy(ctx context.Context, functionName string, epsilon float64) (*SweepOutcome, error) {
	started := time.Now()

	bundle, err := r.TrainGreedy(ctx, functionName, epsilon)
	if err != nil {
		return nil, err
	}

	outcome := &SweepOutcome{
		RunID:    bundle.ID,
		Function: bundle.Function,
		Trainer:  axon.TrainedByGreedy,
		Errors:   bundle.Errors(),
		Elapsed:  time.Since(started),
	}
	if eps, ok := targetEpsilon(functionName, epsilon); ok {
		outcome.Epsilon = &eps
	}

	if err := r.persistSweep(ctx, outcome); err != nil {
		return nil, err
	}
	return outcome, nil
}

// SweepRefine runs the random-initialization experiment: for every basis
// count up to the configured maximum, train an independent randomly
// initialized network to convergence and record its final error.
func (r *Runner) SweepRefine(ctx context.Context, functionName string, epsilon float64) (*SweepOutcome, error) {
	target, err := functions.Lookup(functionName, epsilon)
	if err != nil {
		return nil, err
	}

	steps := axlog.NewStepLogger("sweep "+target.Name, []string{"dataset", "training", "persistence"})
	steps.StartStep("dataset")
	inputs, targets, err := target.Sample(r.cfg.Data.Samples)
	if err != nil {
		steps.Fail(err.Error())
		return nil, err
	}

	maxBasis := r.cfg.Train.BasisCount
	runID := uuid.NewString()
	started := time.Now()
	errors := make([]float64, 0, maxBasis)

	r.log.Info().
		Str("function", target.Name).
		Int("max_basis", maxBasis).
		Int("epochs", r.cfg.Refine.Epochs).
		Msg("starting random-initialization sweep")

	steps.StartStep("training")
	for k := 1; k <= maxBasis; k++ {
		if err := ctx.Err(); err != nil {
			steps.Fail(err.Error())
			return nil, fmt.Errorf("sweep canceled at basis count %d: %w", k, err)
		}
		modelStart := time.Now()

		gcfg := r.gradConfig(k, r.cfg.Train.Seed+uint64(k)*sweepSeedStride)
		nw, err := grad.NewRandom(gcfg, inputs, targets, r.log)
		if err != nil {
			steps.Fail(err.Error())
			return nil, fmt.Errorf("basis count %d: %w", k, err)
		}
		bundle, _, err := nw.Fit(ctx)
		if err != nil {
			steps.Fail(err.Error())
			return nil, fmt.Errorf("basis count %d: %w", k, err)
		}
		bundle.Function = target.Name

		finalErr := bundle.FinalError()
		errors = append(errors, finalErr)
		if k == maxBasis {
			r.cacheBundle(bundle)
		}

		r.emit(RoundEvent{
			RunID:         runID,
			Function:      target.Name,
			Trainer:       axon.TrainedByGradient,
			Round:         k,
			Total:         maxBasis,
			RelativeError: finalErr,
			Evaluations:   r.cfg.Refine.Epochs,
			Elapsed:       time.Since(modelStart),
		})
	}

	outcome := &SweepOutcome{
		RunID:    runID,
		Function: target.Name,
		Trainer:  axon.TrainedByGradient,
		Errors:   errors,
		Elapsed:  time.Since(started),
	}
	if eps, ok := targetEpsilon(functionName, epsilon); ok {
		outcome.Epsilon = &eps
	}

	steps.StartStep("persistence")
	if err := r.persistSweep(ctx, outcome); err != nil {
		steps.Fail(err.Error())
		return nil, err
	}
	steps.Finish()
	return outcome, nil
}

// Refine trains a greedy model and fine-tunes its weights by gradient
// descent, caching both bundles.
func (r *Runner) Refine(ctx context.Context, functionName string, epsilon float64) (*RefineOutcome, error) {
	target, err := functions.Lookup(functionName, epsilon)
	if err != nil {
		return nil, err
	}
	inputs, targets, err := target.Sample(r.cfg.Data.Samples)
	if err != nil {
		return nil, err
	}

	greedy, err := r.TrainGreedy(ctx, functionName, epsilon)
	if err != nil {
		return nil, err
	}

	gcfg := r.gradConfig(len(greedy.Rounds), r.cfg.Train.Seed)
	nw, err := grad.NewFromBundle(gcfg, greedy, inputs, targets, r.log)
	if err != nil {
		return nil, err
	}
	refined, history, err := nw.Fit(ctx)
	if err != nil {
		return nil, err
	}
	refined.Function = target.Name
	r.cacheBundle(refined)

	r.log.Info().
		Str("function", target.Name).
		Float64("greedy_err", greedy.FinalError()).
		Float64("refined_err", refined.FinalError()).
		Msg("gradient refinement complete")

	return &RefineOutcome{Greedy: greedy, Refined: refined, History: history}, nil
}

// persistSweep writes to the file store (fatal on failure) and to the
// guarded database history (logged on failure).
func (r *Runner) persistSweep(ctx context.Context, outcome *SweepOutcome) error {
	res := persistence.SweepResult{
		RunID:     outcome.RunID,
		Function:  outcome.Function,
		Epsilon:   outcome.Epsilon,
		Trainer:   outcome.Trainer,
		Errors:    outcome.Errors,
		CreatedAt: time.Now().UTC(),
	}

	if err := r.files.SaveSweep(ctx, res); err != nil {
		return fmt.Errorf("persist sweep: %w", err)
	}
	if r.history != nil {
		if err := r.history.SaveSweep(ctx, res); err != nil {
			r.log.Warn().Err(err).Str("function", res.Function).Msg("sweep history write failed")
		}
	}
	return nil
}

func (r *Runner) cacheBundle(bundle *axon.Bundle) {
	if err := r.bundles.Put(bundle); err != nil {
		r.log.Warn().Err(err).Str("bundle_id", bundle.ID).Msg("bundle cache write failed")
	}
}

// targetEpsilon reports the epsilon to persist under, which only the
// boundary value target carries.
func targetEpsilon(functionName string, epsilon float64) (float64, bool) {
	target, err := functions.Lookup(functionName, epsilon)
	if err != nil || !target.RequiresEpsilon {
		return 0, false
	}
	return target.Epsilon, true
}
