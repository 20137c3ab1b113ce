package axon

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/axonlabs/axonfit/internal/domain/basis"
	"github.com/axonlabs/axonfit/internal/tune/opt"
)

// TrainConfig defines one greedy basis-growth run.
type TrainConfig struct {
	BasisCount        int              `json:"basis_count" yaml:"basis_count"`               // Basis functions to add (default: 10)
	Passes            int              `json:"passes" yaml:"passes"`                         // Re-orthogonalization passes (default: 2)
	Budget            int              `json:"budget" yaml:"budget"`                         // Objective evaluations per round (default: 1200)
	Variant           ObjectiveVariant `json:"variant" yaml:"variant"`                       // Objective variant (default: orthogonalized)
	Nonlinearity      string           `json:"nonlinearity" yaml:"nonlinearity"`             // relu or repu
	RePUExponent      float64          `json:"repu_exponent" yaml:"repu_exponent"`           // Exponent for repu
	Seed              uint64           `json:"seed" yaml:"seed"`                             // Search seed for deterministic runs
	DegenerateRetries int              `json:"degenerate_retries" yaml:"degenerate_retries"` // Re-searches before stopping growth early
}

// DefaultTrainConfig returns the reference configuration.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		BasisCount:        10,
		Passes:            DefaultPasses,
		Budget:            DefaultSearchBudget,
		Variant:           VariantOrthogonalized,
		Nonlinearity:      "relu",
		Seed:              uint64(time.Now().UnixNano()),
		DegenerateRetries: 2,
	}
}

// Validate checks the configuration and fills nothing in; callers wanting
// defaults start from DefaultTrainConfig.
func (c TrainConfig) Validate() error {
	if c.BasisCount < 1 {
		return fmt.Errorf("basis_count must be at least 1, got %d", c.BasisCount)
	}
	if c.Passes < 1 {
		return fmt.Errorf("passes must be at least 1, got %d", c.Passes)
	}
	if c.Budget < 1 {
		return fmt.Errorf("budget must be at least 1, got %d", c.Budget)
	}
	if !c.Variant.Valid() {
		return fmt.Errorf("unknown objective variant %q", c.Variant)
	}
	if c.DegenerateRetries < 0 {
		return fmt.Errorf("degenerate_retries must not be negative, got %d", c.DegenerateRetries)
	}
	if _, err := NonlinearityByName(c.Nonlinearity, c.RePUExponent); err != nil {
		return err
	}
	return nil
}

// RoundProgress is emitted after each completed round for logging, metrics,
// and live monitoring.
type RoundProgress struct {
	Round         int           `json:"round"`
	Total         int           `json:"total"`
	RelativeError float64       `json:"relative_error"`
	Evaluations   int           `json:"evaluations"`
	Elapsed       time.Duration `json:"elapsed"`
}

// Trainer grows an orthonormal basis one nonlinear feature per round,
// delegating the per-round weight search to a derivative-free minimizer.
// Rounds are strictly sequential; only the minimizer may parallelize its
// candidate evaluations internally.
type Trainer struct {
	cfg       TrainConfig
	minimizer opt.Minimizer
	log       zerolog.Logger
	progress  func(RoundProgress)
}

// NewTrainer wires a trainer with its search collaborator.
func NewTrainer(cfg TrainConfig, minimizer opt.Minimizer, logger zerolog.Logger) *Trainer {
	return &Trainer{cfg: cfg, minimizer: minimizer, log: logger}
}

// OnProgress registers a per-round callback. Not safe to call while Train
// is running.
func (t *Trainer) OnProgress(fn func(RoundProgress)) {
	t.progress = fn
}

// Train runs the greedy algorithm: factorize the bias-augmented design
// matrix, then per round search for a weight vector, orthogonalize the
// resulting nonlinear feature into the basis, and recompute the residual.
// A degenerate direction is retried with fresh search randomness up to the
// configured count, after which growth stops early and the bundle is
// finalized with the columns accumulated so far.
func (t *Trainer) Train(ctx context.Context, inputs [][]float64, targets []float64) (*Bundle, error) {
	if err := t.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid train config: %w", err)
	}
	if len(inputs) != len(targets) {
		return nil, fmt.Errorf("%d input samples but %d targets", len(inputs), len(targets))
	}

	design, err := DesignMatrix(inputs)
	if err != nil {
		return nil, err
	}
	bm, rInv, err := basis.FromDesign(design)
	if err != nil {
		return nil, err
	}

	targetNorm := floats.Norm(targets, 2)
	if targetNorm == 0 {
		return nil, fmt.Errorf("targets are identically zero")
	}

	nl, err := NonlinearityByName(t.cfg.Nonlinearity, t.cfg.RePUExponent)
	if err != nil {
		return nil, err
	}

	residual := bm.Residual(targets)
	rounds := make([]RoundRecord, 0, t.cfg.BasisCount)
	stoppedEarly := false

	started := time.Now()
	t.log.Info().
		Int("basis_count", t.cfg.BasisCount).
		Int("budget", t.cfg.Budget).
		Str("variant", string(t.cfg.Variant)).
		Str("nonlinearity", nl.Name()).
		Int("samples", len(inputs)).
		Msg("starting greedy basis growth")

grow:
	for round := 1; round <= t.cfg.BasisCount; round++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("training canceled at round %d: %w", round, err)
		}
		roundStart := time.Now()

		obj, err := NewObjective(bm, residual, nl, t.cfg.Variant)
		if err != nil {
			return nil, err
		}

		var (
			weights []float64
			step    basis.Step
			evals   int
		)
		for attempt := 0; ; attempt++ {
			result, err := t.minimizer.Minimize(ctx, obj.Evaluate, bm.Columns())
			if err != nil {
				return nil, fmt.Errorf("search failed at round %d: %w", round, err)
			}
			evals += result.Evaluations

			weights = result.Best
			norm := floats.Norm(weights, 2)
			if norm > 0 {
				floats.Scale(1/norm, weights)
			}

			raw := bm.MulVec(weights)
			feature := make([]float64, len(raw))
			nl.Transform(feature, raw)

			step, err = bm.Extend(feature, t.cfg.Passes, DegeneracyTolerance)
			if err == nil {
				break
			}
			if !basis.IsDegenerate(err) {
				return nil, fmt.Errorf("orthogonalization failed at round %d: %w", round, err)
			}
			if attempt >= t.cfg.DegenerateRetries {
				t.log.Warn().
					Int("round", round).
					Int("attempts", attempt+1).
					Err(err).
					Msg("degenerate search direction, stopping basis growth early")
				stoppedEarly = true
				break grow
			}
			t.log.Debug().Int("round", round).Int("attempt", attempt+1).Msg("degenerate direction, retrying search")
		}

		residual = bm.Residual(targets)
		relErr := floats.Norm(residual, 2) / targetNorm

		rounds = append(rounds, RoundRecord{
			Weights:           weights,
			Orthogonalization: step,
			RelativeError:     relErr,
		})

		t.log.Debug().
			Int("round", round).
			Float64("err_rel", relErr).
			Int("evals", evals).
			Dur("elapsed", time.Since(roundStart)).
			Msg("round complete")

		if t.progress != nil {
			t.progress(RoundProgress{
				Round:         round,
				Total:         t.cfg.BasisCount,
				RelativeError: relErr,
				Evaluations:   evals,
				Elapsed:       time.Since(roundStart),
			})
		}
	}

	bundle := &Bundle{
		ID:                 uuid.NewString(),
		InputDim:           len(inputs[0]),
		Nonlinearity:       nl.Name(),
		RInverse:           denseRows(rInv),
		Rounds:             rounds,
		OutputCoefficients: bm.ProjectCoefficients(targets),
		StoppedEarly:       stoppedEarly,
		TrainedBy:          TrainedByGreedy,
		CreatedAt:          time.Now().UTC(),
	}
	if repu, ok := nl.(RePU); ok {
		bundle.RePUExponent = repu.Exponent
	}

	t.log.Info().
		Str("bundle_id", bundle.ID).
		Int("rounds", len(rounds)).
		Float64("final_err_rel", bundle.FinalError()).
		Dur("elapsed", time.Since(started)).
		Bool("stopped_early", stoppedEarly).
		Msg("basis growth finished")

	return bundle, nil
}
