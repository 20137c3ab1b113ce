package application

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/axonlabs/axonfit/internal/data"
	"github.com/axonlabs/axonfit/internal/domain/axon"
	"github.com/axonlabs/axonfit/internal/domain/functions"
)

// sineErrorThreshold is the acceptance bound for the non-convex 1D
// scenario: ten rectified-linear basis functions on sin(2πx).
const sineErrorThreshold = 0.05

// monotonicSlack absorbs floating-point jitter when checking that the
// error sequence never increases.
const monotonicSlack = 1e-9

// ScenarioResult is one acceptance scenario's outcome.
type ScenarioResult struct {
	Name            string        `json:"name"`
	Errors          []float64     `json:"errors"`
	FinalError      float64       `json:"final_error"`
	ValidationError float64       `json:"validation_error,omitempty"`
	Passed          bool          `json:"passed"`
	Reason          string        `json:"reason,omitempty"`
	Elapsed         time.Duration `json:"elapsed"`
}

// ValidationReport aggregates the acceptance scenarios.
type ValidationReport struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    bool             `json:"passed"`
}

// Validate runs the acceptance scenarios: the sine fit must converge below
// threshold with monotonically non-increasing errors, and the 2D distance
// fit must produce a finite, non-negative error for every basis count.
func (r *Runner) Validate(ctx context.Context) (*ValidationReport, error) {
	report := &ValidationReport{Passed: true}

	sine, err := r.validateSine(ctx)
	if err != nil {
		return nil, err
	}
	report.Scenarios = append(report.Scenarios, sine)

	norm2d, err := r.validateTwoDimNorm(ctx)
	if err != nil {
		return nil, err
	}
	report.Scenarios = append(report.Scenarios, norm2d)

	for _, s := range report.Scenarios {
		if !s.Passed {
			report.Passed = false
		}
	}
	return report, nil
}

// validateSine fits sin(2πx) on a shuffled train/validation split and
// checks convergence on the training grid plus generalization on the
// held-out points.
func (r *Runner) validateSine(ctx context.Context) (ScenarioResult, error) {
	started := time.Now()
	result := ScenarioResult{Name: "sine-1d"}

	ds, err := data.NonConvex1D(r.cfg.Data)
	if err != nil {
		return result, err
	}

	tcfg := r.cfg.Train
	tcfg.BasisCount = 10
	minimizer, err := r.newMinimizer(r.cfg.Train.Seed)
	if err != nil {
		return result, err
	}

	bundle, err := axon.NewTrainer(tcfg, minimizer, r.log).Train(ctx, ds.XTrain, ds.YTrain)
	if err != nil {
		return result, err
	}

	result.Errors = bundle.Errors()
	result.FinalError = bundle.FinalError()
	result.Elapsed = time.Since(started)

	if !nonIncreasing(result.Errors) {
		result.Reason = "error sequence increased between rounds"
		return result, nil
	}
	if result.FinalError >= sineErrorThreshold {
		result.Reason = fmt.Sprintf("final error %.4f not below %.2f", result.FinalError, sineErrorThreshold)
		return result, nil
	}

	preds, err := bundle.Predict(ds.XVal)
	if err != nil {
		return result, err
	}
	result.ValidationError = relativeL2(preds, ds.YVal)
	result.Passed = true
	return result, nil
}

// validateTwoDimNorm sweeps the 2D distance target and checks every
// per-basis-count error is finite and non-negative.
func (r *Runner) validateTwoDimNorm(ctx context.Context) (ScenarioResult, error) {
	started := time.Now()
	result := ScenarioResult{Name: "two-dimensional-norm"}

	target, err := functions.Lookup(functions.TwoDimNorm, 0)
	if err != nil {
		return result, err
	}
	inputs, targets, err := target.Sample(r.cfg.Data.Samples)
	if err != nil {
		return result, err
	}

	minimizer, err := r.newMinimizer(r.cfg.Train.Seed)
	if err != nil {
		return result, err
	}

	bundle, err := axon.NewTrainer(r.cfg.Train, minimizer, r.log).Train(ctx, inputs, targets)
	if err != nil {
		return result, err
	}

	result.Errors = bundle.Errors()
	result.FinalError = bundle.FinalError()
	result.Elapsed = time.Since(started)

	for k, e := range result.Errors {
		if math.IsNaN(e) || math.IsInf(e, 0) || e < 0 {
			result.Reason = fmt.Sprintf("error at basis count %d is %g", k+1, e)
			return result, nil
		}
	}
	result.Passed = true
	return result, nil
}

func nonIncreasing(errors []float64) bool {
	for i := 1; i < len(errors); i++ {
		if errors[i] > errors[i-1]+monotonicSlack {
			return false
		}
	}
	return true
}

func relativeL2(preds, targets []float64) float64 {
	diff := make([]float64, len(preds))
	floats.SubTo(diff, preds, targets)
	norm := floats.Norm(targets, 2)
	if norm == 0 {
		return floats.Norm(diff, 2)
	}
	return floats.Norm(diff, 2) / norm
}
