package axon

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/axonlabs/axonfit/internal/domain/basis"
)

const (
	// DegeneracyTolerance is the squared-norm floor below which a weight
	// vector or orthogonalized feature counts as numerically zero.
	DegeneracyTolerance = 1e-7

	// PenaltyValue is returned by the objective instead of an error when a
	// candidate is ill-conditioned, keeping the black-box search defined
	// everywhere in its domain.
	PenaltyValue = 100.0

	// NormDriftWeight scales the soft penalty that discourages candidate
	// norms from drifting away from one.
	NormDriftWeight = 1e-8

	// DefaultSearchBudget is the per-round evaluation budget for the
	// derivative-free search.
	DefaultSearchBudget = 1200

	// DefaultPasses is the number of re-orthogonalization passes applied
	// to each accepted feature after its initial normalization.
	DefaultPasses = 2
)

// ObjectiveVariant selects how candidate features are scored.
type ObjectiveVariant string

const (
	// VariantUnconstrained scores the raw nonlinear feature against the
	// residual, normalizing by the candidate's energy in basis space.
	VariantUnconstrained ObjectiveVariant = "unconstrained"

	// VariantOrthogonalized projects the feature orthogonal to the current
	// basis before scoring. This is the default: it measures only the new
	// information a feature would add.
	VariantOrthogonalized ObjectiveVariant = "orthogonalized"
)

// Valid reports whether v is a known variant.
func (v ObjectiveVariant) Valid() bool {
	return v == VariantUnconstrained || v == VariantOrthogonalized
}

// Objective scores candidate weight vectors for one basis-growth round. It
// is a pure function of its inputs: Evaluate never mutates the basis or the
// residual and never fails, so concurrent evaluation of different candidates
// is safe.
type Objective struct {
	basis    *basis.Matrix
	residual []float64
	nl       Nonlinearity
	variant  ObjectiveVariant
}

// NewObjective builds the scoring function for the current round. The basis
// and residual are borrowed read-only for the lifetime of the round.
func NewObjective(b *basis.Matrix, residual []float64, nl Nonlinearity, variant ObjectiveVariant) (*Objective, error) {
	if !variant.Valid() {
		return nil, fmt.Errorf("unknown objective variant %q", variant)
	}
	if len(residual) != b.Rows() {
		return nil, fmt.Errorf("residual length %d does not match %d samples", len(residual), b.Rows())
	}
	return &Objective{basis: b, residual: residual, nl: nl, variant: variant}, nil
}

// Evaluate returns the score to minimize for weight vector w. Smaller is
// better; ill-conditioned candidates score PenaltyValue instead of failing.
func (o *Objective) Evaluate(w []float64) float64 {
	switch o.variant {
	case VariantUnconstrained:
		return o.evaluateUnconstrained(w)
	default:
		return o.evaluateOrthogonalized(w)
	}
}

func (o *Objective) evaluateUnconstrained(w []float64) float64 {
	ww := floats.Dot(w, w)
	if ww < DegeneracyTolerance {
		return PenaltyValue
	}

	z := o.basis.MulVec(w)
	feature := make([]float64, len(z))
	o.nl.Transform(feature, z)

	alignment := floats.Dot(feature, o.residual)
	energy := floats.Dot(z, z) // w'Q'Qw
	drift := ww - 1

	return -(alignment*alignment)/energy + NormDriftWeight*drift*drift
}

func (o *Objective) evaluateOrthogonalized(w []float64) float64 {
	z := o.basis.MulVec(w)
	feature := make([]float64, len(z))
	o.nl.Transform(feature, z)

	// Score only the component outside the current span.
	o.basis.SubtractProjection(feature, o.basis.ProjectCoefficients(feature))

	ff := floats.Dot(feature, feature)
	if ff < DegeneracyTolerance {
		return PenaltyValue
	}

	alignment := floats.Dot(feature, o.residual)
	drift := ff - 1

	return -(alignment*alignment)/ff + NormDriftWeight*drift*drift
}
