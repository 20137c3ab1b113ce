package axon

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/axonlabs/axonfit/internal/domain/basis"
)

// signBasis is a single unit column with mixed signs, so a rectifier
// produces features with components outside the span.
func signBasis() *basis.Matrix {
	s := 1 / math.Sqrt2
	return basis.FromDense(mat.NewDense(4, 1, []float64{s, -s, 0, 0}))
}

func TestObjectiveVariant_Valid(t *testing.T) {
	assert.True(t, VariantOrthogonalized.Valid())
	assert.True(t, VariantUnconstrained.Valid())
	assert.False(t, ObjectiveVariant("projected").Valid())
	assert.False(t, ObjectiveVariant("").Valid())
}

func TestNewObjective_Validation(t *testing.T) {
	bm := signBasis()

	t.Run("unknown_variant", func(t *testing.T) {
		_, err := NewObjective(bm, []float64{0, 0, 0, 0}, ReLU{}, "projected")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown objective variant")
	})

	t.Run("residual_length_mismatch", func(t *testing.T) {
		_, err := NewObjective(bm, []float64{0, 0}, ReLU{}, VariantOrthogonalized)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not match")
	})
}

func TestObjective_OrthogonalizedScore(t *testing.T) {
	// Basis column v = (1, -1, 0, 0)/√2. For w = (1) the rectified feature
	// is (1/√2, 0, 0, 0); its component orthogonal to v has squared norm
	// 1/4 and alignment 1/(2√2) with the residual below, so the score is
	// -1/2 up to the tiny norm-drift term.
	obj, err := NewObjective(signBasis(), []float64{0, 1, 0, 0}, ReLU{}, VariantOrthogonalized)
	require.NoError(t, err)

	score := obj.Evaluate([]float64{1})
	assert.InDelta(t, -0.5, score, 1e-6)
}

func TestObjective_UnconstrainedScore(t *testing.T) {
	// Same geometry without the projection: alignment is f·r = 1/√2, the
	// candidate's basis-space energy is exactly 1, and w is unit so the
	// drift term vanishes. Score is -1/2.
	obj, err := NewObjective(signBasis(), []float64{1, 0, 0, 0}, ReLU{}, VariantUnconstrained)
	require.NoError(t, err)

	score := obj.Evaluate([]float64{1})
	assert.InDelta(t, -0.5, score, 1e-9)
}

func TestObjective_PenalizesDegenerateCandidates(t *testing.T) {
	t.Run("orthogonalized_feature_in_span", func(t *testing.T) {
		// An identity basis spans the whole sample space, so any rectified
		// feature projects to zero.
		bm := basis.FromDense(mat.NewDense(2, 2, []float64{
			1, 0,
			0, 1,
		}))
		obj, err := NewObjective(bm, []float64{1, 1}, ReLU{}, VariantOrthogonalized)
		require.NoError(t, err)

		assert.Equal(t, PenaltyValue, obj.Evaluate([]float64{1, 1}))
	})

	t.Run("unconstrained_zero_weights", func(t *testing.T) {
		obj, err := NewObjective(signBasis(), []float64{0, 1, 0, 0}, ReLU{}, VariantUnconstrained)
		require.NoError(t, err)

		assert.Equal(t, PenaltyValue, obj.Evaluate([]float64{0}))
	})

	t.Run("orthogonalized_dead_rectifier", func(t *testing.T) {
		// Negative weight flips the column below zero everywhere the
		// rectifier looks, leaving a feature of all zeros.
		bm := basis.FromDense(mat.NewDense(3, 1, []float64{
			1 / math.Sqrt(3), 1 / math.Sqrt(3), 1 / math.Sqrt(3),
		}))
		obj, err := NewObjective(bm, []float64{1, 0, 0}, ReLU{}, VariantOrthogonalized)
		require.NoError(t, err)

		assert.Equal(t, PenaltyValue, obj.Evaluate([]float64{-1}))
	})
}

func TestObjective_EvaluateIsPure(t *testing.T) {
	bm := signBasis()
	obj, err := NewObjective(bm, []float64{0, 1, 0, 0}, ReLU{}, VariantOrthogonalized)
	require.NoError(t, err)

	w := []float64{0.8}
	first := obj.Evaluate(w)
	second := obj.Evaluate(w)

	assert.Equal(t, first, second, "repeated evaluation must not drift")
	assert.Equal(t, 1, bm.Columns(), "evaluation must not grow the basis")
	assert.Equal(t, []float64{0.8}, w, "evaluation must not mutate the candidate")
}

func TestObjective_PrefersInformativeCandidates(t *testing.T) {
	// The residual lives where the rectified feature of the positive
	// candidate does; the flipped candidate is dead and scores the penalty.
	obj, err := NewObjective(signBasis(), []float64{0, 1, 0, 0}, ReLU{}, VariantOrthogonalized)
	require.NoError(t, err)

	good := obj.Evaluate([]float64{1})
	dead := obj.Evaluate([]float64{-1})

	assert.Less(t, good, dead, "a candidate aligned with the residual must score lower")
	assert.Negative(t, good)
}
