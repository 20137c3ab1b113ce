package basis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// onesBasis returns a 4-row basis holding the single normalized constant
// column, the smallest setup that exercises projection and extension.
func onesBasis() *Matrix {
	return FromDense(mat.NewDense(4, 1, []float64{0.5, 0.5, 0.5, 0.5}))
}

func TestFromDesign_ProducesOrthonormalBasis(t *testing.T) {
	design := mat.NewDense(4, 2, []float64{
		1, 0,
		1, 1.0 / 3,
		1, 2.0 / 3,
		1, 1,
	})

	bm, rInv, err := FromDesign(design)
	require.NoError(t, err)
	require.NotNil(t, rInv)

	assert.Equal(t, 4, bm.Rows())
	assert.Equal(t, 2, bm.Columns())
	assert.Less(t, bm.OrthonormalityError(), 1e-10, "QR factorization should leave QtQ at the identity")

	rows, cols := rInv.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols)
}

func TestFromDesign_RecoversDesignSpan(t *testing.T) {
	design := mat.NewDense(5, 2, []float64{
		1, 0,
		1, 0.25,
		1, 0.5,
		1, 0.75,
		1, 1,
	})

	bm, rInv, err := FromDesign(design)
	require.NoError(t, err)

	// Q·R⁻¹ applied the other way round: design·R⁻¹ must equal Q.
	var reconstructed mat.Dense
	reconstructed.Mul(design, rInv)
	for j := 0; j < bm.Columns(); j++ {
		col := bm.Column(j)
		for i := 0; i < bm.Rows(); i++ {
			assert.InDelta(t, col[i], reconstructed.At(i, j), 1e-12)
		}
	}
}

func TestFromDesign_RankDeficient(t *testing.T) {
	// Second column is twice the first, so R has a zero pivot.
	design := mat.NewDense(4, 2, []float64{
		1, 2,
		1, 2,
		1, 2,
		1, 2,
	})

	_, _, err := FromDesign(design)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rank deficient")
}

func TestFromDesign_TooFewSamples(t *testing.T) {
	design := mat.NewDense(1, 2, []float64{1, 0.5})

	_, _, err := FromDesign(design)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 2 samples")
}

func TestMatrix_VectorOperations(t *testing.T) {
	bm := FromDense(mat.NewDense(2, 2, []float64{
		1, 0,
		0, 1,
	}))

	assert.Equal(t, []float64{2, 3}, bm.MulVec([]float64{2, 3}))
	assert.Equal(t, []float64{4, 5}, bm.ProjectCoefficients([]float64{4, 5}))
	assert.Equal(t, []float64{0, 1}, bm.Column(1))

	v := []float64{4, 5}
	bm.SubtractProjection(v, []float64{1, 2})
	assert.Equal(t, []float64{3, 3}, v)
}

func TestMatrix_ResidualOrthogonalToBasis(t *testing.T) {
	bm := onesBasis()
	y := []float64{1, 2, 3, 4}

	res := bm.Residual(y)

	// Mean of y is 2.5, so the residual is y centered.
	want := []float64{-1.5, -0.5, 0.5, 1.5}
	for i := range want {
		assert.InDelta(t, want[i], res[i], 1e-12)
	}
	assert.InDelta(t, 0, floats.Dot(res, bm.Column(0)), 1e-12, "residual must be orthogonal to the basis")
}

func TestExtend_RecordsStepAndKeepsOrthonormality(t *testing.T) {
	bm := onesBasis()

	step, err := bm.Extend([]float64{1, 0, 0, 0}, 2, 1e-7)
	require.NoError(t, err)

	assert.Equal(t, 2, bm.Columns())
	assert.Len(t, step.Norms, 3, "one initial norm plus one per pass")
	assert.Len(t, step.Coefficients, 2)
	assert.InDelta(t, 1.0, step.Norms[0], 1e-12, "unit candidate needs no initial scaling")
	assert.Less(t, bm.OrthonormalityError(), 1e-12)

	// New column must be unit length.
	col := bm.Column(1)
	assert.InDelta(t, 1.0, floats.Norm(col, 2), 1e-12)
}

func TestExtend_DegenerateDirections(t *testing.T) {
	t.Run("collinear_candidate", func(t *testing.T) {
		bm := onesBasis()

		// Parallel to the existing column: nothing survives projection.
		_, err := bm.Extend([]float64{1, 1, 1, 1}, 2, 1e-7)
		require.Error(t, err)
		assert.True(t, IsDegenerate(err))

		var degenerate *DegenerateBasisError
		require.ErrorAs(t, err, &degenerate)
		assert.Equal(t, 1, degenerate.Pass)
		assert.Equal(t, 1, bm.Columns(), "failed extension must not grow the basis")
	})

	t.Run("zero_candidate", func(t *testing.T) {
		bm := onesBasis()

		_, err := bm.Extend([]float64{0, 0, 0, 0}, 2, 1e-7)
		require.Error(t, err)
		assert.True(t, IsDegenerate(err))

		var degenerate *DegenerateBasisError
		require.ErrorAs(t, err, &degenerate)
		assert.Equal(t, 0, degenerate.Pass, "zero norm is caught before any projection")
	})

	t.Run("other_errors_are_not_degenerate", func(t *testing.T) {
		bm := onesBasis()
		_, err := bm.Extend([]float64{1, 2}, 2, 1e-7)
		require.Error(t, err)
		assert.False(t, IsDegenerate(err))
	})
}

func TestExtend_RequiresAtLeastOnePass(t *testing.T) {
	bm := onesBasis()
	_, err := bm.Extend([]float64{1, 0, 0, 0}, 0, 1e-7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one pass")
}

func TestReplay_ReproducesExtendExactly(t *testing.T) {
	grown := onesBasis()
	replayed := onesBasis()
	candidate := []float64{0.9, -0.1, 0.4, 0.2}

	step, err := grown.Extend(candidate, 2, 1e-7)
	require.NoError(t, err)

	require.NoError(t, replayed.Replay(candidate, step))

	require.Equal(t, grown.Columns(), replayed.Columns())
	grownCol := grown.Column(1)
	replayedCol := replayed.Column(1)
	for i := range grownCol {
		assert.InDelta(t, grownCol[i], replayedCol[i], 1e-15,
			"replaying the recorded step must reproduce the training-time column")
	}
}

func TestReplay_UsesStoredValuesVerbatim(t *testing.T) {
	bm := onesBasis()

	// A step whose norms deliberately do not match the candidate: replay
	// must apply them anyway instead of recomputing.
	step := Step{
		Coefficients: [][]float64{{0}, {0}},
		Norms:        []float64{2, 1, 1},
	}
	require.NoError(t, bm.Replay([]float64{1, 0, 0, 0}, step))

	col := bm.Column(1)
	assert.InDelta(t, 0.5, col[0], 1e-12, "candidate is divided by the stored norm, not its own")
	assert.InDelta(t, 0.5, floats.Norm(col, 2), 1e-12)
}

func TestReplay_RejectsMalformedStep(t *testing.T) {
	bm := onesBasis()

	step := Step{
		Coefficients: [][]float64{{0.5}},
		Norms:        []float64{1},
	}
	err := bm.Replay([]float64{1, 0, 0, 0}, step)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed step")
}

func TestAppend_RejectsWrongLength(t *testing.T) {
	bm := onesBasis()
	require.Error(t, bm.Append([]float64{1, 2, 3}))
	assert.Equal(t, 1, bm.Columns())
}

func TestExtend_GrowsAcrossManyRounds(t *testing.T) {
	// Grow from the constant column with shifted ramp candidates, the same
	// family of features a rectifier produces.
	bm := FromDense(mat.NewDense(8, 1, []float64{
		0.35355339059327373, 0.35355339059327373, 0.35355339059327373, 0.35355339059327373,
		0.35355339059327373, 0.35355339059327373, 0.35355339059327373, 0.35355339059327373,
	}))

	for round := 0; round < 4; round++ {
		candidate := make([]float64, 8)
		for i := range candidate {
			candidate[i] = math.Max(0, float64(i)/7-0.2*float64(round))
		}
		step, err := bm.Extend(candidate, 2, 1e-7)
		require.NoError(t, err, "round %d", round)
		assert.Len(t, step.Norms, 3)
	}

	assert.Equal(t, 5, bm.Columns())
	assert.Less(t, bm.OrthonormalityError(), 1e-10,
		"re-orthogonalization must hold the basis together across rounds")
}
