package axon

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/axonlabs/axonfit/internal/domain/basis"
)

// Predict maps raw inputs to predicted outputs using only the bundle. The
// stored transform is replayed verbatim: the same pass order, the same
// coefficients, the same norms as at training time, so two calls with the
// same bundle and inputs produce bit-identical results.
func (b *Bundle) Predict(inputs [][]float64) ([]float64, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no input samples")
	}
	if got := len(inputs[0]); got != b.InputDim {
		return nil, fmt.Errorf("input dimension %d does not match trained dimension %d", got, b.InputDim)
	}

	design, err := DesignMatrix(inputs)
	if err != nil {
		return nil, err
	}
	rInv, err := b.rInverseMat()
	if err != nil {
		return nil, err
	}
	if _, cols := design.Dims(); cols != len(b.RInverse) {
		return nil, fmt.Errorf("design width %d does not match stored factor %d", cols, len(b.RInverse))
	}
	nl, err := b.NonlinearityFunc()
	if err != nil {
		return nil, err
	}

	// Initial representation: raw augmented inputs mapped through R inverse.
	var init mat.Dense
	init.Mul(design, rInv)
	bm := basis.FromDense(&init)

	for i, round := range b.Rounds {
		z := bm.MulVec(round.Weights)
		feature := make([]float64, len(z))
		nl.Transform(feature, z)

		if err := bm.Replay(feature, round.Orthogonalization); err != nil {
			return nil, fmt.Errorf("replay round %d: %w", i+1, err)
		}
	}

	return bm.MulVec(b.OutputCoefficients), nil
}
