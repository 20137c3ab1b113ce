package axon

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/axonlabs/axonfit/internal/domain/basis"
)

// UntrainedModelError reports a prediction attempt on a bundle that is
// missing required fields. Fatal to the call, not to the process.
type UntrainedModelError struct {
	Missing string
}

func (e *UntrainedModelError) Error() string {
	return fmt.Sprintf("model is not trained: missing %s", e.Missing)
}

// IsUntrained reports whether err wraps an UntrainedModelError.
func IsUntrained(err error) bool {
	var u *UntrainedModelError
	return errors.As(err, &u)
}

// RoundRecord captures one basis-growth round: the unit weight vector that
// produced the raw feature, the orthogonalization step needed to replay it,
// and the relative residual error after the round. Records are append-only
// and their order is significant.
type RoundRecord struct {
	Weights           []float64  `json:"weights"`
	Orthogonalization basis.Step `json:"orthogonalization"`
	RelativeError     float64    `json:"relative_error"`
}

// Builder names for Bundle.TrainedBy.
const (
	TrainedByGreedy   = "greedy"
	TrainedByGradient = "gradient"
)

// Bundle is the immutable artifact of training: everything needed to
// reproduce the basis transform on unseen inputs with zero re-optimization.
// Both the greedy trainer and the gradient-refinement trainer produce
// bundles satisfying the same prediction contract.
type Bundle struct {
	ID                 string        `json:"id"`
	Function           string        `json:"function,omitempty"`
	InputDim           int           `json:"input_dim"`
	Nonlinearity       string        `json:"nonlinearity"`
	RePUExponent       float64       `json:"repu_exponent,omitempty"`
	RInverse           [][]float64   `json:"r_inverse"`
	Rounds             []RoundRecord `json:"rounds"`
	OutputCoefficients []float64     `json:"output_coefficients"`
	StoppedEarly       bool          `json:"stopped_early,omitempty"`
	TrainedBy          string        `json:"trained_by"`
	CreatedAt          time.Time     `json:"created_at"`
}

// Validate reports an UntrainedModelError when a field required for
// prediction is absent. A bundle with zero rounds is valid: it is the
// plain affine fit.
func (b *Bundle) Validate() error {
	switch {
	case b == nil:
		return &UntrainedModelError{Missing: "bundle"}
	case len(b.RInverse) == 0:
		return &UntrainedModelError{Missing: "r_inverse"}
	case len(b.OutputCoefficients) == 0:
		return &UntrainedModelError{Missing: "output_coefficients"}
	case b.Rounds == nil:
		return &UntrainedModelError{Missing: "rounds"}
	}
	return nil
}

// Errors returns the relative residual error after each round, in order.
func (b *Bundle) Errors() []float64 {
	out := make([]float64, len(b.Rounds))
	for i, r := range b.Rounds {
		out[i] = r.RelativeError
	}
	return out
}

// FinalError returns the last recorded relative error, or 1 for a bundle
// with no rounds (nothing beyond the affine part has been explained).
func (b *Bundle) FinalError() float64 {
	if len(b.Rounds) == 0 {
		return 1
	}
	return b.Rounds[len(b.Rounds)-1].RelativeError
}

// NonlinearityFunc resolves the stored activation.
func (b *Bundle) NonlinearityFunc() (Nonlinearity, error) {
	return NonlinearityByName(b.Nonlinearity, b.RePUExponent)
}

func (b *Bundle) rInverseMat() (*mat.Dense, error) {
	rows := len(b.RInverse)
	if rows == 0 {
		return nil, &UntrainedModelError{Missing: "r_inverse"}
	}
	cols := len(b.RInverse[0])
	if cols != rows {
		return nil, fmt.Errorf("r_inverse must be square, got %dx%d", rows, cols)
	}
	m := mat.NewDense(rows, cols, nil)
	for i, row := range b.RInverse {
		if len(row) != cols {
			return nil, fmt.Errorf("ragged r_inverse row %d: %d columns, want %d", i, len(row), cols)
		}
		m.SetRow(i, row)
	}
	return m, nil
}

// Encode serializes the bundle to JSON.
func (b *Bundle) Encode() ([]byte, error) {
	return json.Marshal(b)
}

// DecodeBundle deserializes a bundle and validates it is usable for
// prediction.
func DecodeBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// DesignMatrix builds the bias-augmented design matrix from row-major
// samples: one row per sample, a leading constant-one column, then the
// input coordinates.
func DesignMatrix(inputs [][]float64) (*mat.Dense, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no input samples")
	}
	dim := len(inputs[0])
	if dim == 0 {
		return nil, fmt.Errorf("zero-dimensional input samples")
	}

	d := mat.NewDense(len(inputs), dim+1, nil)
	for i, row := range inputs {
		if len(row) != dim {
			return nil, fmt.Errorf("ragged input row %d: %d values, want %d", i, len(row), dim)
		}
		d.Set(i, 0, 1)
		for j, x := range row {
			d.Set(i, j+1, x)
		}
	}
	return d, nil
}

func denseRows(m *mat.Dense) [][]float64 {
	rows, cols := m.Dims()
	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = make([]float64, cols)
		mat.Row(out[i], i, m)
	}
	return out
}
