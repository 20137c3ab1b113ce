package basis

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DegenerateBasisError reports a candidate direction that is numerically
// collinear with the existing basis. Callers may recover by retrying the
// round with a different starting point or by stopping growth early.
type DegenerateBasisError struct {
	Pass int     // 0 = initial normalization, 1..n = re-orthogonalization pass
	Norm float64 // the norm that fell below tolerance
}

func (e *DegenerateBasisError) Error() string {
	return fmt.Sprintf("degenerate basis direction: norm %.3e below tolerance at pass %d", e.Norm, e.Pass)
}

// IsDegenerate reports whether err wraps a DegenerateBasisError.
func IsDegenerate(err error) bool {
	var d *DegenerateBasisError
	return errors.As(err, &d)
}

// Step records one orthogonalization of a candidate column: the projection
// coefficient vectors subtracted during each pass and the norms divided out,
// with Norms[0] being the initial normalization and Norms[i+1] pairing with
// Coefficients[i]. Steps are immutable once recorded and replaying them in
// order reproduces the training-time transform exactly.
type Step struct {
	Coefficients [][]float64 `json:"coefficients"`
	Norms        []float64   `json:"norms"`
}

// Matrix is a column-growing basis in sample space. During training its
// columns are kept mutually orthonormal; at prediction time the same type
// carries the replayed (not re-orthogonalized) feature columns.
type Matrix struct {
	q    *mat.Dense
	rows int
	cols int
}

// FromDense wraps an existing dense matrix as a growable basis. The matrix
// is owned by the returned value and must not be mutated by the caller.
func FromDense(d *mat.Dense) *Matrix {
	rows, cols := d.Dims()
	return &Matrix{q: d, rows: rows, cols: cols}
}

// FromDesign factorizes the bias-augmented design matrix and returns the
// initial orthonormal basis together with the inverse of the triangular
// factor. The inverse maps raw augmented inputs into the initial basis and
// is the piece a trained bundle stores for prediction.
func FromDesign(design *mat.Dense) (*Matrix, *mat.Dense, error) {
	rows, cols := design.Dims()
	if rows < cols {
		return nil, nil, fmt.Errorf("design matrix needs at least %d samples, got %d", cols, rows)
	}

	var qr mat.QR
	qr.Factorize(design)

	var r mat.Dense
	qr.RTo(&r)

	var rInv mat.Dense
	if err := rInv.Inverse(r.Slice(0, cols, 0, cols)); err != nil {
		return nil, nil, fmt.Errorf("design matrix is rank deficient: %w", err)
	}

	// Thin Q = A·R⁻¹ avoids materializing the full square factor.
	var q mat.Dense
	q.Mul(design, &rInv)

	return FromDense(&q), &rInv, nil
}

// Rows returns the sample count.
func (m *Matrix) Rows() int { return m.rows }

// Columns returns the current basis width.
func (m *Matrix) Columns() int { return m.cols }

// Column returns a copy of column j.
func (m *Matrix) Column(j int) []float64 {
	out := make([]float64, m.rows)
	mat.Col(out, j, m.q)
	return out
}

// MulVec computes Q·w for a weight vector of length Columns().
func (m *Matrix) MulVec(w []float64) []float64 {
	out := mat.NewVecDense(m.rows, nil)
	out.MulVec(m.q, mat.NewVecDense(len(w), w))
	return out.RawVector().Data
}

// ProjectCoefficients computes Qᵀ·v, the coefficients of v against the
// current columns.
func (m *Matrix) ProjectCoefficients(v []float64) []float64 {
	out := mat.NewVecDense(m.cols, nil)
	out.MulVec(m.q.T(), mat.NewVecDense(len(v), v))
	return out.RawVector().Data
}

// SubtractProjection subtracts Q·c from v in place.
func (m *Matrix) SubtractProjection(v, c []float64) {
	floats.AddScaled(v, -1, m.MulVec(c))
}

// Residual computes y − Q·Qᵀ·y, the component of y outside the basis span.
func (m *Matrix) Residual(y []float64) []float64 {
	out := make([]float64, m.rows)
	floats.SubTo(out, y, m.MulVec(m.ProjectCoefficients(y)))
	return out
}

// Append adds a column to the basis. The caller is responsible for the
// column being orthonormal when the basis is used for training.
func (m *Matrix) Append(col []float64) error {
	if len(col) != m.rows {
		return fmt.Errorf("column length %d does not match %d rows", len(col), m.rows)
	}
	grown := m.q.Grow(0, 1).(*mat.Dense)
	grown.SetCol(m.cols, col)
	m.q = grown
	m.cols++
	return nil
}

// Extend orthogonalizes candidate against the current columns using the
// given number of re-orthogonalization passes, appends the resulting unit
// column, and returns the recorded step. Two passes are sufficient to
// restore orthogonality lost to floating point in a single projection.
func (m *Matrix) Extend(candidate []float64, passes int, tol float64) (Step, error) {
	if len(candidate) != m.rows {
		return Step{}, fmt.Errorf("candidate length %d does not match %d rows", len(candidate), m.rows)
	}
	if passes < 1 {
		return Step{}, fmt.Errorf("orthogonalization needs at least one pass, got %d", passes)
	}

	v := make([]float64, m.rows)
	copy(v, candidate)

	norms := make([]float64, 0, passes+1)
	coeffs := make([][]float64, 0, passes)

	n0 := floats.Norm(v, 2)
	if n0 < tol {
		return Step{}, &DegenerateBasisError{Pass: 0, Norm: n0}
	}
	floats.Scale(1/n0, v)
	norms = append(norms, n0)

	for pass := 1; pass <= passes; pass++ {
		c := m.ProjectCoefficients(v)
		m.SubtractProjection(v, c)

		n := floats.Norm(v, 2)
		if n < tol {
			return Step{}, &DegenerateBasisError{Pass: pass, Norm: n}
		}
		floats.Scale(1/n, v)

		coeffs = append(coeffs, c)
		norms = append(norms, n)
	}

	if err := m.Append(v); err != nil {
		return Step{}, err
	}
	return Step{Coefficients: coeffs, Norms: norms}, nil
}

// Replay applies a previously recorded step to a raw candidate computed
// from this matrix and appends the result. No norms or coefficients are
// recomputed; divergence from the training-time transform would compound
// across rounds, so the stored values are used verbatim.
func (m *Matrix) Replay(candidate []float64, step Step) error {
	if len(candidate) != m.rows {
		return fmt.Errorf("candidate length %d does not match %d rows", len(candidate), m.rows)
	}
	if len(step.Norms) != len(step.Coefficients)+1 {
		return fmt.Errorf("malformed step: %d norms for %d coefficient vectors", len(step.Norms), len(step.Coefficients))
	}

	v := make([]float64, m.rows)
	copy(v, candidate)

	floats.Scale(1/step.Norms[0], v)
	for i, c := range step.Coefficients {
		m.SubtractProjection(v, c)
		floats.Scale(1/step.Norms[i+1], v)
	}
	return m.Append(v)
}

// OrthonormalityError returns the largest absolute deviation of QᵀQ from
// the identity, a direct measure of basis quality.
func (m *Matrix) OrthonormalityError() float64 {
	var g mat.Dense
	g.Mul(m.q.T(), m.q)

	worst := 0.0
	for i := 0; i < m.cols; i++ {
		for j := 0; j < m.cols; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if d := math.Abs(g.At(i, j) - want); d > worst {
				worst = d
			}
		}
	}
	return worst
}
