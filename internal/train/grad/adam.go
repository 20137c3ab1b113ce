package grad

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Optimiser is a first-order update rule over a flat parameter vector.
type Optimiser interface {
	// Update writes the updated parameters into out. out may alias
	// parameters for in-place updates.
	Update(out, parameters *mat.VecDense, gradient mat.Vector) *mat.VecDense
	// Extend grows the internal state to accommodate at least n
	// parameters.
	Extend(n int)
}

// Adam implements the Adam update rule with bias-corrected first and
// second moment estimates.
type Adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64

	m *mat.VecDense
	v *mat.VecDense
	t int
}

// NewAdam creates an Adam optimiser with the standard moment decays.
func NewAdam(learningRate float64) *Adam {
	return &Adam{
		lr:    learningRate,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
		m:     mat.NewVecDense(1, nil),
		v:     mat.NewVecDense(1, nil),
	}
}

// Extend grows the moment vectors, preserving accumulated state.
func (a *Adam) Extend(n int) {
	if n <= a.m.Len() {
		return
	}
	grown := func(old *mat.VecDense) *mat.VecDense {
		next := mat.NewVecDense(n, nil)
		for i := 0; i < old.Len(); i++ {
			next.SetVec(i, old.AtVec(i))
		}
		return next
	}
	a.m = grown(a.m)
	a.v = grown(a.v)
}

// Update applies one Adam step.
func (a *Adam) Update(out, parameters *mat.VecDense, gradient mat.Vector) *mat.VecDense {
	n := parameters.Len()
	a.Extend(n)
	a.t++

	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))

	for i := 0; i < n; i++ {
		g := gradient.AtVec(i)

		m := a.beta1*a.m.AtVec(i) + (1-a.beta1)*g
		v := a.beta2*a.v.AtVec(i) + (1-a.beta2)*g*g
		a.m.SetVec(i, m)
		a.v.SetVec(i, v)

		mHat := m / c1
		vHat := v / c2
		out.SetVec(i, parameters.AtVec(i)-a.lr*mHat/(math.Sqrt(vHat)+a.eps))
	}
	return out
}
