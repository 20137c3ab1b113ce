package axon

import (
	"fmt"
	"math"
)

// Nonlinearity is the elementwise activation applied to a projected feature
// Q·w before orthogonalization. Implementations must be stateless so that
// objective evaluations can share them across goroutines.
type Nonlinearity interface {
	Name() string
	// Transform writes f(src[i]) into dst[i]. dst and src may alias.
	Transform(dst, src []float64)
	// Derivative writes f'(src[i]) into dst[i], using the right-hand
	// subgradient at kinks.
	Derivative(dst, src []float64)
}

// ReLU is the rectified-linear activation max(0, x).
type ReLU struct{}

func (ReLU) Name() string { return "relu" }

func (ReLU) Transform(dst, src []float64) {
	for i, x := range src {
		if x > 0 {
			dst[i] = x
		} else {
			dst[i] = 0
		}
	}
}

func (ReLU) Derivative(dst, src []float64) {
	for i, x := range src {
		if x > 0 {
			dst[i] = 1
		} else {
			dst[i] = 0
		}
	}
}

// RePU is the rectified-power activation x^q for x > 0, zero otherwise.
type RePU struct {
	Exponent float64
}

func (RePU) Name() string { return "repu" }

func (r RePU) Transform(dst, src []float64) {
	for i, x := range src {
		if x > 0 {
			dst[i] = math.Pow(x, r.Exponent)
		} else {
			dst[i] = 0
		}
	}
}

func (r RePU) Derivative(dst, src []float64) {
	for i, x := range src {
		if x > 0 {
			dst[i] = r.Exponent * math.Pow(x, r.Exponent-1)
		} else {
			dst[i] = 0
		}
	}
}

// NonlinearityByName resolves an activation by its serialized name. The
// exponent is only consulted for "repu".
func NonlinearityByName(name string, exponent float64) (Nonlinearity, error) {
	switch name {
	case "", "relu":
		return ReLU{}, nil
	case "repu":
		if exponent <= 0 {
			return nil, fmt.Errorf("repu exponent must be positive, got %g", exponent)
		}
		return RePU{Exponent: exponent}, nil
	default:
		return nil, fmt.Errorf("unknown nonlinearity %q", name)
	}
}
