package functions

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// UnsupportedFunctionError reports a target-function name outside the
// known set. No partial execution follows it.
type UnsupportedFunctionError struct {
	Name string
}

func (e *UnsupportedFunctionError) Error() string {
	return fmt.Sprintf("unsupported target function %q (known: %s)", e.Name, strings.Join(Names(), ", "))
}

// IsUnsupported reports whether err wraps an UnsupportedFunctionError.
func IsUnsupported(err error) bool {
	var u *UnsupportedFunctionError
	return errors.As(err, &u)
}

// Canonical target names for the command surface.
const (
	Quadratic        = "quadratic"
	SquareRoot       = "square-root"
	ExponentialDecay = "exponential-decay"
	Sine             = "sine"
	TwoDimNorm       = "two-dimensional-norm"
	BoundaryValueODE = "boundary-value-ode-solution"
)

// Names returns the canonical target names in presentation order.
func Names() []string {
	return []string{Quadratic, SquareRoot, ExponentialDecay, Sine, TwoDimNorm, BoundaryValueODE}
}

// Target is a named approximation target together with its sampling domain.
type Target struct {
	Name            string
	Dim             int
	Interval        [2]float64
	RequiresEpsilon bool
	Epsilon         float64

	eval func(x []float64) float64
}

// Eval evaluates the target at one input point.
func (t Target) Eval(x []float64) float64 {
	return t.eval(x)
}

// Sample evaluates the target over its reference grid: n evenly spaced
// points across the interval in one dimension, a ⌊√n⌋-per-axis mesh over
// the square in two. Returns row-major inputs and matching targets.
func (t Target) Sample(n int) ([][]float64, []float64, error) {
	if n < 4 {
		return nil, nil, fmt.Errorf("need at least 4 samples, got %d", n)
	}

	var inputs [][]float64
	switch t.Dim {
	case 1:
		grid := linspace(t.Interval[0], t.Interval[1], n)
		inputs = make([][]float64, n)
		for i, x := range grid {
			inputs[i] = []float64{x}
		}
	case 2:
		perAxis := int(math.Sqrt(float64(n)))
		grid := linspace(t.Interval[0], t.Interval[1], perAxis)
		inputs = make([][]float64, 0, perAxis*perAxis)
		for i := 0; i < perAxis; i++ {
			for j := 0; j < perAxis; j++ {
				inputs = append(inputs, []float64{grid[j], grid[i]})
			}
		}
	default:
		return nil, nil, fmt.Errorf("unsupported target dimension %d", t.Dim)
	}

	targets := make([]float64, len(inputs))
	for i, x := range inputs {
		targets[i] = t.eval(x)
	}
	return inputs, targets, nil
}

// Canonical resolves a name or short alias to its canonical target name
// without touching epsilon, for early argument validation.
func Canonical(name string) (string, error) {
	switch normalize(name) {
	case Quadratic, "x2":
		return Quadratic, nil
	case SquareRoot, "sqrt":
		return SquareRoot, nil
	case ExponentialDecay, "exp":
		return ExponentialDecay, nil
	case Sine, "sin":
		return Sine, nil
	case TwoDimNorm, "2d":
		return TwoDimNorm, nil
	case BoundaryValueODE, "diff", "ode":
		return BoundaryValueODE, nil
	default:
		return "", &UnsupportedFunctionError{Name: name}
	}
}

// Lookup resolves a target by canonical name or by the short aliases the
// original experiments used (x2, sqrt, exp, sin, 2d, diff). The boundary
// value target requires a positive epsilon; all others ignore it.
func Lookup(name string, epsilon float64) (Target, error) {
	switch normalize(name) {
	case Quadratic, "x2":
		return target1D(Quadratic, func(x float64) float64 { return x * x }), nil
	case SquareRoot, "sqrt":
		return target1D(SquareRoot, math.Sqrt), nil
	case ExponentialDecay, "exp":
		return target1D(ExponentialDecay, func(x float64) float64 { return math.Exp(-x) }), nil
	case Sine, "sin":
		return target1D(Sine, func(x float64) float64 { return math.Sin(20 * x) }), nil
	case TwoDimNorm, "2d":
		return Target{
			Name:     TwoDimNorm,
			Dim:      2,
			Interval: [2]float64{-1, 1},
			eval: func(x []float64) float64 {
				return math.Hypot(x[0], x[1])
			},
		}, nil
	case BoundaryValueODE, "diff", "ode":
		if epsilon <= 0 {
			return Target{}, fmt.Errorf("target %s requires a positive epsilon, got %g", BoundaryValueODE, epsilon)
		}
		return Target{
			Name:            BoundaryValueODE,
			Dim:             1,
			Interval:        [2]float64{0, 1},
			RequiresEpsilon: true,
			Epsilon:         epsilon,
			eval: func(x []float64) float64 {
				return boundaryValueSolution(x[0], epsilon)
			},
		}, nil
	default:
		return Target{}, &UnsupportedFunctionError{Name: name}
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func target1D(name string, f func(float64) float64) Target {
	return Target{
		Name:     name,
		Dim:      1,
		Interval: [2]float64{0, 1},
		eval:     func(x []float64) float64 { return f(x[0]) },
	}
}

// boundaryValueSolution evaluates the closed-form solution of
// -eps^2·u'' + u = 1 with u(0) = u(1) = 0:
//
//	u(x) = a·e^(x/eps) + b·e^(-x/eps) + 1
//	a = (1 - e^(1/eps)) / (e^(2/eps) - 1)
//	b = (e^(1/eps) - e^(2/eps)) / (e^(2/eps) - 1)
//
// rearranged so every exponent is non-positive, which keeps the value
// finite for small eps where the raw coefficients overflow.
func boundaryValueSolution(x, eps float64) float64 {
	denom := 1 - math.Exp(-2/eps)
	num := math.Exp((x-2)/eps) - math.Exp((x-1)/eps) +
		math.Exp(-(1+x)/eps) - math.Exp(-x/eps)
	return num/denom + 1
}

func linspace(a, b float64, n int) []float64 {
	out := make([]float64, n)
	step := (b - a) / float64(n-1)
	for i := range out {
		out[i] = a + float64(i)*step
	}
	out[n-1] = b
	return out
}
