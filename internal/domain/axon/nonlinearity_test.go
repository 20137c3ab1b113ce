package axon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReLU_TransformAndDerivative(t *testing.T) {
	src := []float64{-2, -0.0001, 0, 1.5}

	out := make([]float64, len(src))
	ReLU{}.Transform(out, src)
	assert.Equal(t, []float64{0, 0, 0, 1.5}, out)

	ReLU{}.Derivative(out, src)
	assert.Equal(t, []float64{0, 0, 0, 1}, out, "right-hand subgradient is zero at the kink")
}

func TestRePU_TransformAndDerivative(t *testing.T) {
	tests := []struct {
		name      string
		exponent  float64
		in        float64
		wantValue float64
		wantDeriv float64
	}{
		{name: "square_positive", exponent: 2, in: 3, wantValue: 9, wantDeriv: 6},
		{name: "square_negative", exponent: 2, in: -1, wantValue: 0, wantDeriv: 0},
		{name: "cube_positive", exponent: 3, in: 2, wantValue: 8, wantDeriv: 12},
		{name: "zero_input", exponent: 2, in: 0, wantValue: 0, wantDeriv: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nl := RePU{Exponent: tt.exponent}
			out := make([]float64, 1)

			nl.Transform(out, []float64{tt.in})
			assert.InDelta(t, tt.wantValue, out[0], 1e-12)

			nl.Derivative(out, []float64{tt.in})
			assert.InDelta(t, tt.wantDeriv, out[0], 1e-12)
		})
	}
}

func TestTransform_InPlace(t *testing.T) {
	buf := []float64{-1, 2, -3, 4}
	ReLU{}.Transform(buf, buf)
	assert.Equal(t, []float64{0, 2, 0, 4}, buf)
}

func TestNonlinearityByName(t *testing.T) {
	t.Run("empty_defaults_to_relu", func(t *testing.T) {
		nl, err := NonlinearityByName("", 0)
		require.NoError(t, err)
		assert.Equal(t, "relu", nl.Name())
	})

	t.Run("repu_carries_exponent", func(t *testing.T) {
		nl, err := NonlinearityByName("repu", 2)
		require.NoError(t, err)
		assert.Equal(t, "repu", nl.Name())
		assert.Equal(t, RePU{Exponent: 2}, nl)
	})

	t.Run("repu_requires_positive_exponent", func(t *testing.T) {
		_, err := NonlinearityByName("repu", 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exponent must be positive")
	})

	t.Run("unknown_name", func(t *testing.T) {
		_, err := NonlinearityByName("tanh", 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown nonlinearity")
	})
}
