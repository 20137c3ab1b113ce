package grad

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/axonlabs/axonfit/internal/domain/axon"
	"github.com/axonlabs/axonfit/internal/domain/basis"
)

// Config defines one gradient-refinement run.
type Config struct {
	Rounds       int     `json:"rounds" yaml:"rounds"`               // Basis functions for random init (default: 10)
	Epochs       int     `json:"epochs" yaml:"epochs"`               // Training epochs (default: 1000)
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate"` // Adam step size (default: 0.01)
	Passes       int     `json:"passes" yaml:"passes"`               // Re-orthogonalization passes (default: 2)
	Nonlinearity string  `json:"nonlinearity" yaml:"nonlinearity"`   // relu or repu
	RePUExponent float64 `json:"repu_exponent" yaml:"repu_exponent"` // Exponent for repu
	Seed         uint64  `json:"seed" yaml:"seed"`                   // Weight init seed
	LogEvery     int     `json:"log_every" yaml:"log_every"`         // Epochs between progress logs (default: 100)
}

// DefaultConfig returns the reference refinement configuration.
func DefaultConfig() Config {
	return Config{
		Rounds:       10,
		Epochs:       1000,
		LearningRate: 0.01,
		Passes:       axon.DefaultPasses,
		Nonlinearity: "relu",
		Seed:         uint64(time.Now().UnixNano()),
		LogEvery:     100,
	}
}

// Validate checks the refinement parameters.
func (c Config) Validate() error {
	if c.Rounds < 1 {
		return fmt.Errorf("rounds must be at least 1, got %d", c.Rounds)
	}
	if c.Epochs < 1 {
		return fmt.Errorf("epochs must be at least 1, got %d", c.Epochs)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %g", c.LearningRate)
	}
	if c.Passes < 1 {
		return fmt.Errorf("passes must be at least 1, got %d", c.Passes)
	}
	if _, err := axon.NonlinearityByName(c.Nonlinearity, c.RePUExponent); err != nil {
		return err
	}
	return nil
}

// Network re-expresses basis growth as a differentiable computation: one
// learnable projection vector per added column feeding the same
// orthogonalize-normalize structure the greedy trainer records. The forward
// pass orthogonalizes dynamically from the current weights, the output
// coefficients are re-derived as basisᵀ·targets each pass, and all round
// weights train jointly against mean squared reconstruction error.
type Network struct {
	cfg Config

	rows     int
	inputDim int
	m0       int

	initCols [][]float64
	rInvRows [][]float64

	flat    []float64
	offsets []int

	targets    []float64
	targetNorm float64

	nl  axon.Nonlinearity
	opt Optimiser
	log zerolog.Logger

	fineTuned bool
}

type roundTape struct {
	dphi   []float64
	norms  []float64
	coeffs [][]float64
	vs     [][]float64
}

type tape struct {
	cols         [][]float64
	rounds       []roundTape
	outputCoeffs []float64
	residual     []float64
	relErr       float64
}

// NewRandom builds a network with fresh random weights for the configured
// round count, the comparison baseline for the greedy construction. Weight
// vectors that leave a round degenerate (for instance a dead rectifier
// across every sample) are redrawn from the seeded stream.
func NewRandom(cfg Config, inputs [][]float64, targets []float64, logger zerolog.Logger) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid refinement config: %w", err)
	}

	nw, err := newNetwork(cfg, inputs, targets, logger)
	if err != nil {
		return nil, err
	}

	design, err := axon.DesignMatrix(inputs)
	if err != nil {
		return nil, err
	}
	bm, rInv, err := basis.FromDesign(design)
	if err != nil {
		return nil, err
	}
	nw.setInitialBasis(bm, rInv)
	nw.layoutWeights()

	rng := rand.New(rand.NewSource(int64(cfg.Seed)))
	cols := nw.initCols
	for k := 1; k <= cfg.Rounds; k++ {
		w := nw.roundWeights(k)
		var grown []float64
		for attempt := 0; ; attempt++ {
			if attempt >= 100 {
				return nil, fmt.Errorf("round %d: no viable random init after %d draws", k, attempt)
			}
			scale := 1 / math.Sqrt(float64(len(w)))
			for j := range w {
				w[j] = scale * rng.NormFloat64()
			}
			_, col, err := applyRound(cols, w, nw.nl, cfg.Passes)
			if err == nil {
				grown = col
				break
			}
			if !basis.IsDegenerate(err) {
				return nil, err
			}
		}
		cols = append(cols[:len(cols):len(cols)], grown)
	}

	return nw, nil
}

// NewFromBundle builds a network initialized from an already-trained
// bundle for joint fine-tuning. Round count, pass count, and nonlinearity
// follow the bundle; the initial basis is the bundle's own R-inverse map
// applied to the given inputs.
func NewFromBundle(cfg Config, b *axon.Bundle, inputs [][]float64, targets []float64, logger zerolog.Logger) (*Network, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if len(b.Rounds) == 0 {
		return nil, fmt.Errorf("bundle has no rounds to fine-tune")
	}
	if len(inputs) > 0 && len(inputs[0]) != b.InputDim {
		return nil, fmt.Errorf("input dimension %d does not match trained dimension %d", len(inputs[0]), b.InputDim)
	}

	cfg.Rounds = len(b.Rounds)
	cfg.Nonlinearity = b.Nonlinearity
	cfg.RePUExponent = b.RePUExponent
	if n := len(b.Rounds[0].Orthogonalization.Coefficients); n > 0 {
		cfg.Passes = n
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid refinement config: %w", err)
	}

	nw, err := newNetwork(cfg, inputs, targets, logger)
	if err != nil {
		return nil, err
	}

	design, err := axon.DesignMatrix(inputs)
	if err != nil {
		return nil, err
	}

	rows := len(b.RInverse)
	rInv := mat.NewDense(rows, rows, nil)
	for i, row := range b.RInverse {
		if len(row) != rows {
			return nil, fmt.Errorf("ragged r_inverse row %d", i)
		}
		rInv.SetRow(i, row)
	}
	var init mat.Dense
	init.Mul(design, rInv)
	nw.setInitialBasis(basis.FromDense(&init), rInv)
	nw.layoutWeights()

	for k, round := range b.Rounds {
		w := nw.roundWeights(k + 1)
		if len(round.Weights) != len(w) {
			return nil, fmt.Errorf("round %d weight length %d, want %d", k+1, len(round.Weights), len(w))
		}
		copy(w, round.Weights)
	}
	nw.fineTuned = true

	return nw, nil
}

func newNetwork(cfg Config, inputs [][]float64, targets []float64, logger zerolog.Logger) (*Network, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no input samples")
	}
	if len(inputs) != len(targets) {
		return nil, fmt.Errorf("%d input samples but %d targets", len(inputs), len(targets))
	}

	targetNorm := floats.Norm(targets, 2)
	if targetNorm == 0 {
		return nil, fmt.Errorf("targets are identically zero")
	}

	nl, err := axon.NonlinearityByName(cfg.Nonlinearity, cfg.RePUExponent)
	if err != nil {
		return nil, err
	}

	y := make([]float64, len(targets))
	copy(y, targets)

	return &Network{
		cfg:        cfg,
		rows:       len(inputs),
		inputDim:   len(inputs[0]),
		targets:    y,
		targetNorm: targetNorm,
		nl:         nl,
		opt:        NewAdam(cfg.LearningRate),
		log:        logger,
	}, nil
}

func (nw *Network) setInitialBasis(bm *basis.Matrix, rInv *mat.Dense) {
	nw.m0 = bm.Columns()
	nw.initCols = make([][]float64, nw.m0)
	for j := 0; j < nw.m0; j++ {
		nw.initCols[j] = bm.Column(j)
	}

	r, c := rInv.Dims()
	nw.rInvRows = make([][]float64, r)
	for i := 0; i < r; i++ {
		nw.rInvRows[i] = make([]float64, c)
		mat.Row(nw.rInvRows[i], i, rInv)
	}
}

func (nw *Network) layoutWeights() {
	nw.offsets = make([]int, nw.cfg.Rounds)
	total := 0
	for k := 1; k <= nw.cfg.Rounds; k++ {
		nw.offsets[k-1] = total
		total += nw.m0 + k - 1
	}
	nw.flat = make([]float64, total)
	nw.opt.Extend(total)
}

// roundWeights returns the mutable weight slice of round k (1-based),
// backed by the flat parameter vector.
func (nw *Network) roundWeights(k int) []float64 {
	start := nw.offsets[k-1]
	return nw.flat[start : start+nw.m0+k-1]
}

// applyRound computes one round from explicit basis columns: project,
// activate, normalize, then the fixed re-orthogonalization passes,
// recording every intermediate the backward pass needs.
func applyRound(cols [][]float64, w []float64, nl axon.Nonlinearity, passes int) (roundTape, []float64, error) {
	rows := len(cols[0])

	z := make([]float64, rows)
	for j := range cols {
		floats.AddScaled(z, w[j], cols[j])
	}

	phi := make([]float64, rows)
	nl.Transform(phi, z)
	dphi := make([]float64, rows)
	nl.Derivative(dphi, z)

	v := phi
	n0 := floats.Norm(v, 2)
	if n0 < axon.DegeneracyTolerance {
		return roundTape{}, nil, &basis.DegenerateBasisError{Pass: 0, Norm: n0}
	}
	floats.Scale(1/n0, v)

	rt := roundTape{
		dphi:   dphi,
		norms:  make([]float64, 0, passes+1),
		coeffs: make([][]float64, 0, passes),
		vs:     make([][]float64, 0, passes+1),
	}
	rt.norms = append(rt.norms, n0)
	rt.vs = append(rt.vs, snapshot(v))

	for pass := 1; pass <= passes; pass++ {
		c := make([]float64, len(cols))
		for j := range cols {
			c[j] = floats.Dot(cols[j], v)
		}
		for j := range cols {
			floats.AddScaled(v, -c[j], cols[j])
		}

		n := floats.Norm(v, 2)
		if n < axon.DegeneracyTolerance {
			return roundTape{}, nil, &basis.DegenerateBasisError{Pass: pass, Norm: n}
		}
		floats.Scale(1/n, v)

		rt.coeffs = append(rt.coeffs, c)
		rt.norms = append(rt.norms, n)
		rt.vs = append(rt.vs, snapshot(v))
	}

	return rt, rt.vs[len(rt.vs)-1], nil
}

// forward rebuilds the whole basis from the current weights.
func (nw *Network) forward() (*tape, error) {
	cols := make([][]float64, 0, nw.m0+nw.cfg.Rounds)
	cols = append(cols, nw.initCols...)

	tp := &tape{rounds: make([]roundTape, 0, nw.cfg.Rounds)}
	for k := 1; k <= nw.cfg.Rounds; k++ {
		rt, col, err := applyRound(cols, nw.roundWeights(k), nw.nl, nw.cfg.Passes)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", k, err)
		}
		tp.rounds = append(tp.rounds, rt)
		cols = append(cols, col)
	}

	m := len(cols)
	a := make([]float64, m)
	for j := range cols {
		a[j] = floats.Dot(cols[j], nw.targets)
	}

	residual := make([]float64, nw.rows)
	for j := range cols {
		floats.AddScaled(residual, a[j], cols[j])
	}
	floats.Sub(residual, nw.targets) // prediction minus target

	tp.cols = cols
	tp.outputCoeffs = a
	tp.residual = residual
	tp.relErr = floats.Norm(residual, 2) / nw.targetNorm
	return tp, nil
}

// backward computes the gradient of the reconstruction loss with respect
// to every round weight by reverse accumulation through the dynamic
// orthogonalization. The basis feeds later rounds, so per-column gradients
// accumulate from the loss and from every round downstream of the column.
func (nw *Network) backward(tp *tape) []float64 {
	y := nw.targets
	scale := 2 / float64(nw.rows)

	m := len(tp.cols)
	gCols := make([][]float64, m)
	btr := make([]float64, m)
	for j := range tp.cols {
		btr[j] = floats.Dot(tp.cols[j], tp.residual)
	}
	for j := range gCols {
		g := make([]float64, nw.rows)
		for i := range g {
			g[i] = scale * (tp.outputCoeffs[j]*tp.residual[i] + btr[j]*y[i])
		}
		gCols[j] = g
	}

	grads := make([]float64, len(nw.flat))
	for k := nw.cfg.Rounds; k >= 1; k-- {
		rt := tp.rounds[k-1]
		width := nw.m0 + k - 1
		colsK := tp.cols[:width]
		gv := gCols[width]

		for pass := len(rt.coeffs); pass >= 1; pass-- {
			vp := rt.vs[pass]
			vprev := rt.vs[pass-1]
			np := rt.norms[pass]
			cp := rt.coeffs[pass-1]

			// Through v = h/‖h‖.
			d := floats.Dot(gv, vp)
			gh := make([]float64, nw.rows)
			for i := range gh {
				gh[i] = (gv[i] - d*vp[i]) / np
			}

			// Through h = v_prev − B·(Bᵀ·v_prev).
			bgh := make([]float64, width)
			for j := 0; j < width; j++ {
				bgh[j] = floats.Dot(colsK[j], gh)
			}
			for j := 0; j < width; j++ {
				floats.AddScaled(gCols[j], -cp[j], gh)
				floats.AddScaled(gCols[j], -bgh[j], vprev)
			}

			next := snapshot(gh)
			for j := 0; j < width; j++ {
				floats.AddScaled(next, -bgh[j], colsK[j])
			}
			gv = next
		}

		// Through the initial normalization and the activation.
		v0 := rt.vs[0]
		d := floats.Dot(gv, v0)
		gz := make([]float64, nw.rows)
		for i := range gz {
			gz[i] = rt.dphi[i] * (gv[i] - d*v0[i]) / rt.norms[0]
		}

		w := nw.roundWeights(k)
		gw := grads[nw.offsets[k-1] : nw.offsets[k-1]+width]
		for j := 0; j < width; j++ {
			gw[j] = floats.Dot(colsK[j], gz)
			floats.AddScaled(gCols[j], w[j], gz)
		}
	}

	return grads
}

// Fit trains all round weights jointly and returns the finalized bundle
// together with the relative error after every epoch.
func (nw *Network) Fit(ctx context.Context) (*axon.Bundle, []float64, error) {
	started := time.Now()
	nw.log.Info().
		Int("rounds", nw.cfg.Rounds).
		Int("epochs", nw.cfg.Epochs).
		Float64("learning_rate", nw.cfg.LearningRate).
		Bool("fine_tune", nw.fineTuned).
		Msg("starting gradient refinement")

	params := mat.NewVecDense(len(nw.flat), nw.flat)
	history := make([]float64, 0, nw.cfg.Epochs)

	for epoch := 1; epoch <= nw.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("refinement canceled at epoch %d: %w", epoch, err)
		}

		tp, err := nw.forward()
		if err != nil {
			return nil, nil, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		grads := nw.backward(tp)
		nw.opt.Update(params, params, mat.NewVecDense(len(grads), grads))

		history = append(history, tp.relErr)
		if nw.cfg.LogEvery > 0 && epoch%nw.cfg.LogEvery == 0 {
			nw.log.Debug().Int("epoch", epoch).Float64("err_rel", tp.relErr).Msg("refinement progress")
		}
	}

	bundle, err := nw.finalize()
	if err != nil {
		return nil, nil, err
	}

	nw.log.Info().
		Str("bundle_id", bundle.ID).
		Float64("final_err_rel", bundle.FinalError()).
		Dur("elapsed", time.Since(started)).
		Msg("gradient refinement finished")
	return bundle, history, nil
}

// finalize freezes the last forward pass into an immutable bundle that
// satisfies the shared prediction contract.
func (nw *Network) finalize() (*axon.Bundle, error) {
	tp, err := nw.forward()
	if err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}

	rounds := make([]axon.RoundRecord, nw.cfg.Rounds)
	for k := 1; k <= nw.cfg.Rounds; k++ {
		rt := tp.rounds[k-1]

		coeffs := make([][]float64, len(rt.coeffs))
		for i, c := range rt.coeffs {
			coeffs[i] = snapshot(c)
		}

		rounds[k-1] = axon.RoundRecord{
			Weights: snapshot(nw.roundWeights(k)),
			Orthogonalization: basis.Step{
				Coefficients: coeffs,
				Norms:        snapshot(rt.norms),
			},
			RelativeError: nw.prefixError(tp.cols[:nw.m0+k]),
		}
	}

	b := &axon.Bundle{
		ID:                 uuid.NewString(),
		InputDim:           nw.inputDim,
		Nonlinearity:       nw.nl.Name(),
		RInverse:           nw.rInvRows,
		Rounds:             rounds,
		OutputCoefficients: snapshot(tp.outputCoeffs),
		TrainedBy:          axon.TrainedByGradient,
		CreatedAt:          time.Now().UTC(),
	}
	if repu, ok := nw.nl.(axon.RePU); ok {
		b.RePUExponent = repu.Exponent
	}
	return b, nil
}

// prefixError is the relative residual of the targets against the first
// columns only, the error the model had after that round.
func (nw *Network) prefixError(cols [][]float64) float64 {
	residual := make([]float64, nw.rows)
	copy(residual, nw.targets)
	for j := range cols {
		floats.AddScaled(residual, -floats.Dot(cols[j], nw.targets), cols[j])
	}
	return floats.Norm(residual, 2) / nw.targetNorm
}

func snapshot(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
