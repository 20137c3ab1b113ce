package application

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axonlabs/axonfit/internal/data"
	"github.com/axonlabs/axonfit/internal/domain/axon"
	"github.com/axonlabs/axonfit/internal/domain/functions"
	"github.com/axonlabs/axonfit/internal/tune/opt"
)

// testRunnerConfig keeps budgets small enough for fast deterministic runs.
func testRunnerConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Data.Samples = 64
	cfg.Train.BasisCount = 3
	cfg.Train.Budget = 150
	cfg.Train.Seed = 17
	cfg.Search.Options.Seed = 17
	cfg.Refine.Epochs = 25
	cfg.Refine.LogEvery = 0
	cfg.Storage.Dir = t.TempDir()
	return cfg
}

func newTestRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	t.Setenv("REDIS_ADDR", "")
	r, err := NewRunner(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestNewRunner_ValidatesConfig(t *testing.T) {
	cfg := testRunnerConfig(t)
	cfg.Train.BasisCount = 0

	_, err := NewRunner(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "train:")
}

func TestRunner_TrainGreedyCachesBundle(t *testing.T) {
	r := newTestRunner(t, testRunnerConfig(t))

	bundle, err := r.TrainGreedy(context.Background(), "x2", 0)
	require.NoError(t, err)
	require.False(t, bundle.StoppedEarly)

	assert.Equal(t, functions.Quadratic, bundle.Function)
	assert.Equal(t, axon.TrainedByGreedy, bundle.TrainedBy)
	assert.Len(t, bundle.Rounds, 3)

	cached, ok := r.Bundles().Get(bundle.ID)
	require.True(t, ok, "the trained bundle is retrievable by ID")
	assert.Equal(t, functions.Quadratic, cached.Function)
	assert.Equal(t, bundle.OutputCoefficients, cached.OutputCoefficients)
}

func TestRunner_SweepGreedyPersistsCurve(t *testing.T) {
	r := newTestRunner(t, testRunnerConfig(t))
	ctx := context.Background()

	outcome, err := r.SweepGreedy(ctx, "sine", 0)
	require.NoError(t, err)

	assert.Equal(t, axon.TrainedByGreedy, outcome.Trainer)
	assert.Equal(t, functions.Sine, outcome.Function)
	assert.Nil(t, outcome.Epsilon)
	require.Len(t, outcome.Errors, 3)

	file, err := r.Files().LoadSweep(ctx, functions.Sine)
	require.NoError(t, err)
	assert.Equal(t, outcome.Errors, file.Plain, "the persisted curve is the per-round error sequence")
}

func TestRunner_SweepODEKeysByEpsilon(t *testing.T) {
	r := newTestRunner(t, testRunnerConfig(t))
	ctx := context.Background()

	first, err := r.SweepGreedy(ctx, "diff", 0.1)
	require.NoError(t, err)
	require.NotNil(t, first.Epsilon)
	assert.Equal(t, 0.1, *first.Epsilon)

	second, err := r.SweepGreedy(ctx, "diff", 0.5)
	require.NoError(t, err)

	file, err := r.Files().LoadSweep(ctx, functions.BoundaryValueODE)
	require.NoError(t, err)
	assert.Nil(t, file.Plain)
	assert.Equal(t, first.Errors, file.Keyed["0.1"])
	assert.Equal(t, second.Errors, file.Keyed["0.5"], "each epsilon keeps its own curve")
}

func TestRunner_EmitsRoundEvents(t *testing.T) {
	r := newTestRunner(t, testRunnerConfig(t))

	var events []RoundEvent
	r.OnRound(func(ev RoundEvent) { events = append(events, ev) })

	bundle, err := r.TrainGreedy(context.Background(), "x2", 0)
	require.NoError(t, err)
	require.False(t, bundle.StoppedEarly)

	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Round)
		assert.Equal(t, 3, ev.Total)
		assert.Equal(t, axon.TrainedByGreedy, ev.Trainer)
		assert.Equal(t, functions.Quadratic, ev.Function)
		assert.Equal(t, events[0].RunID, ev.RunID, "one run, one ID")
		assert.NotEmpty(t, ev.RunID)
		assert.Positive(t, ev.Evaluations)
		assert.Positive(t, ev.RelativeError)
	}
}

func TestRunner_RefineProducesBothBundles(t *testing.T) {
	r := newTestRunner(t, testRunnerConfig(t))

	out, err := r.Refine(context.Background(), "x2", 0)
	require.NoError(t, err)

	assert.Equal(t, axon.TrainedByGreedy, out.Greedy.TrainedBy)
	assert.Equal(t, axon.TrainedByGradient, out.Refined.TrainedBy)
	assert.Equal(t, functions.Quadratic, out.Refined.Function)
	assert.Len(t, out.History, 25)
	assert.Len(t, out.Refined.Rounds, len(out.Greedy.Rounds))

	_, ok := r.Bundles().Get(out.Greedy.ID)
	assert.True(t, ok, "the greedy bundle stays cached")
	_, ok = r.Bundles().Get(out.Refined.ID)
	assert.True(t, ok, "the refined bundle is cached")
}

func TestRunner_SweepRefine(t *testing.T) {
	cfg := testRunnerConfig(t)
	cfg.Train.BasisCount = 2
	cfg.Refine.Epochs = 15
	r := newTestRunner(t, cfg)
	ctx := context.Background()

	var events []RoundEvent
	r.OnRound(func(ev RoundEvent) { events = append(events, ev) })

	outcome, err := r.SweepRefine(ctx, "x2", 0)
	require.NoError(t, err)

	assert.Equal(t, axon.TrainedByGradient, outcome.Trainer)
	require.Len(t, outcome.Errors, 2)
	for k, e := range outcome.Errors {
		// The learned basis always contains the affine columns, so no
		// model can do worse than the affine fit of x².
		assert.Positive(t, e, "basis count %d", k+1)
		assert.Less(t, e, 0.18, "basis count %d", k+1)
	}

	require.Len(t, events, 2)
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Round)
		assert.Equal(t, 2, ev.Total)
		assert.Equal(t, axon.TrainedByGradient, ev.Trainer)
		assert.Equal(t, 15, ev.Evaluations, "refinement reports epochs as evaluations")
	}

	file, err := r.Files().LoadSweep(ctx, functions.Quadratic)
	require.NoError(t, err)
	assert.Equal(t, outcome.Errors, file.Plain)
}

func TestRunner_UnknownFunction(t *testing.T) {
	r := newTestRunner(t, testRunnerConfig(t))
	ctx := context.Background()

	_, err := r.TrainGreedy(ctx, "waves", 0)
	assert.True(t, functions.IsUnsupported(err))

	_, err = r.SweepGreedy(ctx, "waves", 0)
	assert.True(t, functions.IsUnsupported(err))

	_, err = r.Refine(ctx, "waves", 0)
	assert.True(t, functions.IsUnsupported(err))
}

func TestRunner_CanceledContext(t *testing.T) {
	r := newTestRunner(t, testRunnerConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.TrainGreedy(ctx, "x2", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "canceled")
}

func TestRunner_ValidateAcceptance(t *testing.T) {
	if testing.Short() {
		t.Skip("acceptance scenarios train full-size models")
	}

	cfg := testRunnerConfig(t)
	cfg.Data = data.DefaultConfig()
	cfg.Train = axon.DefaultTrainConfig()
	cfg.Train.Seed = 9
	cfg.Search.Options = opt.DefaultConfig()
	cfg.Search.Options.Seed = 9
	cfg.Search.Options.Restarts = 3
	r := newTestRunner(t, cfg)

	report, err := r.Validate(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Scenarios, 2)
	sine, norm2d := report.Scenarios[0], report.Scenarios[1]

	assert.Equal(t, "sine-1d", sine.Name)
	assert.True(t, sine.Passed, "sine scenario failed: %s", sine.Reason)
	assert.Len(t, sine.Errors, 10)

	assert.Equal(t, "two-dimensional-norm", norm2d.Name)
	assert.True(t, norm2d.Passed, "2d scenario failed: %s", norm2d.Reason)

	assert.True(t, report.Passed)
}
