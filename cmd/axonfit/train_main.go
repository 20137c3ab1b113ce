package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/axonlabs/axonfit/internal/application"
	"github.com/axonlabs/axonfit/internal/domain/axon"
	"github.com/axonlabs/axonfit/internal/domain/functions"
	progress "github.com/axonlabs/axonfit/internal/log"
)

// enumValue is a pflag.Value restricted to a fixed set of strings.
type enumValue struct {
	value   string
	allowed []string
}

var _ pflag.Value = (*enumValue)(nil)

func newTrainerFlag() *enumValue {
	return &enumValue{
		value:   axon.TrainedByGreedy,
		allowed: []string{axon.TrainedByGreedy, axon.TrainedByGradient},
	}
}

func (e *enumValue) String() string { return e.value }
func (e *enumValue) Type() string   { return "string" }

func (e *enumValue) Set(v string) error {
	for _, a := range e.allowed {
		if v == a {
			e.value = v
			return nil
		}
	}
	return fmt.Errorf("must be one of: %s", strings.Join(e.allowed, ", "))
}

// buildConfig loads the YAML config when given and applies CLI overrides.
func buildConfig(cmd *cobra.Command) (application.Config, error) {
	cfg := application.DefaultConfig()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := application.LoadConfig(path)
		if err != nil {
			return cfg, err
		}
		cfg = *loaded
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if cmd.Flags().Lookup("basis") != nil {
		if basis, _ := cmd.Flags().GetInt("basis"); basis > 0 {
			cfg.Train.BasisCount = basis
		}
	}
	if cmd.Flags().Lookup("seed") != nil {
		if seed, _ := cmd.Flags().GetUint64("seed"); seed != 0 {
			cfg.Train.Seed = seed
		}
	}
	if cmd.Flags().Lookup("epochs") != nil {
		if epochs, _ := cmd.Flags().GetInt("epochs"); epochs > 0 {
			cfg.Refine.Epochs = epochs
		}
	}
	return cfg, nil
}

// runContext cancels on SIGINT/SIGTERM so long sweeps stop cleanly.
func runContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// functionArg validates the positional target name up front.
func functionArg(args []string) (string, error) {
	name, err := functions.Canonical(args[0])
	if err != nil {
		return "", err
	}
	return name, nil
}

// runSetup builds the runner plus the optional monitor session and
// progress indicator shared by the training commands.
type runSetup struct {
	cfg      application.Config
	runner   *application.Runner
	session  *monitorSession
	progress *progress.ProgressIndicator
	rounds   []func(application.RoundEvent)
}

func newRunSetup(ctx context.Context, cmd *cobra.Command) (*runSetup, error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return nil, err
	}

	runner, err := application.NewRunner(ctx, cfg, zlog.Logger)
	if err != nil {
		return nil, err
	}

	s := &runSetup{cfg: cfg, runner: runner}
	runner.OnRound(func(ev application.RoundEvent) {
		for _, cb := range s.rounds {
			cb(ev)
		}
	})

	if wantMonitor, _ := cmd.Flags().GetBool("monitor"); wantMonitor {
		session, err := startMonitorSession(cfg, runner)
		if err != nil {
			runner.Close()
			return nil, err
		}
		session.metrics.TrainingStarted()
		s.session = session
		s.rounds = append(s.rounds, session.handleRound)
	}
	return s, nil
}

// noteDegenerate records a degenerate-direction stop when a monitor is up.
func (s *runSetup) noteDegenerate(function string) {
	if s.session != nil {
		s.session.metrics.RecordDegenerate(function)
	}
}

// attachProgress adds a terminal progress bar over total units.
func (s *runSetup) attachProgress(cmd *cobra.Command, name string, total int) {
	if show, _ := cmd.Flags().GetBool("progress"); !show {
		return
	}
	pcfg := progress.DefaultProgressConfig()
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		pcfg = progress.QuietProgressConfig()
	}
	s.progress = progress.NewProgressIndicator(name, total, pcfg)
	s.rounds = append(s.rounds, func(ev application.RoundEvent) {
		s.progress.Update(ev.Round, fmt.Sprintf("err %.4g", ev.RelativeError))
	})
}

func (s *runSetup) close() {
	if s.session != nil {
		s.session.metrics.TrainingFinished()
		s.session.shutdown()
	}
	if err := s.runner.Close(); err != nil {
		zlog.Warn().Err(err).Msg("runner close failed")
	}
}

func runTrain(cmd *cobra.Command, args []string) error {
	name, err := functionArg(args)
	if err != nil {
		return err
	}
	eps, _ := cmd.Flags().GetFloat64("eps")

	ctx, cancel := runContext()
	defer cancel()

	setup, err := newRunSetup(ctx, cmd)
	if err != nil {
		return err
	}
	defer setup.close()
	setup.attachProgress(cmd, "train "+name, setup.cfg.Train.BasisCount)

	bundle, err := setup.runner.TrainGreedy(ctx, name, eps)
	if err != nil {
		if setup.progress != nil {
			setup.progress.Fail(err.Error())
		}
		return err
	}
	if setup.progress != nil {
		setup.progress.Finish(fmt.Sprintf("final error %.4g", bundle.FinalError()))
	}

	fmt.Printf("✅ Trained %s: %d basis functions, final error %.4g\n", name, len(bundle.Rounds), bundle.FinalError())
	fmt.Printf("   bundle %s cached for prediction\n", bundle.ID)
	if bundle.StoppedEarly {
		setup.noteDegenerate(name)
		fmt.Printf("⚠️  basis growth stopped early on a degenerate direction\n")
	}
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	name, err := functionArg(args)
	if err != nil {
		return err
	}
	eps, _ := cmd.Flags().GetFloat64("eps")
	trainer, _ := cmd.Flags().GetString("trainer")

	ctx, cancel := runContext()
	defer cancel()

	setup, err := newRunSetup(ctx, cmd)
	if err != nil {
		return err
	}
	defer setup.close()
	setup.attachProgress(cmd, "sweep "+name, setup.cfg.Train.BasisCount)

	var outcome *application.SweepOutcome
	switch trainer {
	case axon.TrainedByGradient:
		outcome, err = setup.runner.SweepRefine(ctx, name, eps)
	default:
		outcome, err = setup.runner.SweepGreedy(ctx, name, eps)
	}
	if err != nil {
		if setup.progress != nil {
			setup.progress.Fail(err.Error())
		}
		return err
	}
	if setup.progress != nil {
		setup.progress.Finish(fmt.Sprintf("final error %.4g", outcome.Errors[len(outcome.Errors)-1]))
	}

	if len(outcome.Errors) < setup.cfg.Train.BasisCount {
		setup.noteDegenerate(name)
	}

	fmt.Printf("✅ Sweep %s (%s): %d basis counts in %s\n",
		outcome.Function, outcome.Trainer, len(outcome.Errors), outcome.Elapsed.Round(time.Millisecond))
	if outcome.Epsilon != nil {
		fmt.Printf("   epsilon %g merged into error_%s.json\n", *outcome.Epsilon, outcome.Function)
	} else {
		fmt.Printf("   wrote error_%s.json\n", outcome.Function)
	}
	return nil
}

func runRefine(cmd *cobra.Command, args []string) error {
	name, err := functionArg(args)
	if err != nil {
		return err
	}
	eps, _ := cmd.Flags().GetFloat64("eps")

	ctx, cancel := runContext()
	defer cancel()

	setup, err := newRunSetup(ctx, cmd)
	if err != nil {
		return err
	}
	defer setup.close()
	setup.attachProgress(cmd, "refine "+name, setup.cfg.Train.BasisCount)

	outcome, err := setup.runner.Refine(ctx, name, eps)
	if err != nil {
		if setup.progress != nil {
			setup.progress.Fail(err.Error())
		}
		return err
	}
	if setup.progress != nil {
		setup.progress.Finish(fmt.Sprintf("refined error %.4g", outcome.Refined.FinalError()))
	}

	greedyErr := outcome.Greedy.FinalError()
	refinedErr := outcome.Refined.FinalError()
	fmt.Printf("✅ Refined %s: greedy %.4g → gradient %.4g over %d epochs\n",
		name, greedyErr, refinedErr, setup.cfg.Refine.Epochs)
	fmt.Printf("   bundles %s (greedy) and %s (refined) cached\n", outcome.Greedy.ID, outcome.Refined.ID)
	return nil
}
