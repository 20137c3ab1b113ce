package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "axonfit"
	version = "v1.2.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     "axonfit",
		Short:   "Greedy orthogonal-basis function approximation",
		Version: version,
		Long: `axonfit approximates functions by growing an orthonormal basis of
nonlinear features one at a time: each round a derivative-free search picks
the feature that best explains the current residual, the feature is
orthogonalized into the basis, and the recorded coefficients replay the
exact transformation at prediction time. An optional gradient stage
fine-tunes all round weights jointly.

Run 'axonfit' in a terminal for the interactive menu, or use the
subcommands for scripted runs.`,
		Run: runDefaultEntry,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to YAML config (defaults apply when omitted)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	trainCmd := &cobra.Command{
		Use:   "train <function>",
		Short: "Train one greedy model and cache its bundle",
		Long: `Trains a single model on the named target function (quadratic,
square-root, exponential-decay, sine, two-dimensional-norm,
boundary-value-ode-solution, or the short aliases x2, sqrt, exp, sin, 2d,
diff) and caches the trained bundle for prediction.`,
		Args: cobra.ExactArgs(1),
		RunE: runTrain,
	}
	addRunFlags(trainCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep <function>",
		Short: "Run an error sweep and persist the curve",
		Long: `Collects the relative error per basis count for the named target and
persists it under storage.dir as error_<function>.json. The greedy trainer
reads the curve off a single run; the gradient trainer retrains an
independent randomly initialized model per basis count.`,
		Args: cobra.ExactArgs(1),
		RunE: runSweep,
	}
	addRunFlags(sweepCmd)
	sweepCmd.Flags().Var(newTrainerFlag(), "trainer", "Sweep trainer: greedy or gradient")

	refineCmd := &cobra.Command{
		Use:   "refine <function>",
		Short: "Fine-tune a greedy model by gradient descent",
		Long: `Trains a greedy model, re-expresses it as a differentiable network,
and fine-tunes every round weight jointly with Adam, reporting both errors.`,
		Args: cobra.ExactArgs(1),
		RunE: runRefine,
	}
	addRunFlags(refineCmd)
	refineCmd.Flags().Int("epochs", 0, "Gradient epochs (0 uses config)")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the acceptance scenarios",
		Long:  "Fits the reference sine and 2D distance targets and checks the convergence properties hold",
		RunE:  runValidate,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the monitor HTTP server",
		Long:  "Serves health, Prometheus metrics, persisted sweep results, cached bundles, prediction, and a websocket progress feed",
		RunE:  runServe,
	}
	serveCmd.Flags().String("host", "", "Bind address (overrides config)")
	serveCmd.Flags().Int("port", 0, "Listen port (overrides config)")

	menuCmd := &cobra.Command{
		Use:   "menu",
		Short: "Interactive menu interface",
		Long:  "Start the interactive menu for picking targets and running sweeps",
		Run:   runMenu,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", appName, version)
		},
	}

	rootCmd.AddCommand(menuCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(refineCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// addRunFlags attaches the flags shared by the training commands.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Int("basis", 0, "Basis functions to add (0 uses config)")
	cmd.Flags().Float64("eps", 0, "Epsilon for the boundary value target (required for it)")
	cmd.Flags().Uint64("seed", 0, "Search seed (0 uses config)")
	cmd.Flags().Bool("monitor", false, "Serve the monitor API for the duration of the run")
	cmd.Flags().Bool("progress", true, "Show the progress indicator")
}

// runDefaultEntry routes a bare invocation to the menu on a TTY.
func runDefaultEntry(cmd *cobra.Command, args []string) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintf(os.Stderr, "Interactive menu requires a TTY terminal.\n")
		fmt.Fprintf(os.Stderr, "Use subcommands for non-interactive automation:\n\n")
		fmt.Fprintf(os.Stderr, "  axonfit sweep sine --basis 10\n")
		fmt.Fprintf(os.Stderr, "  axonfit sweep diff --eps 0.05 --trainer gradient\n")
		fmt.Fprintf(os.Stderr, "  axonfit --help\n")
		os.Exit(2)
	}
	runMenu(cmd, args)
}

// runMenu starts the interactive menu interface.
func runMenu(cmd *cobra.Command, args []string) {
	ui, err := NewMenuUI(cmd)
	if err != nil {
		log.Error().Err(err).Msg("menu startup failed")
		os.Exit(1)
	}
	defer ui.Close()
	if err := ui.Run(); err != nil {
		log.Error().Err(err).Msg("menu interface failed")
		os.Exit(1)
	}
}
