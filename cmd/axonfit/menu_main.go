package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/axonlabs/axonfit/internal/application"
	"github.com/axonlabs/axonfit/internal/domain/axon"
	"github.com/axonlabs/axonfit/internal/domain/functions"
	"github.com/axonlabs/axonfit/internal/persistence"
)

// MenuUI provides the interactive interface for axonfit
type MenuUI struct {
	configPath string
	verbose    bool
	cfg        application.Config
	runner     *application.Runner
}

// NewMenuUI loads configuration and opens the stores the menu browses.
func NewMenuUI(cmd *cobra.Command) (*MenuUI, error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return nil, err
	}
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	runner, err := application.NewRunner(context.Background(), cfg, zlog.Logger)
	if err != nil {
		return nil, err
	}
	return &MenuUI{configPath: configPath, verbose: verbose, cfg: cfg, runner: runner}, nil
}

// Close releases the menu's stores.
func (ui *MenuUI) Close() {
	if err := ui.runner.Close(); err != nil {
		zlog.Warn().Err(err).Msg("menu runner close failed")
	}
}

// Run starts the interactive menu system
func (ui *MenuUI) Run() error {
	zlog.Info().Msg("Starting axonfit interactive menu")

	ui.clearScreen()
	ui.showBanner()

	for {
		choice, err := ui.showMainMenu()
		if err != nil {
			return fmt.Errorf("menu error: %w", err)
		}

		if err := ui.handleMenuChoice(choice); err != nil {
			if err.Error() == "exit" {
				break
			}
			zlog.Error().Err(err).Msg("Menu action failed")
			ui.waitForEnter()
		}
	}

	zlog.Info().Msg("axonfit menu session ended")
	return nil
}

// showBanner displays the interface banner
func (ui *MenuUI) showBanner() {
	fmt.Printf(`
 ╔═══════════════════════════════════════════════════════════╗
 ║                    🌱 axonfit %s                       ║
 ║         Greedy Orthogonal Basis Function Fitting          ║
 ║                                                           ║
 ║    Grow a basis one nonlinear feature at a time and       ║
 ║    watch the approximation error fall                     ║
 ╚═══════════════════════════════════════════════════════════╝

`, version)
}

// showMainMenu displays the main menu and gets user choice
func (ui *MenuUI) showMainMenu() (string, error) {
	fmt.Printf(`
╔══════════════ MAIN MENU ══════════════╗

 1. 🚀 Train - Greedy Basis Growth
 2. 📈 Sweep - Error vs Basis Count
 3. 🔬 Refine - Gradient Fine-Tuning
 4. ✅ Validate - Acceptance Scenarios
 5. 📜 Results - Browse Saved Sweeps
 6. 📡 Monitor - HTTP Endpoints
 0. 🚪 Exit

╚═══════════════════════════════════════╝

Enter your choice (0-6): `)

	var choice string
	if _, err := fmt.Scanln(&choice); err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	return choice, nil
}

// handleMenuChoice routes menu selections to the same functions the CLI uses
func (ui *MenuUI) handleMenuChoice(choice string) error {
	switch choice {
	case "1":
		return ui.handleTrain()
	case "2":
		return ui.handleSweep()
	case "3":
		return ui.handleRefine()
	case "4":
		return ui.handleValidate()
	case "5":
		return ui.handleResults()
	case "6":
		return ui.handleMonitor()
	case "0":
		return fmt.Errorf("exit")
	default:
		fmt.Printf("❌ Invalid choice: %s\n", choice)
		return nil
	}
}

// newMenuCommand builds a cobra command carrying the same flags as the
// CLI so menu actions reuse the exact run functions, no duplicated logic.
func (ui *MenuUI) newMenuCommand(eps float64) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "Config file path")
	cmd.Flags().BoolP("verbose", "v", false, "Verbose logging")
	cmd.Flags().Int("basis", 0, "Number of basis functions")
	cmd.Flags().Float64("eps", 0, "Boundary layer epsilon")
	cmd.Flags().Uint64("seed", 0, "Weight search seed")
	cmd.Flags().Bool("monitor", false, "Attach the live monitor")
	cmd.Flags().Bool("progress", true, "Show progress output")
	cmd.Flags().Var(newTrainerFlag(), "trainer", "Sweep trainer")
	cmd.Flags().Int("epochs", 0, "Refinement epochs")
	cmd.Flags().String("host", "", "Monitor bind host")
	cmd.Flags().Int("port", 0, "Monitor port")

	if ui.configPath != "" {
		_ = cmd.Flags().Set("config", ui.configPath)
	}
	if ui.verbose {
		_ = cmd.Flags().Set("verbose", "true")
	}
	if eps > 0 {
		_ = cmd.Flags().Set("eps", strconv.FormatFloat(eps, 'g', -1, 64))
	}
	return cmd
}

// pickFunction lists the registered targets and reads a numbered choice.
func (ui *MenuUI) pickFunction() (string, float64, error) {
	names := functions.Names()
	fmt.Println("\nAvailable target functions:")
	for i, name := range names {
		fmt.Printf("  %d. %s\n", i+1, name)
	}

	choice := ui.getInput("\nSelect function: ")
	idx, err := strconv.Atoi(choice)
	if err != nil || idx < 1 || idx > len(names) {
		return "", 0, fmt.Errorf("invalid function choice: %s", choice)
	}
	name := names[idx-1]

	var eps float64
	if name == functions.BoundaryValueODE {
		raw := ui.getInput("Boundary layer epsilon (e.g. 0.01): ")
		eps, err = strconv.ParseFloat(raw, 64)
		if err != nil || eps <= 0 {
			return "", 0, fmt.Errorf("invalid epsilon: %s", raw)
		}
	}
	return name, eps, nil
}

func (ui *MenuUI) askMonitor(cmd *cobra.Command) {
	choice := ui.getInput("Attach live monitor for this run? (y/N): ")
	if strings.EqualFold(choice, "y") {
		_ = cmd.Flags().Set("monitor", "true")
	}
}

func (ui *MenuUI) handleTrain() error {
	name, eps, err := ui.pickFunction()
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		ui.waitForEnter()
		return nil
	}

	cmd := ui.newMenuCommand(eps)
	ui.askMonitor(cmd)

	fmt.Printf("\n🚀 Growing %d basis functions for %s...\n\n", ui.cfg.Train.BasisCount, name)
	if err := runTrain(cmd, []string{name}); err != nil {
		fmt.Printf("❌ Training failed: %v\n", err)
	}
	ui.waitForEnter()
	return nil
}

func (ui *MenuUI) handleSweep() error {
	name, eps, err := ui.pickFunction()
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		ui.waitForEnter()
		return nil
	}

	fmt.Printf(`
╔═════════════ SWEEP TRAINER ═════════════╗

 1. 🧱 Greedy growth (one nested run)
 2. 🎲 Gradient baseline (fresh model per count)

╚═════════════════════════════════════════╝

`)
	trainerChoice := ui.getInput("Enter choice: ")

	cmd := ui.newMenuCommand(eps)
	if trainerChoice == "2" {
		_ = cmd.Flags().Set("trainer", axon.TrainedByGradient)
	}
	ui.askMonitor(cmd)

	fmt.Printf("\n📈 Sweeping error over 1..%d basis functions for %s...\n\n", ui.cfg.Train.BasisCount, name)
	if err := runSweep(cmd, []string{name}); err != nil {
		fmt.Printf("❌ Sweep failed: %v\n", err)
	}
	ui.waitForEnter()
	return nil
}

func (ui *MenuUI) handleRefine() error {
	name, eps, err := ui.pickFunction()
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		ui.waitForEnter()
		return nil
	}

	cmd := ui.newMenuCommand(eps)
	ui.askMonitor(cmd)

	fmt.Printf("\n🔬 Refining %s with %d gradient epochs after greedy growth...\n\n", name, ui.cfg.Refine.Epochs)
	if err := runRefine(cmd, []string{name}); err != nil {
		fmt.Printf("❌ Refinement failed: %v\n", err)
	}
	ui.waitForEnter()
	return nil
}

func (ui *MenuUI) handleValidate() error {
	fmt.Println("\n✅ Running acceptance scenarios...")

	report, err := ui.runner.Validate(context.Background())
	if err != nil {
		fmt.Printf("❌ Validation run failed: %v\n", err)
		ui.waitForEnter()
		return nil
	}

	printValidationReport(report)
	ui.waitForEnter()
	return nil
}

func (ui *MenuUI) handleResults() error {
	ctx := context.Background()
	saved, err := ui.runner.Files().ListFunctions(ctx)
	if err != nil {
		fmt.Printf("❌ Could not list results: %v\n", err)
		ui.waitForEnter()
		return nil
	}
	if len(saved) == 0 {
		fmt.Println("📭 No sweep results yet. Run a sweep first.")
		ui.waitForEnter()
		return nil
	}

	fmt.Println("\nSaved sweeps:")
	for i, name := range saved {
		fmt.Printf("  %d. %s\n", i+1, name)
	}

	choice := ui.getInput("\nSelect function (0 to cancel): ")
	idx, err := strconv.Atoi(choice)
	if err != nil || idx < 0 || idx > len(saved) {
		fmt.Printf("❌ Invalid choice: %s\n", choice)
		ui.waitForEnter()
		return nil
	}
	if idx == 0 {
		return nil
	}

	name := saved[idx-1]
	sweep, err := ui.runner.Files().LoadSweep(ctx, name)
	if err != nil {
		fmt.Printf("❌ Could not load sweep for %s: %v\n", name, err)
		ui.waitForEnter()
		return nil
	}

	ui.showSweep(name, sweep)
	ui.waitForEnter()
	return nil
}

// showSweep renders one stored error curve, keyed by epsilon when present.
func (ui *MenuUI) showSweep(name string, sweep persistence.SweepFile) {
	ui.clearScreen()
	fmt.Printf("📜 Error sweep for %s\n", name)
	fmt.Println(strings.Repeat("=", 50))

	if len(sweep.Keyed) > 0 {
		keys := make([]string, 0, len(sweep.Keyed))
		for k := range sweep.Keyed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("\nε = %s:\n", k)
			ui.showErrorCurve(sweep.Keyed[k])
		}
		return
	}
	fmt.Println()
	ui.showErrorCurve(sweep.Plain)
}

func (ui *MenuUI) showErrorCurve(errors []float64) {
	if len(errors) == 0 {
		fmt.Println("   (empty)")
		return
	}
	fmt.Println("   basis │ relative error")
	fmt.Println("   ──────┼───────────────")
	for i, e := range errors {
		fmt.Printf("   %5d │ %.6g\n", i+1, e)
	}
	fmt.Printf("\n   final error after %d basis functions: %.6g\n", len(errors), errors[len(errors)-1])
}

func (ui *MenuUI) handleMonitor() error {
	fmt.Printf(`
╔════════════ MONITOR SERVER ════════════╗

Read-only HTTP endpoints over training state:
• /health, /metrics (Prometheus format)
• /api/v1/functions, /api/v1/results/{function}
• /api/v1/bundles/{id}, POST /api/v1/predict
• /ws/progress (live round-by-round updates)

Default bind: http://%s:%d

╚════════════════════════════════════════╝

`, ui.cfg.Monitor.Server.Host, ui.cfg.Monitor.Server.Port)

	choice := ui.getInput("Start monitor now? Blocks until Ctrl+C (y/N): ")
	if !strings.EqualFold(choice, "y") {
		return nil
	}

	if err := runServe(ui.newMenuCommand(0), nil); err != nil {
		fmt.Printf("❌ Monitor failed: %v\n", err)
	}
	ui.waitForEnter()
	return nil
}

func (ui *MenuUI) getInput(prompt string) string {
	fmt.Print(prompt)
	var input string
	fmt.Scanln(&input)
	return input
}

func (ui *MenuUI) clearScreen() {
	fmt.Print("\033[2J\033[H")
}

func (ui *MenuUI) waitForEnter() {
	fmt.Printf("\nPress Enter to continue...")
	fmt.Scanln()
}
