package main

import (
	"fmt"
	"os"
	"time"

	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/axonlabs/axonfit/internal/application"
)

// runValidate executes the acceptance scenarios and prints a compact
// pass/fail wall. Exits non-zero when any scenario fails.
func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := runContext()
	defer cancel()

	runner, err := application.NewRunner(ctx, cfg, zlog.Logger)
	if err != nil {
		return err
	}
	defer runner.Close()

	fmt.Println("Running acceptance scenarios...")
	report, err := runner.Validate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "validation run failed: %v\n", err)
		return err
	}

	printValidationReport(report)

	if !report.Passed {
		os.Exit(1)
	}
	return nil
}

// printValidationReport renders the scenario wall shared by the CLI
// command and the interactive menu.
func printValidationReport(report *application.ValidationReport) {
	fmt.Println()
	for _, sc := range report.Scenarios {
		mark := "✅"
		if !sc.Passed {
			mark = "❌"
		}
		fmt.Printf("%s %-24s final error %.4g over %d rounds (%s)\n",
			mark, sc.Name, sc.FinalError, len(sc.Errors), sc.Elapsed.Round(time.Millisecond))
		if sc.ValidationError > 0 {
			fmt.Printf("   held-out error %.4g\n", sc.ValidationError)
		}
		if !sc.Passed {
			fmt.Printf("   reason: %s\n", sc.Reason)
		}
	}
	fmt.Println()

	if report.Passed {
		fmt.Println("✅ all scenarios passed")
	} else {
		fmt.Println("❌ validation FAILED")
	}
}
