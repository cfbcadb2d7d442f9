package cmd

import (
	"fmt"
	"io"

	"converge/internal/scenario"

	"github.com/spf13/cobra"
)

var (
	validateVerbose bool
	validateWatch   bool
)

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate scenario files without touching the cluster",
	Long: `Parses and validates scenario files. The path defaults to the scenarios
directory from the configuration.

With --watch the files are validated again whenever a scenario file changes,
until interrupted.`,
	Args:              cobra.MaximumNArgs(1),
	RunE:              runValidate,
	ValidArgsFunction: completeScenarioPath,
}

func runValidate(cmd *cobra.Command, args []string) error {
	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = scenarioPath("", cfg)
	}

	out := cmd.OutOrStdout()
	err := validatePath(out, path, validateVerbose)
	if !validateWatch {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()
	fmt.Fprintf(out, "👀 Watching %s for changes (Ctrl+C to stop)\n", path)
	return scenario.Watch(ctx, path, 0, func() {
		fmt.Fprintln(out, "\n🔄 Change detected, validating again")
		_ = validatePath(out, path, validateVerbose)
	})
}

// validatePath loads and validates the scenarios at path and prints the
// outcome to out.
func validatePath(out io.Writer, path string, verbose bool) error {
	scenarios, err := scenario.NewLoader(scenario.NewSilentLogger(false, false)).LoadScenarios(path)
	if err != nil {
		fmt.Fprintf(out, "❌ %v\n", err)
		return fmt.Errorf("failed to load scenarios: %w", err)
	}
	results := scenario.ValidateScenarios(scenarios)
	fmt.Fprint(out, scenario.FormatValidationResults(results, verbose))
	if !results.Valid() {
		return fmt.Errorf("%d validation errors in %d scenarios", results.TotalErrors, results.TotalScenarios)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateVerbose, "verbose", false, "Show every scenario, not only invalid ones")
	validateCmd.Flags().BoolVar(&validateWatch, "watch", false, "Validate again whenever a scenario file changes")
}
