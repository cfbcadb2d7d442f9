package cmd

import (
	"fmt"
	"strings"
	"time"

	"converge/internal/scenario"
	"converge/pkg/logging"

	"github.com/spf13/cobra"
)

var (
	runScenarioPath string
	runScenario     string
	runTags         []string
	runFailFast     bool
	runSkipInstall  bool
	runNoPreCheck   bool
	runTimeout      time.Duration
	runReportPath   string
	runMetricsFile  string
	runVerbose      bool
	runDebug        bool
	runQuiet        bool
	runJSON         bool
)

// runCmd runs convergence scenarios against the configured cluster.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run convergence scenarios against the service",
	Long: `Runs convergence scenarios against the configured HDFS service.

By default the service is installed before the first scenario and uninstalled
after the last one, even when scenarios fail. Every scenario starts with a
health check that waits for a fully deployed service.

Each step either disrupts the service (killing processes, replacing pods,
changing or rolling back its configuration) and then waits until the
deployment converges again, or checks something about the running service.

Examples:
  converge run
  converge run --scenario kill-journal-node --verbose
  converge run --tags smoke,kill --fail-fast
  converge run --skip-install --json > results.json
  converge run --report ./reports --metrics-file /var/lib/node-exporter/converge.prom

Exit codes:
  0  every scenario passed
  1  the suite could not run
  2  at least one scenario failed or errored
  3  the configuration is invalid`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	if runQuiet && runVerbose {
		return fmt.Errorf("--quiet and --verbose are mutually exclusive")
	}
	if runDebug {
		logging.InitForCLI(logging.LevelDebug, cmd.ErrOrStderr())
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := newCluster(cfg)
	if err != nil {
		return fmt.Errorf("failed to create %s backend: %w", cfg.Backend, err)
	}

	fw, err := scenario.NewFramework(scenario.ExecutionModeCLI, cfg, scenario.FrameworkOptions{
		Verbose:    runVerbose || runDebug,
		Debug:      runDebug,
		Quiet:      runQuiet,
		JSON:       runJSON,
		ReportPath: runReportPath,
		Cluster:    c,
	})
	if err != nil {
		return err
	}

	path := scenarioPath(runScenarioPath, cfg)
	scenarios, err := fw.Loader.LoadScenarios(path)
	if err != nil {
		return fmt.Errorf("failed to load scenarios: %w", err)
	}
	if len(scenarios) == 0 {
		return fmt.Errorf("no scenarios found in %s", path)
	}

	results := scenario.ValidateScenarios(scenarios)
	if !results.Valid() {
		fmt.Fprint(cmd.ErrOrStderr(), scenario.FormatValidationResults(results, false))
		return fmt.Errorf("%d scenario validation errors in %s", results.TotalErrors, path)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	config := scenario.Configuration{
		Scenario:     runScenario,
		Tags:         runTags,
		ScenarioPath: path,
		FailFast:     runFailFast,
		Timeout:      runTimeout,
		Install:      !runSkipInstall,
		PreCheck:     !runNoPreCheck,
		ReportPath:   runReportPath,
		Verbose:      runVerbose,
		Debug:        runDebug,
	}

	result, err := fw.Runner.Run(ctx, config, scenarios)
	if runMetricsFile != "" && result != nil {
		if werr := fw.Metrics.WriteTextfile(runMetricsFile); werr != nil {
			logging.Error("Run", werr, "Failed to write metrics to %s", runMetricsFile)
		}
	}
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	if result.TotalScenarios == 0 {
		return fmt.Errorf("no scenarios matched the filter")
	}
	if !result.Passed() {
		return &ScenarioFailureError{
			Total:  result.TotalScenarios,
			Failed: result.FailedScenarios,
			Errors: result.ErrorScenarios,
		}
	}
	return nil
}

// completeScenarioNames offers the scenario names found under --scenarios.
func completeScenarioNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	path := runScenarioPath
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		path = scenarioPath("", cfg)
	}
	scenarios, err := scenario.NewLoader(scenario.NewSilentLogger(false, false)).LoadScenarios(path)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var names []string
	for _, s := range scenarios {
		if strings.HasPrefix(s.Name, toComplete) {
			names = append(names, s.Name)
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

func completeScenarioPath(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"yaml", "yml"}, cobra.ShellCompDirectiveFilterFileExt
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runScenarioPath, "scenarios", "", "Scenario file or directory (default from config)")
	runCmd.Flags().StringVar(&runScenario, "scenario", "", "Run only the named scenario")
	runCmd.Flags().StringSliceVar(&runTags, "tags", nil, "Run only scenarios carrying any of these tags")
	runCmd.Flags().BoolVar(&runFailFast, "fail-fast", false, "Stop after the first scenario that does not pass")
	runCmd.Flags().BoolVar(&runSkipInstall, "skip-install", false, "Run against an already installed service")
	runCmd.Flags().BoolVar(&runNoPreCheck, "no-pre-check", false, "Skip the health check before each scenario")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Overall suite timeout (0 for none)")
	runCmd.Flags().StringVar(&runReportPath, "report", "", "Directory to write a JSON report to")
	runCmd.Flags().StringVar(&runMetricsFile, "metrics-file", "", "Write Prometheus metrics in textfile format to this path")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "Show step details and convergence reports")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Enable debug logging")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "Print only the summary")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the suite result as JSON")

	_ = runCmd.RegisterFlagCompletionFunc("scenario", completeScenarioNames)
	_ = runCmd.RegisterFlagCompletionFunc("scenarios", completeScenarioPath)
}
