package cmd

import (
	"errors"
	"fmt"
	"os"

	"converge/internal/config"
	"converge/pkg/logging"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeScenarioFailure indicates the suite ran but at least one
	// scenario failed or errored.
	ExitCodeScenarioFailure = 2
	// ExitCodeConfigError indicates the configuration could not be loaded.
	ExitCodeConfigError = 3
)

var (
	// configPath is a config file or a directory holding config.yaml.
	configPath string
	logLevel   string
)

// rootCmd represents the base command for the converge application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "converge",
	Short: "Verify that an HDFS deployment converges after disruptive changes",
	Long: `converge runs acceptance scenarios against an HDFS service deployed on
DC/OS or Kubernetes. Each scenario kills processes, replaces pods or changes
the service configuration, then waits until the deployment is healthy again
and checks that exactly the expected tasks were restarted.

Scenarios are YAML files; see 'converge run --help' and 'converge validate'.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "converge version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// ScenarioFailureError is returned by run when the suite completed but did
// not pass.
type ScenarioFailureError struct {
	Total  int
	Failed int
	Errors int
}

func (e *ScenarioFailureError) Error() string {
	return fmt.Sprintf("%d of %d scenarios did not pass (%d failed, %d errors)",
		e.Failed+e.Errors, e.Total, e.Failed, e.Errors)
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	var failure *ScenarioFailureError
	if errors.As(err, &failure) {
		return ExitCodeScenarioFailure
	}

	var configErr config.ConfigurationError
	if errors.As(err, &configErr) {
		return ExitCodeConfigError
	}

	var configErrs config.ConfigurationErrorCollection
	if errors.As(err, &configErrs) {
		return ExitCodeConfigError
	}

	return ExitCodeError
}

// setupLogging initialises the process logger before any subcommand runs.
// serve speaks MCP on stdio, so it logs nothing.
func setupLogging(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "serve" {
		logging.InitSilent()
		return nil
	}
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logging.InitForCLI(level, cmd.ErrOrStderr())
	return nil
}

func init() {
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file or directory (default is $HOME/.config/converge/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
}
