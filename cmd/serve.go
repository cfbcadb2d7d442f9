package cmd

import (
	"fmt"

	"converge/internal/scenario"

	"github.com/spf13/cobra"
)

var serveScenarioPath string

// serveCmd exposes converge to AI assistants as an MCP server on stdio.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve converge as an MCP server over stdio",
	Long: `Starts an MCP server on stdin/stdout. The server offers tools to list,
validate and run scenarios, fetch the results of the last run and list the
service's tasks.

Nothing but MCP messages is written to stdout; logging is disabled. Only one
run can be in progress at a time.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, c, err := loadClusterConfig()
	if err != nil {
		return err
	}
	fw, err := scenario.NewFramework(scenario.ExecutionModeMCPServer, cfg, scenario.FrameworkOptions{Cluster: c})
	if err != nil {
		return err
	}
	server, err := scenario.NewMCPServer(fw, scenarioPath(serveScenarioPath, cfg), GetVersion())
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	return server.Serve()
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveScenarioPath, "scenarios", "", "Scenario file or directory (default from config)")
}
