package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	tasksOutput string
	tasksWide   bool
)

var tasksCmd = &cobra.Command{
	Use:   "tasks [group]",
	Short: "List the service's task instances",
	Long: `Lists the running instances of the service. An optional group narrows the
list to tasks whose name starts with it, e.g. "journal" or "name-0".`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTasks,
}

func runTasks(cmd *cobra.Command, args []string) error {
	formatter, err := newFormatter(cmd, tasksOutput, tasksWide)
	if err != nil {
		return err
	}
	cfg, c, err := loadClusterConfig()
	if err != nil {
		return err
	}

	var group string
	if len(args) == 1 {
		group = args[0]
	}

	ctx, stop := signalContext(cmd)
	defer stop()
	tasks, err := c.ListTaskInstances(ctx, cfg.Service.Name, group)
	if err != nil {
		return fmt.Errorf("failed to list tasks of %s: %w", cfg.Service.Name, err)
	}
	return formatter.FormatTasks(tasks)
}

func init() {
	rootCmd.AddCommand(tasksCmd)

	addOutputFlag(tasksCmd, &tasksOutput, "table")
	tasksCmd.Flags().BoolVar(&tasksWide, "wide", false, "Show task, agent and container IDs")
}
