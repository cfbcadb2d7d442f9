package cmd

import (
	"fmt"

	"converge/internal/cluster"

	"github.com/spf13/cobra"
)

var planOutput string

var planCmd = &cobra.Command{
	Use:       "plan [deploy|recovery]",
	Short:     "Show a scheduler plan",
	Long:      `Shows the phases and steps of a scheduler plan. The plan defaults to deploy.`,
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{cluster.PlanDeploy, cluster.PlanRecovery},
	RunE:      runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	formatter, err := newFormatter(cmd, planOutput, false)
	if err != nil {
		return err
	}
	cfg, c, err := loadClusterConfig()
	if err != nil {
		return err
	}

	name := cluster.PlanDeploy
	if len(args) == 1 {
		name = args[0]
	}

	ctx, stop := signalContext(cmd)
	defer stop()
	plan, err := c.Plan(ctx, cfg.Service.Name, name)
	if err != nil {
		return fmt.Errorf("failed to get %s plan: %w", name, err)
	}
	return formatter.FormatPlan(plan)
}

func init() {
	rootCmd.AddCommand(planCmd)

	addOutputFlag(planCmd, &planOutput, "table")
}
