package cmd

import (
	"fmt"

	"converge/internal/properties"

	"github.com/spf13/cobra"
)

var (
	endpointsOutput     string
	endpointsProperties []string
)

var endpointsCmd = &cobra.Command{
	Use:   "endpoints <name>",
	Short: "Print an endpoint document published by the scheduler",
	Long: `Prints an endpoint document such as core-site.xml or hdfs-site.xml.

With --property only the named Hadoop properties are printed, in the format
selected by --output.

Examples:
  converge endpoints hdfs-site.xml
  converge endpoints hdfs-site.xml -p dfs.namenode.shared.edits.dir -o json`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"core-site.xml", "hdfs-site.xml"},
	RunE:      runEndpoints,
}

func runEndpoints(cmd *cobra.Command, args []string) error {
	formatter, err := newFormatter(cmd, endpointsOutput, false)
	if err != nil {
		return err
	}
	cfg, c, err := loadClusterConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()
	doc, err := c.Endpoint(ctx, cfg.Service.Name, args[0])
	if err != nil {
		return fmt.Errorf("failed to get endpoint %s: %w", args[0], err)
	}

	if len(endpointsProperties) == 0 {
		_, err = cmd.OutOrStdout().Write(doc)
		return err
	}
	values, err := properties.Extract(doc, endpointsProperties)
	if err != nil {
		return err
	}
	for _, key := range endpointsProperties {
		if _, ok := values[key]; !ok {
			return fmt.Errorf("property %s not found in %s", key, args[0])
		}
	}
	return formatter.FormatData(values)
}

func init() {
	rootCmd.AddCommand(endpointsCmd)

	addOutputFlag(endpointsCmd, &endpointsOutput, "table")
	endpointsCmd.Flags().StringSliceVarP(&endpointsProperties, "property", "p", nil, "Print only these properties")
}
