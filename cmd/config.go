package cmd

import (
	"fmt"

	"converge/internal/cluster"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

var configOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configGetCmd = &cobra.Command{
	Use:   "get [key...]",
	Short: "Print the service's application configuration",
	Long: `Prints the application configuration the scheduler runs with, such as
node counts and resource settings. With keys only those entries are printed.

Examples:
  converge config get
  converge config get DATA_COUNT JOURNAL_CPUS -o json`,
	RunE: runConfigGet,
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Print the effective converge configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigView,
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	formatter, err := newFormatter(cmd, configOutput, false)
	if err != nil {
		return err
	}
	cfg, c, err := loadClusterConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()
	appConfig, err := c.GetAppConfig(ctx, cfg.Service.Name)
	if err != nil {
		return fmt.Errorf("failed to get app config of %s: %w", cfg.Service.Name, err)
	}

	if len(args) == 0 {
		return formatter.FormatAppConfig(appConfig)
	}
	selected := cluster.AppConfig{ID: appConfig.ID, Env: make(map[string]string, len(args))}
	for _, key := range args {
		value, ok := appConfig.Env[key]
		if !ok {
			return fmt.Errorf("key %s not found in app config of %s", key, cfg.Service.Name)
		}
		selected.Env[key] = value
	}
	return formatter.FormatAppConfig(selected)
}

func runConfigView(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DCOS.Token != "" {
		cfg.DCOS.Token = "REDACTED"
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configGetCmd, configViewCmd)

	addOutputFlag(configGetCmd, &configOutput, "yaml")
}
