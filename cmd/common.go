package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"converge/internal/cluster"
	"converge/internal/config"
	"converge/internal/formatting"
	"converge/internal/scenario"

	"github.com/spf13/cobra"
)

// newCluster builds the backend for cfg. Tests replace it with a fake.
var newCluster = scenario.NewCluster

// loadConfig loads the configuration named by --config, falling back to the
// user config directory.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.GetDefaultConfigPath()
		if err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return config.Config{}, describeConfigError(err)
	}
	return cfg, nil
}

// describeConfigError keeps the error type for exit-code mapping while
// making the message carry every detail.
func describeConfigError(err error) error {
	var errs config.ConfigurationErrorCollection
	if errors.As(err, &errs) {
		fmt.Fprintln(os.Stderr, errs.GetDetailedReport())
	}
	return err
}

// loadClusterConfig loads the configuration and connects to its backend.
func loadClusterConfig() (config.Config, cluster.Cluster, error) {
	cfg, err := loadConfig()
	if err != nil {
		return config.Config{}, nil, err
	}
	c, err := newCluster(cfg)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to create %s backend: %w", cfg.Backend, err)
	}
	return cfg, c, nil
}

// scenarioPath returns the explicit path or the configured default.
func scenarioPath(explicit string, cfg config.Config) string {
	if explicit != "" {
		return explicit
	}
	return config.ExpandPath(cfg.Scenarios)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// newFormatter builds the output formatter selected by --output.
func newFormatter(cmd *cobra.Command, output string, wide bool) (formatting.Formatter, error) {
	format, err := formatting.ParseFormat(output)
	if err != nil {
		return nil, err
	}
	return formatting.New(formatting.Options{Format: format, Out: cmd.OutOrStdout(), Wide: wide}), nil
}

// addOutputFlag registers --output on cmd.
func addOutputFlag(cmd *cobra.Command, target *string, def string) {
	cmd.Flags().StringVarP(target, "output", "o", def, "Output format: table, json or yaml")
	_ = cmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		formats := make([]string, 0, len(formatting.ValidFormats))
		for _, f := range formatting.ValidFormats {
			formats = append(formats, string(f))
		}
		return formats, cobra.ShellCompDirectiveNoFileComp
	})
}
