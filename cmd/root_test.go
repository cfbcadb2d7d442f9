package cmd

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"converge/internal/config"
)

func TestSetVersion(t *testing.T) {
	original := GetVersion()
	defer SetVersion(original)

	SetVersion("1.2.3-test")
	assert.Equal(t, "1.2.3-test", rootCmd.Version)
	assert.Equal(t, "1.2.3-test", GetVersion())
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "converge", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log-level"))
}

func TestVersionTemplate(t *testing.T) {
	testCmd := &cobra.Command{
		Use:     "test",
		Version: "1.0.0",
	}
	testCmd.SetVersionTemplate(`{{printf "converge version %s\n" .Version}}`)

	var buf bytes.Buffer
	testCmd.SetOut(&buf)
	testCmd.SetArgs([]string{"--version"})
	require.NoError(t, testCmd.Execute())
	assert.Equal(t, "converge version 1.0.0\n", buf.String())
}

func TestSubcommands(t *testing.T) {
	found := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		found[cmd.Name()] = true
	}
	for _, expected := range []string{"version", "run", "validate", "tasks", "plan", "endpoints", "config", "serve"} {
		assert.True(t, found[expected], "expected subcommand %s to be registered", expected)
	}
}

func TestGetExitCode(t *testing.T) {
	collection := config.NewConfigurationErrorCollection()
	collection.Add(config.NewConfigurationError("/etc/converge/config.yaml", "backend", "validation", "must be one of: dcos, kubernetes"))

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "general error", err: fmt.Errorf("boom"), want: ExitCodeError},
		{name: "scenario failure", err: &ScenarioFailureError{Total: 3, Failed: 1}, want: ExitCodeScenarioFailure},
		{name: "wrapped scenario failure", err: fmt.Errorf("run: %w", &ScenarioFailureError{Total: 1, Errors: 1}), want: ExitCodeScenarioFailure},
		{name: "configuration error", err: config.NewConfigurationError("config.yaml", "", "parse", "bad yaml"), want: ExitCodeConfigError},
		{name: "wrapped configuration errors", err: fmt.Errorf("load: %w", *collection), want: ExitCodeConfigError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getExitCode(tt.err))
		})
	}
}

func TestScenarioFailureError(t *testing.T) {
	err := &ScenarioFailureError{Total: 5, Failed: 2, Errors: 1}
	assert.Equal(t, "3 of 5 scenarios did not pass (2 failed, 1 errors)", err.Error())
}

func TestSetupLogging_RejectsUnknownLevel(t *testing.T) {
	original := logLevel
	defer func() { logLevel = original }()

	logLevel = "chatty"
	err := setupLogging(&cobra.Command{Use: "run"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log level")
}
