package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// Helper function to create a temporary config file
func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, configFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	def := GetDefaultConfig()
	assert.Equal(t, def.Service, cfg.Service)
	assert.Equal(t, def.Convergence, cfg.Convergence)
	assert.Equal(t, "hdfs-config", cfg.Kubernetes.ConfigMap)
}

func TestLoadConfig_DirectoryAndFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
backend: dcos
service:
  name: /test/integration/hdfs
  expected_tasks: 12
convergence:
  timeout: 10m
  poll_interval: 2s
dcos:
  url: https://master.mesos
  ssh:
    key_file: /keys/dcos
    bastion: 52.0.0.1
`)

	for _, p := range []string{dir, path} {
		cfg, err := LoadConfig(p)
		require.NoError(t, err, p)

		assert.Equal(t, "/test/integration/hdfs", cfg.Service.Name)
		assert.Equal(t, "hdfs", cfg.Service.Package, "package keeps its default")
		assert.Equal(t, 12, cfg.Service.ExpectedTasks)
		assert.Equal(t, 10*time.Minute, cfg.Convergence.Timeout.Duration)
		assert.Equal(t, 2*time.Second, cfg.Convergence.PollInterval.Duration)
		assert.Equal(t, DefaultConfigUpdateTimeout, cfg.Convergence.ConfigUpdateTimeout.Duration)
		assert.Equal(t, DefaultSSHUser, cfg.DCOS.SSH.User)
		assert.Equal(t, "52.0.0.1", cfg.DCOS.SSH.Bastion)
		assert.Equal(t, "test-integration-hdfs-config", cfg.Kubernetes.ConfigMap)
	}
}

func TestLoadConfig_ParseErrorCarriesLine(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "backend: dcos\nservice:\n  name: [unterminated\n")

	_, err := LoadConfig(dir)
	require.Error(t, err)

	var ce ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "parse", ce.ErrorType)
	assert.Equal(t, configFileName, ce.FileName)
	assert.Greater(t, ce.LineNumber, 0)
}

func TestLoadConfig_BadDuration(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "convergence:\n  timeout: forever\n")

	_, err := LoadConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forever")
}

func TestLoadConfig_ValidationCollectsEverything(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
backend: nomad
service:
  name: "my service"
  expected_tasks: -1
convergence:
  timeout: 5s
  poll_interval: 10s
`)

	_, err := LoadConfig(dir)
	require.Error(t, err)

	var coll ConfigurationErrorCollection
	require.True(t, errors.As(err, &coll))
	fields := map[string]bool{}
	for _, e := range coll.Errors {
		fields[e.Field] = true
		assert.Equal(t, "validation", e.ErrorType)
	}
	assert.True(t, fields["backend"])
	assert.True(t, fields["service.name"])
	assert.True(t, fields["service.expected_tasks"])
	assert.True(t, fields["convergence.poll_interval"])
	assert.Contains(t, coll.GetDetailedReport(), "Invalid configuration")
}

func TestValidate_BackendSpecific(t *testing.T) {
	cfg := GetDefaultConfig()
	errs := Validate(cfg, "config.yaml")
	var fields []string
	for _, e := range errs.Errors {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"dcos.url", "dcos.ssh.key_file"}, fields)

	cfg.Backend = BackendKubernetes
	assert.False(t, Validate(cfg, "config.yaml").HasErrors())

	cfg.Kubernetes.Namespace = ""
	assert.Equal(t, 1, Validate(cfg, "config.yaml").Count())
}

func TestDuration_YAMLRoundTrip(t *testing.T) {
	type wrapper struct {
		D Duration `yaml:"d"`
	}
	out, err := yaml.Marshal(wrapper{D: D(90 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, "d: 1m30s\n", string(out))

	var w wrapper
	require.NoError(t, yaml.Unmarshal(out, &w))
	assert.Equal(t, 90*time.Second, w.D.Duration)
}

func TestResolveToken(t *testing.T) {
	t.Setenv("CONVERGE_TEST_TOKEN", "from-env")

	assert.Equal(t, "literal", DCOSConfig{Token: "literal", TokenEnv: "CONVERGE_TEST_TOKEN"}.ResolveToken())
	assert.Equal(t, "from-env", DCOSConfig{TokenEnv: "CONVERGE_TEST_TOKEN"}.ResolveToken())
	assert.Empty(t, DCOSConfig{}.ResolveToken())
}

func TestExpandPath(t *testing.T) {
	orig := osUserHomeDir
	defer func() { osUserHomeDir = orig }()
	osUserHomeDir = func() (string, error) { return "/home/ci", nil }

	assert.Equal(t, "/home/ci/.ssh/id", ExpandPath("~/.ssh/id"))
	assert.Equal(t, "/etc/key", ExpandPath("/etc/key"))

	p, err := GetDefaultConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "/home/ci/.config/converge", p)
}

func TestConfigurationError_Formatting(t *testing.T) {
	ce := NewConfigurationError("/etc/converge/config.yaml", "dcos.url", "validation", "is required")
	ce.Suggestions = []string{"set it"}

	assert.Equal(t, "config.yaml: dcos.url: is required", ce.Error())
	detailed := ce.DetailedError()
	assert.Contains(t, detailed, "File: /etc/converge/config.yaml")
	assert.Contains(t, detailed, "- set it")

	coll := NewConfigurationErrorCollection()
	assert.Equal(t, "no configuration errors", coll.Error())
	coll.Add(ce)
	coll.Add(ce)
	assert.Contains(t, coll.Error(), "2 configuration errors")
}
