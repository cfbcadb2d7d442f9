package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"converge/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/converge"
	configFileName = "config.yaml"
)

var osUserHomeDir = os.UserHomeDir

// GetDefaultConfigPath returns ~/.config/converge.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadConfig loads configuration from path, which is either a config file or
// a directory containing config.yaml. A missing file yields the defaults.
// The result is validated; validation failures are returned as a
// ConfigurationErrorCollection.
func LoadConfig(path string) (Config, error) {
	configFilePath := path
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		configFilePath = filepath.Join(path, configFileName)
	}

	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config found at %s, using defaults", configFilePath)
			applyDerivedDefaults(&config)
			return config, nil
		}
		return Config{}, NewConfigurationError(configFilePath, "", ErrorTypeIO, err.Error())
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		ce := NewConfigurationError(configFilePath, "", ErrorTypeParse, err.Error())
		ce.LineNumber = yamlErrorLine(err)
		ce.Suggestions = []string{"Check YAML indentation and that durations are quoted strings such as \"5m\""}
		return Config{}, ce
	}
	applyDerivedDefaults(&config)

	if errs := Validate(config, configFilePath); errs.HasErrors() {
		return Config{}, *errs
	}
	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}

// applyDerivedDefaults fills fields whose default depends on other fields.
func applyDerivedDefaults(c *Config) {
	if c.Service.Package == "" {
		c.Service.Package = c.Service.Name
	}
	base := strings.TrimPrefix(strings.ReplaceAll(c.Service.Name, "/", "-"), "-")
	if base == "" {
		return
	}
	if c.Kubernetes.ConfigMap == "" {
		c.Kubernetes.ConfigMap = base + "-config"
	}
	if c.Kubernetes.EndpointsConfigMap == "" {
		c.Kubernetes.EndpointsConfigMap = base + "-endpoints"
	}
}

// yamlErrorLine extracts the line number from a yaml.v3 error message such as
// "yaml: line 3: mapping values are not allowed in this context".
func yamlErrorLine(err error) int {
	msg := err.Error()
	if te, ok := err.(*yaml.TypeError); ok && len(te.Errors) > 0 {
		msg = te.Errors[0]
	}
	var line int
	if i := strings.Index(msg, "line "); i >= 0 {
		fmt.Sscanf(msg[i:], "line %d", &line)
	}
	return line
}
