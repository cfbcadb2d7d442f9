package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names.
const (
	BackendDCOS       = "dcos"
	BackendKubernetes = "kubernetes"
)

// Config is the top-level configuration structure for converge.
type Config struct {
	// Backend selects the cluster implementation: dcos or kubernetes.
	Backend     string            `yaml:"backend" json:"backend"`
	Service     ServiceConfig     `yaml:"service" json:"service"`
	Convergence ConvergenceConfig `yaml:"convergence" json:"convergence"`
	DCOS        DCOSConfig        `yaml:"dcos,omitempty" json:"dcos,omitempty"`
	Kubernetes  KubernetesConfig  `yaml:"kubernetes,omitempty" json:"kubernetes,omitempty"`
	// Scenarios is the default directory scenario files are loaded from.
	Scenarios string `yaml:"scenarios,omitempty" json:"scenarios,omitempty"`
}

// ServiceConfig describes the service under test and how to install it.
type ServiceConfig struct {
	Name    string                 `yaml:"name" json:"name"`
	Package string                 `yaml:"package" json:"package"`
	Version string                 `yaml:"version,omitempty" json:"version,omitempty"`
	Options map[string]interface{} `yaml:"options,omitempty" json:"options,omitempty"`
	// UpgradeFrom installs this version first and then upgrades to Version.
	UpgradeFrom string `yaml:"upgrade_from,omitempty" json:"upgrade_from,omitempty"`
	// ExpectedTasks is the running task count of a healthy deployment.
	ExpectedTasks  int      `yaml:"expected_tasks" json:"expected_tasks"`
	InstallTimeout Duration `yaml:"install_timeout,omitempty" json:"install_timeout,omitempty"`
}

// ConvergenceConfig bounds the convergence wait.
type ConvergenceConfig struct {
	Timeout      Duration `yaml:"timeout" json:"timeout"`
	PollInterval Duration `yaml:"poll_interval" json:"poll_interval"`
	// ConfigUpdateTimeout bounds how long an app-config update may take to be
	// accepted by the control plane.
	ConfigUpdateTimeout Duration `yaml:"config_update_timeout,omitempty" json:"config_update_timeout,omitempty"`
	MetricsTimeout      Duration `yaml:"metrics_timeout,omitempty" json:"metrics_timeout,omitempty"`
	CaptureConcurrency  int      `yaml:"capture_concurrency,omitempty" json:"capture_concurrency,omitempty"`
}

// DCOSConfig configures the DC/OS backend.
type DCOSConfig struct {
	URL string `yaml:"url" json:"url"`
	// Token is the ACS token. TokenEnv names an environment variable to read
	// it from instead.
	Token                 string    `yaml:"token,omitempty" json:"token,omitempty"`
	TokenEnv              string    `yaml:"token_env,omitempty" json:"token_env,omitempty"`
	InsecureSkipTLSVerify bool      `yaml:"insecure_skip_tls_verify,omitempty" json:"insecure_skip_tls_verify,omitempty"`
	CACert                string    `yaml:"ca_cert,omitempty" json:"ca_cert,omitempty"`
	SSH                   SSHConfig `yaml:"ssh,omitempty" json:"ssh,omitempty"`
}

// SSHConfig configures how processes are killed on agents.
type SSHConfig struct {
	User       string `yaml:"user,omitempty" json:"user,omitempty"`
	KeyFile    string `yaml:"key_file,omitempty" json:"key_file,omitempty"`
	KnownHosts string `yaml:"known_hosts,omitempty" json:"known_hosts,omitempty"`
	Port       int    `yaml:"port,omitempty" json:"port,omitempty"`
	// Bastion is an optional jump host (host or host:port), usually the
	// master's public address.
	Bastion string `yaml:"bastion,omitempty" json:"bastion,omitempty"`
}

// KubernetesConfig configures the Kubernetes backend.
type KubernetesConfig struct {
	Kubeconfig string `yaml:"kubeconfig,omitempty" json:"kubeconfig,omitempty"`
	Context    string `yaml:"context,omitempty" json:"context,omitempty"`
	Namespace  string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	// InstanceLabel is the label whose value equals the service name on every
	// object of the deployment.
	InstanceLabel string `yaml:"instance_label,omitempty" json:"instance_label,omitempty"`
	// ConfigMap holds the app config; defaults to "<service>-config".
	ConfigMap string `yaml:"config_map,omitempty" json:"config_map,omitempty"`
	// EndpointsConfigMap holds the endpoint documents (hdfs-site.xml, ...);
	// defaults to "<service>-endpoints".
	EndpointsConfigMap string `yaml:"endpoints_config_map,omitempty" json:"endpoints_config_map,omitempty"`
	Container          string `yaml:"container,omitempty" json:"container,omitempty"`
	MetricsPort        int    `yaml:"metrics_port,omitempty" json:"metrics_port,omitempty"`
	// SchedulerSelector selects the operator pods acting as scheduler.
	SchedulerSelector string `yaml:"scheduler_selector,omitempty" json:"scheduler_selector,omitempty"`
	// Manifests are applied on install and deleted on uninstall.
	Manifests []string `yaml:"manifests,omitempty" json:"manifests,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("25m").
type Duration struct {
	time.Duration
}

// D wraps a time.Duration.
func D(d time.Duration) Duration {
	return Duration{d}
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string such as \"5m\"", value.Line)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}
