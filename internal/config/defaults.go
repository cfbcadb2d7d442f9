package config

import "time"

const (
	DefaultServiceName   = "hdfs"
	DefaultExpectedTasks = 10
	DefaultTimeout       = 25 * time.Minute
	DefaultPollInterval  = 5 * time.Second
	// DefaultConfigUpdateTimeout matches the 15 minute app update wait of
	// the acceptance suite.
	DefaultConfigUpdateTimeout = 15 * time.Minute
	DefaultInstallTimeout      = 30 * time.Minute
	DefaultMetricsTimeout      = 10 * time.Minute
	DefaultSSHUser             = "core"
	DefaultSSHPort             = 22
	DefaultNamespace           = "default"
	DefaultInstanceLabel       = "app.kubernetes.io/instance"
	DefaultMetricsPort         = 9100
)

// GetDefaultConfig returns the default configuration.
func GetDefaultConfig() Config {
	return Config{
		Backend: BackendDCOS,
		Service: ServiceConfig{
			Name:           DefaultServiceName,
			Package:        DefaultServiceName,
			ExpectedTasks:  DefaultExpectedTasks,
			InstallTimeout: D(DefaultInstallTimeout),
		},
		Convergence: ConvergenceConfig{
			Timeout:             D(DefaultTimeout),
			PollInterval:        D(DefaultPollInterval),
			ConfigUpdateTimeout: D(DefaultConfigUpdateTimeout),
			MetricsTimeout:      D(DefaultMetricsTimeout),
			CaptureConcurrency:  4,
		},
		DCOS: DCOSConfig{
			TokenEnv: "DCOS_ACS_TOKEN",
			SSH: SSHConfig{
				User: DefaultSSHUser,
				Port: DefaultSSHPort,
			},
		},
		Kubernetes: KubernetesConfig{
			Namespace:     DefaultNamespace,
			InstanceLabel: DefaultInstanceLabel,
			MetricsPort:   DefaultMetricsPort,
		},
		Scenarios: "scenarios/hdfs",
	}
}
