package scenario

import (
	"fmt"

	"converge/internal/cluster"
	"converge/internal/cluster/dcos"
	"converge/internal/cluster/kube"
	"converge/internal/config"
	"converge/pkg/logging"
)

// NewCluster creates the backend cfg.Backend names.
func NewCluster(cfg config.Config) (cluster.Cluster, error) {
	switch cfg.Backend {
	case config.BackendDCOS, "":
		return newDCOSCluster(cfg)
	case config.BackendKubernetes:
		k := cfg.Kubernetes
		return kube.New(kube.Options{
			Kubeconfig:         config.ExpandPath(k.Kubeconfig),
			Context:            k.Context,
			Namespace:          k.Namespace,
			InstanceLabel:      k.InstanceLabel,
			ConfigMap:          k.ConfigMap,
			EndpointsConfigMap: k.EndpointsConfigMap,
			Container:          k.Container,
			MetricsPort:        k.MetricsPort,
			SchedulerSelector:  k.SchedulerSelector,
			Manifests:          k.Manifests,
			PollInterval:       cfg.Convergence.PollInterval.Duration,
			UninstallTimeout:   cfg.Service.InstallTimeout.Duration,
		})
	default:
		return nil, fmt.Errorf("unknown backend %q (expected %s or %s)", cfg.Backend, config.BackendDCOS, config.BackendKubernetes)
	}
}

func newDCOSCluster(cfg config.Config) (cluster.Cluster, error) {
	d := cfg.DCOS
	opts := dcos.Options{
		Client: dcos.ClientOptions{
			URL:                   d.URL,
			InsecureSkipTLSVerify: d.InsecureSkipTLSVerify,
			CACertFile:            config.ExpandPath(d.CACert),
		},
		UninstallTimeout: cfg.Service.InstallTimeout.Duration,
		MetricsInterval:  cfg.Convergence.PollInterval.Duration,
	}
	if token := d.ResolveToken(); token != "" {
		opts.Client.TokenSource = dcos.StaticToken(token)
	} else {
		logging.Warn("DCOS", "No ACS token configured; requests are sent unauthenticated")
	}

	if d.SSH.KeyFile != "" {
		runner, err := dcos.NewSecureRunner(dcos.SSHOptions{
			User:           d.SSH.User,
			Port:           d.SSH.Port,
			KeyFile:        config.ExpandPath(d.SSH.KeyFile),
			KnownHostsFile: config.ExpandPath(d.SSH.KnownHosts),
			Bastion:        d.SSH.Bastion,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set up SSH: %w", err)
		}
		opts.Runner = runner
	} else {
		logging.Warn("DCOS", "No SSH key configured; kill actions will fail")
	}

	return dcos.New(opts)
}

// SettingsFromConfig derives the runner settings from cfg.
func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		Service: cfg.Service.Name,
		Package: cluster.Package{
			Name:    cfg.Service.Package,
			Version: cfg.Service.Version,
			Options: cfg.Service.Options,
		},
		UpgradeFrom:         cfg.Service.UpgradeFrom,
		ExpectedTasks:       cfg.Service.ExpectedTasks,
		ConvergenceTimeout:  cfg.Convergence.Timeout.Duration,
		PollInterval:        cfg.Convergence.PollInterval.Duration,
		ConfigUpdateTimeout: cfg.Convergence.ConfigUpdateTimeout.Duration,
		MetricsTimeout:      cfg.Convergence.MetricsTimeout.Duration,
		InstallTimeout:      cfg.Service.InstallTimeout.Duration,
		CaptureConcurrency:  cfg.Convergence.CaptureConcurrency,
	}
}

// Framework holds everything a run needs.
type Framework struct {
	Runner   Runner
	Loader   Loader
	Reporter Reporter
	Logger   Logger
	Cluster  cluster.Cluster
	Metrics  *RunMetrics
	Settings Settings
}

// FrameworkOptions tune NewFramework.
type FrameworkOptions struct {
	Verbose    bool
	Debug      bool
	Quiet      bool
	JSON       bool
	ReportPath string
	// Cluster overrides the backend built from the configuration.
	Cluster cluster.Cluster
}

// NewFramework creates a fully configured framework for the execution mode.
//
// In ExecutionModeCLI progress goes to stdout. In ExecutionModeMCPServer a
// StructuredReporter collects results in memory and the logger is silent, so
// nothing contaminates the MCP protocol stream.
func NewFramework(mode ExecutionMode, cfg config.Config, opts FrameworkOptions) (*Framework, error) {
	var logger Logger
	switch mode {
	case ExecutionModeMCPServer:
		logger = NewSilentLogger(opts.Verbose, opts.Debug)
	default:
		logger = NewStdoutLogger(opts.Verbose, opts.Debug)
	}

	c := opts.Cluster
	if c == nil {
		var err error
		c, err = NewCluster(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s backend: %w", cfg.Backend, err)
		}
	}

	var reporter Reporter
	switch {
	case mode == ExecutionModeMCPServer:
		reporter = NewStructuredReporter()
	case opts.JSON:
		reporter = NewJSONReporter()
	case opts.Quiet:
		reporter = NewQuietReporter()
	default:
		reporter = NewConsoleReporter(opts.Verbose, opts.Debug, opts.ReportPath)
	}

	loader := NewLoader(logger)
	metrics := NewRunMetrics(cfg.Service.Name)
	settings := SettingsFromConfig(cfg)
	return &Framework{
		Runner:   NewRunner(c, settings, loader, reporter, logger, metrics),
		Loader:   loader,
		Reporter: reporter,
		Logger:   logger,
		Cluster:  c,
		Metrics:  metrics,
		Settings: settings,
	}, nil
}
