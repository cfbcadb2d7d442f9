package dcos

import (
	"context"
	"time"

	"converge/internal/cluster"
)

// Options configures a Cluster.
type Options struct {
	Client ClientOptions
	// Runner executes kill commands on agents. Required for KillProcess.
	Runner           CommandRunner
	UninstallTimeout time.Duration
	MetricsInterval  time.Duration
}

// Cluster implements cluster.Cluster against a DC/OS cluster: Mesos for
// tasks, the SDK scheduler for plans and pods, Marathon for the app config,
// Cosmos for packages and SSH for process kills.
type Cluster struct {
	*Client
	runner           CommandRunner
	uninstallTimeout time.Duration
	metricsInterval  time.Duration
}

// New creates a Cluster.
func New(opts Options) (*Cluster, error) {
	client, err := NewClient(opts.Client)
	if err != nil {
		return nil, err
	}
	return newCluster(client, opts), nil
}

func newCluster(client *Client, opts Options) *Cluster {
	c := &Cluster{
		Client:           client,
		runner:           opts.Runner,
		uninstallTimeout: opts.UninstallTimeout,
		metricsInterval:  opts.MetricsInterval,
	}
	if c.uninstallTimeout <= 0 {
		c.uninstallTimeout = 30 * time.Minute
	}
	if c.metricsInterval <= 0 {
		c.metricsInterval = 10 * time.Second
	}
	return c
}

// KillProcess implements cluster.Orchestrator over SSH.
func (c *Cluster) KillProcess(ctx context.Context, pattern string, at cluster.TaskInstance) error {
	if c.runner == nil {
		return errNoRunner
	}
	return killProcess(ctx, c.runner, pattern, at.Host)
}

// WaitForAnyMetric implements cluster.Metrics.
func (c *Cluster) WaitForAnyMetric(ctx context.Context, service, taskPrefix string, timeout time.Duration) error {
	return c.waitForAnyMetric(ctx, service, taskPrefix, c.metricsInterval, timeout)
}

// Uninstall implements cluster.Installer.
func (c *Cluster) Uninstall(ctx context.Context, service string, pkg cluster.Package) error {
	return c.uninstall(ctx, service, pkg, c.uninstallTimeout)
}

var _ cluster.Cluster = (*Cluster)(nil)
