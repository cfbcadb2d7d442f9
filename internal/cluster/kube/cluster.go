package kube

import (
	"context"
	"fmt"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"converge/internal/cluster"
	"converge/pkg/logging"
)

// Options configures a Cluster.
type Options struct {
	// Kubeconfig and Context select the cluster. Both empty uses the
	// standard detection (KUBECONFIG, in-cluster, ~/.kube/config).
	Kubeconfig string
	Context    string

	Namespace     string
	InstanceLabel string
	// ConfigMap holds the app config; empty means "<base>-config".
	ConfigMap string
	// EndpointsConfigMap holds endpoint documents; empty means
	// "<base>-endpoints".
	EndpointsConfigMap string
	// Container is the exec container for pods whose task name does not
	// carry one, such as the scheduler.
	Container string
	// MetricsPort is the container port serving Prometheus metrics.
	MetricsPort int
	// SchedulerSelector is a label selector for the operator pods.
	SchedulerSelector string
	// Manifests are the YAML files applied on install.
	Manifests []string

	PollInterval     time.Duration
	UninstallTimeout time.Duration
}

// Cluster implements cluster.Cluster against a Kubernetes namespace.
type Cluster struct {
	client    client.Client
	clientset kubernetes.Interface
	exec      Executor
	opts      Options
}

// New creates a Cluster from a kubeconfig.
func New(opts Options) (*Cluster, error) {
	config, err := restConfig(opts.Kubeconfig, opts.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to get Kubernetes config: %w", err)
	}

	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))

	k8sClient, err := client.New(config, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes clientset: %w", err)
	}

	logging.Debug("Kube", "Connected to %s, namespace %s", config.Host, opts.Namespace)
	return newCluster(k8sClient, clientset, &spdyExecutor{config: config, clientset: clientset}, opts), nil
}

func newCluster(c client.Client, clientset kubernetes.Interface, exec Executor, opts Options) *Cluster {
	if opts.Namespace == "" {
		opts.Namespace = "default"
	}
	if opts.InstanceLabel == "" {
		opts.InstanceLabel = "app.kubernetes.io/instance"
	}
	if opts.MetricsPort == 0 {
		opts.MetricsPort = 9100
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.UninstallTimeout <= 0 {
		opts.UninstallTimeout = 30 * time.Minute
	}
	return &Cluster{client: c, clientset: clientset, exec: exec, opts: opts}
}

// restConfig loads an explicit kubeconfig or context, falling back to
// controller-runtime's detection.
func restConfig(kubeconfig, context string) (*rest.Config, error) {
	if kubeconfig == "" && context == "" {
		return ctrl.GetConfig()
	}
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: context}
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
}

// baseName turns a service name into the name prefix and label value of its
// objects: "/test/hdfs" -> "test-hdfs".
func baseName(service string) string {
	return strings.Trim(strings.ReplaceAll(service, "/", "-"), "-")
}

// shortName strips the service prefix from an object name:
// "hdfs-journal-0" -> "journal-0".
func shortName(service, name string) string {
	return strings.TrimPrefix(name, baseName(service)+"-")
}

func (c *Cluster) selector(service string) client.MatchingLabels {
	return client.MatchingLabels{c.opts.InstanceLabel: baseName(service)}
}

func (c *Cluster) configMapName(service string) string {
	if c.opts.ConfigMap != "" {
		return c.opts.ConfigMap
	}
	return baseName(service) + "-config"
}

func (c *Cluster) endpointsConfigMapName(service string) string {
	if c.opts.EndpointsConfigMap != "" {
		return c.opts.EndpointsConfigMap
	}
	return baseName(service) + "-endpoints"
}

// Uninstall implements cluster.Installer.
func (c *Cluster) Uninstall(ctx context.Context, service string, pkg cluster.Package) error {
	return c.uninstall(ctx, service, pkg, c.opts.UninstallTimeout)
}

var _ cluster.Cluster = (*Cluster)(nil)
