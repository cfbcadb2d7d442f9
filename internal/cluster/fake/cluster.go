// Package fake provides an in-memory cluster.Cluster whose plan statuses and
// failures are scripted by tests.
package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"converge/internal/cluster"
)

// Cluster is an in-memory cluster. Mutating calls relaunch the affected task
// instances with fresh identifiers and queue a scripted plan sequence, which
// successive Plan calls consume one status at a time (the last status
// sticks).
type Cluster struct {
	mu sync.Mutex

	service       string
	tasks         []cluster.TaskInstance
	seq           int
	schedulerHost string

	scripts map[string][]cluster.PlanStatus
	polls   map[string]int

	// RecoveryScript is queued on the recovery plan after a kill, restart or
	// replace.
	RecoveryScript []cluster.PlanStatus
	// DeployScript is queued on the deploy plan after a config update.
	DeployScript []cluster.PlanStatus
	// ConfigDependents lists the group prefixes relaunched by a config
	// update. Empty means every task.
	ConfigDependents []string
	// OnConfigUpdate, when set, runs after a config update is stored and
	// replaces the default relaunch behaviour.
	OnConfigUpdate func(c *Cluster, old, updated cluster.AppConfig)

	appConfig cluster.AppConfig
	endpoints map[string][]byte
	metrics   map[string]bool
	failures  map[string][]error

	calls []string
}

// NewCluster creates an empty cluster for service with both plans complete.
func NewCluster(service string) *Cluster {
	return &Cluster{
		service:       service,
		schedulerHost: "10.0.0.1",
		scripts: map[string][]cluster.PlanStatus{
			cluster.PlanDeploy:   {cluster.PlanComplete},
			cluster.PlanRecovery: {cluster.PlanComplete},
		},
		polls:          map[string]int{},
		RecoveryScript: []cluster.PlanStatus{cluster.PlanKickedOff, cluster.PlanInProgress, cluster.PlanComplete},
		DeployScript:   []cluster.PlanStatus{cluster.PlanInProgress, cluster.PlanComplete},
		appConfig:      cluster.AppConfig{ID: service, Env: map[string]string{}},
		endpoints:      map[string][]byte{},
		metrics:        map[string]bool{},
		failures:       map[string][]error{},
	}
}

// NewHDFS creates a cluster shaped like the default HDFS deployment:
// three journal nodes, two name nodes (each with a zkfc sidecar task) and
// three data nodes.
func NewHDFS(service string) *Cluster {
	c := NewCluster(service)
	for i := 0; i < 3; i++ {
		c.AddTask(fmt.Sprintf("journal-%d-node", i), fmt.Sprintf("10.0.1.%d", i))
	}
	for i := 0; i < 2; i++ {
		c.AddTask(fmt.Sprintf("name-%d-node", i), fmt.Sprintf("10.0.2.%d", i))
		c.AddTask(fmt.Sprintf("name-%d-zkfc", i), fmt.Sprintf("10.0.2.%d", i))
	}
	for i := 0; i < 3; i++ {
		c.AddTask(fmt.Sprintf("data-%d-node", i), fmt.Sprintf("10.0.3.%d", i))
	}
	c.appConfig.Env["JOURNAL_CPUS"] = "0.5"
	c.appConfig.Env["DATA_COUNT"] = "3"
	return c
}

// AddTask adds a running task and returns its identifier.
func (c *Cluster) AddTask(name, host string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addTaskLocked(name, host)
}

func (c *Cluster) addTaskLocked(name, host string) string {
	c.seq++
	id := fmt.Sprintf("%s__%d", name, c.seq)
	c.tasks = append(c.tasks, cluster.TaskInstance{
		ID:          id,
		Name:        name,
		Host:        host,
		State:       "TASK_RUNNING",
		Running:     true,
		AgentID:     "agent-" + host,
		ContainerID: "container-" + id,
		Pod:         podOf(name),
	})
	return id
}

// podOf strips the task suffix: "journal-0-node" -> "journal-0".
func podOf(name string) string {
	if i := strings.LastIndex(name, "-"); i > 0 {
		return name[:i]
	}
	return name
}

// Relaunch gives every task matching prefix a fresh identifier.
func (c *Cluster) Relaunch(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.relaunchLocked(prefix)
}

func (c *Cluster) relaunchLocked(prefix string) int {
	n := 0
	for i := range c.tasks {
		if c.tasks[i].MatchesPrefix(prefix) {
			c.seq++
			c.tasks[i].ID = fmt.Sprintf("%s__%d", c.tasks[i].Name, c.seq)
			c.tasks[i].ContainerID = "container-" + c.tasks[i].ID
			n++
		}
	}
	return n
}

// StopTask marks the named task as not running without changing its
// identifier.
func (c *Cluster) StopTask(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.tasks {
		if c.tasks[i].Name == name {
			c.tasks[i].Running = false
			c.tasks[i].State = "TASK_FAILED"
		}
	}
}

// SetPlanScript replaces the status sequence for plan.
func (c *Cluster) SetPlanScript(plan string, statuses ...cluster.PlanStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[plan] = append([]cluster.PlanStatus(nil), statuses...)
}

// PlanPolls returns how many times plan has been queried.
func (c *Cluster) PlanPolls(plan string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polls[plan]
}

// FailNext makes the next len(errs) calls to method return the given errors
// in order.
func (c *Cluster) FailNext(method string, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[method] = append(c.failures[method], errs...)
}

// SetEndpoint registers an endpoint document.
func (c *Cluster) SetEndpoint(name string, doc []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoints[name] = doc
}

// SetMetrics marks a task prefix as emitting metrics.
func (c *Cluster) SetMetrics(taskPrefix string, emitting bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics[taskPrefix] = emitting
}

// SetEnv sets one app-config env value without triggering a deployment.
func (c *Cluster) SetEnv(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appConfig.Env[key] = value
}

// Calls returns the mutating calls made so far, e.g. "replace name-0".
func (c *Cluster) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// IDs returns the current identifiers for prefix.
func (c *Cluster) IDs(prefix string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for _, t := range c.tasks {
		if t.MatchesPrefix(prefix) {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

func (c *Cluster) popFailure(method string) error {
	errs := c.failures[method]
	if len(errs) == 0 {
		return nil
	}
	c.failures[method] = errs[1:]
	return errs[0]
}

func (c *Cluster) record(format string, args ...interface{}) {
	c.calls = append(c.calls, fmt.Sprintf(format, args...))
}

func (c *Cluster) checkService(service string) error {
	if service != c.service {
		return fmt.Errorf("unknown service %q", service)
	}
	return nil
}

// ListTaskInstances implements cluster.Orchestrator.
func (c *Cluster) ListTaskInstances(ctx context.Context, service, groupPrefix string) ([]cluster.TaskInstance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.popFailure("ListTaskInstances"); err != nil {
		return nil, err
	}
	if err := c.checkService(service); err != nil {
		return nil, err
	}
	var out []cluster.TaskInstance
	for _, t := range c.tasks {
		if t.MatchesPrefix(groupPrefix) {
			out = append(out, t)
		}
	}
	return out, nil
}

// SchedulerInstances implements cluster.Orchestrator.
func (c *Cluster) SchedulerInstances(ctx context.Context, service string) ([]cluster.TaskInstance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.popFailure("SchedulerInstances"); err != nil {
		return nil, err
	}
	return []cluster.TaskInstance{{ID: "scheduler", Name: service, Host: c.schedulerHost, Running: true}}, nil
}

// KillProcess implements cluster.Orchestrator. Killing a task's process makes
// the orchestrator relaunch that task.
func (c *Cluster) KillProcess(ctx context.Context, pattern string, at cluster.TaskInstance) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.popFailure("KillProcess"); err != nil {
		return err
	}
	if pattern == "" {
		return fmt.Errorf("empty kill pattern")
	}
	c.record("kill %s@%s", pattern, at.Host)
	if at.Host == c.schedulerHost && at.Name == c.service {
		return nil
	}
	found := false
	for i := range c.tasks {
		if c.tasks[i].Name == at.Name && c.tasks[i].Host == at.Host {
			found = true
			c.seq++
			c.tasks[i].ID = fmt.Sprintf("%s__%d", c.tasks[i].Name, c.seq)
		}
	}
	if !found {
		return fmt.Errorf("no process matching %q on %s", pattern, at.Host)
	}
	c.scripts[cluster.PlanRecovery] = append([]cluster.PlanStatus(nil), c.RecoveryScript...)
	return nil
}

// Plan implements cluster.Scheduler.
func (c *Cluster) Plan(ctx context.Context, service, plan string) (*cluster.Plan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls[plan]++
	if err := c.popFailure("Plan"); err != nil {
		return nil, err
	}
	if err := c.checkService(service); err != nil {
		return nil, err
	}
	script, ok := c.scripts[plan]
	if !ok || len(script) == 0 {
		return nil, fmt.Errorf("unknown plan %q", plan)
	}
	status := script[0]
	if len(script) > 1 {
		c.scripts[plan] = script[1:]
	}
	return &cluster.Plan{
		Name:   plan,
		Status: status,
		Raw:    map[string]interface{}{"status": string(status)},
	}, nil
}

func (c *Cluster) podAction(verb, service, pod string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.popFailure(verb); err != nil {
		return err
	}
	if err := c.checkService(service); err != nil {
		return err
	}
	if n := c.relaunchLocked(pod + "-"); n == 0 {
		return fmt.Errorf("pod %q not found", pod)
	}
	c.record("%s %s", strings.ToLower(strings.TrimSuffix(verb, "Pod")), pod)
	c.scripts[cluster.PlanRecovery] = append([]cluster.PlanStatus(nil), c.RecoveryScript...)
	return nil
}

// RestartPod implements cluster.Scheduler.
func (c *Cluster) RestartPod(ctx context.Context, service, pod string) error {
	return c.podAction("RestartPod", service, pod)
}

// ReplacePod implements cluster.Scheduler.
func (c *Cluster) ReplacePod(ctx context.Context, service, pod string) error {
	return c.podAction("ReplacePod", service, pod)
}

// Endpoint implements cluster.Scheduler.
func (c *Cluster) Endpoint(ctx context.Context, service, name string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.popFailure("Endpoint"); err != nil {
		return nil, err
	}
	doc, ok := c.endpoints[name]
	if !ok {
		return nil, fmt.Errorf("endpoint %q not found", name)
	}
	return doc, nil
}

// GetAppConfig implements cluster.ConfigPlane.
func (c *Cluster) GetAppConfig(ctx context.Context, service string) (cluster.AppConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.popFailure("GetAppConfig"); err != nil {
		return cluster.AppConfig{}, err
	}
	if err := c.checkService(service); err != nil {
		return cluster.AppConfig{}, err
	}
	return c.appConfig.Clone(), nil
}

// UpdateAppConfig implements cluster.ConfigPlane.
func (c *Cluster) UpdateAppConfig(ctx context.Context, service string, cfg cluster.AppConfig, timeout time.Duration) error {
	c.mu.Lock()
	if err := c.popFailure("UpdateAppConfig"); err != nil {
		c.mu.Unlock()
		return err
	}
	if err := c.checkService(service); err != nil {
		c.mu.Unlock()
		return err
	}
	old := c.appConfig
	c.appConfig = cfg.Clone()
	c.record("update-config")
	c.scripts[cluster.PlanDeploy] = append([]cluster.PlanStatus(nil), c.DeployScript...)
	hook := c.OnConfigUpdate
	if hook == nil {
		if len(c.ConfigDependents) == 0 {
			c.relaunchLocked("")
		}
		for _, prefix := range c.ConfigDependents {
			c.relaunchLocked(prefix)
		}
	}
	updated := c.appConfig.Clone()
	c.mu.Unlock()

	if hook != nil {
		hook(c, old, updated)
	}
	return nil
}

// WaitForAnyMetric implements cluster.Metrics.
func (c *Cluster) WaitForAnyMetric(ctx context.Context, service, taskPrefix string, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.metrics[taskPrefix] {
		return nil
	}
	return fmt.Errorf("no metrics for %s within %v", taskPrefix, timeout)
}

// Install implements cluster.Installer.
func (c *Cluster) Install(ctx context.Context, service string, pkg cluster.Package) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.popFailure("Install"); err != nil {
		return err
	}
	c.record("install %s", pkg.Name)
	return nil
}

// Upgrade implements cluster.Installer.
func (c *Cluster) Upgrade(ctx context.Context, service string, pkg cluster.Package) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.popFailure("Upgrade"); err != nil {
		return err
	}
	c.record("upgrade %s", pkg.Name)
	return nil
}

// Uninstall implements cluster.Installer.
func (c *Cluster) Uninstall(ctx context.Context, service string, pkg cluster.Package) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.popFailure("Uninstall"); err != nil {
		return err
	}
	c.record("uninstall %s", pkg.Name)
	return nil
}

var _ cluster.Cluster = (*Cluster)(nil)
