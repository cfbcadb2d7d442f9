package cluster

import (
	"context"
	"strings"
	"time"
)

// TaskInstance is one running unit of the service as reported by the
// orchestrator.
type TaskInstance struct {
	// ID changes whenever the instance is killed or replaced.
	ID string `json:"id"`
	// Name is the task name, e.g. "journal-0-node".
	Name string `json:"name"`
	// Host is where the instance runs (agent hostname or node name).
	Host string `json:"host,omitempty"`
	// State is the orchestrator's state string, e.g. TASK_RUNNING or Running.
	State string `json:"state,omitempty"`
	// Running reports whether the orchestrator considers the instance live.
	Running bool `json:"running"`
	// AgentID and ContainerID locate the instance for metrics and kills: the
	// Mesos agent and container on DC/OS, the pod and container on Kubernetes.
	AgentID     string `json:"agent_id,omitempty"`
	ContainerID string `json:"container_id,omitempty"`
	// Pod is the scheduler pod instance name, e.g. "journal-0".
	Pod string `json:"pod,omitempty"`
}

// MatchesPrefix reports whether the instance belongs to the group named by
// prefix. An empty prefix matches everything.
func (t TaskInstance) MatchesPrefix(prefix string) bool {
	return strings.HasPrefix(t.Name, prefix)
}

// PlanStatus is the status of a scheduler plan, normalised across backends.
type PlanStatus string

const (
	PlanNotStarted PlanStatus = "NOT_STARTED"
	PlanKickedOff  PlanStatus = "KICKED_OFF"
	PlanInProgress PlanStatus = "IN_PROGRESS"
	PlanComplete   PlanStatus = "COMPLETE"
	PlanError      PlanStatus = "ERROR"
	PlanUnknown    PlanStatus = "UNKNOWN"
)

// ParsePlanStatus maps a scheduler status string to a PlanStatus.
func ParsePlanStatus(s string) PlanStatus {
	switch strings.ToUpper(s) {
	case "COMPLETE":
		return PlanComplete
	case "STARTING", "STARTED", "KICKED_OFF":
		return PlanKickedOff
	case "IN_PROGRESS":
		return PlanInProgress
	case "PENDING", "WAITING", "PREPARED", "NOT_STARTED":
		return PlanNotStarted
	case "ERROR":
		return PlanError
	default:
		return PlanUnknown
	}
}

// Underway reports whether the plan has begun executing but not finished.
func (s PlanStatus) Underway() bool {
	return s == PlanKickedOff || s == PlanInProgress
}

const (
	PlanDeploy   = "deploy"
	PlanRecovery = "recovery"
)

// Plan is a scheduler plan. Raw holds the scheduler's document where one
// exists so plans can be compared structurally.
type Plan struct {
	Name   string                 `json:"name"`
	Status PlanStatus             `json:"status"`
	Phases []Phase                `json:"phases,omitempty"`
	Errors []string               `json:"errors,omitempty"`
	Raw    map[string]interface{} `json:"-"`
}

// Phase is one phase of a plan.
type Phase struct {
	Name   string     `json:"name"`
	Status PlanStatus `json:"status"`
	Steps  []Step     `json:"steps,omitempty"`
}

// Step is one step of a phase.
type Step struct {
	Name   string     `json:"name"`
	Status PlanStatus `json:"status"`
}

// AppConfig is the scheduler's application configuration. Env is the part
// converge edits; Raw carries the whole document back on update.
type AppConfig struct {
	ID  string                 `json:"id"`
	Env map[string]string      `json:"env"`
	Raw map[string]interface{} `json:"-"`
}

// Clone returns a deep copy of the env and a shallow copy of Raw.
func (c AppConfig) Clone() AppConfig {
	out := AppConfig{ID: c.ID, Env: make(map[string]string, len(c.Env))}
	for k, v := range c.Env {
		out.Env[k] = v
	}
	if c.Raw != nil {
		out.Raw = make(map[string]interface{}, len(c.Raw))
		for k, v := range c.Raw {
			out.Raw[k] = v
		}
	}
	return out
}

// Orchestrator exposes task lifecycle queries and process-level actions.
type Orchestrator interface {
	// ListTaskInstances returns every instance of service whose name starts
	// with groupPrefix.
	ListTaskInstances(ctx context.Context, service, groupPrefix string) ([]TaskInstance, error)
	// SchedulerInstances returns where the service's scheduler runs.
	SchedulerInstances(ctx context.Context, service string) ([]TaskInstance, error)
	// KillProcess kills every process matching pattern at the given instance.
	KillProcess(ctx context.Context, pattern string, at TaskInstance) error
}

// Scheduler exposes the service scheduler's plan and pod APIs.
type Scheduler interface {
	Plan(ctx context.Context, service, plan string) (*Plan, error)
	RestartPod(ctx context.Context, service, pod string) error
	ReplacePod(ctx context.Context, service, pod string) error
	// Endpoint returns a raw endpoint document such as hdfs-site.xml.
	Endpoint(ctx context.Context, service, name string) ([]byte, error)
}

// ConfigPlane reads and writes the scheduler's application configuration.
type ConfigPlane interface {
	GetAppConfig(ctx context.Context, service string) (AppConfig, error)
	// UpdateAppConfig submits cfg and waits up to timeout for the control
	// plane to accept it (not for the service to converge).
	UpdateAppConfig(ctx context.Context, service string, cfg AppConfig, timeout time.Duration) error
}

// Metrics checks that a task is emitting metrics.
type Metrics interface {
	WaitForAnyMetric(ctx context.Context, service, taskPrefix string, timeout time.Duration) error
}

// Package describes what to install.
type Package struct {
	Name    string                 `json:"name" yaml:"name"`
	Version string                 `json:"version,omitempty" yaml:"version,omitempty"`
	Options map[string]interface{} `json:"options,omitempty" yaml:"options,omitempty"`
}

// Installer installs, upgrades and removes the service.
type Installer interface {
	Install(ctx context.Context, service string, pkg Package) error
	Upgrade(ctx context.Context, service string, pkg Package) error
	Uninstall(ctx context.Context, service string, pkg Package) error
}

// Cluster aggregates every capability a backend provides.
type Cluster interface {
	Orchestrator
	Scheduler
	ConfigPlane
	Metrics
	Installer
}
