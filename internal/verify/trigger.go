package verify

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"converge/internal/cluster"
	"converge/pkg/logging"
)

// TriggerBackend is what a Trigger needs from the cluster.
type TriggerBackend interface {
	cluster.Orchestrator
	cluster.Scheduler
	cluster.ConfigPlane
}

// Trigger applies change actions. It never waits for the service to
// reconcile and never retries a rejected action.
type Trigger struct {
	backend       TriggerBackend
	service       string
	configTimeout time.Duration
}

// NewTrigger creates a Trigger for service. configTimeout bounds how long a
// config update waits for the control plane to accept it.
func NewTrigger(backend TriggerBackend, service string, configTimeout time.Duration) *Trigger {
	if configTimeout <= 0 {
		configTimeout = 15 * time.Minute
	}
	return &Trigger{backend: backend, service: service, configTimeout: configTimeout}
}

// Apply submits action. A rejection is returned as *TriggerError.
func (t *Trigger) Apply(ctx context.Context, action Action) error {
	logging.Info("Trigger", "%s: %s", t.service, action)

	var (
		err     error
		applied []string
	)
	switch a := action.(type) {
	case ProcessKill:
		applied, err = t.kill(ctx, a)
	case PodReplace:
		err = t.backend.ReplacePod(ctx, t.service, a.Pod)
	case PodRestart:
		err = t.backend.RestartPod(ctx, t.service, a.Pod)
	case ConfigFieldUpdate:
		err = t.updateConfig(ctx, a.Field, func(string) (string, error) { return a.Value, nil })
	case ScaleConfig:
		err = t.updateConfig(ctx, a.Field, func(old string) (string, error) { return scaleValue(old, a.Delta) })
	default:
		err = fmt.Errorf("unsupported action type %T", action)
	}
	if err != nil {
		return &TriggerError{Action: action, Err: err, Applied: applied}
	}
	return nil
}

// Resolve maps a kill target to the concrete instances the kill will run
// against, one per distinct (host, pod).
func (t *Trigger) Resolve(ctx context.Context, target Target) ([]cluster.TaskInstance, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	var (
		tasks []cluster.TaskInstance
		err   error
	)
	switch {
	case target.Scheduler:
		tasks, err = t.backend.SchedulerInstances(ctx, t.service)
	case target.Pod != "":
		var all []cluster.TaskInstance
		all, err = t.backend.ListTaskInstances(ctx, t.service, target.Pod)
		for _, task := range all {
			if task.Pod == target.Pod || task.Name == target.Pod || strings.HasPrefix(task.Name, target.Pod+"-") {
				tasks = append(tasks, task)
			}
		}
	case target.Host != "":
		var all []cluster.TaskInstance
		all, err = t.backend.ListTaskInstances(ctx, t.service, "")
		for _, task := range all {
			if task.Host == target.Host {
				tasks = append(tasks, task)
			}
		}
	default:
		tasks, err = t.backend.ListTaskInstances(ctx, t.service, target.Group)
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []cluster.TaskInstance
	for _, task := range tasks {
		key := task.Host + "/" + task.Pod
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, task)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s matched no running instances", target)
	}
	return out, nil
}

// kill runs the kill on every resolved instance in order and returns the
// instances it hit before any failure.
func (t *Trigger) kill(ctx context.Context, a ProcessKill) ([]string, error) {
	if strings.TrimSpace(a.Pattern) == "" {
		return nil, fmt.Errorf("kill pattern must not be empty")
	}
	instances, err := t.Resolve(ctx, a.Target)
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, inst := range instances {
		logging.Debug("Trigger", "killing %q on %s (%s)", a.Pattern, inst.Host, inst.Name)
		if err := t.backend.KillProcess(ctx, a.Pattern, inst); err != nil {
			return applied, fmt.Errorf("kill on %s: %w", inst.Host, err)
		}
		applied = append(applied, inst.Name+"@"+inst.Host)
	}
	return applied, nil
}

func (t *Trigger) updateConfig(ctx context.Context, field string, next func(old string) (string, error)) error {
	if field == "" {
		return fmt.Errorf("config field must not be empty")
	}
	cfg, err := t.backend.GetAppConfig(ctx, t.service)
	if err != nil {
		return fmt.Errorf("failed to read app config: %w", err)
	}
	updated := cfg.Clone()
	value, err := next(updated.Env[field])
	if err != nil {
		return fmt.Errorf("field %s: %w", field, err)
	}
	updated.Env[field] = value
	logging.Debug("Trigger", "config %s: %q -> %q", field, cfg.Env[field], value)
	return t.backend.UpdateAppConfig(ctx, t.service, updated, t.configTimeout)
}

// scaleValue adds delta to a numeric string, keeping integers integral and
// trimming float noise.
func scaleValue(old string, delta float64) (string, error) {
	if old == "" {
		return "", fmt.Errorf("field is not set")
	}
	if n, err := strconv.ParseInt(old, 10, 64); err == nil && delta == math.Trunc(delta) {
		return strconv.FormatInt(n+int64(delta), 10), nil
	}
	f, err := strconv.ParseFloat(old, 64)
	if err != nil {
		return "", fmt.Errorf("value %q is not numeric", old)
	}
	v := math.Round((f+delta)*1e6) / 1e6
	return strconv.FormatFloat(v, 'f', -1, 64), nil
}
