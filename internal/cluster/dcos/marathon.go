package dcos

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"converge/internal/cluster"
	"converge/pkg/logging"
)

var deploymentPollInterval = 2 * time.Second

// readOnlyAppFields are returned by GET but rejected by PUT.
var readOnlyAppFields = []string{
	"version", "versionInfo", "tasks", "tasksStaged", "tasksRunning", "tasksHealthy",
	"tasksUnhealthy", "deployments", "lastTaskFailure", "readinessCheckResults",
	"taskStats", "uris", "ports",
}

type marathonTask struct {
	ID    string `json:"id"`
	Host  string `json:"host"`
	State string `json:"state"`
}

type marathonDeployment struct {
	ID           string   `json:"id"`
	AffectedApps []string `json:"affectedApps"`
}

func marathonAppPath(service string) string {
	return "/marathon/v2/apps" + appID(service)
}

func (c *Client) marathonApp(ctx context.Context, service string) (map[string]interface{}, error) {
	var resp struct {
		App map[string]interface{} `json:"app"`
	}
	if err := c.getJSON(ctx, marathonAppPath(service), &resp); err != nil {
		return nil, err
	}
	if resp.App == nil {
		return nil, fmt.Errorf("marathon returned no app for %s", appID(service))
	}
	return resp.App, nil
}

// GetAppConfig implements cluster.ConfigPlane on the scheduler's Marathon app.
// Env holds the string-valued environment; secret references stay in Raw.
func (c *Client) GetAppConfig(ctx context.Context, service string) (cluster.AppConfig, error) {
	app, err := c.marathonApp(ctx, service)
	if err != nil {
		return cluster.AppConfig{}, err
	}
	cfg := cluster.AppConfig{ID: appID(service), Env: map[string]string{}, Raw: app}
	if env, ok := app["env"].(map[string]interface{}); ok {
		for k, v := range env {
			if s, ok := v.(string); ok {
				cfg.Env[k] = s
			}
		}
	}
	return cfg, nil
}

// UpdateAppConfig implements cluster.ConfigPlane. It PUTs the app with the
// new environment and waits for Marathon's deployment of it to finish, which
// restarts the scheduler but not the service tasks.
func (c *Client) UpdateAppConfig(ctx context.Context, service string, cfg cluster.AppConfig, timeout time.Duration) error {
	app := make(map[string]interface{}, len(cfg.Raw))
	for k, v := range cfg.Raw {
		if !slices.Contains(readOnlyAppFields, k) {
			app[k] = v
		}
	}
	env := map[string]interface{}{}
	if old, ok := cfg.Raw["env"].(map[string]interface{}); ok {
		for k, v := range old {
			if _, isString := v.(string); !isString {
				env[k] = v
			}
		}
	}
	for k, v := range cfg.Env {
		env[k] = v
	}
	app["env"] = env
	app["id"] = appID(service)

	var resp struct {
		DeploymentID string `json:"deploymentId"`
	}
	path := marathonAppPath(service)
	_, data, err := c.do(ctx, request{
		method: http.MethodPut,
		path:   path,
		query:  url.Values{"force": {"true"}},
		body:   app,
	})
	if err != nil {
		return err
	}
	if err := decode(path, data, &resp); err != nil {
		return err
	}
	logging.Info("DCOS", "app %s updated (deployment %s), waiting up to %v", appID(service), resp.DeploymentID, timeout)
	return c.waitForDeployments(ctx, service, timeout)
}

// waitForDeployments polls until Marathon has no deployment affecting the app.
func (c *Client) waitForDeployments(ctx context.Context, service string, timeout time.Duration) error {
	id := appID(service)
	var lastErr error
	err := wait.PollUntilContextTimeout(ctx, deploymentPollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		var deployments []marathonDeployment
		if err := c.getJSON(ctx, "/marathon/v2/deployments", &deployments); err != nil {
			lastErr = err
			return false, nil
		}
		for _, d := range deployments {
			if slices.Contains(d.AffectedApps, id) {
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		if lastErr != nil {
			return fmt.Errorf("deployment of %s did not finish within %v: %w", id, timeout, lastErr)
		}
		return fmt.Errorf("deployment of %s did not finish within %v: %w", id, timeout, err)
	}
	return nil
}

// SchedulerInstances implements cluster.Orchestrator from the Marathon app's
// tasks. Each instance is named after the service.
func (c *Client) SchedulerInstances(ctx context.Context, service string) ([]cluster.TaskInstance, error) {
	var resp struct {
		App struct {
			Tasks []marathonTask `json:"tasks"`
		} `json:"app"`
	}
	if err := c.getJSON(ctx, marathonAppPath(service), &resp); err != nil {
		return nil, err
	}
	var out []cluster.TaskInstance
	for _, t := range resp.App.Tasks {
		out = append(out, cluster.TaskInstance{
			ID:      t.ID,
			Name:    service,
			Host:    t.Host,
			State:   t.State,
			Running: t.State == "" || t.State == "TASK_RUNNING",
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("scheduler app %s has no running tasks", appID(service))
	}
	return out, nil
}
