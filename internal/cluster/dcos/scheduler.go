package dcos

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"converge/internal/cluster"
)

type sdkPlan struct {
	Status string     `json:"status"`
	Errors []string   `json:"errors"`
	Phases []sdkPhase `json:"phases"`
}

type sdkPhase struct {
	Name   string    `json:"name"`
	Status string    `json:"status"`
	Steps  []sdkStep `json:"steps"`
}

type sdkStep struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Plan implements cluster.Scheduler against the SDK plans API. The scheduler
// answers 417 for plans that are not complete, with the plan in the body.
func (c *Client) Plan(ctx context.Context, service, plan string) (*cluster.Plan, error) {
	path := servicePath(service) + "/v1/plans/" + url.PathEscape(plan)
	_, data, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   path,
		ok:     []int{http.StatusExpectationFailed},
	})
	if err != nil {
		return nil, err
	}

	var p sdkPlan
	if err := decode(path, data, &p); err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	_ = json.Unmarshal(data, &raw)

	out := &cluster.Plan{
		Name:   plan,
		Status: cluster.ParsePlanStatus(p.Status),
		Errors: p.Errors,
		Raw:    raw,
	}
	for _, ph := range p.Phases {
		phase := cluster.Phase{Name: ph.Name, Status: cluster.ParsePlanStatus(ph.Status)}
		for _, st := range ph.Steps {
			phase.Steps = append(phase.Steps, cluster.Step{Name: st.Name, Status: cluster.ParsePlanStatus(st.Status)})
		}
		out.Phases = append(out.Phases, phase)
	}
	return out, nil
}

func (c *Client) podCommand(ctx context.Context, service, pod, verb string) error {
	if pod == "" {
		return fmt.Errorf("pod name must not be empty")
	}
	path := servicePath(service) + "/v1/pod/" + url.PathEscape(pod) + "/" + verb
	_, _, err := c.do(ctx, request{method: http.MethodPost, path: path})
	return err
}

// RestartPod implements cluster.Scheduler.
func (c *Client) RestartPod(ctx context.Context, service, pod string) error {
	return c.podCommand(ctx, service, pod, "restart")
}

// ReplacePod implements cluster.Scheduler.
func (c *Client) ReplacePod(ctx context.Context, service, pod string) error {
	return c.podCommand(ctx, service, pod, "replace")
}

// Endpoint implements cluster.Scheduler. Named endpoints such as
// hdfs-site.xml are returned verbatim.
func (c *Client) Endpoint(ctx context.Context, service, name string) ([]byte, error) {
	path := servicePath(service) + "/v1/endpoints/" + url.PathEscape(name)
	_, data, err := c.do(ctx, request{method: http.MethodGet, path: path, accept: "*/*"})
	return data, err
}

// Endpoints lists the endpoint names the scheduler publishes.
func (c *Client) Endpoints(ctx context.Context, service string) ([]string, error) {
	var names []string
	if err := c.getJSON(ctx, servicePath(service)+"/v1/endpoints", &names); err != nil {
		return nil, err
	}
	return names, nil
}
