package dcos

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"converge/pkg/logging"
)

type containerMetrics struct {
	Datapoints []struct {
		Name  string  `json:"name"`
		Value float64 `json:"value"`
	} `json:"datapoints"`
}

// waitForAnyMetric polls the agent metrics API for the first running task
// matching taskPrefix until it reports at least one app datapoint.
func (c *Client) waitForAnyMetric(ctx context.Context, service, taskPrefix string, interval, timeout time.Duration) error {
	last := "no poll completed"
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(ctx context.Context) (bool, error) {
		tasks, err := c.ListTaskInstances(ctx, service, taskPrefix)
		if err != nil {
			// Keep the previous observation when the deadline cut the request.
			if ctx.Err() == nil {
				last = err.Error()
			}
			return false, nil
		}
		for _, t := range tasks {
			if !t.Running || t.AgentID == "" || t.ContainerID == "" {
				continue
			}
			path := "/system/v1/agent/" + url.PathEscape(t.AgentID) + "/metrics/v0/containers/" + url.PathEscape(t.ContainerID) + "/app"
			var m containerMetrics
			if err := c.getJSON(ctx, path, &m); err != nil {
				if ctx.Err() == nil {
					last = err.Error()
				}
				return false, nil
			}
			if len(m.Datapoints) > 0 {
				logging.Debug("DCOS", "%s reports %d datapoints", t.Name, len(m.Datapoints))
				return true, nil
			}
			last = fmt.Sprintf("%s reported no datapoints", t.Name)
			return false, nil
		}
		last = fmt.Sprintf("no running task matching %q", taskPrefix)
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("no metrics for %s within %v (last: %s)", taskPrefix, timeout, last)
	}
	return nil
}
