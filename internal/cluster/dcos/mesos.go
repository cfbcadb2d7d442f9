package dcos

import (
	"context"
	"strings"

	"converge/internal/cluster"
)

type mesosState struct {
	Frameworks []mesosFramework `json:"frameworks"`
	Slaves     []mesosAgent     `json:"slaves"`
}

type mesosFramework struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Active bool        `json:"active"`
	Tasks  []mesosTask `json:"tasks"`
}

type mesosAgent struct {
	ID       string `json:"id"`
	Hostname string `json:"hostname"`
}

type mesosTask struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	State    string        `json:"state"`
	SlaveID  string        `json:"slave_id"`
	Statuses []mesosStatus `json:"statuses"`
}

type mesosStatus struct {
	State           string `json:"state"`
	ContainerStatus struct {
		ContainerID struct {
			Value string `json:"value"`
		} `json:"container_id"`
	} `json:"container_status"`
}

// frameworkMatches reports whether a Mesos framework name belongs to
// service. Foldered services register as "/test/hdfs", "test/hdfs" or
// "test__hdfs" depending on the SDK version.
func frameworkMatches(framework, service string) bool {
	trimmed := strings.Trim(service, "/")
	switch strings.Trim(framework, "/") {
	case trimmed, strings.ReplaceAll(trimmed, "/", "__"):
		return true
	default:
		return false
	}
}

func (c *Client) mesosState(ctx context.Context) (*mesosState, error) {
	var state mesosState
	if err := c.getJSON(ctx, "/mesos/master/state", &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// ListTaskInstances implements cluster.Orchestrator on Mesos master state.
// The instance identifier is the Mesos task id, which changes on relaunch.
func (c *Client) ListTaskInstances(ctx context.Context, service, groupPrefix string) ([]cluster.TaskInstance, error) {
	state, err := c.mesosState(ctx)
	if err != nil {
		return nil, err
	}

	hosts := make(map[string]string, len(state.Slaves))
	for _, a := range state.Slaves {
		hosts[a.ID] = a.Hostname
	}

	var out []cluster.TaskInstance
	for _, fw := range state.Frameworks {
		if !frameworkMatches(fw.Name, service) {
			continue
		}
		for _, t := range fw.Tasks {
			if !strings.HasPrefix(t.Name, groupPrefix) {
				continue
			}
			out = append(out, cluster.TaskInstance{
				ID:          t.ID,
				Name:        t.Name,
				Host:        hosts[t.SlaveID],
				State:       t.State,
				Running:     t.State == "TASK_RUNNING",
				AgentID:     t.SlaveID,
				ContainerID: containerID(t),
				Pod:         podName(t.Name),
			})
		}
	}
	return out, nil
}

// containerID returns the container of the latest status carrying one.
func containerID(t mesosTask) string {
	for i := len(t.Statuses) - 1; i >= 0; i-- {
		if id := t.Statuses[i].ContainerStatus.ContainerID.Value; id != "" {
			return id
		}
	}
	return ""
}

// podName maps an SDK task name to its pod instance: "name-0-zkfc" -> "name-0".
func podName(task string) string {
	if i := strings.LastIndex(task, "-"); i > 0 {
		return task[:i]
	}
	return task
}
