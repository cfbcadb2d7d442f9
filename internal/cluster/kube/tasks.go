package kube

import (
	"context"
	"fmt"
	"sort"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/labels"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"converge/internal/cluster"
)

func (c *Cluster) listPods(ctx context.Context, service string) ([]corev1.Pod, error) {
	var pods corev1.PodList
	if err := c.client.List(ctx, &pods, client.InNamespace(c.opts.Namespace), c.selector(service)); err != nil {
		return nil, fmt.Errorf("failed to list pods of %s: %w", service, err)
	}
	sort.Slice(pods.Items, func(i, j int) bool { return pods.Items[i].Name < pods.Items[j].Name })
	return pods.Items, nil
}

// ListTaskInstances implements cluster.Orchestrator. Each container of each
// labelled pod is one instance.
func (c *Cluster) ListTaskInstances(ctx context.Context, service, groupPrefix string) ([]cluster.TaskInstance, error) {
	pods, err := c.listPods(ctx, service)
	if err != nil {
		return nil, err
	}
	var out []cluster.TaskInstance
	for i := range pods {
		for _, t := range podTasks(service, &pods[i]) {
			if t.MatchesPrefix(groupPrefix) {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

// podTasks returns one instance per regular container. The identifier is the
// runtime's container ID, which changes whenever the container restarts; a
// container that never started falls back to the pod UID.
func podTasks(service string, pod *corev1.Pod) []cluster.TaskInstance {
	statuses := make(map[string]corev1.ContainerStatus, len(pod.Status.ContainerStatuses))
	for _, cs := range pod.Status.ContainerStatuses {
		statuses[cs.Name] = cs
	}
	short := shortName(service, pod.Name)
	tasks := make([]cluster.TaskInstance, 0, len(pod.Spec.Containers))
	for _, container := range pod.Spec.Containers {
		cs := statuses[container.Name]
		id := cs.ContainerID
		if id == "" {
			id = string(pod.UID) + "/" + container.Name
		}
		tasks = append(tasks, cluster.TaskInstance{
			ID:          id,
			Name:        short + "-" + container.Name,
			Host:        pod.Spec.NodeName,
			State:       containerState(pod, cs),
			Running:     pod.DeletionTimestamp == nil && cs.State.Running != nil,
			AgentID:     pod.Name,
			ContainerID: cs.ContainerID,
			Pod:         short,
		})
	}
	return tasks
}

func containerState(pod *corev1.Pod, cs corev1.ContainerStatus) string {
	switch {
	case pod.DeletionTimestamp != nil:
		return "Terminating"
	case cs.State.Running != nil:
		return "Running"
	case cs.State.Waiting != nil:
		return "Waiting:" + cs.State.Waiting.Reason
	case cs.State.Terminated != nil:
		return "Terminated:" + cs.State.Terminated.Reason
	default:
		return string(pod.Status.Phase)
	}
}

// SchedulerInstances implements cluster.Orchestrator using the operator pods
// matched by the scheduler selector.
func (c *Cluster) SchedulerInstances(ctx context.Context, service string) ([]cluster.TaskInstance, error) {
	if c.opts.SchedulerSelector == "" {
		return nil, fmt.Errorf("no scheduler selector configured")
	}
	sel, err := labels.Parse(c.opts.SchedulerSelector)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler selector %q: %w", c.opts.SchedulerSelector, err)
	}
	var pods corev1.PodList
	if err := c.client.List(ctx, &pods, client.InNamespace(c.opts.Namespace), client.MatchingLabelsSelector{Selector: sel}); err != nil {
		return nil, fmt.Errorf("failed to list scheduler pods: %w", err)
	}
	var out []cluster.TaskInstance
	for _, pod := range pods.Items {
		if pod.DeletionTimestamp != nil || pod.Status.Phase != corev1.PodRunning {
			continue
		}
		out = append(out, cluster.TaskInstance{
			ID:      string(pod.UID),
			Name:    service,
			Host:    pod.Spec.NodeName,
			State:   string(pod.Status.Phase),
			Running: true,
			AgentID: pod.Name,
			Pod:     pod.Name,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no running scheduler pods match %q", c.opts.SchedulerSelector)
	}
	return out, nil
}
