// Package kube maps the cluster contracts onto a Kubernetes deployment of the
// service.
//
// Every object of the deployment carries the instance label with the
// service's base name (slashes become dashes, "/test/hdfs" -> "test-hdfs").
// StatefulSets are named "<base>-<group>" and their pods "<base>-<group>-N";
// each container of a pod is one task instance named "<group>-N-<container>",
// which lines up with the task names the SDK scheduler uses on DC/OS.
//
// The plans are derived rather than read:
//
//   - deploy follows the StatefulSet rollouts (observed generation, updated
//     and ready replicas, current and update revisions)
//   - recovery follows pod readiness and termination for StatefulSets that
//     are not rolling out
//
// Typical use:
//
//	c, err := kube.New(kube.Options{Namespace: "hdfs", InstanceLabel: "app.kubernetes.io/instance"})
//	if err != nil {
//		return err
//	}
//	tasks, err := c.ListTaskInstances(ctx, "hdfs", "journal")
package kube
