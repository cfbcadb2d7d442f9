package kube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"

	"converge/internal/cluster"
	"converge/pkg/logging"
)

// Executor runs a command in a container.
type Executor interface {
	Exec(ctx context.Context, namespace, pod, container string, command []string) (stdout, stderr string, err error)
}

// spdyExecutor execs through the API server's pods/exec subresource.
type spdyExecutor struct {
	config    *rest.Config
	clientset kubernetes.Interface
}

func (e *spdyExecutor) Exec(ctx context.Context, namespace, pod, container string, command []string) (string, string, error) {
	req := e.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(namespace).
		Name(pod).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   command,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(e.config, "POST", req.URL())
	if err != nil {
		return "", "", fmt.Errorf("failed to create executor for %s: %w", pod, err)
	}
	var stdout, stderr bytes.Buffer
	err = executor.StreamWithContext(ctx, remotecommand.StreamOptions{Stdout: &stdout, Stderr: &stderr})
	return stdout.String(), stderr.String(), err
}

// killScript checks that a process matches and then kills it in the
// background, so the exec session returns before the container's main
// process dies. The pattern is guarded so the script's own command line does
// not match it: "journalnode" -> "[j]ournalnode".
func killScript(pattern string) string {
	guarded := pattern
	for i, r := range pattern {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			guarded = pattern[:i] + "[" + string(r) + "]" + pattern[i+len(string(r)):]
			break
		}
	}
	quoted := "'" + strings.ReplaceAll(guarded, "'", `'\''`) + "'"
	return "pgrep -f -- " + quoted + " >/dev/null || exit 1; (sleep 1; pkill -9 -f -- " + quoted + ") >/dev/null 2>&1 &"
}

// execContainer picks the container of an instance: the task name suffix
// after the pod name, else the configured default.
func (c *Cluster) execContainer(at cluster.TaskInstance) string {
	if at.Pod != "" {
		if name, ok := strings.CutPrefix(at.Name, at.Pod+"-"); ok && name != "" {
			return name
		}
	}
	return c.opts.Container
}

// KillProcess implements cluster.Orchestrator by exec'ing pkill in the
// instance's container.
func (c *Cluster) KillProcess(ctx context.Context, pattern string, at cluster.TaskInstance) error {
	if pattern == "" {
		return fmt.Errorf("empty kill pattern")
	}
	if c.exec == nil {
		return fmt.Errorf("no executor configured")
	}
	if at.AgentID == "" {
		return fmt.Errorf("instance %s has no pod", at.Name)
	}
	container := c.execContainer(at)
	_, stderr, err := c.exec.Exec(ctx, c.opts.Namespace, at.AgentID, container, []string{"sh", "-c", killScript(pattern)})
	if err != nil {
		var exit interface{ ExitStatus() int }
		if errors.As(err, &exit) && exit.ExitStatus() == 1 {
			return fmt.Errorf("no process matching %q in %s/%s", pattern, at.AgentID, container)
		}
		return fmt.Errorf("failed to kill %q in %s/%s: %w (stderr: %s)", pattern, at.AgentID, container, err, strings.TrimSpace(stderr))
	}
	logging.Info("Kube", "Killed %q in %s/%s", pattern, at.AgentID, container)
	return nil
}
