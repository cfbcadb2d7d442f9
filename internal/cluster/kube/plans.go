package kube

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"converge/internal/cluster"
	"converge/pkg/logging"
)

func (c *Cluster) listStatefulSets(ctx context.Context, service string) ([]appsv1.StatefulSet, error) {
	var list appsv1.StatefulSetList
	if err := c.client.List(ctx, &list, client.InNamespace(c.opts.Namespace), c.selector(service)); err != nil {
		return nil, fmt.Errorf("failed to list statefulsets of %s: %w", service, err)
	}
	sort.Slice(list.Items, func(i, j int) bool { return list.Items[i].Name < list.Items[j].Name })
	return list.Items, nil
}

func replicas(sts *appsv1.StatefulSet) int32 {
	if sts.Spec.Replicas == nil {
		return 1
	}
	return *sts.Spec.Replicas
}

// rollingOut reports whether the StatefulSet controller has work left on
// the pod template.
func rollingOut(sts *appsv1.StatefulSet) bool {
	st := sts.Status
	return st.ObservedGeneration < sts.Generation ||
		st.UpdatedReplicas < replicas(sts) ||
		(st.UpdateRevision != "" && st.CurrentRevision != st.UpdateRevision)
}

func podReady(pod *corev1.Pod) bool {
	if pod.DeletionTimestamp != nil || pod.Status.Phase != corev1.PodRunning {
		return false
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

// ownedPods indexes pods by name for the ordinals of sts.
func ownedPods(sts *appsv1.StatefulSet, pods []corev1.Pod) map[string]*corev1.Pod {
	out := map[string]*corev1.Pod{}
	for i := range pods {
		pod := &pods[i]
		if ref := metav1.GetControllerOf(pod); ref != nil {
			if ref.Kind == "StatefulSet" && ref.Name == sts.Name {
				out[pod.Name] = pod
			}
			continue
		}
		suffix, ok := strings.CutPrefix(pod.Name, sts.Name+"-")
		if _, err := strconv.Atoi(suffix); ok && err == nil {
			out[pod.Name] = pod
		}
	}
	return out
}

// Plan implements cluster.Scheduler by deriving the deploy plan from
// StatefulSet rollouts and the recovery plan from pod health.
func (c *Cluster) Plan(ctx context.Context, service, plan string) (*cluster.Plan, error) {
	if plan != cluster.PlanDeploy && plan != cluster.PlanRecovery {
		return nil, fmt.Errorf("unknown plan %q", plan)
	}
	sets, err := c.listStatefulSets(ctx, service)
	if err != nil {
		return nil, err
	}
	pods, err := c.listPods(ctx, service)
	if err != nil {
		return nil, err
	}

	var out *cluster.Plan
	if plan == cluster.PlanDeploy {
		out = deployPlan(service, sets, pods)
	} else {
		out = recoveryPlan(service, sets, pods)
	}
	out.Raw = rawPlan(out)
	return out, nil
}

func deployPlan(service string, sets []appsv1.StatefulSet, pods []corev1.Pod) *cluster.Plan {
	p := &cluster.Plan{Name: cluster.PlanDeploy}
	for i := range sets {
		sts := &sets[i]
		owned := ownedPods(sts, pods)
		phase := cluster.Phase{Name: shortName(service, sts.Name)}
		rolling := rollingOut(sts)
		started := sts.Status.UpdatedReplicas > 0
		for ord := int32(0); ord < replicas(sts); ord++ {
			name := fmt.Sprintf("%s-%d", sts.Name, ord)
			step := cluster.Step{Name: shortName(service, name), Status: cluster.PlanComplete}
			if rolling {
				step.Status = deployStepStatus(sts, owned[name])
			}
			if step.Status != cluster.PlanNotStarted {
				started = true
			}
			phase.Steps = append(phase.Steps, step)
		}
		switch {
		case !rolling && sts.Status.ReadyReplicas >= replicas(sts):
			phase.Status = cluster.PlanComplete
		case started:
			phase.Status = cluster.PlanInProgress
		default:
			phase.Status = cluster.PlanNotStarted
		}
		p.Phases = append(p.Phases, phase)
	}
	p.Status = combine(p.Phases, cluster.PlanNotStarted)
	return p
}

func deployStepStatus(sts *appsv1.StatefulSet, pod *corev1.Pod) cluster.PlanStatus {
	if pod == nil {
		return cluster.PlanNotStarted
	}
	rev := pod.Labels[appsv1.ControllerRevisionHashLabelKey]
	if sts.Status.UpdateRevision != "" && rev != sts.Status.UpdateRevision {
		return cluster.PlanNotStarted
	}
	if podReady(pod) {
		return cluster.PlanComplete
	}
	return cluster.PlanInProgress
}

// recoveryPlan has one phase per settled StatefulSet. A missing or
// terminating pod is a kicked-off step, an unready pod an in-progress one.
func recoveryPlan(service string, sets []appsv1.StatefulSet, pods []corev1.Pod) *cluster.Plan {
	p := &cluster.Plan{Name: cluster.PlanRecovery}
	for i := range sets {
		sts := &sets[i]
		if rollingOut(sts) {
			continue
		}
		owned := ownedPods(sts, pods)
		phase := cluster.Phase{Name: shortName(service, sts.Name)}
		for ord := int32(0); ord < replicas(sts); ord++ {
			name := fmt.Sprintf("%s-%d", sts.Name, ord)
			step := cluster.Step{Name: shortName(service, name)}
			pod := owned[name]
			switch {
			case pod == nil || pod.DeletionTimestamp != nil:
				step.Status = cluster.PlanKickedOff
			case !podReady(pod):
				step.Status = cluster.PlanInProgress
			default:
				step.Status = cluster.PlanComplete
			}
			phase.Steps = append(phase.Steps, step)
		}
		phase.Status = cluster.PlanComplete
		for _, st := range phase.Steps {
			if st.Status != cluster.PlanComplete {
				phase.Status = cluster.PlanInProgress
				break
			}
		}
		p.Phases = append(p.Phases, phase)
	}
	p.Status = combine(p.Phases, cluster.PlanComplete)
	return p
}

// combine folds phase statuses: all complete is complete, anything begun is
// in progress. An empty plan has status empty.
func combine(phases []cluster.Phase, empty cluster.PlanStatus) cluster.PlanStatus {
	if len(phases) == 0 {
		return empty
	}
	complete, begun := 0, 0
	for _, ph := range phases {
		switch ph.Status {
		case cluster.PlanComplete:
			complete++
		case cluster.PlanNotStarted:
		default:
			begun++
		}
	}
	switch {
	case complete == len(phases):
		return cluster.PlanComplete
	case complete > 0 || begun > 0:
		return cluster.PlanInProgress
	default:
		return cluster.PlanNotStarted
	}
}

func rawPlan(p *cluster.Plan) map[string]interface{} {
	data, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	var raw map[string]interface{}
	_ = json.Unmarshal(data, &raw)
	return raw
}

func (c *Cluster) podName(service, pod string) string {
	return baseName(service) + "-" + pod
}

// RestartPod implements cluster.Scheduler by deleting the pod; the
// StatefulSet recreates it with the same identity and volumes.
func (c *Cluster) RestartPod(ctx context.Context, service, pod string) error {
	name := c.podName(service, pod)
	obj := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: c.opts.Namespace}}
	if err := c.client.Delete(ctx, obj); err != nil {
		return fmt.Errorf("failed to restart %s: %w", name, err)
	}
	logging.Info("Kube", "Deleted pod %s/%s for restart", c.opts.Namespace, name)
	return nil
}

// ReplacePod implements cluster.Scheduler by deleting the pod together with
// its persistent volume claims so it comes back on fresh storage.
func (c *Cluster) ReplacePod(ctx context.Context, service, pod string) error {
	name := c.podName(service, pod)
	var pvcs corev1.PersistentVolumeClaimList
	if err := c.client.List(ctx, &pvcs, client.InNamespace(c.opts.Namespace)); err != nil {
		return fmt.Errorf("failed to list volume claims of %s: %w", name, err)
	}
	for i := range pvcs.Items {
		pvc := &pvcs.Items[i]
		if !strings.HasSuffix(pvc.Name, "-"+name) {
			continue
		}
		if err := c.client.Delete(ctx, pvc); client.IgnoreNotFound(err) != nil {
			return fmt.Errorf("failed to delete volume claim %s: %w", pvc.Name, err)
		}
		logging.Debug("Kube", "Deleted volume claim %s", pvc.Name)
	}
	obj := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: c.opts.Namespace}}
	if err := c.client.Delete(ctx, obj); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	logging.Info("Kube", "Deleted pod %s/%s and its volume claims for replace", c.opts.Namespace, name)
	return nil
}

// Endpoint implements cluster.Scheduler by reading one key of the endpoints
// ConfigMap.
func (c *Cluster) Endpoint(ctx context.Context, service, name string) ([]byte, error) {
	var cm corev1.ConfigMap
	key := client.ObjectKey{Namespace: c.opts.Namespace, Name: c.endpointsConfigMapName(service)}
	if err := c.client.Get(ctx, key, &cm); err != nil {
		return nil, fmt.Errorf("failed to get endpoints of %s: %w", service, err)
	}
	if v, ok := cm.Data[name]; ok {
		return []byte(v), nil
	}
	if v, ok := cm.BinaryData[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("endpoint %q not found in configmap %s", name, key.Name)
}
