package kube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	k8sfake "k8s.io/client-go/kubernetes/fake"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	clienttesting "k8s.io/client-go/testing"
	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlfake "sigs.k8s.io/controller-runtime/pkg/client/fake"

	"converge/internal/cluster"
)

const (
	ns       = "hdfs-test"
	label    = "app.kubernetes.io/instance"
	svc      = "/test/hdfs"
	svcLabel = "test-hdfs"
)

type recordedExec struct {
	pod, container string
	command        []string
}

type fakeExecutor struct {
	mu    sync.Mutex
	calls []recordedExec
	err   error
}

func (f *fakeExecutor) Exec(ctx context.Context, namespace, pod, container string, command []string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedExec{pod: pod, container: container, command: command})
	if f.err != nil {
		return "", "boom", f.err
	}
	return "", "", nil
}

type exitError int

func (e exitError) Error() string   { return fmt.Sprintf("command terminated with exit code %d", int(e)) }
func (e exitError) ExitStatus() int { return int(e) }

type podOpt func(*corev1.Pod)

func ready(pod *corev1.Pod) {
	pod.Status.Phase = corev1.PodRunning
	pod.Status.Conditions = []corev1.PodCondition{{Type: corev1.PodReady, Status: corev1.ConditionTrue}}
}

func revision(rev string) podOpt {
	return func(pod *corev1.Pod) {
		pod.Labels[appsv1.ControllerRevisionHashLabelKey] = rev
	}
}

func terminating(pod *corev1.Pod) {
	now := metav1.Now()
	pod.DeletionTimestamp = &now
	pod.Finalizers = []string{"test/hold"}
}

// newPod builds a pod of the service with one running container per name.
func newPod(name, node string, containers []string, opts ...podOpt) *corev1.Pod {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: ns,
			UID:       types.UID("uid-" + name),
			Labels:    map[string]string{label: svcLabel},
		},
		Spec:   corev1.PodSpec{NodeName: node},
		Status: corev1.PodStatus{Phase: corev1.PodPending},
	}
	for _, c := range containers {
		pod.Spec.Containers = append(pod.Spec.Containers, corev1.Container{Name: c})
		pod.Status.ContainerStatuses = append(pod.Status.ContainerStatuses, corev1.ContainerStatus{
			Name:        c,
			ContainerID: "containerd://" + name + "-" + c,
			State:       corev1.ContainerState{Running: &corev1.ContainerStateRunning{}},
		})
	}
	for _, o := range opts {
		o(pod)
	}
	return pod
}

func newStatefulSet(group string, replicas int32, mutate func(*appsv1.StatefulSetStatus)) *appsv1.StatefulSet {
	sts := &appsv1.StatefulSet{
		ObjectMeta: metav1.ObjectMeta{
			Name:       svcLabel + "-" + group,
			Namespace:  ns,
			Generation: 1,
			Labels:     map[string]string{label: svcLabel},
		},
		Spec: appsv1.StatefulSetSpec{Replicas: &replicas},
		Status: appsv1.StatefulSetStatus{
			ObservedGeneration: 1,
			Replicas:           replicas,
			ReadyReplicas:      replicas,
			UpdatedReplicas:    replicas,
			CurrentRevision:    "rev1",
			UpdateRevision:     "rev1",
		},
	}
	if mutate != nil {
		mutate(&sts.Status)
	}
	return sts
}

func newTestCluster(t *testing.T, objs ...client.Object) (*Cluster, client.Client, *k8sfake.Clientset, *fakeExecutor) {
	t.Helper()
	scheme := runtime.NewScheme()
	require.NoError(t, clientgoscheme.AddToScheme(scheme))
	c := ctrlfake.NewClientBuilder().WithScheme(scheme).WithObjects(objs...).Build()
	cs := k8sfake.NewClientset()
	exec := &fakeExecutor{}
	kc := newCluster(c, cs, exec, Options{
		Namespace:         ns,
		InstanceLabel:     label,
		Container:         "operator",
		SchedulerSelector: "app=hdfs-operator",
		PollInterval:      10 * time.Millisecond,
	})
	return kc, c, cs, exec
}

func TestNames(t *testing.T) {
	assert.Equal(t, "test-hdfs", baseName("/test/hdfs"))
	assert.Equal(t, "hdfs", baseName("hdfs"))
	assert.Equal(t, "journal-0", shortName("/test/hdfs", "test-hdfs-journal-0"))
	assert.Equal(t, "unrelated", shortName("/test/hdfs", "unrelated"))
}

func TestListTaskInstances(t *testing.T) {
	notStarted := newPod(svcLabel+"-data-0", "node-3", []string{"node"})
	notStarted.Status.ContainerStatuses = nil

	other := newPod("other-journal-0", "node-1", []string{"node"})
	other.Labels[label] = "other"

	kc, _, _, _ := newTestCluster(t,
		newPod(svcLabel+"-journal-0", "node-1", []string{"node"}, ready),
		newPod(svcLabel+"-name-0", "node-2", []string{"node", "zkfc"}, ready),
		newPod(svcLabel+"-name-1", "node-1", []string{"node", "zkfc"}, ready, terminating),
		notStarted,
		other,
	)
	ctx := context.Background()

	all, err := kc.ListTaskInstances(ctx, svc, "")
	require.NoError(t, err)
	var names []string
	for _, task := range all {
		names = append(names, task.Name)
	}
	assert.Equal(t, []string{"data-0-node", "journal-0-node", "name-0-node", "name-0-zkfc", "name-1-node", "name-1-zkfc"}, names)

	journal, err := kc.ListTaskInstances(ctx, svc, "journal")
	require.NoError(t, err)
	require.Len(t, journal, 1)
	assert.Equal(t, cluster.TaskInstance{
		ID:          "containerd://test-hdfs-journal-0-node",
		Name:        "journal-0-node",
		Host:        "node-1",
		State:       "Running",
		Running:     true,
		AgentID:     "test-hdfs-journal-0",
		ContainerID: "containerd://test-hdfs-journal-0-node",
		Pod:         "journal-0",
	}, journal[0])

	data, err := kc.ListTaskInstances(ctx, svc, "data")
	require.NoError(t, err)
	require.Len(t, data, 1)
	assert.Equal(t, "uid-test-hdfs-data-0/node", data[0].ID)
	assert.False(t, data[0].Running)

	name1, err := kc.ListTaskInstances(ctx, svc, "name-1")
	require.NoError(t, err)
	require.Len(t, name1, 2)
	assert.False(t, name1[0].Running)
	assert.Equal(t, "Terminating", name1[0].State)
}

func TestSchedulerInstances(t *testing.T) {
	op := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "hdfs-operator-abc", Namespace: ns, UID: "op-uid", Labels: map[string]string{"app": "hdfs-operator"}},
		Spec:       corev1.PodSpec{NodeName: "node-9"},
		Status:     corev1.PodStatus{Phase: corev1.PodRunning},
	}
	kc, _, _, _ := newTestCluster(t, op)

	got, err := kc.SchedulerInstances(context.Background(), svc)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "op-uid", got[0].ID)
	assert.Equal(t, svc, got[0].Name)
	assert.Equal(t, "node-9", got[0].Host)
	assert.Equal(t, "hdfs-operator-abc", got[0].AgentID)

	kc.opts.SchedulerSelector = ""
	_, err = kc.SchedulerInstances(context.Background(), svc)
	assert.Error(t, err)

	kc.opts.SchedulerSelector = "app=missing"
	_, err = kc.SchedulerInstances(context.Background(), svc)
	assert.ErrorContains(t, err, "no running scheduler pods")
}

func TestDeployPlan(t *testing.T) {
	ctx := context.Background()

	t.Run("complete", func(t *testing.T) {
		kc, _, _, _ := newTestCluster(t,
			newStatefulSet("journal", 3, nil),
			newStatefulSet("name", 2, nil),
		)
		p, err := kc.Plan(ctx, svc, cluster.PlanDeploy)
		require.NoError(t, err)
		assert.Equal(t, cluster.PlanComplete, p.Status)
		require.Len(t, p.Phases, 2)
		assert.Equal(t, "journal", p.Phases[0].Name)
		assert.Len(t, p.Phases[0].Steps, 3)
		assert.Equal(t, "journal-0", p.Phases[0].Steps[0].Name)
		assert.Equal(t, "COMPLETE", p.Raw["status"])
	})

	t.Run("rolling out", func(t *testing.T) {
		rolling := newStatefulSet("data", 2, func(st *appsv1.StatefulSetStatus) {
			st.UpdatedReplicas = 1
			st.UpdateRevision = "rev2"
			st.ReadyReplicas = 1
		})
		kc, _, _, _ := newTestCluster(t,
			newStatefulSet("journal", 3, nil),
			rolling,
			newPod(svcLabel+"-data-0", "n1", []string{"node"}, ready, revision("rev2")),
			newPod(svcLabel+"-data-1", "n2", []string{"node"}, ready, revision("rev1")),
		)
		p, err := kc.Plan(ctx, svc, cluster.PlanDeploy)
		require.NoError(t, err)
		assert.Equal(t, cluster.PlanInProgress, p.Status)
		data := p.Phases[0]
		assert.Equal(t, "data", data.Name)
		assert.Equal(t, cluster.PlanInProgress, data.Status)
		assert.Equal(t, cluster.PlanComplete, p.Phases[1].Status)
		assert.Equal(t, cluster.PlanComplete, data.Steps[0].Status)
		assert.Equal(t, cluster.PlanNotStarted, data.Steps[1].Status)
	})

	t.Run("not installed", func(t *testing.T) {
		kc, _, _, _ := newTestCluster(t)
		p, err := kc.Plan(ctx, svc, cluster.PlanDeploy)
		require.NoError(t, err)
		assert.Equal(t, cluster.PlanNotStarted, p.Status)
	})

	t.Run("unknown plan", func(t *testing.T) {
		kc, _, _, _ := newTestCluster(t)
		_, err := kc.Plan(ctx, svc, "update")
		assert.Error(t, err)
	})
}

func TestRecoveryPlan(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy", func(t *testing.T) {
		kc, _, _, _ := newTestCluster(t,
			newStatefulSet("journal", 2, nil),
			newPod(svcLabel+"-journal-0", "n1", []string{"node"}, ready),
			newPod(svcLabel+"-journal-1", "n2", []string{"node"}, ready),
		)
		p, err := kc.Plan(ctx, svc, cluster.PlanRecovery)
		require.NoError(t, err)
		assert.Equal(t, cluster.PlanComplete, p.Status)
	})

	t.Run("pod missing and pod unready", func(t *testing.T) {
		kc, _, _, _ := newTestCluster(t,
			newStatefulSet("journal", 3, nil),
			newPod(svcLabel+"-journal-0", "n1", []string{"node"}, ready),
			newPod(svcLabel+"-journal-1", "n2", []string{"node"}),
		)
		p, err := kc.Plan(ctx, svc, cluster.PlanRecovery)
		require.NoError(t, err)
		assert.Equal(t, cluster.PlanInProgress, p.Status)
		assert.True(t, p.Status.Underway())
		steps := p.Phases[0].Steps
		assert.Equal(t, cluster.PlanComplete, steps[0].Status)
		assert.Equal(t, cluster.PlanInProgress, steps[1].Status)
		assert.Equal(t, cluster.PlanKickedOff, steps[2].Status)
	})

	t.Run("rollouts belong to deploy", func(t *testing.T) {
		kc, _, _, _ := newTestCluster(t,
			newStatefulSet("data", 1, func(st *appsv1.StatefulSetStatus) { st.UpdateRevision = "rev2" }),
		)
		p, err := kc.Plan(ctx, svc, cluster.PlanRecovery)
		require.NoError(t, err)
		assert.Equal(t, cluster.PlanComplete, p.Status)
		assert.Empty(t, p.Phases)
	})
}

func TestRestartAndReplacePod(t *testing.T) {
	pvc := func(name string) *corev1.PersistentVolumeClaim {
		return &corev1.PersistentVolumeClaim{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns}}
	}
	kc, c, _, _ := newTestCluster(t,
		newPod(svcLabel+"-journal-0", "n1", []string{"node"}, ready),
		newPod(svcLabel+"-journal-1", "n2", []string{"node"}, ready),
		newPod(svcLabel+"-name-0", "n2", []string{"node"}, ready),
		pvc("data-"+svcLabel+"-journal-0"),
		pvc("data-"+svcLabel+"-journal-1"),
		pvc("data-"+svcLabel+"-name-0"),
	)
	ctx := context.Background()
	gone := func(obj client.Object, name string) bool {
		err := c.Get(ctx, client.ObjectKey{Namespace: ns, Name: name}, obj)
		return apierrors.IsNotFound(err)
	}

	require.NoError(t, kc.RestartPod(ctx, svc, "name-0"))
	assert.True(t, gone(&corev1.Pod{}, svcLabel+"-name-0"))
	assert.False(t, gone(&corev1.PersistentVolumeClaim{}, "data-"+svcLabel+"-name-0"))

	require.NoError(t, kc.ReplacePod(ctx, svc, "journal-0"))
	assert.True(t, gone(&corev1.Pod{}, svcLabel+"-journal-0"))
	assert.True(t, gone(&corev1.PersistentVolumeClaim{}, "data-"+svcLabel+"-journal-0"))
	assert.False(t, gone(&corev1.PersistentVolumeClaim{}, "data-"+svcLabel+"-journal-1"))
	assert.False(t, gone(&corev1.Pod{}, svcLabel+"-journal-1"))

	err := kc.RestartPod(ctx, svc, "journal-9")
	require.Error(t, err)
	assert.True(t, apierrors.IsNotFound(errors.Unwrap(err)))
}

func TestEndpoint(t *testing.T) {
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: svcLabel + "-endpoints", Namespace: ns},
		Data:       map[string]string{"hdfs-site.xml": "<configuration/>"},
		BinaryData: map[string][]byte{"core-site.xml": []byte("<configuration></configuration>")},
	}
	kc, _, _, _ := newTestCluster(t, cm)
	ctx := context.Background()

	doc, err := kc.Endpoint(ctx, svc, "hdfs-site.xml")
	require.NoError(t, err)
	assert.Equal(t, "<configuration/>", string(doc))

	doc, err = kc.Endpoint(ctx, svc, "core-site.xml")
	require.NoError(t, err)
	assert.Equal(t, "<configuration></configuration>", string(doc))

	_, err = kc.Endpoint(ctx, svc, "missing.xml")
	assert.ErrorContains(t, err, `endpoint "missing.xml" not found`)
}

func TestAppConfigUpdateRollsStatefulSets(t *testing.T) {
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: svcLabel + "-config", Namespace: ns},
		Data:       map[string]string{"DATA_COUNT": "3", "TASKCFG_ALL_HEAP": "2048"},
	}
	kc, c, _, _ := newTestCluster(t, cm, newStatefulSet("journal", 3, nil), newStatefulSet("data", 3, nil))
	ctx := context.Background()

	cfg, err := kc.GetAppConfig(ctx, svc)
	require.NoError(t, err)
	assert.Equal(t, ns+"/"+svcLabel+"-config", cfg.ID)
	assert.Equal(t, "3", cfg.Env["DATA_COUNT"])

	updated := cfg.Clone()
	updated.Env["DATA_COUNT"] = "4"
	require.NoError(t, kc.UpdateAppConfig(ctx, svc, updated, time.Minute))

	after, err := kc.GetAppConfig(ctx, svc)
	require.NoError(t, err)
	assert.Equal(t, updated.Env, after.Env)
	assert.Equal(t, "3", cfg.Env["DATA_COUNT"], "original must not be mutated")

	want := configHash(updated.Env)
	for _, name := range []string{svcLabel + "-journal", svcLabel + "-data"} {
		var sts appsv1.StatefulSet
		require.NoError(t, c.Get(ctx, client.ObjectKey{Namespace: ns, Name: name}, &sts))
		assert.Equal(t, want, sts.Spec.Template.Annotations[ConfigHashAnnotation], name)
	}

	assert.NotEqual(t, configHash(cfg.Env), want)
	assert.Equal(t, configHash(map[string]string{"a": "1", "b": "2"}), configHash(map[string]string{"b": "2", "a": "1"}))
}

func TestAppConfigMissing(t *testing.T) {
	kc, _, _, _ := newTestCluster(t)
	_, err := kc.GetAppConfig(context.Background(), svc)
	assert.Error(t, err)
	err = kc.UpdateAppConfig(context.Background(), svc, cluster.AppConfig{Env: map[string]string{}}, time.Second)
	assert.Error(t, err)
}

func TestKillProcess(t *testing.T) {
	kc, _, _, exec := newTestCluster(t)
	ctx := context.Background()

	at := cluster.TaskInstance{Name: "journal-0-node", Pod: "journal-0", AgentID: svcLabel + "-journal-0"}
	require.NoError(t, kc.KillProcess(ctx, "journalnode", at))
	require.Len(t, exec.calls, 1)
	assert.Equal(t, svcLabel+"-journal-0", exec.calls[0].pod)
	assert.Equal(t, "node", exec.calls[0].container)
	assert.Equal(t, []string{"sh", "-c", killScript("journalnode")}, exec.calls[0].command)

	scheduler := cluster.TaskInstance{Name: svc, Pod: "hdfs-operator-abc", AgentID: "hdfs-operator-abc"}
	require.NoError(t, kc.KillProcess(ctx, "java", scheduler))
	assert.Equal(t, "operator", exec.calls[1].container)

	exec.err = exitError(1)
	err := kc.KillProcess(ctx, "zkfc", at)
	assert.ErrorContains(t, err, `no process matching "zkfc"`)

	exec.err = errors.New("stream reset")
	err = kc.KillProcess(ctx, "zkfc", at)
	assert.ErrorContains(t, err, "stream reset")
	assert.ErrorContains(t, err, "boom")

	assert.Error(t, kc.KillProcess(ctx, "", at))
	assert.Error(t, kc.KillProcess(ctx, "x", cluster.TaskInstance{Name: "x"}))
}

func TestKillScript(t *testing.T) {
	assert.Equal(t,
		"pgrep -f -- '[j]ournalnode' >/dev/null || exit 1; (sleep 1; pkill -9 -f -- '[j]ournalnode') >/dev/null 2>&1 &",
		killScript("journalnode"))
	assert.Contains(t, killScript("-Dproc_[d]atanode"), "'-[D]proc_[d]atanode'")
	assert.Contains(t, killScript("it's"), `'[i]t'\''s'`)
}

type rawResponse []byte

func (r rawResponse) DoRaw(context.Context) ([]byte, error) { return r, nil }
func (r rawResponse) Stream(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(r)), nil
}

func TestWaitForAnyMetric(t *testing.T) {
	kc, _, cs, _ := newTestCluster(t,
		newPod(svcLabel+"-journal-0", "n1", []string{"node"}, ready),
		newPod(svcLabel+"-name-0", "n1", []string{"node"}, ready),
	)
	kc.opts.MetricsPort = 9102

	var mu sync.Mutex
	var proxied []string
	cs.PrependProxyReactor("pods", func(action clienttesting.Action) (bool, rest.ResponseWrapper, error) {
		get := action.(clienttesting.ProxyGetAction)
		mu.Lock()
		proxied = append(proxied, get.GetName()+":"+get.GetPort()+get.GetPath())
		mu.Unlock()
		if get.GetName() == svcLabel+"-journal-0" {
			return true, rawResponse("# TYPE jvm_threads gauge\njvm_threads{state=\"live\"} 42\n"), nil
		}
		return true, rawResponse("# nothing yet\n"), nil
	})

	ctx := context.Background()
	require.NoError(t, kc.WaitForAnyMetric(ctx, svc, "journal", time.Second))
	mu.Lock()
	assert.Equal(t, svcLabel+"-journal-0:9102/metrics", proxied[0])
	mu.Unlock()

	err := kc.WaitForAnyMetric(ctx, svc, "name", 50*time.Millisecond)
	assert.ErrorContains(t, err, "exposed no samples")

	err = kc.WaitForAnyMetric(ctx, svc, "data", 50*time.Millisecond)
	assert.ErrorContains(t, err, `no running task matching "data"`)
}

func TestCountSamples(t *testing.T) {
	n, err := countSamples([]byte("a 1\nb{x=\"1\"} 2\nb{x=\"2\"} 3\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = countSamples([]byte("not a metric line at all {"))
	assert.Error(t, err)
}

const manifest = `apiVersion: v1
kind: ConfigMap
metadata:
  name: {{ .Name }}-config
  namespace: {{ .Namespace }}
data:
  VERSION: {{ .Version | quote }}
  DATA_COUNT: {{ .Options.data_count | default 3 | quote }}
---
# empty documents are skipped
---
apiVersion: v1
kind: Service
metadata:
  name: {{ .Name }}-journal
  namespace: {{ .Namespace }}
spec:
  ports:
  - port: 8485
`

func TestInstallUpgradeUninstall(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hdfs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o600))

	kc, c, _, _ := newTestCluster(t)
	kc.opts.Manifests = []string{path}
	ctx := context.Background()
	key := client.ObjectKey{Namespace: ns, Name: svcLabel + "-config"}

	require.NoError(t, kc.Install(ctx, svc, cluster.Package{Name: "hdfs", Version: "2.8.0"}))
	var cm corev1.ConfigMap
	require.NoError(t, c.Get(ctx, key, &cm))
	assert.Equal(t, "2.8.0", cm.Data["VERSION"])
	assert.Equal(t, "3", cm.Data["DATA_COUNT"])
	assert.Equal(t, svcLabel, cm.Labels[label])

	var service corev1.Service
	require.NoError(t, c.Get(ctx, client.ObjectKey{Namespace: ns, Name: svcLabel + "-journal"}, &service))

	require.NoError(t, kc.Upgrade(ctx, svc, cluster.Package{Name: "hdfs", Version: "2.9.0", Options: map[string]interface{}{"data_count": 4}}))
	require.NoError(t, c.Get(ctx, key, &cm))
	assert.Equal(t, "2.9.0", cm.Data["VERSION"])
	assert.Equal(t, "4", cm.Data["DATA_COUNT"])

	require.NoError(t, c.Create(ctx, newPod(svcLabel+"-journal-0", "n1", []string{"node"})))
	require.NoError(t, kc.uninstall(ctx, svc, cluster.Package{Name: "hdfs", Version: "2.9.0"}, time.Second))
	assert.True(t, apierrors.IsNotFound(c.Get(ctx, key, &cm)))
	assert.True(t, apierrors.IsNotFound(c.Get(ctx, client.ObjectKey{Namespace: ns, Name: svcLabel + "-journal"}, &service)))
	pods, err := kc.listPods(ctx, svc)
	require.NoError(t, err)
	assert.Empty(t, pods)

	// uninstalling twice is harmless
	require.NoError(t, kc.uninstall(ctx, svc, cluster.Package{Name: "hdfs"}, time.Second))
}

func TestDecodeManifestErrors(t *testing.T) {
	_, err := decodeManifest("bad.yaml", []byte("{{ .Nope"), manifestData{})
	assert.ErrorContains(t, err, "failed to parse manifest bad.yaml")

	_, err = decodeManifest("nokind.yaml", []byte("metadata:\n  name: x\n"), manifestData{})
	assert.Error(t, err)

	kc, _, _, _ := newTestCluster(t)
	assert.ErrorContains(t, kc.Install(context.Background(), svc, cluster.Package{Name: "hdfs"}), "no manifests configured")
}
