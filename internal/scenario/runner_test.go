package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"converge/internal/cluster"
	"converge/internal/cluster/fake"
	"converge/internal/properties"
)

const service = "hdfs"

func testSettings() Settings {
	return Settings{
		Service:             service,
		Package:             cluster.Package{Name: "hdfs", Version: "2.1.0"},
		ExpectedTasks:       10,
		ConvergenceTimeout:  2 * time.Second,
		PollInterval:        time.Millisecond,
		ConfigUpdateTimeout: time.Second,
		MetricsTimeout:      100 * time.Millisecond,
		InstallTimeout:      2 * time.Second,
	}
}

func newTestRunner(c *fake.Cluster, settings Settings) (*runner, *StructuredReporter, *RunMetrics) {
	reporter := NewStructuredReporter()
	metrics := NewRunMetrics(service)
	r := NewRunner(c, settings, NewLoader(nil), reporter, nil, metrics).(*runner)
	return r, reporter, metrics
}

func mustDecode(t *testing.T, doc string) []Scenario {
	t.Helper()
	scenarios, err := decodeScenarios("test.yaml", []byte(doc))
	require.NoError(t, err)
	results := ValidateScenarios(scenarios)
	require.True(t, results.Valid(), FormatValidationResults(results, true))
	return scenarios
}

const killJournal = `
name: kill-journal-node
tags: [recovery, journal]
steps:
  - name: kill journal-0
    actions:
      - kill: {pattern: journalnode, pod: journal-0}
    expect:
      recovery: true
      groups:
        journal-0: updated
        journal-1: unchanged
        name: unchanged
        data: unchanged
`

func TestRun_KillJournalNodeConverges(t *testing.T) {
	c := fake.NewHDFS(service)
	r, reporter, metrics := newTestRunner(c, testSettings())

	result, err := r.Run(context.Background(), Configuration{}, mustDecode(t, killJournal))
	require.NoError(t, err)

	assert.True(t, result.Passed())
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 1, result.TotalScenarios)
	assert.Equal(t, 1, result.PassedScenarios)
	require.Len(t, result.ScenarioResults, 1)

	sr := result.ScenarioResults[0]
	assert.Equal(t, ResultPassed, sr.Result)
	require.Len(t, sr.StepResults, 1)
	report := sr.StepResults[0].Report
	require.NotNil(t, report)
	assert.True(t, report.RecoveryKickedOff)
	assert.Equal(t, 10, report.TaskCount)

	journal0, ok := report.Result("journal-0")
	require.True(t, ok)
	assert.True(t, journal0.Satisfied)
	assert.Contains(t, c.Calls(), "kill journalnode@10.0.1.0")

	assert.Equal(t, result.RunID, reporter.GetCurrentSuiteResult().RunID)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.scenarios.WithLabelValues(string(ResultPassed))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.steps.WithLabelValues(StepActions, string(ResultPassed))))
}

func TestRun_UnexpectedRelaunchFails(t *testing.T) {
	c := fake.NewHDFS(service)
	r, _, _ := newTestRunner(c, testSettings())

	scenarios := mustDecode(t, `
name: wrong-expectation
steps:
  - actions:
      - replace: name-0
    expect:
      groups:
        name-0: unchanged
`)
	result, err := r.Run(context.Background(), Configuration{}, scenarios)
	require.NoError(t, err)

	assert.False(t, result.Passed())
	assert.Equal(t, 1, result.FailedScenarios)
	sr := result.ScenarioResults[0]
	assert.Equal(t, ResultFailed, sr.Result)
	assert.Contains(t, sr.Error, "name-0")
	assert.Contains(t, c.Calls(), "replace name-0")
}

func TestRun_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(c *fake.Cluster)
		doc     string
		wantErr string
	}{
		{
			name: "missing group",
			doc: `
name: missing-group
steps:
  - actions:
      - restart: journal-0
    expect:
      groups:
        zookeeper: unchanged
`,
			wantErr: "zookeeper",
		},
		{
			name:  "rejected action",
			setup: func(c *fake.Cluster) { c.FailNext("ReplacePod", errors.New("503 service unavailable")) },
			doc: `
name: rejected
steps:
  - actions:
      - replace: name-1
`,
			wantErr: "503 service unavailable",
		},
		{
			name: "kill target matches nothing",
			doc: `
name: no-target
steps:
  - actions:
      - kill: {pattern: datanode, host: 10.9.9.9}
`,
			wantErr: "matched no running instances",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := fake.NewHDFS(service)
			if tt.setup != nil {
				tt.setup(c)
			}
			r, _, _ := newTestRunner(c, testSettings())

			result, err := r.Run(context.Background(), Configuration{}, mustDecode(t, tt.doc))
			require.NoError(t, err)
			assert.Equal(t, 1, result.ErrorScenarios)
			sr := result.ScenarioResults[0]
			assert.Equal(t, ResultError, sr.Result)
			assert.Contains(t, sr.Error, tt.wantErr)
		})
	}
}

func TestRun_FailFastStopsAfterFirstFailure(t *testing.T) {
	c := fake.NewHDFS(service)
	r, _, _ := newTestRunner(c, testSettings())

	scenarios := mustDecode(t, `
name: first
steps:
  - wait_metrics: {task: journal-0-node}
---
name: second
steps:
  - check_healthy: {}
`)

	result, err := r.Run(context.Background(), Configuration{FailFast: true}, scenarios)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalScenarios)
	assert.Len(t, result.ScenarioResults, 1)
	assert.Equal(t, 1, result.FailedScenarios)

	result, err = r.Run(context.Background(), Configuration{}, scenarios)
	require.NoError(t, err)
	assert.Len(t, result.ScenarioResults, 2)
	assert.Equal(t, 1, result.PassedScenarios)
}

func TestRun_SkippedAndFilteredScenarios(t *testing.T) {
	c := fake.NewHDFS(service)
	r, _, metrics := newTestRunner(c, testSettings())

	scenarios := mustDecode(t, `
name: healthy
tags: [smoke]
steps:
  - check_healthy: {}
---
name: skipped
tags: [smoke]
skip: true
steps:
  - check_healthy: {}
---
name: untagged
steps:
  - check_healthy: {}
`)

	result, err := r.Run(context.Background(), Configuration{Tags: []string{"smoke"}}, scenarios)
	require.NoError(t, err)
	assert.True(t, result.Passed())
	assert.Equal(t, 2, result.TotalScenarios)
	assert.Equal(t, 1, result.PassedScenarios)
	assert.Equal(t, 1, result.SkippedScenarios)
	assert.Equal(t, ResultSkipped, result.ScenarioResults[1].Result)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.scenarios.WithLabelValues(string(ResultSkipped))))

	result, err = r.Run(context.Background(), Configuration{Scenario: "untagged"}, scenarios)
	require.NoError(t, err)
	require.Len(t, result.ScenarioResults, 1)
	assert.Equal(t, "untagged", result.ScenarioResults[0].Scenario.Name)
}

func TestRun_ConfigChangeRollbackAndRecoveryPlan(t *testing.T) {
	c := fake.NewHDFS(service)
	c.ConfigDependents = []string{"journal"}
	r, _, _ := newTestRunner(c, testSettings())

	scenarios := mustDecode(t, `
name: bump-journal-cpus
steps:
  - actions:
      - scale_config: {field: JOURNAL_CPUS, delta: 0.5}
    expect:
      groups:
        journal: updated
        name: unchanged
        data: unchanged
  - assert_config:
      original: [DATA_COUNT]
      values:
        JOURNAL_CPUS: "1"
  - rollback_config: true
    expect:
      groups:
        journal: updated
        data: unchanged
  - assert_config:
      original: [JOURNAL_CPUS, DATA_COUNT]
  - recovery_plan_unchanged: true
`)

	result, err := r.Run(context.Background(), Configuration{}, scenarios)
	require.NoError(t, err)
	sr := result.ScenarioResults[0]
	require.Equal(t, ResultPassed, sr.Result, sr.Error)
	assert.Len(t, sr.StepResults, 5)

	cfg, err := c.GetAppConfig(context.Background(), service)
	require.NoError(t, err)
	assert.Equal(t, "0.5", cfg.Env["JOURNAL_CPUS"])
	assert.Equal(t, []string{"update-config", "update-config"}, c.Calls())
}

func TestRun_ScaleOutRetainsDataNodes(t *testing.T) {
	c := fake.NewHDFS(service)
	c.OnConfigUpdate = func(c *fake.Cluster, old, updated cluster.AppConfig) {
		if updated.Env["DATA_COUNT"] == "4" {
			c.AddTask("data-3-node", "10.0.3.3")
		}
	}
	r, _, _ := newTestRunner(c, testSettings())

	scenarios := mustDecode(t, `
name: add-data-node
steps:
  - actions:
      - scale_config: {field: DATA_COUNT, delta: 1}
    expect:
      tasks: 11
      groups:
        data: retained
        journal: unchanged
        name: unchanged
`)

	result, err := r.Run(context.Background(), Configuration{}, scenarios)
	require.NoError(t, err)
	sr := result.ScenarioResults[0]
	require.Equal(t, ResultPassed, sr.Result, sr.Error)

	data, ok := sr.StepResults[0].Report.Result("data")
	require.True(t, ok)
	assert.Equal(t, 3, data.Before)
	assert.Equal(t, 4, data.After)
	assert.Equal(t, 11, sr.StepResults[0].Report.TaskCount)
}

func TestRun_AssertConfigReportsDiff(t *testing.T) {
	c := fake.NewHDFS(service)
	r, _, _ := newTestRunner(c, testSettings())

	scenarios := mustDecode(t, `
name: assert-fails
steps:
  - assert_config:
      values:
        JOURNAL_CPUS: "2"
`)
	result, err := r.Run(context.Background(), Configuration{}, scenarios)
	require.NoError(t, err)

	step := result.ScenarioResults[0].StepResults[0]
	assert.Equal(t, ResultFailed, step.Result)
	assert.Contains(t, step.Error, "JOURNAL_CPUS")
	assert.Contains(t, step.Diff, "0.5")
}

const hdfsSite = `<?xml version="1.0"?>
<configuration>
  <property>
    <name>dfs.namenode.http-address.hdfs.name-0-node</name>
    <value>name-0-node.hdfs.autoip.dcos.thisdcos.directory:9002</value>
  </property>
  <property>
    <name>ha.zookeeper.parent-znode</name>
    <value>/dcos-service-hdfs/hadoop-ha</value>
  </property>
</configuration>`

func TestRun_CheckEndpoints(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		result Result
	}{
		{name: "matching", value: `'{{ autoip "name-0-node" 9002 }}'`, result: ResultPassed},
		{name: "different", value: `name-1-node.hdfs.autoip.dcos.thisdcos.directory:9002`, result: ResultFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := fake.NewHDFS(service)
			c.SetEndpoint("hdfs-site.xml", []byte(hdfsSite))
			r, _, _ := newTestRunner(c, testSettings())

			scenarios := mustDecode(t, `
name: endpoints
steps:
  - check_endpoints:
      - endpoint: hdfs-site.xml
        properties:
          dfs.namenode.http-address.hdfs.name-0-node: `+tt.value+`
          ha.zookeeper.parent-znode: '/dcos-service-{{ zkpath }}/hadoop-ha'
`)
			result, err := r.Run(context.Background(), Configuration{}, scenarios)
			require.NoError(t, err)

			step := result.ScenarioResults[0].StepResults[0]
			assert.Equal(t, tt.result, step.Result, step.Error)
			if tt.result == ResultFailed {
				assert.Contains(t, step.Error, "hdfs-site.xml")
				assert.Contains(t, step.Diff, "hdfs-site.xml (-want +got)")
				assert.Contains(t, step.Diff, "dfs.namenode.http-address.hdfs.name-0-node")
			}
		})
	}
}

func TestRun_MissingEndpointIsError(t *testing.T) {
	c := fake.NewHDFS(service)
	r, _, _ := newTestRunner(c, testSettings())

	scenarios := mustDecode(t, `
name: endpoints
steps:
  - check_endpoints:
      - endpoint: core-site.xml
        properties: {fs.default.name: 'hdfs://hdfs'}
`)
	result, err := r.Run(context.Background(), Configuration{}, scenarios)
	require.NoError(t, err)
	assert.Equal(t, ResultError, result.ScenarioResults[0].Result)
}

func TestRun_WaitMetrics(t *testing.T) {
	c := fake.NewHDFS(service)
	c.SetMetrics("journal-0-node", true)
	r, _, _ := newTestRunner(c, testSettings())

	scenarios := mustDecode(t, `
name: metrics
steps:
  - wait_metrics: {task: journal-0-node}
  - wait_metrics: {task: data-0-node, timeout: 10ms}
`)
	result, err := r.Run(context.Background(), Configuration{}, scenarios)
	require.NoError(t, err)

	sr := result.ScenarioResults[0]
	require.Len(t, sr.StepResults, 2)
	assert.Equal(t, ResultPassed, sr.StepResults[0].Result)
	assert.Equal(t, ResultFailed, sr.StepResults[1].Result)
	assert.Contains(t, sr.StepResults[1].Error, "data-0-node")
}

func TestRun_PreCheckFailureIsError(t *testing.T) {
	c := fake.NewHDFS(service)
	c.StopTask("data-2-node")
	settings := testSettings()
	settings.ConvergenceTimeout = 20 * time.Millisecond
	r, _, _ := newTestRunner(c, settings)

	result, err := r.Run(context.Background(), Configuration{PreCheck: true}, mustDecode(t, killJournal))
	require.NoError(t, err)

	sr := result.ScenarioResults[0]
	assert.Equal(t, ResultError, sr.Result)
	assert.Contains(t, sr.Error, "pre-scenario health check failed")
	assert.Empty(t, sr.StepResults)
	assert.NotContains(t, c.Calls(), "kill journalnode@10.0.1.0")
}

func TestRun_InstallSessionWrapsRun(t *testing.T) {
	c := fake.NewHDFS(service)
	r, _, _ := newTestRunner(c, testSettings())

	result, err := r.Run(context.Background(), Configuration{Install: true}, mustDecode(t, killJournal))
	require.NoError(t, err)
	assert.True(t, result.Passed())
	assert.Empty(t, result.TeardownError)

	assert.Equal(t, []string{
		"uninstall hdfs",
		"install hdfs",
		"kill journalnode@10.0.1.0",
		"uninstall hdfs",
	}, c.Calls())
}

func TestRun_UpgradeSession(t *testing.T) {
	c := fake.NewHDFS(service)
	settings := testSettings()
	settings.UpgradeFrom = "beta-hdfs@1.0.0"
	r, _, _ := newTestRunner(c, settings)

	result, err := r.Run(context.Background(), Configuration{Install: true}, mustDecode(t, `
name: healthy
steps:
  - check_healthy: {}
`))
	require.NoError(t, err)
	assert.True(t, result.Passed())
	assert.Equal(t, []string{
		"uninstall hdfs",
		"install beta-hdfs",
		"upgrade hdfs",
		"uninstall hdfs",
	}, c.Calls())
}

func TestRun_SetupFailureStillUninstalls(t *testing.T) {
	c := fake.NewHDFS(service)
	c.FailNext("Install", errors.New("package not found"))
	r, reporter, _ := newTestRunner(c, testSettings())

	result, err := r.Run(context.Background(), Configuration{Install: true}, mustDecode(t, killJournal))
	require.Error(t, err)
	assert.Contains(t, result.SetupError, "package not found")
	assert.False(t, result.Passed())
	assert.Empty(t, result.ScenarioResults)
	assert.Equal(t, []string{"uninstall hdfs", "uninstall hdfs"}, c.Calls())
	assert.Equal(t, result.SetupError, reporter.GetCurrentSuiteResult().SetupError)
}

func TestRun_TeardownFailureIsRecorded(t *testing.T) {
	c := fake.NewHDFS(service)
	c.FailNext("Uninstall", nil, errors.New("cosmos unavailable"))
	r, _, _ := newTestRunner(c, testSettings())

	result, err := r.Run(context.Background(), Configuration{Install: true}, mustDecode(t, killJournal))
	require.NoError(t, err)
	assert.Contains(t, result.TeardownError, "cosmos unavailable")
	assert.True(t, result.Passed())
}

func TestRun_NothingSelected(t *testing.T) {
	c := fake.NewHDFS(service)
	r, _, _ := newTestRunner(c, testSettings())

	result, err := r.Run(context.Background(), Configuration{Install: true, Scenario: "nope"}, mustDecode(t, killJournal))
	require.NoError(t, err)
	assert.Zero(t, result.TotalScenarios)
	assert.Empty(t, c.Calls())
}

// siteXML renders props as a Hadoop configuration document.
func siteXML(props map[string]string) []byte {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\"?>\n<configuration>\n")
	for name, value := range props {
		fmt.Fprintf(&b, "  <property>\n    <name>%s</name>\n    <value>%s</value>\n  </property>\n", name, value)
	}
	b.WriteString("</configuration>\n")
	return []byte(b.String())
}

// newBundledCluster shapes a fake HDFS deployment the way the bundled
// scenarios expect a healthy one to behave.
func newBundledCluster() *fake.Cluster {
	c := fake.NewHDFS(service)
	c.SetEnv("TASKCFG_ALL_CLIENT_READ_SHORTCIRCUIT_STREAMS_CACHE_SIZE_EXPIRY_MS", "1000")
	c.SetMetrics("journal-0-node", true)
	c.OnConfigUpdate = func(c *fake.Cluster, old, updated cluster.AppConfig) {
		if old.Env["DATA_COUNT"] != updated.Env["DATA_COUNT"] {
			c.AddTask("data-3-node", "10.0.3.3")
			return
		}
		c.Relaunch("journal")
		c.Relaunch("name")
	}

	autoip := func(task string, port int) string { return properties.AutoIPHost(service, task, port) }
	c.SetEndpoint("core-site.xml", siteXML(map[string]string{
		"ha.zookeeper.parent-znode": "/dcos-service-" + properties.ZKServicePath(service) + "/hadoop-ha",
	}))
	c.SetEndpoint("hdfs-site.xml", siteXML(map[string]string{
		"dfs.namenode.shared.edits.dir": fmt.Sprintf("qjournal://%s;%s;%s/hdfs",
			autoip("journal-0-node", 8485), autoip("journal-1-node", 8485), autoip("journal-2-node", 8485)),
		"dfs.namenode.rpc-address.hdfs.name-0-node":  autoip("name-0-node", 9001),
		"dfs.namenode.http-address.hdfs.name-0-node": autoip("name-0-node", 9002),
		"dfs.namenode.rpc-address.hdfs.name-1-node":  autoip("name-1-node", 9001),
		"dfs.namenode.http-address.hdfs.name-1-node": autoip("name-1-node", 9002),
	}))
	return c
}

func TestRun_BundledScenariosPass(t *testing.T) {
	scenarios, err := NewLoader(nil).LoadScenarios("../../scenarios/hdfs")
	require.NoError(t, err)
	results := ValidateScenarios(scenarios)
	require.True(t, results.Valid(), FormatValidationResults(results, true))
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			r, _, _ := newTestRunner(newBundledCluster(), testSettings())

			result, err := r.Run(context.Background(), Configuration{Scenario: s.Name, PreCheck: true}, scenarios)
			require.NoError(t, err)
			require.Len(t, result.ScenarioResults, 1)
			sr := result.ScenarioResults[0]
			assert.Equal(t, ResultPassed, sr.Result, sr.Error)
		})
	}
}

func TestRun_StepDeadlineIsConvergenceFailure(t *testing.T) {
	c := fake.NewHDFS(service)
	r, _, _ := newTestRunner(c, testSettings())

	scenarios := mustDecode(t, `
name: stuck-deploy
steps:
  - timeout: 100ms
    actions:
      - restart: journal-0
    expect:
      groups:
        journal-0: updated
`)
	c.SetPlanScript(cluster.PlanDeploy, cluster.PlanInProgress)

	result, err := r.Run(context.Background(), Configuration{}, scenarios)
	require.NoError(t, err)

	sr := result.ScenarioResults[0]
	assert.Equal(t, ResultFailed, sr.Result)
	assert.Equal(t, 1, result.FailedScenarios)
	assert.Zero(t, result.ErrorScenarios)
	require.Len(t, sr.StepResults, 1)
	step := sr.StepResults[0]
	assert.Equal(t, ResultFailed, step.Result)
	assert.Contains(t, step.Error, "deploy plan did not converge")
	assert.Contains(t, step.Error, string(cluster.PlanInProgress))
	assert.NotContains(t, step.Error, "context deadline exceeded")
}
