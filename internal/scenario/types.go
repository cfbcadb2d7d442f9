package scenario

import (
	"context"
	"time"

	"converge/internal/cluster"
	"converge/internal/verify"
)

// Result represents the outcome of a scenario or step.
type Result string

const (
	// ResultPassed indicates the scenario or step passed
	ResultPassed Result = "PASSED"
	// ResultFailed indicates an assertion did not hold
	ResultFailed Result = "FAILED"
	// ResultSkipped indicates the scenario was skipped
	ResultSkipped Result = "SKIPPED"
	// ResultError indicates the scenario could not be evaluated
	ResultError Result = "ERROR"
)

// ExecutionMode defines how the runner reports its progress.
type ExecutionMode string

const (
	// ExecutionModeCLI prints progress to stdout
	ExecutionModeCLI ExecutionMode = "cli"
	// ExecutionModeMCPServer keeps stdio clean for the MCP protocol and
	// collects results in memory
	ExecutionModeMCPServer ExecutionMode = "mcp-server"
)

// Logger separates scenario output from the framework logs, so that MCP
// mode can silence it without touching pkg/logging.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
	IsDebugEnabled() bool
	IsVerboseEnabled() bool
}

// Configuration controls one run of the suite.
type Configuration struct {
	// RunID identifies the run in reports and metrics. Generated when empty.
	RunID string `json:"run_id"`
	// Scenario restricts the run to one scenario by name.
	Scenario string `json:"scenario,omitempty"`
	// Tags restricts the run to scenarios carrying any of the tags.
	Tags []string `json:"tags,omitempty"`
	// ScenarioPath is where scenario files were loaded from.
	ScenarioPath string        `json:"scenario_path,omitempty"`
	FailFast     bool          `json:"fail_fast"`
	Timeout      time.Duration `json:"timeout"`
	// Install runs the suite inside a Session that installs the service
	// first and uninstalls it afterwards.
	Install bool `json:"install"`
	// PreCheck runs a health check before every scenario.
	PreCheck   bool   `json:"pre_check"`
	ReportPath string `json:"report_path,omitempty"`
	Verbose    bool   `json:"verbose"`
	Debug      bool   `json:"debug"`
}

// Settings are the service-level defaults scenarios run with.
type Settings struct {
	Service             string
	Package             cluster.Package
	UpgradeFrom         string
	ExpectedTasks       int
	ConvergenceTimeout  time.Duration
	PollInterval        time.Duration
	ConfigUpdateTimeout time.Duration
	MetricsTimeout      time.Duration
	InstallTimeout      time.Duration
	CaptureConcurrency  int
}

// Scenario is one YAML scenario file.
type Scenario struct {
	Name        string        `yaml:"name" json:"name"`
	Description string        `yaml:"description,omitempty" json:"description,omitempty"`
	Tags        []string      `yaml:"tags,omitempty" json:"tags,omitempty"`
	Skip        bool          `yaml:"skip,omitempty" json:"skip,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Steps       []Step        `yaml:"steps" json:"steps"`

	// File is the path the scenario was loaded from.
	File string `yaml:"-" json:"file,omitempty"`
}

// Step kinds.
const (
	StepActions               = "actions"
	StepCheckHealthy          = "check_healthy"
	StepCheckEndpoints        = "check_endpoints"
	StepWaitMetrics           = "wait_metrics"
	StepRollbackConfig        = "rollback_config"
	StepAssertConfig          = "assert_config"
	StepRecoveryPlanUnchanged = "recovery_plan_unchanged"
)

// Step is a single step of a scenario. Exactly one of the kind fields is
// set; Expect accompanies actions and rollback_config.
type Step struct {
	Name    string        `yaml:"name,omitempty" json:"name,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	Actions []ActionSpec `yaml:"actions,omitempty" json:"actions,omitempty"`
	Expect  *Expect      `yaml:"expect,omitempty" json:"expect,omitempty"`

	CheckHealthy          *HealthCheck    `yaml:"check_healthy,omitempty" json:"check_healthy,omitempty"`
	CheckEndpoints        []EndpointCheck `yaml:"check_endpoints,omitempty" json:"check_endpoints,omitempty"`
	WaitMetrics           *MetricsWait    `yaml:"wait_metrics,omitempty" json:"wait_metrics,omitempty"`
	RollbackConfig        bool            `yaml:"rollback_config,omitempty" json:"rollback_config,omitempty"`
	AssertConfig          *ConfigAssert   `yaml:"assert_config,omitempty" json:"assert_config,omitempty"`
	RecoveryPlanUnchanged bool            `yaml:"recovery_plan_unchanged,omitempty" json:"recovery_plan_unchanged,omitempty"`
}

// Kinds returns the kinds set on the step, in declaration order.
func (s Step) Kinds() []string {
	var kinds []string
	if len(s.Actions) > 0 {
		kinds = append(kinds, StepActions)
	}
	if s.CheckHealthy != nil {
		kinds = append(kinds, StepCheckHealthy)
	}
	if len(s.CheckEndpoints) > 0 {
		kinds = append(kinds, StepCheckEndpoints)
	}
	if s.WaitMetrics != nil {
		kinds = append(kinds, StepWaitMetrics)
	}
	if s.RollbackConfig {
		kinds = append(kinds, StepRollbackConfig)
	}
	if s.AssertConfig != nil {
		kinds = append(kinds, StepAssertConfig)
	}
	if s.RecoveryPlanUnchanged {
		kinds = append(kinds, StepRecoveryPlanUnchanged)
	}
	return kinds
}

// Kind returns the step's kind, or "" when it does not set exactly one.
func (s Step) Kind() string {
	if kinds := s.Kinds(); len(kinds) == 1 {
		return kinds[0]
	}
	return ""
}

// Title is the name shown in reports.
func (s Step) Title() string {
	if s.Name != "" {
		return s.Name
	}
	if k := s.Kind(); k != "" {
		return k
	}
	return "step"
}

// ActionSpec is the YAML form of one change action. Exactly one field is
// set.
type ActionSpec struct {
	Kill        *KillSpec  `yaml:"kill,omitempty" json:"kill,omitempty"`
	Replace     string     `yaml:"replace,omitempty" json:"replace,omitempty"`
	Restart     string     `yaml:"restart,omitempty" json:"restart,omitempty"`
	SetConfig   *SetSpec   `yaml:"set_config,omitempty" json:"set_config,omitempty"`
	ScaleConfig *ScaleSpec `yaml:"scale_config,omitempty" json:"scale_config,omitempty"`
}

// KillSpec kills processes matching Pattern on the target.
type KillSpec struct {
	Pattern       string `yaml:"pattern" json:"pattern"`
	verify.Target `yaml:",inline"`
}

// SetSpec sets an app-config field. Value is a template.
type SetSpec struct {
	Field string `yaml:"field" json:"field"`
	Value string `yaml:"value" json:"value"`
}

// ScaleSpec adds Delta to a numeric app-config field.
type ScaleSpec struct {
	Field string  `yaml:"field" json:"field"`
	Delta float64 `yaml:"delta" json:"delta"`
}

// Expect is the convergence criterion after the step's change.
type Expect struct {
	// Groups maps a group prefix to updated, unchanged or retained.
	Groups map[string]string `yaml:"groups,omitempty" json:"groups,omitempty"`
	// Recovery requires the recovery plan to be observed underway.
	Recovery bool `yaml:"recovery,omitempty" json:"recovery,omitempty"`
	// Tasks is the expected running task count: zero uses the configured
	// default, negative skips the check.
	Tasks   int           `yaml:"tasks,omitempty" json:"tasks,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// HealthCheck waits for both plans to complete and the task count to match.
type HealthCheck struct {
	Tasks    int           `yaml:"tasks,omitempty" json:"tasks,omitempty"`
	Recovery bool          `yaml:"recovery,omitempty" json:"recovery,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// EndpointCheck compares properties of one endpoint document. Property
// values are templates.
type EndpointCheck struct {
	Endpoint   string            `yaml:"endpoint" json:"endpoint"`
	Properties map[string]string `yaml:"properties" json:"properties"`
}

// MetricsWait waits for a task to emit at least one metric.
type MetricsWait struct {
	Task    string        `yaml:"task" json:"task"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// ConfigAssert checks the current app config.
type ConfigAssert struct {
	// Original lists fields that must equal their value at scenario start.
	Original []string `yaml:"original,omitempty" json:"original,omitempty"`
	// Values maps fields to expected values (templates).
	Values map[string]string `yaml:"values,omitempty" json:"values,omitempty"`
}

// SuiteResult is the outcome of a whole run.
type SuiteResult struct {
	RunID            string           `json:"run_id"`
	Service          string           `json:"service"`
	StartTime        time.Time        `json:"start_time"`
	EndTime          time.Time        `json:"end_time"`
	Duration         time.Duration    `json:"duration"`
	TotalScenarios   int              `json:"total_scenarios"`
	PassedScenarios  int              `json:"passed_scenarios"`
	FailedScenarios  int              `json:"failed_scenarios"`
	SkippedScenarios int              `json:"skipped_scenarios"`
	ErrorScenarios   int              `json:"error_scenarios"`
	ScenarioResults  []ScenarioResult `json:"scenario_results"`
	Configuration    Configuration    `json:"configuration"`
	// SetupError and TeardownError describe session failures.
	SetupError    string `json:"setup_error,omitempty"`
	TeardownError string `json:"teardown_error,omitempty"`
}

// Passed reports whether nothing failed or errored.
func (r SuiteResult) Passed() bool {
	return r.FailedScenarios == 0 && r.ErrorScenarios == 0 && r.SetupError == ""
}

// ScenarioResult is the outcome of one scenario.
type ScenarioResult struct {
	Scenario    Scenario      `json:"scenario"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration"`
	Result      Result        `json:"result"`
	StepResults []StepResult  `json:"step_results"`
	Error       string        `json:"error,omitempty"`
}

// StepResult is the outcome of one step.
type StepResult struct {
	Step      Step          `json:"step"`
	Index     int           `json:"index"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Result    Result        `json:"result"`
	Error     string        `json:"error,omitempty"`
	// Report is the convergence report of action, rollback and health steps.
	Report *verify.Report `json:"report,omitempty"`
	// Diff is set when a comparison failed (endpoints, config, plans).
	Diff string `json:"diff,omitempty"`
}

// Runner executes scenarios.
type Runner interface {
	Run(ctx context.Context, config Configuration, scenarios []Scenario) (*SuiteResult, error)
}

// Loader loads and filters scenarios.
type Loader interface {
	LoadScenarios(path string) ([]Scenario, error)
	FilterScenarios(scenarios []Scenario, config Configuration) []Scenario
}

// Reporter receives progress as the suite runs.
type Reporter interface {
	ReportStart(config Configuration)
	ReportScenarioStart(scenario Scenario)
	ReportStepStart(step Step, index int)
	ReportStepResult(result StepResult)
	ReportScenarioResult(result ScenarioResult)
	ReportSuiteResult(result SuiteResult)
}
