package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"converge/internal/cluster"
	"converge/internal/properties"
	"converge/internal/verify"
	"converge/pkg/logging"
)

// runner implements the Runner interface. Scenarios run one after another
// against a single shared service instance.
type runner struct {
	cluster  cluster.Cluster
	verifier *verify.Verifier
	trigger  *verify.Trigger
	loader   Loader
	reporter Reporter
	logger   Logger
	metrics  *RunMetrics
	settings Settings
}

// NewRunner creates a runner for the service described by settings. metrics
// may be nil.
func NewRunner(c cluster.Cluster, settings Settings, loader Loader, reporter Reporter, logger Logger, metrics *RunMetrics) Runner {
	if logger == nil {
		logger = NewSilentLogger(false, false)
	}
	v := verify.New(c, c, verify.Options{
		Service:            settings.Service,
		ExpectedTaskCount:  settings.ExpectedTasks,
		Timeout:            settings.ConvergenceTimeout,
		PollInterval:       settings.PollInterval,
		CaptureConcurrency: settings.CaptureConcurrency,
	})
	return &runner{
		cluster:  c,
		verifier: v,
		trigger:  verify.NewTrigger(c, settings.Service, settings.ConfigUpdateTimeout),
		loader:   loader,
		reporter: reporter,
		logger:   logger,
		metrics:  metrics,
		settings: settings,
	}
}

// Run executes the selected scenarios. With config.Install the run is
// wrapped in a Session whose uninstall runs however the scenarios end.
func (r *runner) Run(ctx context.Context, config Configuration, scenarios []Scenario) (*SuiteResult, error) {
	if config.RunID == "" {
		config.RunID = uuid.NewString()
	}
	result := &SuiteResult{
		RunID:         config.RunID,
		Service:       r.settings.Service,
		StartTime:     time.Now(),
		Configuration: config,
	}

	r.reporter.ReportStart(config)

	selected := r.loader.FilterScenarios(scenarios, config)
	result.TotalScenarios = len(selected)
	result.ScenarioResults = make([]ScenarioResult, 0, len(selected))

	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	var runErr error
	if len(selected) > 0 {
		var session *Session
		if config.Install {
			session = r.newSession()
			defer session.Close(ctx)

			if err := session.Open(ctx); err != nil {
				result.SetupError = err.Error()
				runErr = err
				r.logger.Error("💥 Setup failed: %v\n", err)
			}
		}

		if runErr == nil {
			r.runScenarios(ctx, config, selected, result)
		}

		if session != nil {
			if err := session.Close(ctx); err != nil {
				result.TeardownError = err.Error()
			}
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	if r.metrics != nil {
		r.metrics.ObserveSuite(*result)
	}
	r.reporter.ReportSuiteResult(*result)
	return result, runErr
}

func (r *runner) newSession() *Session {
	return NewSession(r.cluster, SessionOptions{
		Service:     r.settings.Service,
		Package:     r.settings.Package,
		UpgradeFrom: r.settings.UpgradeFrom,
		Timeout:     r.settings.InstallTimeout,
		Ready: func(ctx context.Context) error {
			_, err := r.verifier.AwaitConvergence(ctx, verify.NewSnapshot(time.Now(), nil), verify.Criteria{
				Timeout: r.settings.InstallTimeout,
			})
			return err
		},
	})
}

func (r *runner) runScenarios(ctx context.Context, config Configuration, scenarios []Scenario, result *SuiteResult) {
	for _, s := range scenarios {
		var sr ScenarioResult
		if s.Skip {
			now := time.Now()
			sr = ScenarioResult{Scenario: s, StartTime: now, EndTime: now, Result: ResultSkipped}
			r.reporter.ReportScenarioStart(s)
		} else {
			sr = r.runScenario(ctx, s, config)
		}
		result.ScenarioResults = append(result.ScenarioResults, sr)
		r.updateCounters(result, sr)
		if r.metrics != nil {
			r.metrics.ObserveScenario(sr)
		}
		r.reporter.ReportScenarioResult(sr)

		if config.FailFast && (sr.Result == ResultFailed || sr.Result == ResultError) {
			r.logger.Info("🛑 Fail-fast triggered by scenario: %s\n", s.Name)
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
}

func (r *runner) updateCounters(result *SuiteResult, sr ScenarioResult) {
	switch sr.Result {
	case ResultPassed:
		result.PassedScenarios++
	case ResultFailed:
		result.FailedScenarios++
	case ResultSkipped:
		result.SkippedScenarios++
	case ResultError:
		result.ErrorScenarios++
	}
}

// scenarioState is what steps share within one scenario.
type scenarioState struct {
	data          templateData
	startConfig   cluster.AppConfig
	startRecovery *cluster.Plan
}

// runScenario executes one scenario. A failing step aborts the remaining
// steps.
func (r *runner) runScenario(ctx context.Context, s Scenario, config Configuration) ScenarioResult {
	result := ScenarioResult{
		Scenario:    s,
		StartTime:   time.Now(),
		StepResults: make([]StepResult, 0, len(s.Steps)),
		Result:      ResultPassed,
	}
	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
	}()

	r.reporter.ReportScenarioStart(s)
	logging.Info("Scenario", "Starting %s", s.Name)

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	if config.PreCheck {
		if _, err := r.verifier.AwaitConvergence(ctx, verify.NewSnapshot(time.Now(), nil), verify.Criteria{}); err != nil {
			result.Result = ResultError
			result.Error = fmt.Sprintf("pre-scenario health check failed: %v", err)
			return result
		}
	}

	state, err := r.prepare(ctx, s)
	if err != nil {
		result.Result = ResultError
		result.Error = err.Error()
		return result
	}

	for i, step := range s.Steps {
		r.reporter.ReportStepStart(step, i)
		sr := r.runStep(ctx, step, i, state)
		result.StepResults = append(result.StepResults, sr)
		if r.metrics != nil {
			r.metrics.ObserveStep(sr)
		}
		r.reporter.ReportStepResult(sr)

		if sr.Result != ResultPassed {
			result.Result = sr.Result
			result.Error = fmt.Sprintf("step %d (%s): %s", i+1, step.Title(), sr.Error)
			break
		}
	}
	logging.Info("Scenario", "%s: %s", s.Name, result.Result)
	return result
}

// prepare records the state that later steps compare against: the app
// config at scenario start and, when a step needs it, the recovery plan.
func (r *runner) prepare(ctx context.Context, s Scenario) (*scenarioState, error) {
	state := &scenarioState{
		data: templateData{
			Service: r.settings.Service,
			ZKPath:  properties.ZKServicePath(r.settings.Service),
		},
	}

	cfg, err := r.cluster.GetAppConfig(ctx, r.settings.Service)
	if err != nil {
		return nil, fmt.Errorf("failed to read app config at scenario start: %w", err)
	}
	state.startConfig = cfg
	state.data.Env = cfg.Clone().Env

	for _, step := range s.Steps {
		if step.RecoveryPlanUnchanged {
			plan, err := r.completedRecoveryPlan(ctx, step.Timeout)
			if err != nil {
				return nil, fmt.Errorf("failed to record recovery plan at scenario start: %w", err)
			}
			state.startRecovery = plan
			break
		}
	}
	return state, nil
}
