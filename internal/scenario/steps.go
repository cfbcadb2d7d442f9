package scenario

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"converge/internal/cluster"
	"converge/internal/properties"
	"converge/internal/verify"
	"converge/pkg/logging"
)

// stepFailure carries the outcome of a step that did not pass.
type stepFailure struct {
	result Result
	err    error
	diff   string
}

func (f *stepFailure) Error() string {
	return f.err.Error()
}

func failed(err error) *stepFailure {
	return &stepFailure{result: ResultFailed, err: err}
}

func errored(err error) *stepFailure {
	return &stepFailure{result: ResultError, err: err}
}

// classify maps a verifier error to a step result: the service not
// converging is a failure, anything that kept the check from running is an
// error.
func classify(err error) *stepFailure {
	var (
		timeout  *verify.ConvergenceTimeout
		mismatch *verify.ConvergenceMismatch
	)
	if errors.As(err, &timeout) || errors.As(err, &mismatch) {
		return failed(err)
	}
	return errored(err)
}

// runStep executes one step and times it.
func (r *runner) runStep(ctx context.Context, step Step, index int, state *scenarioState) StepResult {
	result := StepResult{Step: step, Index: index, StartTime: time.Now(), Result: ResultPassed}

	if step.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	var (
		report *verify.Report
		fail   *stepFailure
	)
	switch step.Kind() {
	case StepActions:
		report, fail = r.runActions(ctx, step, state)
	case StepCheckHealthy:
		report, fail = r.runHealthCheck(ctx, *step.CheckHealthy)
	case StepCheckEndpoints:
		fail = r.runEndpointChecks(ctx, step.CheckEndpoints, state)
	case StepWaitMetrics:
		fail = r.runMetricsWait(ctx, *step.WaitMetrics)
	case StepRollbackConfig:
		report, fail = r.runRollback(ctx, step, state)
	case StepAssertConfig:
		fail = r.runConfigAssert(ctx, *step.AssertConfig, state)
	case StepRecoveryPlanUnchanged:
		fail = r.runRecoveryPlanUnchanged(ctx, step, state)
	default:
		fail = errored(fmt.Errorf("step must set exactly one kind, got %v", step.Kinds()))
	}

	result.Report = report
	if fail != nil {
		result.Result = fail.result
		result.Error = fail.Error()
		result.Diff = fail.diff
		logging.Warn("Scenario", "Step %d (%s) %s: %v", index+1, step.Title(), fail.result, fail.err)
	}
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	return result
}

// runActions captures the expected groups, applies the actions in order and
// waits for the service to converge against the captured baseline.
func (r *runner) runActions(ctx context.Context, step Step, state *scenarioState) (*verify.Report, *stepFailure) {
	crit, err := step.Expect.criteria()
	if err != nil {
		return nil, errored(err)
	}
	actions := make([]verify.Action, 0, len(step.Actions))
	for i, as := range step.Actions {
		a, err := as.toAction(state.data)
		if err != nil {
			return nil, errored(fmt.Errorf("actions[%d]: %w", i, err))
		}
		actions = append(actions, a)
	}

	baseline, err := r.verifier.Capture(ctx, step.Expect.groups()...)
	if err != nil {
		return nil, errored(err)
	}
	for _, a := range actions {
		r.logger.Debug("    ➜ %s\n", a)
		if err := r.trigger.Apply(ctx, a); err != nil {
			return nil, errored(err)
		}
	}

	report, err := r.verifier.AwaitConvergence(ctx, baseline, crit)
	if err != nil {
		return report, classify(err)
	}
	return report, nil
}

func (r *runner) runHealthCheck(ctx context.Context, hc HealthCheck) (*verify.Report, *stepFailure) {
	report, err := r.verifier.AwaitConvergence(ctx, verify.NewSnapshot(time.Now(), nil), verify.Criteria{
		RecoveryExpected:  hc.Recovery,
		ExpectedTaskCount: hc.Tasks,
		Timeout:           hc.Timeout,
	})
	if err != nil {
		return report, classify(err)
	}
	return report, nil
}

// runEndpointChecks fetches each endpoint document and compares the listed
// properties. All endpoints are checked before reporting.
func (r *runner) runEndpointChecks(ctx context.Context, checks []EndpointCheck, state *scenarioState) *stepFailure {
	var (
		diffs    []string
		failures []string
	)
	for _, check := range checks {
		expected, err := renderMap(check.Properties, state.data)
		if err != nil {
			return errored(fmt.Errorf("%s: %w", check.Endpoint, err))
		}
		doc, err := r.cluster.Endpoint(ctx, r.settings.Service, check.Endpoint)
		if err != nil {
			return errored(fmt.Errorf("failed to fetch endpoint %s: %w", check.Endpoint, err))
		}
		diff, err := properties.Check(doc, expected)
		if err != nil {
			return errored(fmt.Errorf("endpoint %s: %w", check.Endpoint, err))
		}
		if diff != "" {
			failures = append(failures, check.Endpoint)
			diffs = append(diffs, fmt.Sprintf("%s (-want +got):\n%s", check.Endpoint, diff))
		}
	}
	if len(failures) > 0 {
		f := failed(fmt.Errorf("endpoint properties differ: %v", failures))
		f.diff = strings.Join(diffs, "\n")
		return f
	}
	return nil
}

func (r *runner) runMetricsWait(ctx context.Context, mw MetricsWait) *stepFailure {
	timeout := mw.Timeout
	if timeout <= 0 {
		timeout = r.settings.MetricsTimeout
	}
	if err := r.cluster.WaitForAnyMetric(ctx, r.settings.Service, mw.Task, timeout); err != nil {
		return failed(err)
	}
	return nil
}

// runRollback restores the env captured at scenario start and waits for the
// resulting deployment.
func (r *runner) runRollback(ctx context.Context, step Step, state *scenarioState) (*verify.Report, *stepFailure) {
	crit, err := step.Expect.criteria()
	if err != nil {
		return nil, errored(err)
	}
	baseline, err := r.verifier.Capture(ctx, step.Expect.groups()...)
	if err != nil {
		return nil, errored(err)
	}

	current, err := r.cluster.GetAppConfig(ctx, r.settings.Service)
	if err != nil {
		return nil, errored(fmt.Errorf("failed to read app config: %w", err))
	}
	restored := current.Clone()
	restored.Env = state.startConfig.Clone().Env
	if cmp.Equal(current.Env, restored.Env, cmpopts.EquateEmpty()) {
		r.logger.Debug("    ➜ app config already matches scenario start\n")
	} else {
		r.logger.Debug("    ➜ restoring app config of %s\n", r.settings.Service)
		if err := r.cluster.UpdateAppConfig(ctx, r.settings.Service, restored, r.settings.ConfigUpdateTimeout); err != nil {
			return nil, errored(fmt.Errorf("failed to restore app config: %w", err))
		}
	}

	report, err := r.verifier.AwaitConvergence(ctx, baseline, crit)
	if err != nil {
		return report, classify(err)
	}
	return report, nil
}

// runConfigAssert compares the current app config to the values captured at
// scenario start and to explicit values.
func (r *runner) runConfigAssert(ctx context.Context, ac ConfigAssert, state *scenarioState) *stepFailure {
	values, err := renderMap(ac.Values, state.data)
	if err != nil {
		return errored(err)
	}
	current, err := r.cluster.GetAppConfig(ctx, r.settings.Service)
	if err != nil {
		return errored(fmt.Errorf("failed to read app config: %w", err))
	}

	want := make(map[string]string, len(ac.Original)+len(values))
	got := make(map[string]string, len(want))
	for _, field := range ac.Original {
		want[field] = state.startConfig.Env[field]
		got[field] = current.Env[field]
	}
	for field, v := range values {
		want[field] = v
		got[field] = current.Env[field]
	}
	if diff := cmp.Diff(want, got); diff != "" {
		var keys []string
		for k := range want {
			if want[k] != got[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		f := failed(fmt.Errorf("app config fields differ: %v", keys))
		f.diff = diff
		return f
	}
	return nil
}

func (r *runner) runRecoveryPlanUnchanged(ctx context.Context, step Step, state *scenarioState) *stepFailure {
	if state.startRecovery == nil {
		return errored(fmt.Errorf("no recovery plan recorded at scenario start"))
	}
	current, err := r.completedRecoveryPlan(ctx, step.Timeout)
	if err != nil {
		return classify(err)
	}
	if diff := planDiff(state.startRecovery, current); diff != "" {
		f := failed(fmt.Errorf("recovery plan changed during the scenario"))
		f.diff = diff
		return f
	}
	return nil
}

// completedRecoveryPlan waits for the recovery plan to complete and returns
// it.
func (r *runner) completedRecoveryPlan(ctx context.Context, timeout time.Duration) (*cluster.Plan, error) {
	if _, err := r.verifier.AwaitConvergence(ctx, verify.NewSnapshot(time.Now(), nil), verify.Criteria{
		ExpectedTaskCount: -1,
		Timeout:           timeout,
	}); err != nil {
		return nil, err
	}
	return r.cluster.Plan(ctx, r.settings.Service, cluster.PlanRecovery)
}

// planDiff compares the scheduler's raw plan documents when both exist and
// the normalised plans otherwise.
func planDiff(before, after *cluster.Plan) string {
	if before.Raw != nil && after.Raw != nil {
		return cmp.Diff(before.Raw, after.Raw)
	}
	return cmp.Diff(before, after, cmpopts.IgnoreFields(cluster.Plan{}, "Raw"), cmpopts.EquateEmpty())
}
