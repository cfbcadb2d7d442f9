package scenario

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredReporter_Lifecycle(t *testing.T) {
	r := NewStructuredReporter()

	text, err := r.GetResultsAsJSON()
	require.NoError(t, err)
	assert.Contains(t, text, "no_results")
	assert.Nil(t, r.GetCurrentSuiteResult())

	s := Scenario{Name: "kill-name-node", Steps: []Step{{RollbackConfig: true}, {RecoveryPlanUnchanged: true}}}
	r.ReportStart(Configuration{RunID: "run-7"})
	assert.True(t, r.Running())

	r.ReportScenarioStart(s)
	r.ReportStepStart(s.Steps[0], 0)
	r.ReportStepResult(StepResult{Step: s.Steps[0], Index: 0, Result: ResultPassed})
	r.ReportStepStart(s.Steps[1], 1)

	states := r.GetScenarioStates()
	require.Contains(t, states, "kill-name-node")
	assert.Equal(t, "running", states["kill-name-node"].Status)
	assert.Equal(t, 1, states["kill-name-node"].CurrentStep)
	assert.Len(t, states["kill-name-node"].StepResults, 1)

	// the copy is detached from the reporter
	states["kill-name-node"].StepResults = nil
	assert.Len(t, r.GetScenarioStates()["kill-name-node"].StepResults, 1)

	r.ReportStepResult(StepResult{Step: s.Steps[1], Index: 1, Result: ResultFailed})
	r.ReportScenarioResult(ScenarioResult{Scenario: s, Result: ResultFailed})

	interim := r.GetCurrentSuiteResult()
	require.NotNil(t, interim)
	assert.Equal(t, 1, interim.FailedScenarios)
	assert.Equal(t, 1, interim.TotalScenarios)
	assert.Equal(t, "failed", r.GetScenarioStates()["kill-name-node"].Status)

	r.ReportSuiteResult(SuiteResult{RunID: "run-7", TotalScenarios: 1, FailedScenarios: 1,
		ScenarioResults: []ScenarioResult{{Scenario: s, Result: ResultFailed}}})
	assert.False(t, r.Running())

	text, err = r.GetResultsAsJSON()
	require.NoError(t, err)
	var result SuiteResult
	require.NoError(t, json.Unmarshal([]byte(text), &result))
	assert.Equal(t, "run-7", result.RunID)
	assert.Equal(t, 1, result.FailedScenarios)
}

func TestStructuredReporter_StartResetsState(t *testing.T) {
	r := NewStructuredReporter()
	s := Scenario{Name: "first"}
	r.ReportStart(Configuration{})
	r.ReportScenarioStart(s)
	r.ReportScenarioResult(ScenarioResult{Scenario: s, Result: ResultPassed})
	r.ReportSuiteResult(SuiteResult{})

	r.ReportStart(Configuration{RunID: "second"})
	assert.Empty(t, r.GetScenarioStates())
	assert.Equal(t, "second", r.GetCurrentSuiteResult().RunID)
	assert.Empty(t, r.GetCurrentSuiteResult().ScenarioResults)
}
