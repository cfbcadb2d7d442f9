package scenario

import (
	"encoding/json"
	"sync"
	"time"
)

// StructuredReporter implements Reporter for MCP server mode. It captures
// all reporting data without writing to stdio.
type StructuredReporter struct {
	mu             sync.RWMutex
	config         Configuration
	scenarioStates map[string]*ScenarioState
	current        string
	suiteResult    *SuiteResult
	running        bool
}

// ScenarioState tracks the state of a running scenario
type ScenarioState struct {
	Scenario    Scenario     `json:"scenario"`
	StartTime   time.Time    `json:"start_time"`
	CurrentStep int          `json:"current_step"`
	StepResults []StepResult `json:"step_results"`
	Status      string       `json:"status"` // "running", "completed", "failed"
}

// NewStructuredReporter creates a reporter that keeps results in memory.
func NewStructuredReporter() *StructuredReporter {
	return &StructuredReporter{scenarioStates: make(map[string]*ScenarioState)}
}

// ReportStart is called when the run begins
func (r *StructuredReporter) ReportStart(config Configuration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.config = config
	r.running = true
	r.scenarioStates = make(map[string]*ScenarioState)
	r.suiteResult = &SuiteResult{
		RunID:           config.RunID,
		StartTime:       time.Now(),
		ScenarioResults: make([]ScenarioResult, 0),
		Configuration:   config,
	}
}

// ReportScenarioStart is called when a scenario begins
func (r *StructuredReporter) ReportScenarioStart(s Scenario) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.current = s.Name
	r.scenarioStates[s.Name] = &ScenarioState{
		Scenario:    s,
		StartTime:   time.Now(),
		CurrentStep: -1,
		StepResults: make([]StepResult, 0),
		Status:      "running",
	}
}

// ReportStepStart is called before a step runs
func (r *StructuredReporter) ReportStepStart(_ Step, index int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.scenarioStates[r.current]; ok {
		state.CurrentStep = index
	}
}

// ReportStepResult is called when a step completes
func (r *StructuredReporter) ReportStepResult(result StepResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.scenarioStates[r.current]; ok {
		state.StepResults = append(state.StepResults, result)
	}
}

// ReportScenarioResult is called when a scenario completes
func (r *StructuredReporter) ReportScenarioResult(result ScenarioResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.scenarioStates[result.Scenario.Name]; ok {
		if result.Result == ResultPassed || result.Result == ResultSkipped {
			state.Status = "completed"
		} else {
			state.Status = "failed"
		}
	}

	if r.suiteResult != nil {
		r.suiteResult.ScenarioResults = append(r.suiteResult.ScenarioResults, result)
		r.updateSuiteCounters(result)
	}
}

// ReportSuiteResult is called when the run completes
func (r *StructuredReporter) ReportSuiteResult(result SuiteResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.suiteResult = &result
	r.running = false
	for _, state := range r.scenarioStates {
		if state.Status == "running" {
			state.Status = "completed"
		}
	}
}

// Running reports whether a run is in progress.
func (r *StructuredReporter) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// GetCurrentSuiteResult returns a copy of the latest suite result, or nil
// before the first run.
func (r *StructuredReporter) GetCurrentSuiteResult() *SuiteResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.suiteResult == nil {
		return nil
	}
	result := *r.suiteResult
	result.ScenarioResults = make([]ScenarioResult, len(r.suiteResult.ScenarioResults))
	copy(result.ScenarioResults, r.suiteResult.ScenarioResults)
	return &result
}

// GetScenarioStates returns a copy of the per-scenario progress.
func (r *StructuredReporter) GetScenarioStates() map[string]*ScenarioState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make(map[string]*ScenarioState, len(r.scenarioStates))
	for name, state := range r.scenarioStates {
		stateCopy := *state
		stateCopy.StepResults = make([]StepResult, len(state.StepResults))
		copy(stateCopy.StepResults, state.StepResults)
		states[name] = &stateCopy
	}
	return states
}

// GetResultsAsJSON returns the current results as JSON
func (r *StructuredReporter) GetResultsAsJSON() (string, error) {
	result := r.GetCurrentSuiteResult()
	if result == nil {
		return `{"status": "no_results", "message": "No run results available"}`, nil
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r *StructuredReporter) updateSuiteCounters(result ScenarioResult) {
	switch result.Result {
	case ResultPassed:
		r.suiteResult.PassedScenarios++
	case ResultFailed:
		r.suiteResult.FailedScenarios++
	case ResultSkipped:
		r.suiteResult.SkippedScenarios++
	case ResultError:
		r.suiteResult.ErrorScenarios++
	}
	r.suiteResult.TotalScenarios = len(r.suiteResult.ScenarioResults)
}
