package scenario

import (
	"fmt"
	"sort"
	"strings"

	"converge/internal/verify"
)

// Validation error types.
const (
	ErrTypeMissingField = "missing_field"
	ErrTypeDuplicate    = "duplicate"
	ErrTypeStepKind     = "step_kind"
	ErrTypeAction       = "action"
	ErrTypeExpectation  = "expectation"
	ErrTypeTemplate     = "template"
	ErrTypeValue        = "value"
)

// ValidationResults is the outcome of validating a set of scenarios.
type ValidationResults struct {
	TotalScenarios    int                        `json:"total_scenarios"`
	ValidScenarios    int                        `json:"valid_scenarios"`
	TotalErrors       int                        `json:"total_errors"`
	ScenarioResults   []ScenarioValidationResult `json:"scenario_results"`
	ValidationSummary map[string]int             `json:"validation_summary"`
}

// Valid reports whether no errors were found.
func (r *ValidationResults) Valid() bool {
	return r.TotalErrors == 0
}

// ScenarioValidationResult is the validation result of one scenario.
type ScenarioValidationResult struct {
	ScenarioName string            `json:"scenario_name"`
	File         string            `json:"file,omitempty"`
	Valid        bool              `json:"valid"`
	Errors       []ValidationError `json:"errors,omitempty"`
}

// ValidationError is one problem found in a scenario.
type ValidationError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	// Field locates the problem, e.g. "steps[2].actions[0].kill".
	Field      string `json:"field,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

var stepKinds = []string{
	StepActions, StepCheckHealthy, StepCheckEndpoints, StepWaitMetrics,
	StepRollbackConfig, StepAssertConfig, StepRecoveryPlanUnchanged,
}

// ValidateScenarios checks every scenario and collects all problems.
func ValidateScenarios(scenarios []Scenario) *ValidationResults {
	results := &ValidationResults{
		TotalScenarios:    len(scenarios),
		ValidationSummary: make(map[string]int),
	}
	seen := make(map[string]string)
	for _, s := range scenarios {
		errs := validateScenario(s)
		if s.Name != "" {
			if first, dup := seen[s.Name]; dup {
				errs = append(errs, ValidationError{
					Type:       ErrTypeDuplicate,
					Field:      "name",
					Message:    fmt.Sprintf("scenario name %q is also used in %s", s.Name, first),
					Suggestion: "Scenario names select scenarios on the command line and must be unique",
				})
			} else {
				seen[s.Name] = s.File
			}
		}

		r := ScenarioValidationResult{ScenarioName: s.Name, File: s.File, Valid: len(errs) == 0, Errors: errs}
		if r.Valid {
			results.ValidScenarios++
		}
		for _, e := range errs {
			results.ValidationSummary[e.Type]++
		}
		results.TotalErrors += len(errs)
		results.ScenarioResults = append(results.ScenarioResults, r)
	}
	return results
}

func validateScenario(s Scenario) []ValidationError {
	var errs []ValidationError
	if s.Name == "" {
		errs = append(errs, ValidationError{Type: ErrTypeMissingField, Field: "name", Message: "scenario name is required"})
	}
	if s.Timeout < 0 {
		errs = append(errs, ValidationError{Type: ErrTypeValue, Field: "timeout", Message: "timeout must not be negative"})
	}
	if len(s.Steps) == 0 {
		errs = append(errs, ValidationError{Type: ErrTypeMissingField, Field: "steps", Message: "scenario must have at least one step"})
	}
	for i, step := range s.Steps {
		errs = append(errs, validateStep(step, fmt.Sprintf("steps[%d]", i))...)
	}
	return errs
}

func validateStep(step Step, field string) []ValidationError {
	var errs []ValidationError
	add := func(typ, f, msg, suggestion string) {
		errs = append(errs, ValidationError{Type: typ, Field: f, Message: msg, Suggestion: suggestion})
	}

	kinds := step.Kinds()
	switch len(kinds) {
	case 0:
		add(ErrTypeStepKind, field, "step does nothing",
			"Set one of: "+strings.Join(stepKinds, ", "))
	case 1:
	default:
		add(ErrTypeStepKind, field, fmt.Sprintf("step sets %s; only one kind is allowed per step", strings.Join(kinds, " and ")),
			"Split the step into one step per kind")
	}
	if step.Timeout < 0 {
		add(ErrTypeValue, field+".timeout", "timeout must not be negative", "")
	}

	if step.Expect != nil {
		if step.Kind() != StepActions && step.Kind() != StepRollbackConfig {
			add(ErrTypeExpectation, field+".expect", "expect is only allowed with actions or rollback_config", "")
		}
		groups := make([]string, 0, len(step.Expect.Groups))
		for g := range step.Expect.Groups {
			groups = append(groups, g)
		}
		sort.Strings(groups)
		for _, g := range groups {
			if _, err := verify.ParseExpectation(step.Expect.Groups[g]); err != nil {
				add(ErrTypeExpectation, fmt.Sprintf("%s.expect.groups.%s", field, g), err.Error(), "")
			}
		}
		if step.Expect.Timeout < 0 {
			add(ErrTypeValue, field+".expect.timeout", "timeout must not be negative", "")
		}
	}

	for i, a := range step.Actions {
		for _, e := range validateAction(a) {
			e.Field = fmt.Sprintf("%s.actions[%d]%s", field, i, e.Field)
			errs = append(errs, e)
		}
	}

	if hc := step.CheckHealthy; hc != nil && hc.Timeout < 0 {
		add(ErrTypeValue, field+".check_healthy.timeout", "timeout must not be negative", "")
	}

	for i, ec := range step.CheckEndpoints {
		f := fmt.Sprintf("%s.check_endpoints[%d]", field, i)
		if ec.Endpoint == "" {
			add(ErrTypeMissingField, f+".endpoint", "endpoint is required", "e.g. hdfs-site.xml")
		}
		if len(ec.Properties) == 0 {
			add(ErrTypeMissingField, f+".properties", "at least one property is required", "")
		}
		for _, e := range validateTemplates(ec.Properties) {
			e.Field = f + ".properties." + e.Field
			errs = append(errs, e)
		}
	}

	if mw := step.WaitMetrics; mw != nil {
		if mw.Task == "" {
			add(ErrTypeMissingField, field+".wait_metrics.task", "task is required", "e.g. journal-0-node")
		}
		if mw.Timeout < 0 {
			add(ErrTypeValue, field+".wait_metrics.timeout", "timeout must not be negative", "")
		}
	}

	if ac := step.AssertConfig; ac != nil {
		if len(ac.Original) == 0 && len(ac.Values) == 0 {
			add(ErrTypeMissingField, field+".assert_config", "assert_config needs original or values", "")
		}
		for _, e := range validateTemplates(ac.Values) {
			e.Field = field + ".assert_config.values." + e.Field
			errs = append(errs, e)
		}
	}
	return errs
}

func validateAction(a ActionSpec) []ValidationError {
	if n := a.count(); n != 1 {
		return []ValidationError{{
			Type:       ErrTypeAction,
			Message:    fmt.Sprintf("action must set exactly one of kill, replace, restart, set_config or scale_config (got %d)", n),
			Suggestion: "Use one list entry per action",
		}}
	}
	var errs []ValidationError
	switch {
	case a.Kill != nil:
		if strings.TrimSpace(a.Kill.Pattern) == "" {
			errs = append(errs, ValidationError{Type: ErrTypeMissingField, Field: ".kill.pattern", Message: "kill pattern is required", Suggestion: "e.g. journalnode"})
		}
		if err := a.Kill.Target.Validate(); err != nil {
			errs = append(errs, ValidationError{Type: ErrTypeAction, Field: ".kill", Message: err.Error()})
		}
	case a.SetConfig != nil:
		if a.SetConfig.Field == "" {
			errs = append(errs, ValidationError{Type: ErrTypeMissingField, Field: ".set_config.field", Message: "field is required"})
		}
		if _, err := parseTemplate("", a.SetConfig.Value); err != nil {
			errs = append(errs, ValidationError{Type: ErrTypeTemplate, Field: ".set_config.value", Message: err.Error()})
		}
	case a.ScaleConfig != nil:
		if a.ScaleConfig.Field == "" {
			errs = append(errs, ValidationError{Type: ErrTypeMissingField, Field: ".scale_config.field", Message: "field is required"})
		}
		if a.ScaleConfig.Delta == 0 {
			errs = append(errs, ValidationError{Type: ErrTypeValue, Field: ".scale_config.delta", Message: "delta must not be zero"})
		}
	}
	return errs
}

// validateTemplates parses every value of m; Field is set to the key.
func validateTemplates(m map[string]string) []ValidationError {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var errs []ValidationError
	for _, k := range keys {
		if _, err := parseTemplate("", m[k]); err != nil {
			errs = append(errs, ValidationError{Type: ErrTypeTemplate, Field: k, Message: err.Error()})
		}
	}
	return errs
}

// FormatValidationResults formats validation results for CLI output
func FormatValidationResults(results *ValidationResults, verbose bool) string {
	var output strings.Builder

	output.WriteString("🔍 Scenario Validation Results\n")
	output.WriteString("══════════════════════════════\n")
	output.WriteString(fmt.Sprintf("Total scenarios: %d\n", results.TotalScenarios))
	output.WriteString(fmt.Sprintf("Valid scenarios: %d\n", results.ValidScenarios))
	output.WriteString(fmt.Sprintf("Invalid scenarios: %d\n", results.TotalScenarios-results.ValidScenarios))
	output.WriteString(fmt.Sprintf("Total errors: %d\n", results.TotalErrors))

	if len(results.ValidationSummary) > 0 {
		types := make([]string, 0, len(results.ValidationSummary))
		for t := range results.ValidationSummary {
			types = append(types, t)
		}
		sort.Strings(types)
		output.WriteString("\n📊 Validation Summary:\n")
		for _, t := range types {
			output.WriteString(fmt.Sprintf("  %s: %d\n", t, results.ValidationSummary[t]))
		}
	}

	if verbose || results.TotalErrors > 0 {
		output.WriteString("\n📋 Scenario Details:\n")
		for _, r := range results.ScenarioResults {
			status := "✅"
			if !r.Valid {
				status = "❌"
			}
			name := r.ScenarioName
			if name == "" {
				name = "<unnamed>"
			}
			if r.File != "" {
				output.WriteString(fmt.Sprintf("  %s %s (%s)\n", status, name, r.File))
			} else {
				output.WriteString(fmt.Sprintf("  %s %s\n", status, name))
			}
			for _, e := range r.Errors {
				output.WriteString(fmt.Sprintf("    • %s: %s\n", e.Type, e.Error()))
				if e.Suggestion != "" {
					output.WriteString(fmt.Sprintf("      💡 %s\n", e.Suggestion))
				}
			}
		}
	}

	return output.String()
}
