package scenario

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/afero"

	"converge/internal/verify"
)

// consoleReporter prints progress for humans.
type consoleReporter struct {
	out        io.Writer
	fs         afero.Fs
	verbose    bool
	debug      bool
	reportPath string

	useSpinner bool
	spin       *spinner.Spinner
}

// NewConsoleReporter creates the default reporter writing to stdout. When
// reportPath is set a detailed JSON report is written there at the end.
func NewConsoleReporter(verbose, debug bool, reportPath string) Reporter {
	r := newConsoleReporter(os.Stdout, afero.NewOsFs(), verbose, debug, reportPath)
	r.useSpinner = !verbose
	return r
}

func newConsoleReporter(out io.Writer, fs afero.Fs, verbose, debug bool, reportPath string) *consoleReporter {
	return &consoleReporter{
		out:        out,
		fs:         fs,
		verbose:    verbose,
		debug:      debug,
		reportPath: reportPath,
	}
}

func (r *consoleReporter) printf(format string, args ...interface{}) {
	fmt.Fprintf(r.out, format, args...)
}

// ReportStart is called when the run begins
func (r *consoleReporter) ReportStart(config Configuration) {
	r.printf("🧪 Starting converge\n")
	if config.Install {
		r.printf("📦 The service is installed before and uninstalled after the run\n")
	}

	if r.verbose {
		r.printf("\n⚙️  Configuration:\n")
		r.printf("   • Run ID: %s\n", stringOrDefault(config.RunID, "-"))
		r.printf("   • Scenario: %s\n", stringOrDefault(config.Scenario, "all"))
		if len(config.Tags) > 0 {
			r.printf("   • Tags: %s\n", strings.Join(config.Tags, ", "))
		}
		r.printf("   • Fail fast: %t\n", config.FailFast)
		r.printf("   • Pre-check: %t\n", config.PreCheck)
		r.printf("   • Debug mode: %t\n", r.debug)
		if config.Timeout > 0 {
			r.printf("   • Timeout: %v\n", config.Timeout)
		}
		if config.ScenarioPath != "" {
			r.printf("   • Scenario path: %s\n", config.ScenarioPath)
		}
		if r.reportPath != "" {
			r.printf("   • Report path: %s\n", r.reportPath)
		}
		r.printf("\n")
	}
}

// ReportScenarioStart is called when a scenario begins
func (r *consoleReporter) ReportScenarioStart(s Scenario) {
	if !r.verbose {
		r.printf("🎯 %s... ", s.Name)
		return
	}
	r.printf("🎯 Starting scenario: %s\n", s.Name)
	if s.Description != "" {
		r.printf("   📝 Description: %s\n", strings.TrimSpace(s.Description))
	}
	if len(s.Tags) > 0 {
		r.printf("   🏷️  Tags: %s\n", strings.Join(s.Tags, ", "))
	}
	r.printf("   📋 Steps: %d\n", len(s.Steps))
	if s.Timeout > 0 {
		r.printf("   ⏱️  Timeout: %v\n", s.Timeout)
	}
	if s.File != "" && r.debug {
		r.printf("   📁 File: %s\n", s.File)
	}
	r.printf("\n")
}

// ReportStepStart is called before a step runs
func (r *consoleReporter) ReportStepStart(step Step, index int) {
	if r.verbose {
		r.printf("   ▶️  Step %d: %s\n", index+1, step.Title())
		return
	}
	if r.useSpinner {
		r.spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriterFile(os.Stdout))
		r.spin.Suffix = fmt.Sprintf(" step %d: %s", index+1, step.Title())
		r.spin.Start()
	}
}

// ReportStepResult is called when a step completes
func (r *consoleReporter) ReportStepResult(result StepResult) {
	if r.spin != nil {
		r.spin.Stop()
		r.spin = nil
	}
	if !r.verbose {
		return
	}

	r.printf("   %s Step %d: %s (%v)\n", resultSymbol(result.Result), result.Index+1, result.Step.Title(),
		result.Duration.Round(time.Millisecond))
	for _, a := range result.Step.Actions {
		if act, err := a.toAction(templateData{}); err == nil {
			r.printf("      🔧 %s\n", act)
		}
	}
	if result.Report != nil {
		r.printReport(result.Report)
	}
	if result.Error != "" {
		r.printf("      ❌ Error: %s\n", result.Error)
	}
	if result.Diff != "" {
		r.printf("      📋 Diff:\n%s\n", indentText(result.Diff, "         "))
	}
}

func (r *consoleReporter) printReport(report *verify.Report) {
	r.printf("      📊 deploy=%s recovery=%s", stringOrDefault(string(report.Deploy), "-"), stringOrDefault(string(report.Recovery), "-"))
	if report.ExpectedTaskCount > 0 {
		r.printf(" tasks=%d/%d", report.TaskCount, report.ExpectedTaskCount)
	}
	r.printf(" polls=%d elapsed=%v\n", report.Polls, report.Elapsed.Round(time.Millisecond))
	for _, g := range report.Groups {
		mark := text.FgGreen.Sprint("✓")
		if !g.Satisfied {
			mark = text.FgRed.Sprint("✗")
		}
		r.printf("         %s %s: expected %s, observed %s (%d → %d instances)\n",
			mark, g.Group, g.Expected, g.Actual, g.Before, g.After)
		if r.debug {
			for _, id := range g.Removed {
				r.printf("            - %s\n", id)
			}
			for _, id := range g.Added {
				r.printf("            + %s\n", id)
			}
		}
	}
}

// ReportScenarioResult is called when a scenario completes
func (r *consoleReporter) ReportScenarioResult(result ScenarioResult) {
	if r.spin != nil {
		r.spin.Stop()
		r.spin = nil
	}
	symbol := resultSymbol(result.Result)
	if !r.verbose {
		r.printf("%s (%v)\n", symbol, result.Duration.Round(time.Millisecond))
		if result.Error != "" {
			r.printf("   %s\n", result.Error)
		}
		return
	}
	r.printf("%s Scenario %s: %s (%v)\n", symbol, result.Scenario.Name, result.Result, result.Duration.Round(time.Millisecond))
	if result.Error != "" {
		r.printf("   Error: %s\n", result.Error)
	}
	r.printf("\n")
}

// ReportSuiteResult is called when the run completes
func (r *consoleReporter) ReportSuiteResult(result SuiteResult) {
	r.printf("\n🏁 Run Complete\n")
	r.printf("⏱️  Duration: %v\n", result.Duration.Round(time.Millisecond))

	if len(result.ScenarioResults) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(r.out)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"SCENARIO", "RESULT", "STEPS", "DURATION"})
		for _, sr := range result.ScenarioResults {
			t.AppendRow(table.Row{
				sr.Scenario.Name,
				resultSymbol(sr.Result) + " " + string(sr.Result),
				fmt.Sprintf("%d/%d", passedSteps(sr), len(sr.Scenario.Steps)),
				sr.Duration.Round(time.Second),
			})
		}
		t.Render()
	}

	r.printf("📊 Results:\n")
	r.printf("   ✅ Passed: %d\n", result.PassedScenarios)
	if result.FailedScenarios > 0 {
		r.printf("   ❌ Failed: %d\n", result.FailedScenarios)
	}
	if result.ErrorScenarios > 0 {
		r.printf("   💥 Errors: %d\n", result.ErrorScenarios)
	}
	if result.SkippedScenarios > 0 {
		r.printf("   ⏭️  Skipped: %d\n", result.SkippedScenarios)
	}
	r.printf("   📈 Total: %d\n", result.TotalScenarios)

	if result.SetupError != "" {
		r.printf("\n💥 Setup failed: %s\n", result.SetupError)
	}
	if result.TeardownError != "" {
		r.printf("\n⚠️  Teardown failed: %s\n", result.TeardownError)
	}

	if result.Passed() {
		r.printf("\n🎉 All scenarios passed!\n")
	} else {
		r.printf("\n💔 Some scenarios failed\n")
	}

	if r.reportPath != "" {
		path, size, err := saveDetailedReport(r.fs, r.reportPath, result)
		if err != nil {
			r.printf("⚠️  Failed to save detailed report: %v\n", err)
		} else {
			r.printf("📄 Detailed report saved to: %s (%s)\n", path, humanize.Bytes(uint64(size)))
		}
	}
}

// saveDetailedReport writes result as JSON into dir and returns the file
// path and size.
func saveDetailedReport(fs afero.Fs, dir string, result SuiteResult) (string, int, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create report directory: %w", err)
	}

	end := result.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	filename := fmt.Sprintf("converge-report-%s.json", end.Format("20060102-150405"))
	fullPath := filepath.Join(dir, filename)

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	if err := afero.WriteFile(fs, fullPath, data, 0644); err != nil {
		return "", 0, fmt.Errorf("failed to write report file: %w", err)
	}
	return fullPath, len(data), nil
}

func passedSteps(sr ScenarioResult) int {
	n := 0
	for _, s := range sr.StepResults {
		if s.Result == ResultPassed {
			n++
		}
	}
	return n
}

// resultSymbol returns an appropriate symbol for the result
func resultSymbol(result Result) string {
	switch result {
	case ResultPassed:
		return "✅"
	case ResultFailed:
		return "❌"
	case ResultSkipped:
		return "⏭️"
	case ResultError:
		return "💥"
	default:
		return "❓"
	}
}

func indentText(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

func stringOrDefault(s, defaultValue string) string {
	if s == "" {
		return defaultValue
	}
	return s
}

// NewQuietReporter creates a reporter that only prints failures and the
// final summary.
func NewQuietReporter() Reporter {
	return &quietReporter{out: os.Stdout}
}

type quietReporter struct {
	out io.Writer
}

func (r *quietReporter) ReportStart(Configuration) {}
func (r *quietReporter) ReportScenarioStart(Scenario) {}
func (r *quietReporter) ReportStepStart(Step, int) {}
func (r *quietReporter) ReportStepResult(StepResult) {}

func (r *quietReporter) ReportScenarioResult(result ScenarioResult) {
	if result.Result == ResultFailed || result.Result == ResultError {
		fmt.Fprintf(r.out, "%s %s: %s\n", resultSymbol(result.Result), result.Scenario.Name, result.Error)
	}
}

func (r *quietReporter) ReportSuiteResult(result SuiteResult) {
	if result.Passed() {
		fmt.Fprintf(r.out, "✅ All %d scenarios passed (%v)\n", result.TotalScenarios, result.Duration.Round(time.Millisecond))
		return
	}
	if result.SetupError != "" {
		fmt.Fprintf(r.out, "💥 Setup failed: %s\n", result.SetupError)
	}
	fmt.Fprintf(r.out, "❌ %d/%d scenarios failed (%v)\n",
		result.FailedScenarios+result.ErrorScenarios, result.TotalScenarios, result.Duration.Round(time.Millisecond))
}

// NewJSONReporter creates a reporter that prints one JSON document when the
// run completes.
func NewJSONReporter() Reporter {
	return &jsonReporter{out: os.Stdout}
}

type jsonReporter struct {
	out     io.Writer
	config  Configuration
	results []ScenarioResult
}

func (r *jsonReporter) ReportStart(config Configuration) {
	r.config = config
	r.results = make([]ScenarioResult, 0)
}

func (r *jsonReporter) ReportScenarioStart(Scenario) {}
func (r *jsonReporter) ReportStepStart(Step, int) {}
func (r *jsonReporter) ReportStepResult(StepResult) {}

func (r *jsonReporter) ReportScenarioResult(result ScenarioResult) {
	r.results = append(r.results, result)
}

func (r *jsonReporter) ReportSuiteResult(result SuiteResult) {
	output := map[string]interface{}{
		"configuration": r.config,
		"results":       r.results,
		"summary":       result,
	}
	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		fmt.Fprintf(r.out, "{\"error\": %q}\n", err.Error())
		return
	}
	fmt.Fprintln(r.out, string(data))
}
