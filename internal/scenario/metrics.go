package scenario

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics collects per-run counters on a private registry. After the run
// they can be written in the Prometheus text format for the node exporter's
// textfile collector, so CI dashboards can chart suite health.
type RunMetrics struct {
	registry *prometheus.Registry

	scenarios   *prometheus.CounterVec
	steps       *prometheus.CounterVec
	convergence *prometheus.HistogramVec
	polls       prometheus.Counter
	lastRun     *prometheus.GaugeVec
}

// NewRunMetrics creates the collectors for one run.
func NewRunMetrics(service string) *RunMetrics {
	labels := prometheus.Labels{"service": service}
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		scenarios: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "converge_scenarios_total",
			Help:        "Scenarios run, by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "converge_steps_total",
			Help:        "Steps run, by kind and result.",
			ConstLabels: labels,
		}, []string{"kind", "result"}),
		convergence: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "converge_convergence_seconds",
			Help:        "Time until the service converged after a step.",
			ConstLabels: labels,
			Buckets:     []float64{10, 30, 60, 120, 300, 600, 900, 1500},
		}, []string{"kind"}),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "converge_polls_total",
			Help:        "Plan and task polls made while awaiting convergence.",
			ConstLabels: labels,
		}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "converge_last_run_timestamp_seconds",
			Help:        "Unix time the last run finished, by overall result.",
			ConstLabels: labels,
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.scenarios, m.steps, m.convergence, m.polls, m.lastRun)
	return m
}

// Registry exposes the collectors, e.g. for tests.
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStep records a step result.
func (m *RunMetrics) ObserveStep(r StepResult) {
	kind := r.Step.Kind()
	if kind == "" {
		kind = "invalid"
	}
	m.steps.WithLabelValues(kind, string(r.Result)).Inc()
	if r.Report != nil {
		m.polls.Add(float64(r.Report.Polls))
		if r.Result == ResultPassed {
			m.convergence.WithLabelValues(kind).Observe(r.Report.Elapsed.Seconds())
		}
	}
}

// ObserveScenario records a scenario result.
func (m *RunMetrics) ObserveScenario(r ScenarioResult) {
	m.scenarios.WithLabelValues(string(r.Result)).Inc()
}

// ObserveSuite records the end of the run.
func (m *RunMetrics) ObserveSuite(r SuiteResult) {
	result := ResultPassed
	if !r.Passed() {
		result = ResultFailed
	}
	end := r.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	m.lastRun.WithLabelValues(string(result)).Set(float64(end.Unix()))
}

// WriteTextfile writes the collected metrics to path atomically.
func (m *RunMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
