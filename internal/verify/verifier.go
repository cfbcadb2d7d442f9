package verify

import (
	"fmt"
	"time"

	"converge/internal/cluster"
)

// Classification is the oracle's verdict for a process group after a change.
type Classification string

const (
	Updated   Classification = "updated"
	Unchanged Classification = "unchanged"
)

// Expectation declares what a scenario requires of a group.
type Expectation string

const (
	// MustUpdate requires a non-empty identifier delta.
	MustUpdate Expectation = "updated"
	// MustNotUpdate requires identical identifier sets.
	MustNotUpdate Expectation = "unchanged"
	// MustRetain requires every baseline identifier to survive; new
	// instances may appear (scale-out).
	MustRetain Expectation = "retained"
)

// ParseExpectation validates a textual expectation.
func ParseExpectation(s string) (Expectation, error) {
	switch e := Expectation(s); e {
	case MustUpdate, MustNotUpdate, MustRetain:
		return e, nil
	default:
		return "", fmt.Errorf("unknown expectation %q (want updated, unchanged or retained)", s)
	}
}

// Satisfied reports whether d meets the expectation.
func (e Expectation) Satisfied(d GroupDiff) bool {
	switch e {
	case MustUpdate:
		return d.Classification() == Updated
	case MustNotUpdate:
		return d.Classification() == Unchanged
	case MustRetain:
		return len(d.Removed) == 0
	default:
		return false
	}
}

// settled reports whether a failed expectation can still change by waiting.
// Identifiers only ever change, so a group that already lost or gained
// instances will not return to its baseline.
func (e Expectation) settled(d GroupDiff) bool {
	switch e {
	case MustNotUpdate:
		return d.Classification() == Updated
	case MustRetain:
		return len(d.Removed) > 0
	default:
		return false
	}
}

// Criteria is the success criterion of one convergence wait.
type Criteria struct {
	// Expect maps group name to the required classification.
	Expect map[string]Expectation
	// RecoveryExpected requires the recovery plan to be observed underway
	// before its completion is accepted.
	RecoveryExpected bool
	// ExpectedTaskCount is the number of running instances the service must
	// report. Zero uses Options.ExpectedTaskCount; negative skips the check.
	ExpectedTaskCount int
	// Timeout bounds the whole wait. Zero uses Options.Timeout.
	Timeout time.Duration
}

// Options configures a Verifier.
type Options struct {
	Service           string
	ExpectedTaskCount int
	Timeout           time.Duration
	PollInterval      time.Duration
	// CaptureConcurrency bounds concurrent group lookups during Capture.
	CaptureConcurrency int
}

// DefaultOptions returns the defaults used by the original HDFS suite.
func DefaultOptions(service string) Options {
	return Options{
		Service:            service,
		ExpectedTaskCount:  10,
		Timeout:            25 * time.Minute,
		PollInterval:       5 * time.Second,
		CaptureConcurrency: 4,
	}
}

// Verifier captures baselines and decides convergence for one service.
type Verifier struct {
	orch  cluster.Orchestrator
	sched cluster.Scheduler
	opts  Options
	now   func() time.Time
}

// New creates a Verifier. Zero-valued options fall back to DefaultOptions.
func New(orch cluster.Orchestrator, sched cluster.Scheduler, opts Options) *Verifier {
	def := DefaultOptions(opts.Service)
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.CaptureConcurrency == 0 {
		opts.CaptureConcurrency = def.CaptureConcurrency
	}
	return &Verifier{
		orch:  orch,
		sched: sched,
		opts:  opts,
		now:   time.Now,
	}
}

// Options returns the effective options.
func (v *Verifier) Options() Options {
	return v.opts
}
