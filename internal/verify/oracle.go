package verify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"converge/internal/cluster"
	"converge/pkg/logging"
)

// Convergence stages, in the order AwaitConvergence passes through them.
const (
	StageDeploy          = "deploy plan"
	StageRecoveryKickoff = "recovery kickoff"
	StageRecovery        = "recovery plan"
	StageTasks           = "task count"
	StageClassify        = "classification"
)

// AwaitConvergence blocks until the service has reconciled the last change
// relative to baseline, or the criteria's timeout elapses. A deadline on ctx
// that expires earlier is reported the same way, as a *ConvergenceTimeout
// carrying the shorter bound; only cancellation is returned as ctx's error.
//
// The stages run in order: deploy plan complete, recovery observed underway
// (only when crit.RecoveryExpected), recovery plan complete, running task
// count, then per-group classification. Errors from individual polls are
// retried until the deadline. The returned report is non-nil even when an
// error is returned and describes the last observations.
func (v *Verifier) AwaitConvergence(ctx context.Context, baseline Snapshot, crit Criteria) (*Report, error) {
	timeout := crit.Timeout
	if timeout <= 0 {
		timeout = v.opts.Timeout
	}
	expected := crit.ExpectedTaskCount
	if expected == 0 {
		expected = v.opts.ExpectedTaskCount
	}

	groups := make([]string, 0, len(crit.Expect))
	for g, e := range crit.Expect {
		if !baseline.Has(g) {
			return nil, fmt.Errorf("baseline does not cover group %q", g)
		}
		if _, err := ParseExpectation(string(e)); err != nil {
			return nil, fmt.Errorf("group %q: %w", g, err)
		}
		groups = append(groups, g)
	}
	slices.Sort(groups)

	// A caller deadline that expires first is the effective bound.
	bound := timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl).Round(time.Millisecond); left < bound {
			bound = left
		}
	}

	o := &oracle{
		v:        v,
		parent:   ctx,
		crit:     crit,
		bound:    bound,
		started:  v.now(),
		groups:   groups,
		baseline: baseline,
		report: &Report{
			Service:           v.opts.Service,
			ExpectedTaskCount: expected,
		},
	}

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := o.run(dctx, expected)
	o.report.Elapsed = v.now().Sub(o.started)
	if err != nil {
		logging.Warn("Verifier", "%s did not converge: %v", v.opts.Service, err)
		return o.report, err
	}
	logging.Info("Verifier", "%s converged in %v", v.opts.Service, o.report.Elapsed.Round(time.Millisecond))
	return o.report, nil
}

type oracle struct {
	v        *Verifier
	parent   context.Context
	crit     Criteria
	bound    time.Duration
	started  time.Time
	groups   []string
	baseline Snapshot
	report   *Report
}

func (o *oracle) run(ctx context.Context, expected int) error {
	if err := o.poll(ctx, StageDeploy, o.deployComplete); err != nil {
		return err
	}
	if o.crit.RecoveryExpected {
		if err := o.poll(ctx, StageRecoveryKickoff, o.recoveryKickedOff); err != nil {
			return err
		}
	}
	if err := o.poll(ctx, StageRecovery, o.recoveryComplete); err != nil {
		return err
	}
	if expected > 0 {
		if err := o.poll(ctx, StageTasks, o.taskCount(expected)); err != nil {
			return err
		}
	}
	if len(o.groups) > 0 {
		return o.classify(ctx)
	}
	return nil
}

// condition returns whether the stage is done and a short description of
// what was observed. A returned error is treated as transient.
type condition func(ctx context.Context) (bool, string, error)

func (o *oracle) poll(ctx context.Context, stage string, cond condition) error {
	var (
		last    = "nothing"
		lastErr error
	)
	err := wait.PollUntilContextCancel(ctx, o.v.opts.PollInterval, true, func(ctx context.Context) (bool, error) {
		o.report.Polls++
		done, observed, err := cond(ctx)
		if err != nil {
			// A request cut off by the deadline says nothing about the service.
			if ctx.Err() == nil {
				lastErr = err
			}
			logging.Debug("Verifier", "%s poll failed, retrying: %v", stage, err)
			return false, nil
		}
		last = observed
		return done, nil
	})
	if err == nil {
		logging.Debug("Verifier", "%s reached (%s)", stage, last)
		return nil
	}
	perr := o.parent.Err()
	if perr != nil && !errors.Is(perr, context.DeadlineExceeded) {
		return fmt.Errorf("waiting for %s: %w", stage, perr)
	}
	if perr != nil || wait.Interrupted(err) {
		return &ConvergenceTimeout{
			Stage:   stage,
			Timeout: o.bound,
			Elapsed: o.v.now().Sub(o.started),
			Last:    last,
			LastErr: lastErr,
		}
	}
	return err
}

func (o *oracle) plan(ctx context.Context, name string) (cluster.PlanStatus, error) {
	p, err := o.v.sched.Plan(ctx, o.v.opts.Service, name)
	if err != nil {
		return "", err
	}
	return p.Status, nil
}

// observeRecovery samples the recovery plan and latches the kicked-off flag.
func (o *oracle) observeRecovery(ctx context.Context) (cluster.PlanStatus, error) {
	status, err := o.plan(ctx, cluster.PlanRecovery)
	if err != nil {
		return "", err
	}
	o.report.Recovery = status
	if status.Underway() && !o.report.RecoveryKickedOff {
		logging.Debug("Verifier", "recovery of %s observed %s", o.v.opts.Service, status)
		o.report.RecoveryKickedOff = true
	}
	return status, nil
}

func (o *oracle) deployComplete(ctx context.Context) (bool, string, error) {
	// Recovery may start and finish while deploy is still rolling out, so
	// sample it here too when it has to be seen underway.
	if o.crit.RecoveryExpected && !o.report.RecoveryKickedOff {
		if _, err := o.observeRecovery(ctx); err != nil {
			logging.Debug("Verifier", "recovery sample failed: %v", err)
		}
	}
	status, err := o.plan(ctx, cluster.PlanDeploy)
	if err != nil {
		return false, "", err
	}
	o.report.Deploy = status
	return status == cluster.PlanComplete, string(status), nil
}

func (o *oracle) recoveryKickedOff(ctx context.Context) (bool, string, error) {
	if o.report.RecoveryKickedOff {
		return true, string(o.report.Recovery), nil
	}
	status, err := o.observeRecovery(ctx)
	if err != nil {
		return false, "", err
	}
	return o.report.RecoveryKickedOff, string(status), nil
}

func (o *oracle) recoveryComplete(ctx context.Context) (bool, string, error) {
	status, err := o.observeRecovery(ctx)
	if err != nil {
		return false, "", err
	}
	return status == cluster.PlanComplete, string(status), nil
}

func (o *oracle) taskCount(expected int) condition {
	return func(ctx context.Context) (bool, string, error) {
		tasks, err := o.v.orch.ListTaskInstances(ctx, o.v.opts.Service, "")
		if err != nil {
			return false, "", err
		}
		running := 0
		for _, t := range tasks {
			if t.Running {
				running++
			}
		}
		o.report.TaskCount = running
		return running == expected, fmt.Sprintf("%d/%d running", running, expected), nil
	}
}

// classify polls fresh snapshots until every expectation holds. A violation
// that waiting cannot repair fails at once; otherwise the deadline yields a
// mismatch for the first unsatisfied group.
func (o *oracle) classify(ctx context.Context) error {
	var violation *ConvergenceMismatch

	err := o.poll(ctx, StageClassify, func(ctx context.Context) (bool, string, error) {
		snap, err := o.v.collect(ctx, false, o.groups)
		if err != nil {
			return false, "", err
		}
		o.record(snap)

		pending := ""
		for _, r := range o.report.Groups {
			if r.Satisfied {
				continue
			}
			if r.Expected.settled(r.diff()) {
				violation = r.mismatch()
				return true, "violated " + r.Group, nil
			}
			if pending == "" {
				pending = r.Group
			}
		}
		if pending != "" {
			return false, "waiting on " + pending, nil
		}
		return true, "all groups satisfied", nil
	})
	if violation != nil {
		return violation
	}

	var timeout *ConvergenceTimeout
	if errors.As(err, &timeout) {
		for _, r := range o.report.Groups {
			if !r.Satisfied {
				return r.mismatch()
			}
		}
	}
	return err
}

func (o *oracle) record(snap Snapshot) {
	o.report.Final = snap
	o.report.Groups = o.report.Groups[:0]
	for _, g := range o.groups {
		d := Diff(g, o.baseline, snap)
		exp := o.crit.Expect[g]
		o.report.Groups = append(o.report.Groups, GroupResult{
			Group:     g,
			Expected:  exp,
			Actual:    d.Classification(),
			Before:    len(o.baseline.IDs(g)),
			After:     len(snap.IDs(g)),
			Added:     d.Added,
			Removed:   d.Removed,
			Satisfied: exp.Satisfied(d),
		})
	}
}
