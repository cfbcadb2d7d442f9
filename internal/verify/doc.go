// Package verify decides whether a service has converged after a change.
//
// A scenario captures a baseline Snapshot of the instance identifiers of the
// process groups it watches, applies an Action through a Trigger, and then
// calls AwaitConvergence with Criteria naming the classification each group
// must reach:
//
//	base, err := v.Capture(ctx, "journal", "name", "data")
//	err = trig.Apply(ctx, verify.ProcessKill{Pattern: "journalnode", Target: verify.Target{Pod: "journal-0"}})
//	report, err := v.AwaitConvergence(ctx, base, verify.Criteria{
//		Expect:           map[string]verify.Expectation{"journal": verify.MustUpdate, "name": verify.MustNotUpdate},
//		RecoveryExpected: true,
//	})
//
// Identifiers change whenever an instance is relaunched, so a group whose
// identifier set differs from the baseline in any way is Updated.
package verify
