// Package scenario runs YAML-defined convergence scenarios against a live
// HDFS deployment.
//
// A scenario is a list of steps. Each step sets exactly one kind:
//
//	actions                  kill, replace, restart, set_config, scale_config
//	check_healthy            both plans complete and the task count matches
//	check_endpoints          endpoint documents contain the listed properties
//	wait_metrics             a task emits at least one metric
//	rollback_config          restore the app config captured at scenario start
//	assert_config            app config fields equal their start or given values
//	recovery_plan_unchanged  the recovery plan equals the one at scenario start
//
// An actions step captures a baseline of the groups named in its expect
// block, applies its actions in order and then waits, through
// verify.Verifier, until the service has converged and every group is
// classified as expected:
//
//	name: kill-journal-node
//	tags: [recovery, journal]
//	steps:
//	  - actions:
//	      - kill: {pattern: journalnode, pod: journal-0}
//	    expect:
//	      recovery: true
//	      groups:
//	        journal-0: updated
//	        name: unchanged
//	        data: unchanged
//
// Values in set_config, check_endpoints and assert_config are Go templates
// with the sprig functions plus autoip and zkpath, and see the service name
// as .Service and the start config as .Env.
//
// # Results
//
// A step whose service did not converge (a timeout or a classification
// mismatch) or whose comparison did not hold is FAILED. A step that could
// not be evaluated, because a group lookup found nothing, the control plane
// rejected an action or a document could not be parsed, is ERROR. The first
// step that does not pass ends its scenario.
//
// # Sessions
//
// With Configuration.Install the runner wraps the whole run in a Session
// that installs the package, optionally through an upgrade from an older
// version, and always uninstalls it afterwards.
//
// # Execution modes
//
// ExecutionModeCLI reports to stdout. ExecutionModeMCPServer collects
// results with a StructuredReporter so that MCPServer can expose runs as
// MCP tools without writing to the protocol stream.
package scenario
