// Package logging provides subsystem-tagged, leveled logging for converge.
//
// The package wraps log/slog. Every record carries a "subsystem" attribute so
// that output from the verifier, the cluster backends and the scenario runner
// can be told apart in CI logs.
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Verifier", "captured %d groups", len(groups))
//	logging.Debug("DCOS", "GET %s", url)
//	logging.Error("Session", err, "uninstall of %s failed", service)
//
// InitSilent is used when converge serves MCP over stdio, where any stray
// output would corrupt the protocol stream.
//
// Initialisation also installs the same handler as the controller-runtime
// logger so that client errors from the Kubernetes backend land in the same
// stream.
package logging
