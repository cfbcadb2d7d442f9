package scenario

import (
	"fmt"
	"io"
	"os"
)

// stdoutLogger implements Logger for CLI mode, writing to stdout/stderr
type stdoutLogger struct {
	out     io.Writer
	errOut  io.Writer
	verbose bool
	debug   bool
}

// NewStdoutLogger creates a logger that writes to stdout/stderr
func NewStdoutLogger(verbose, debug bool) Logger {
	return &stdoutLogger{
		out:     os.Stdout,
		errOut:  os.Stderr,
		verbose: verbose,
		debug:   debug,
	}
}

func (l *stdoutLogger) Debug(format string, args ...interface{}) {
	if l.debug {
		fmt.Fprintf(l.out, format, args...)
	}
}

func (l *stdoutLogger) Info(format string, args ...interface{}) {
	if l.verbose || l.debug {
		fmt.Fprintf(l.out, format, args...)
	}
}

func (l *stdoutLogger) Error(format string, args ...interface{}) {
	fmt.Fprintf(l.errOut, format, args...)
}

func (l *stdoutLogger) IsDebugEnabled() bool {
	return l.debug
}

func (l *stdoutLogger) IsVerboseEnabled() bool {
	return l.verbose
}

// silentLogger implements Logger for MCP server mode, suppressing all output
type silentLogger struct {
	verbose bool
	debug   bool
}

// NewSilentLogger creates a logger that suppresses all output (for MCP server mode)
func NewSilentLogger(verbose, debug bool) Logger {
	return &silentLogger{
		verbose: verbose,
		debug:   debug,
	}
}

func (l *silentLogger) Debug(format string, args ...interface{}) {}

func (l *silentLogger) Info(format string, args ...interface{}) {}

func (l *silentLogger) Error(format string, args ...interface{}) {}

func (l *silentLogger) IsDebugEnabled() bool {
	return l.debug
}

func (l *silentLogger) IsVerboseEnabled() bool {
	return l.verbose
}
