// Package formatting renders cluster state for the converge CLI.
//
// Every command that prints tasks, plans or app configs goes through a
// Formatter so that --output table|json|yaml behaves the same everywhere.
// Tables are meant for people; JSON and YAML are stable for scripts.
package formatting

import (
	"fmt"
	"io"
	"os"

	"converge/internal/cluster"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table" // Rich table output
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
)

// ValidFormats lists the accepted --output values.
var ValidFormats = []OutputFormat{FormatTable, FormatJSON, FormatYAML}

// ParseFormat validates a textual output format. The empty string selects
// FormatTable.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want table, json or yaml)", s)
	}
}

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	// Out receives the output. Defaults to os.Stdout.
	Out io.Writer
	// Wide adds identifier columns to task tables.
	Wide bool
}

// Formatter renders converge's cluster types.
type Formatter interface {
	FormatTasks(tasks []cluster.TaskInstance) error
	FormatPlan(plan *cluster.Plan) error
	FormatAppConfig(cfg cluster.AppConfig) error
	// FormatData renders any other value.
	FormatData(data interface{}) error
}

// New creates the formatter for options.Format.
func New(options Options) Formatter {
	if options.Out == nil {
		options.Out = os.Stdout
	}
	switch options.Format {
	case FormatJSON:
		return &JSONFormatter{options: options}
	case FormatYAML:
		return &YAMLFormatter{options: options}
	default:
		return &TableFormatter{options: options}
	}
}
