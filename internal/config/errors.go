package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Error types of a ConfigurationError.
const (
	ErrorTypeIO         = "io"
	ErrorTypeParse      = "parse"
	ErrorTypeValidation = "validation"
)

// ConfigurationError is one problem with the converge configuration file.
type ConfigurationError struct {
	FilePath string `json:"file_path"`
	FileName string `json:"file_name"`
	// Field is the dotted path of the offending key, e.g. convergence.timeout.
	Field      string `json:"field,omitempty"`
	ErrorType  string `json:"error_type"`
	Message    string `json:"message"`
	LineNumber int    `json:"line,omitempty"`
	// Suggestions tell the user how to fix the file.
	Suggestions []string `json:"suggestions,omitempty"`
}

func (ce ConfigurationError) Error() string {
	if ce.Field != "" {
		return fmt.Sprintf("%s: %s: %s", ce.FileName, ce.Field, ce.Message)
	}
	return fmt.Sprintf("%s: %s", ce.FileName, ce.Message)
}

// DetailedError renders the error with its location and suggestions, one
// item per line.
func (ce ConfigurationError) DetailedError() string {
	var b strings.Builder
	fmt.Fprintf(&b, "  File: %s", ce.FilePath)
	if ce.LineNumber > 0 {
		fmt.Fprintf(&b, ":%d", ce.LineNumber)
	}
	b.WriteString("\n")
	if ce.Field != "" {
		fmt.Fprintf(&b, "  Field: %s\n", ce.Field)
	}
	fmt.Fprintf(&b, "  Problem (%s): %s\n", ce.ErrorType, ce.Message)
	for _, s := range ce.Suggestions {
		fmt.Fprintf(&b, "    - %s\n", s)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// ConfigurationErrorCollection gathers every validation problem of one file
// so they can be reported together.
type ConfigurationErrorCollection struct {
	Errors []ConfigurationError `json:"errors"`
}

func (cec ConfigurationErrorCollection) Error() string {
	switch len(cec.Errors) {
	case 0:
		return "no configuration errors"
	case 1:
		return cec.Errors[0].Error()
	default:
		return fmt.Sprintf("%d configuration errors: %s (and %d more)",
			len(cec.Errors), cec.Errors[0].Error(), len(cec.Errors)-1)
	}
}

func (cec *ConfigurationErrorCollection) HasErrors() bool {
	return len(cec.Errors) > 0
}

func (cec *ConfigurationErrorCollection) Count() int {
	return len(cec.Errors)
}

func (cec *ConfigurationErrorCollection) Add(err ConfigurationError) {
	cec.Errors = append(cec.Errors, err)
}

// GetDetailedReport lists every error with DetailedError, numbered.
func (cec *ConfigurationErrorCollection) GetDetailedReport() string {
	if len(cec.Errors) == 0 {
		return "No configuration errors"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "❌ Invalid configuration (%d errors):\n", len(cec.Errors))
	for i, err := range cec.Errors {
		fmt.Fprintf(&b, "\n%d. %s\n%s\n", i+1, err.Error(), err.DetailedError())
	}
	return b.String()
}

// NewConfigurationError creates an error for path. field may be empty.
func NewConfigurationError(filePath, field, errorType, message string) ConfigurationError {
	return ConfigurationError{
		FilePath:  filePath,
		FileName:  filepath.Base(filePath),
		Field:     field,
		ErrorType: errorType,
		Message:   message,
	}
}

// NewConfigurationErrorCollection creates an empty collection.
func NewConfigurationErrorCollection() *ConfigurationErrorCollection {
	return &ConfigurationErrorCollection{Errors: make([]ConfigurationError, 0)}
}
