package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidateRequired checks if a required string field is not empty
func ValidateRequired(field, value, entityType string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("is required for %s", entityType),
		}
	}
	return nil
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateEntityName validates that an entity name follows proper conventions
func ValidateEntityName(name, entityType string) error {
	if err := ValidateRequired("name", name, entityType); err != nil {
		return err
	}
	if len(name) > 100 {
		return ValidationError{Field: "name", Value: name, Message: "must not exceed 100 characters"}
	}
	if strings.Contains(name, " ") {
		return ValidationError{
			Field:   "name",
			Value:   name,
			Message: "cannot contain spaces",
		}
	}
	return nil
}

// Validate checks cfg and returns every problem found. filePath is used
// for error context only.
func Validate(cfg Config, filePath string) *ConfigurationErrorCollection {
	errs := NewConfigurationErrorCollection()
	add := func(field, message string, suggestions ...string) {
		ce := NewConfigurationError(filePath, field, ErrorTypeValidation, message)
		ce.Suggestions = suggestions
		errs.Add(ce)
	}

	if err := ValidateOneOf("backend", cfg.Backend, []string{BackendDCOS, BackendKubernetes}); err != nil {
		add("backend", err.(ValidationError).Message)
	}
	if err := ValidateEntityName(cfg.Service.Name, "service"); err != nil {
		add("service.name", err.(ValidationError).Message)
	}
	if cfg.Service.ExpectedTasks < 0 {
		add("service.expected_tasks", "must not be negative")
	}
	if cfg.Service.UpgradeFrom != "" && cfg.Service.Version == "" {
		add("service.version", "is required when upgrade_from is set",
			"Set service.version to the version to upgrade to")
	}

	if cfg.Convergence.Timeout.Duration <= 0 {
		add("convergence.timeout", "must be positive")
	}
	if cfg.Convergence.PollInterval.Duration <= 0 {
		add("convergence.poll_interval", "must be positive")
	} else if cfg.Convergence.PollInterval.Duration >= cfg.Convergence.Timeout.Duration {
		add("convergence.poll_interval", "must be shorter than convergence.timeout")
	}
	if cfg.Convergence.CaptureConcurrency < 0 {
		add("convergence.capture_concurrency", "must not be negative")
	}

	switch cfg.Backend {
	case BackendDCOS:
		if cfg.DCOS.URL == "" {
			add("dcos.url", "is required for the dcos backend",
				"Set dcos.url to the cluster URL, e.g. https://master.mesos")
		} else if !strings.HasPrefix(cfg.DCOS.URL, "http://") && !strings.HasPrefix(cfg.DCOS.URL, "https://") {
			add("dcos.url", "must start with http:// or https://")
		}
		if cfg.DCOS.SSH.KeyFile == "" {
			add("dcos.ssh.key_file", "is required to kill processes on agents",
				"Point dcos.ssh.key_file at the private key used for the cluster agents")
		}
	case BackendKubernetes:
		if cfg.Kubernetes.Namespace == "" {
			add("kubernetes.namespace", "is required for the kubernetes backend")
		}
		if cfg.Kubernetes.InstanceLabel == "" {
			add("kubernetes.instance_label", "is required for the kubernetes backend")
		}
	}
	return errs
}
