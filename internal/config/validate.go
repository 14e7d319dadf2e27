// This file adds a lightweight linter/validator for Config values. It
// performs static checks over a decoded Config and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Config.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "runtime.workers"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// Validate performs static validation / linting of a Config.
//
// It does not mutate the config. Instead it returns a slice of Issue values.
// Callers may decide whether to treat warnings as fatal or not.
func Validate(c Config) []Issue {
	var issues []Issue

	issues = append(issues, validateStorage(c.Storage)...)
	issues = append(issues, validateRuntime(c.Runtime)...)
	issues = append(issues, validateMetrics(c.Metrics)...)

	if strings.TrimSpace(c.DataDir) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "data_dir",
			Message:  "data_dir must not be empty",
		})
	}

	return issues
}

// validateStorage validates storage configuration and DB settings.
func validateStorage(s Storage) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
		return issues
	}

	known := map[string]struct{}{
		"sqlite":   {},
		"postgres": {},
		"generic":  {},
	}
	if _, ok := known[strings.ToLower(s.Kind)]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
		})
	}

	if strings.TrimSpace(s.DB.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.dsn",
			Message:  "storage.db.dsn must not be empty",
		})
	}

	return issues
}

// validateRuntime validates RuntimeConfig for obvious misconfigurations.
func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue

	if r.Workers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.workers",
			Message:  "workers must not be negative",
		})
	}
	if r.ChunkSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.chunk_size",
			Message:  "chunk_size must not be negative",
		})
	}
	if r.ChunkSize > 0 && r.ChunkSize < 1000 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.chunk_size",
			Message:  fmt.Sprintf("chunk_size=%d; very small chunks hurt throughput on multi-million row extracts", r.ChunkSize),
		})
	}
	if r.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.batch_size",
			Message:  "batch_size must not be negative",
		})
	}

	return issues
}

// validateMetrics validates the optional metrics block.
func validateMetrics(m Metrics) []Issue {
	var issues []Issue

	if m.Kind == "" {
		return nil
	}

	known := map[string]struct{}{
		"prompush": {},
	}
	if _, ok := known[m.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "metrics.kind",
			Message:  fmt.Sprintf("unknown metrics kind %q; ensure a matching backend exists", m.Kind),
		})
		return issues
	}

	if m.Options.String("gateway_url", "") == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.options.gateway_url",
			Message:  "prompush metrics require a non-empty gateway_url",
		})
	}

	return issues
}
