package manager

import (
	"fmt"

	"github.com/emberops/ember/internal/slo"
)

// ProviderMissingError means no metric provider is registered for an SLI's
// source kind. It is a configuration error, not a retryable fault: the
// measurement cycle is skipped and prior state stays untouched.
type ProviderMissingError struct {
	SLOID  string
	Source slo.MetricSource
}

// Error implements the error interface.
func (e *ProviderMissingError) Error() string {
	return fmt.Sprintf("no metric provider registered for source %q (slo %s)", e.Source, e.SLOID)
}

// QueryError means the provider failed or timed out. The cycle is skipped;
// the next scheduled tick is the retry.
type QueryError struct {
	SLOID string
	Query string
	Err   error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("metric query failed (slo %s): %v", e.SLOID, e.Err)
}

// Unwrap exposes the underlying provider error.
func (e *QueryError) Unwrap() error {
	return e.Err
}
