package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConfiguration marks missing or invalid persona/routing configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrProvider marks an unrecoverable provider failure.
	ErrProvider = errors.New("provider error")
	// ErrInvalidEnvelope marks provider output that violates the envelope contract.
	ErrInvalidEnvelope = errors.New("invalid envelope")
	// ErrInvalidRequest marks caller input that failed validation.
	ErrInvalidRequest = errors.New("invalid request")
)

// ConfigError reports missing configuration for an eye.
type ConfigError struct {
	Eye    Eye
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Eye, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// ProviderError reports that the primary and, if configured, the fallback call failed.
type ProviderError struct {
	Eye      Eye
	Primary  error
	Fallback error
}

func (e *ProviderError) Error() string {
	if e.Fallback != nil {
		return fmt.Sprintf("provider error for %s: primary: %v; fallback: %v", e.Eye, e.Primary, e.Fallback)
	}
	return fmt.Sprintf("provider error for %s: %v", e.Eye, e.Primary)
}

func (e *ProviderError) Unwrap() []error {
	errs := []error{ErrProvider}
	if e.Primary != nil {
		errs = append(errs, e.Primary)
	}
	if e.Fallback != nil {
		errs = append(errs, e.Fallback)
	}
	return errs
}

// InvalidRequest wraps a validation message with ErrInvalidRequest.
func InvalidRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
