// Package services implements the orchestrator operations on top of the
// store and the remote clusters.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest indicates a client error (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")

	// ErrClusterRequired is returned when an import carries no clusters.
	ErrClusterRequired = errors.New("at least one cluster is required")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrClusterRequired)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Message: message,
		Err:     errors.Join(ErrInvalidRequest, err),
	}
}
