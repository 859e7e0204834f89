package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrClusterNotFound indicates a cluster was not found by the given identifier.
	ErrClusterNotFound = errors.New("cluster not found")

	// ErrDefinitionNotFound indicates a definition was not found by the given identifier.
	ErrDefinitionNotFound = errors.New("definition not found")

	// ErrRunNotFound indicates a run was not found by the given identifier.
	ErrRunNotFound = errors.New("run not found")

	// ErrDuplicateExternalID indicates another record already uses the same
	// external identifier within its parent.
	ErrDuplicateExternalID = errors.New("duplicate external id")
)

// EntityError wraps storage errors with the operation and record involved.
type EntityError struct {
	Op     string // Operation being performed (e.g., "RunByID", "SaveRun")
	Entity string // "cluster", "definition" or "run"
	ID     string
	Err    error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewClusterError(op, id string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "cluster", ID: id, Err: err}
}

func NewDefinitionError(op, id string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "definition", ID: id, Err: err}
}

func NewRunError(op, id string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "run", ID: id, Err: err}
}

// IsClusterNotFound checks if an error indicates a cluster was not found.
func IsClusterNotFound(err error) bool {
	return errors.Is(err, ErrClusterNotFound)
}

// IsDefinitionNotFound checks if an error indicates a definition was not found.
func IsDefinitionNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound)
}

// IsRunNotFound checks if an error indicates a run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsNotFound reports any of the not-found errors.
func IsNotFound(err error) bool {
	return IsClusterNotFound(err) || IsDefinitionNotFound(err) || IsRunNotFound(err)
}
