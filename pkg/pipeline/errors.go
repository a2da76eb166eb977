package pipeline

import (
	"errors"
	"fmt"
)

// NotFoundError indicates an unknown pipeline name or schedule id.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// ValidationError indicates bad cron syntax, a bad timezone, or input that
// fails a pipeline's schema or custom validation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// DuplicateNameError indicates a registry name collision.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("pipeline already registered: %s", e.Name)
}

// ExecutionError wraps a fault raised inside a pipeline's Execute.
type ExecutionError struct {
	Pipeline string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("pipeline %s execution failed: %v", e.Pipeline, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsDuplicate reports whether err is a DuplicateNameError.
func IsDuplicate(err error) bool {
	var de *DuplicateNameError
	return errors.As(err, &de)
}
