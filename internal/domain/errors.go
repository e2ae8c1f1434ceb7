package domain

import (
	"errors"
	"fmt"
)

// ErrorMarker prefixes every result text that records a failure instead of
// a model answer.
const ErrorMarker = "Error: "

// Common domain errors that can occur while sampling and ranking answers.
var (
	// ErrPromptEmpty indicates that a generation or ranking request carried
	// no prompt.
	ErrPromptEmpty = errors.New("prompt cannot be empty")

	// ErrModelEmpty indicates that no model identifier was supplied.
	ErrModelEmpty = errors.New("model cannot be empty")

	// ErrInvalidCount indicates that fewer than one generation was requested.
	ErrInvalidCount = errors.New("count must be at least 1")

	// ErrNoAnswers indicates that a ranking was requested over an empty
	// answer set.
	ErrNoAnswers = errors.New("no answers to rank")

	// ErrEmptyResponse indicates that the completion service answered with
	// no content.
	ErrEmptyResponse = errors.New("empty response from completion service")
)

// FormatError renders err as result text carrying the error marker.
// A nil error still yields a marked string so callers never store an empty
// failure placeholder.
func FormatError(err error) string {
	if err == nil {
		return ErrorMarker + "unknown error"
	}
	return ErrorMarker + err.Error()
}

// TaskError wraps a failure that happened inside a single generation task.
type TaskError struct {
	// Index is the 1-based submission index of the failed task.
	Index int

	// Stage names the step that failed ("complete" or "persist").
	Stage string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for TaskError.
func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d %s failed: %v", e.Index, e.Stage, e.Err)
}

// Unwrap returns the underlying error, supporting Go 1.13+ error unwrapping.
func (e *TaskError) Unwrap() error { return e.Err }

// NewTaskError creates a new TaskError with the given details.
func NewTaskError(index int, stage string, err error) *TaskError {
	return &TaskError{
		Index: index,
		Stage: stage,
		Err:   err,
	}
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
