// Package errors provides standardized error handling for the job and
// workflow services. It implements structured error types with proper
// wrapping and classification.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// Job-related errors
	ErrJobNotFound      = errors.New("job not found")
	ErrJobAlreadyExists = errors.New("job already exists")
	ErrJobNotCancelable = errors.New("job is not in a cancelable state")
	ErrInvalidJobSpec   = errors.New("invalid job specification")

	// Run-related errors
	ErrRunNotFound    = errors.New("run not found")
	ErrInvalidRunSpec = errors.New("invalid run specification")

	// Pipeline-related errors
	ErrPipelineStepFailed  = errors.New("pipeline step failed")
	ErrUnknownStepKind     = errors.New("unknown pipeline step kind")
	ErrPipelineCanceled    = errors.New("pipeline was canceled")
	ErrInvalidPipelineSpec = errors.New("invalid pipeline specification")

	// Persistence-related errors
	ErrPersistenceFailed = errors.New("persistence operation failed")
	ErrCorruptDocument   = errors.New("persisted document is corrupt")

	// Backpressure / resource-related errors
	ErrBufferOverflow    = errors.New("buffer overflow")
	ErrResourceExhausted = errors.New("resource exhausted")

	// System-related errors
	ErrPermissionDenied = errors.New("permission denied")
	ErrTimeout          = errors.New("operation timed out")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// JobError represents an error related to a specific job.
type JobError struct {
	JobID     string
	Operation string
	Err       error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s: operation %s: %v", e.JobID, e.Operation, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// RunError represents an error related to a specific run.
type RunError struct {
	RunID     string
	Operation string
	Err       error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s: operation %s: %v", e.RunID, e.Operation, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// PersistenceError represents an error related to the persistent store.
type PersistenceError struct {
	Path      string
	Operation string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: operation %s: %v", e.Path, e.Operation, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// PipelineError represents an error related to pipeline/step execution.
type PipelineError struct {
	RunID     string
	StepKind  string
	StepIndex int
	Err       error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("run %s: step[%d] %s: %v", e.RunID, e.StepIndex, e.StepKind, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// ConfigError represents an error related to configuration.
type ConfigError struct {
	Component string
	Field     string
	Err       error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config %s.%s: %v", e.Component, e.Field, e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Component, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Error wrapping constructors.

func WrapJobError(jobID, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &JobError{JobID: jobID, Operation: operation, Err: err}
}

func WrapRunError(runID, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &RunError{RunID: runID, Operation: operation, Err: err}
}

func WrapPersistenceError(path, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Path: path, Operation: operation, Err: err}
}

func WrapPipelineError(runID, stepKind string, stepIndex int, err error) error {
	if err == nil {
		return nil
	}
	return &PipelineError{RunID: runID, StepKind: stepKind, StepIndex: stepIndex, Err: err}
}

func WrapConfigError(component, field string, err error) error {
	if err == nil {
		return nil
	}
	return &ConfigError{Component: component, Field: field, Err: err}
}

// Error classification functions.

func IsJobError(err error) bool {
	var je *JobError
	return errors.As(err, &je)
}

func IsRunError(err error) bool {
	var re *RunError
	return errors.As(err, &re)
}

func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

func IsPipelineError(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe)
}

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func IsResourceError(err error) bool {
	return errors.Is(err, ErrResourceExhausted) || errors.Is(err, ErrBufferOverflow)
}

func IsTimeoutError(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrRunNotFound)
}

func IsConflictError(err error) bool {
	return errors.Is(err, ErrJobAlreadyExists)
}

func IsPermissionError(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// Error extraction helpers.

func GetJobID(err error) (string, bool) {
	var je *JobError
	if errors.As(err, &je) {
		return je.JobID, true
	}
	return "", false
}

func GetRunID(err error) (string, bool) {
	var re *RunError
	if errors.As(err, &re) {
		return re.RunID, true
	}
	return "", false
}

// Convenience constructors for common error patterns.

func NewJobNotFoundError(jobID string) error {
	return WrapJobError(jobID, "lookup", ErrJobNotFound)
}

func NewRunNotFoundError(runID string) error {
	return WrapRunError(runID, "lookup", ErrRunNotFound)
}

func NewPersistenceError(path, operation string, err error) error {
	return WrapPersistenceError(path, operation, fmt.Errorf("%w: %v", ErrPersistenceFailed, err))
}

func NewConfigError(component, field string, err error) error {
	return WrapConfigError(component, field, fmt.Errorf("%w: %v", ErrInvalidConfig, err))
}

// IsContextError reports whether err is context cancellation or a deadline.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// JoinErrors combines multiple errors into a single error, skipping nils.
// Similar to errors.Join but with an Is/As that matches against any member.
func JoinErrors(errs ...error) error {
	var validErrs []error
	for _, err := range errs {
		if err != nil {
			validErrs = append(validErrs, err)
		}
	}

	if len(validErrs) == 0 {
		return nil
	}
	if len(validErrs) == 1 {
		return validErrs[0]
	}

	return &multiError{errors: validErrs}
}

// multiError represents multiple errors joined together.
type multiError struct {
	errors []error
}

func (e *multiError) Error() string {
	if len(e.errors) == 0 {
		return ""
	}
	if len(e.errors) == 1 {
		return e.errors[0].Error()
	}

	msg := e.errors[0].Error()
	for _, err := range e.errors[1:] {
		msg += "; " + err.Error()
	}
	return msg
}

func (e *multiError) Unwrap() []error {
	return e.errors
}

func (e *multiError) Is(target error) bool {
	for _, err := range e.errors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (e *multiError) As(target interface{}) bool {
	for _, err := range e.errors {
		if errors.As(err, target) {
			return true
		}
	}
	return false
}
