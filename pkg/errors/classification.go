package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCategory groups errors by what kind of problem they represent.
type ErrorCategory string

const (
	CategoryInfrastructure ErrorCategory = "infrastructure"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryValidation     ErrorCategory = "validation"
	CategoryResource       ErrorCategory = "resource"
	CategoryPersistence    ErrorCategory = "persistence"
	CategoryPipeline       ErrorCategory = "pipeline"
	CategoryPermission     ErrorCategory = "permission"
	CategoryTimeout        ErrorCategory = "timeout"
	CategoryNotFound       ErrorCategory = "not_found"
	CategoryConflict       ErrorCategory = "conflict"
	CategoryUnknown        ErrorCategory = "unknown"
)

// ErrorSeverity indicates how serious an error is.
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "critical"
	SeverityHigh     ErrorSeverity = "high"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityLow      ErrorSeverity = "low"
	SeverityInfo     ErrorSeverity = "info"
)

// ClassifiedError is an error with category/severity/retryability attached.
type ClassifiedError struct {
	Err       error
	Category  ErrorCategory
	Severity  ErrorSeverity
	Retryable bool
	UserMsg   string
}

func (e *ClassifiedError) Error() string {
	return e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// ClassifyError classifies an error based on its type and content.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	switch {
	case IsConflictError(err):
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryConflict,
			Severity:  SeverityLow,
			Retryable: false,
			UserMsg:   "A job with that identifier already exists.",
		}

	case IsNotFoundError(err):
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryNotFound,
			Severity:  SeverityLow,
			Retryable: false,
			UserMsg:   "Requested resource not found.",
		}

	case IsJobError(err):
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryInfrastructure,
			Severity:  SeverityMedium,
			Retryable: true,
			UserMsg:   "Job operation failed. Please try again.",
		}

	case IsRunError(err):
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryInfrastructure,
			Severity:  SeverityMedium,
			Retryable: true,
			UserMsg:   "Run operation failed. Please try again.",
		}

	case IsPipelineError(err):
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryPipeline,
			Severity:  SeverityHigh,
			Retryable: false,
			UserMsg:   "Pipeline step failed.",
		}

	case IsPersistenceError(err):
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryPersistence,
			Severity:  SeverityHigh,
			Retryable: false,
			UserMsg:   "A storage operation failed.",
		}

	case IsConfigError(err):
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryConfiguration,
			Severity:  SeverityHigh,
			Retryable: false,
			UserMsg:   "Configuration error. Please check your configuration settings.",
		}

	case IsResourceError(err):
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryResource,
			Severity:  SeverityMedium,
			Retryable: true,
			UserMsg:   "Insufficient capacity available. Please try again later.",
		}

	case IsTimeoutError(err):
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryTimeout,
			Severity:  SeverityMedium,
			Retryable: true,
			UserMsg:   "Operation timed out. Please try again.",
		}

	case IsPermissionError(err):
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryPermission,
			Severity:  SeverityHigh,
			Retryable: false,
			UserMsg:   "Permission denied.",
		}

	case errors.Is(err, context.Canceled):
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryTimeout,
			Severity:  SeverityLow,
			Retryable: false,
			UserMsg:   "Operation was canceled.",
		}

	case errors.Is(err, context.DeadlineExceeded):
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryTimeout,
			Severity:  SeverityMedium,
			Retryable: true,
			UserMsg:   "Operation timed out. Please try again.",
		}

	default:
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryUnknown,
			Severity:  SeverityMedium,
			Retryable: false,
			UserMsg:   "An unexpected error occurred.",
		}
	}
}

// ShouldRetry determines if an operation should be retried based on the error.
func ShouldRetry(err error) bool {
	classified := ClassifyError(err)
	if classified == nil {
		return false
	}
	return classified.Retryable
}

// GetSeverity returns the severity of an error, defaulting to low.
func GetSeverity(err error) ErrorSeverity {
	classified := ClassifyError(err)
	if classified == nil {
		return SeverityLow
	}
	return classified.Severity
}

// GetCategory returns the category of an error, defaulting to unknown.
func GetCategory(err error) ErrorCategory {
	classified := ClassifyError(err)
	if classified == nil {
		return CategoryUnknown
	}
	return classified.Category
}

// GetUserMessage returns a user-facing message for an error.
func GetUserMessage(err error) string {
	classified := ClassifyError(err)
	if classified == nil {
		return "An error occurred."
	}
	return classified.UserMsg
}

// IsRetryable is an alias for ShouldRetry.
func IsRetryable(err error) bool {
	return ShouldRetry(err)
}

// IsCritical checks if an error is critical severity.
func IsCritical(err error) bool {
	return GetSeverity(err) == SeverityCritical
}

// NewCriticalError creates a critical, non-retryable classified error.
func NewCriticalError(category ErrorCategory, err error, userMsg string) *ClassifiedError {
	return &ClassifiedError{
		Err:       err,
		Category:  category,
		Severity:  SeverityCritical,
		Retryable: false,
		UserMsg:   userMsg,
	}
}

// NewRetryableError creates a retryable classified error.
func NewRetryableError(category ErrorCategory, err error, userMsg string) *ClassifiedError {
	return &ClassifiedError{
		Err:       err,
		Category:  category,
		Severity:  SeverityMedium,
		Retryable: true,
		UserMsg:   userMsg,
	}
}

// NewUserError attaches a user-facing message to a classified error.
func NewUserError(err error, userMsg string) *ClassifiedError {
	classified := ClassifyError(err)
	if classified == nil {
		classified = &ClassifiedError{
			Err:      err,
			Category: CategoryUnknown,
			Severity: SeverityMedium,
		}
	}
	classified.UserMsg = userMsg
	return classified
}

// FormatErrorForLogging formats an error for structured logging.
func FormatErrorForLogging(err error) map[string]interface{} {
	if err == nil {
		return nil
	}

	classified := ClassifyError(err)
	result := map[string]interface{}{
		"error":     err.Error(),
		"category":  string(classified.Category),
		"severity":  string(classified.Severity),
		"retryable": classified.Retryable,
	}

	if jobID, ok := GetJobID(err); ok {
		result["job_id"] = jobID
	}
	if runID, ok := GetRunID(err); ok {
		result["run_id"] = runID
	}

	return result
}

// LogError logs an error with its classification attached as fields.
func LogError(logger interface{ Error(string, ...interface{}) }, err error, msg string) {
	if err == nil {
		return
	}

	logData := FormatErrorForLogging(err)
	args := make([]interface{}, 0, len(logData)*2)
	for k, v := range logData {
		args = append(args, k, v)
	}

	logger.Error(msg, args...)
}

// WrapWithUserMessage wraps an error with a user-friendly message while
// preserving the original error for errors.Is/As.
func WrapWithUserMessage(err error, userMsg string) error {
	if err == nil {
		return nil
	}

	classified := NewUserError(err, userMsg)
	return fmt.Errorf("%s: %w", userMsg, classified)
}
