package errors

import (
	stderrors "errors"
	"fmt"
)

// CoreError is the structured error type for cognidex.
// It carries the code, category, severity and retry policy that the
// ingestion orchestrator and retrieval engine use to decide between
// retrying, degrading and failing hard.
type CoreError struct {
	// Code is the unique error code (e.g., "ERR_301_MODEL_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Model, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the whole operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *CoreError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with CoreError.
func (e *CoreError) Is(target error) bool {
	if t, ok := target.(*CoreError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *CoreError) WithDetail(key, value string) *CoreError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new CoreError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *CoreError {
	return &CoreError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a CoreError from an existing error.
// The error's message becomes the CoreError message.
func Wrap(code string, err error) *CoreError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration error (fatal, never retried).
func ConfigError(message string, cause error) *CoreError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ModelUnavailable creates a model backend error (retryable for ingestion,
// degrades gracefully for retrieval).
func ModelUnavailable(message string, cause error) *CoreError {
	return New(ErrCodeModelUnavailable, message, cause)
}

// IndexCorrupt creates an index corruption error (recovered locally by
// rebuilding an empty index; logged as a warning).
func IndexCorrupt(message string, cause error) *CoreError {
	return New(ErrCodeIndexCorrupt, message, cause)
}

// ConsistencyError creates a metadata/index consistency violation error.
// These are detected by the ingestion repair path, never raised synchronously
// on the query path.
func ConsistencyError(message string, cause error) *CoreError {
	return New(ErrCodeConsistency, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *CoreError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *CoreError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error (anywhere in the chain) is retryable.
func IsRetryable(err error) bool {
	var ce *CoreError
	if stderrors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation without retry.
func IsFatal(err error) bool {
	var ce *CoreError
	if stderrors.As(err, &ce) {
		return ce.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a CoreError in the chain.
// Returns empty string if no CoreError is present.
func GetCode(err error) string {
	var ce *CoreError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// GetCategory extracts the category from a CoreError in the chain.
func GetCategory(err error) Category {
	var ce *CoreError
	if stderrors.As(err, &ce) {
		return ce.Category
	}
	return ""
}
