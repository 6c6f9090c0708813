package errors

import (
	stderrors "errors"
	"fmt"
)

// AnnodexError is the structured error type for annodex.
// It carries enough context for diagnostics, logging and CLI output.
type AnnodexError struct {
	// Code is the unique error code (e.g., "ERR_201_RESOURCE_READ").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Resolution, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *AnnodexError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AnnodexError) Unwrap() error {
	return e.Cause
}

// Is matches another AnnodexError by code, so errors.Is works against
// code sentinels such as New(ErrCodeLinkage, "", nil).
func (e *AnnodexError) Is(target error) bool {
	if t, ok := target.(*AnnodexError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *AnnodexError) WithDetail(key, value string) *AnnodexError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *AnnodexError) WithSuggestion(suggestion string) *AnnodexError {
	e.Suggestion = suggestion
	return e
}

// New creates a new AnnodexError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *AnnodexError {
	return &AnnodexError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an AnnodexError from an existing error.
// The error's message becomes the AnnodexError message.
func Wrap(code string, err error) *AnnodexError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *AnnodexError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ReadError creates a resource read error.
func ReadError(path string, cause error) *AnnodexError {
	return New(ErrCodeResourceRead, fmt.Sprintf("read %s: %v", path, cause), cause).
		WithDetail("path", path)
}

// WriteError creates a resource write error.
func WriteError(path string, cause error) *AnnodexError {
	return New(ErrCodeResourceWrite, fmt.Sprintf("write %s: %v", path, cause), cause).
		WithDetail("path", path)
}

// StorageError creates a retryable remote storage error.
func StorageError(message string, cause error) *AnnodexError {
	return New(ErrCodeStorageUnavailable, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *AnnodexError {
	return New(ErrCodeValidation, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *AnnodexError {
	return New(ErrCodeInternal, message, cause)
}

// As finds the first AnnodexError in err's chain.
func As(err error) (*AnnodexError, bool) {
	var ae *AnnodexError
	if stderrors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// HasCode reports whether any AnnodexError in err's chain carries code.
func HasCode(err error, code string) bool {
	return stderrors.Is(err, &AnnodexError{Code: code})
}

// IsRetryable checks if an error is retryable.
// Returns true if an AnnodexError in the chain has the Retryable flag set.
func IsRetryable(err error) bool {
	ae, ok := As(err)
	return ok && ae.Retryable
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	ae, ok := As(err)
	return ok && ae.Severity == SeverityFatal
}

// GetCode extracts the error code from an AnnodexError.
// Returns empty string if there is none in the chain.
func GetCode(err error) string {
	if ae, ok := As(err); ok {
		return ae.Code
	}
	return ""
}

// GetCategory extracts the category from an AnnodexError.
// Returns empty string if there is none in the chain.
func GetCategory(err error) Category {
	if ae, ok := As(err); ok {
		return ae.Category
	}
	return ""
}
