// Package errors provides structured error handling for annodex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors and warnings
//   - 2XX: Resource and storage IO errors
//   - 3XX: Element resolution errors (read path)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates resource, ledger and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryResolution indicates elements that could not be loaded.
	CategoryResolution Category = "RESOLUTION"
	// CategoryValidation indicates invalid input or annotation use.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeRetention      = "ERR_103_RETENTION"

	// IO (200-299)
	ErrCodeResourceRead       = "ERR_201_RESOURCE_READ"
	ErrCodeResourceWrite      = "ERR_202_RESOURCE_WRITE"
	ErrCodeResourceLock       = "ERR_203_RESOURCE_LOCK"
	ErrCodeResourceEnum       = "ERR_204_RESOURCE_ENUM"
	ErrCodeStorageUnavailable = "ERR_205_STORAGE_UNAVAILABLE"
	ErrCodeLedgerCorrupt      = "ERR_206_LEDGER_CORRUPT"
	ErrCodeSourceRead         = "ERR_207_SOURCE_READ"

	// Resolution (300-399)
	ErrCodeClassNotFound = "ERR_301_CLASS_NOT_FOUND"
	ErrCodeLinkage       = "ERR_302_LINKAGE"

	// Validation (400-499)
	ErrCodeInvalidLocation    = "ERR_401_INVALID_LOCATION"
	ErrCodeInvalidAnnotation  = "ERR_402_INVALID_ANNOTATION"
	ErrCodeValidation         = "ERR_403_VALIDATION"
	ErrCodeUnsupportedElement = "ERR_404_UNSUPPORTED_ELEMENT"
	ErrCodeInvalidPath        = "ERR_405_INVALID_PATH"
	ErrCodeUnknownValidator   = "ERR_406_UNKNOWN_VALIDATOR"
	ErrCodeSyntax             = "ERR_407_SYNTAX"

	// Internal (500-599)
	ErrCodeInternal      = "ERR_501_INTERNAL"
	ErrCodeInconsistency = "ERR_502_INCONSISTENCY"
	ErrCodeBuildFailed   = "ERR_503_BUILD_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	numStr := code[4:7]

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryResolution
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeLedgerCorrupt:
		return SeverityFatal
	case ErrCodeClassNotFound:
		return SeverityInfo
	case ErrCodeRetention, ErrCodeLinkage, ErrCodeUnknownValidator:
		return SeverityWarning
	}

	// Retryable storage errors get warning severity
	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeStorageUnavailable, ErrCodeResourceLock:
		return true
	default:
		return false
	}
}
