// Package errors provides structured error handling for cognidex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors (caller misuse, never retried)
//   - 2XX: Storage errors (index files, metadata database)
//   - 3XX: Model errors (embedding and generation backends)
//   - 4XX: Validation errors
//   - 5XX: Internal errors (including consistency violations)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates index file and database errors.
	CategoryStorage Category = "STORAGE"
	// CategoryModel indicates embedding/generation backend errors.
	CategoryModel Category = "MODEL"
	// CategoryValidation indicates input validation errors.
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
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeIndexCorrupt = "ERR_201_INDEX_CORRUPT"
	ErrCodeIndexIO      = "ERR_202_INDEX_IO"
	ErrCodeMetadataIO   = "ERR_203_METADATA_IO"

	// Model errors (300-399)
	ErrCodeModelUnavailable = "ERR_301_MODEL_UNAVAILABLE"
	ErrCodeModelTimeout     = "ERR_302_MODEL_TIMEOUT"
	ErrCodeGenerationFailed = "ERR_303_GENERATION_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeExtractionFailed  = "ERR_403_EXTRACTION_FAILED"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeConsistency     = "ERR_503_CONSISTENCY"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Leading digit of the numeric portion (e.g., '1' from "ERR_101_...")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryModel
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode derives severity from error code.
// Config misuse is fatal for the calling operation; index corruption is a
// warning because the store recovers with a fresh empty index.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigInvalid, ErrCodeConfigNotFound, ErrCodeInvalidInput:
		return SeverityFatal
	case ErrCodeIndexCorrupt:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// retryableCodes lists codes where a retry of the whole operation is safe
// and may succeed. Model backends come and go; configuration mistakes do not.
var retryableCodes = map[string]bool{
	ErrCodeModelUnavailable: true,
	ErrCodeModelTimeout:     true,
	ErrCodeGenerationFailed: true,
	ErrCodeEmbeddingFailed:  true,
	ErrCodeIndexIO:          true,
	ErrCodeMetadataIO:       true,
}

// isRetryableCode reports whether operations failing with this code may be retried.
func isRetryableCode(code string) bool {
	return retryableCodes[code]
}
