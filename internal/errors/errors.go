// Package errors provides structured error types for spacemeta.
// All errors include a category, code and message; schema and query errors
// also carry the field names they are about.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategorySchema     ErrorCategory = "SCHEMA"
	ErrCategoryQuery      ErrorCategory = "QUERY"
	ErrCategoryCatalog    ErrorCategory = "CATALOG"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes.
const (
	// Validation codes
	CodeInvalidArgument = "INVALID_ARGUMENT"

	// Schema codes
	CodeDuplicateProperty = "DUPLICATE_PROPERTY"
	CodeDuplicateIndex    = "DUPLICATE_INDEX"
	CodeSpaceExists       = "SPACE_EXISTS"
	CodeUnknownField      = "UNKNOWN_FIELD"
	CodeNotFound          = "NOT_FOUND"
	CodeConstraint        = "CONSTRAINT_VIOLATION"

	// Query codes
	CodeNoMatchingIndex = "NO_MATCHING_INDEX"
	CodeCastFailed      = "CAST_FAILED"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeDeleteFailed   = "DELETE_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Catalog codes
	CodeCorruptionDetected = "CORRUPTION_DETECTED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Sentinels for errors.Is; matching is by category and code only.
var (
	ErrInvalidArgument   = New(ErrCategoryValidation, CodeInvalidArgument, "")
	ErrDuplicateProperty = New(ErrCategorySchema, CodeDuplicateProperty, "")
	ErrDuplicateIndex    = New(ErrCategorySchema, CodeDuplicateIndex, "")
	ErrSpaceExists       = New(ErrCategorySchema, CodeSpaceExists, "")
	ErrUnknownField      = New(ErrCategorySchema, CodeUnknownField, "")
	ErrNotFound          = New(ErrCategorySchema, CodeNotFound, "")
	ErrConstraint        = New(ErrCategorySchema, CodeConstraint, "")
	ErrNoMatchingIndex   = New(ErrCategoryQuery, CodeNoMatchingIndex, "")
	ErrCastFailed        = New(ErrCategoryQuery, CodeCastFailed, "")
)

// Error is the structured error type used throughout the system.
type Error struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Fields    []string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new Error.
func New(category ErrorCategory, code, message string) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// WithFields returns a copy of the error naming the given fields.
func (e *Error) WithFields(fields ...string) *Error {
	cp := *e
	cp.Fields = append([]string(nil), fields...)
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an *Error.
func GetCategory(err error) ErrorCategory {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an *Error.
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Message returns the bare message of the first *Error in the chain,
// or err.Error() for foreign errors.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool {
	return GetCode(err) == CodeNotFound
}

// IsDuplicate reports whether err is any of the duplicate-definition errors.
func IsDuplicate(err error) bool {
	switch GetCode(err) {
	case CodeDuplicateProperty, CodeDuplicateIndex, CodeSpaceExists:
		return true
	}
	return false
}

// UnmatchedFields returns the requested fields of a NO_MATCHING_INDEX error.
func UnmatchedFields(err error) []string {
	var e *Error
	if errors.As(err, &e) && e.Code == CodeNoMatchingIndex {
		return e.Fields
	}
	return nil
}

func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDeleteFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewInvalidArgument(message string) *Error {
	return New(ErrCategoryValidation, CodeInvalidArgument, message)
}

func NewDuplicateProperty(space, property string) *Error {
	return New(ErrCategorySchema, CodeDuplicateProperty,
		fmt.Sprintf("Duplicate property %s on %s", property, space)).WithFields(property)
}

func NewDuplicateIndex(space, index string, fields []string) *Error {
	return New(ErrCategorySchema, CodeDuplicateIndex,
		fmt.Sprintf("Index %s already exists on %s", index, space)).WithFields(fields...)
}

func NewSpaceExists(space string) *Error {
	return New(ErrCategorySchema, CodeSpaceExists, fmt.Sprintf("Space %s already exists", space))
}

func NewUnknownField(space, field string) *Error {
	return New(ErrCategorySchema, CodeUnknownField,
		fmt.Sprintf("Unknown property %s on %s", field, space)).WithFields(field)
}

// NewNotFound reports a missing space, property, index or ledger key.
func NewNotFound(kind, name string) *Error {
	return New(ErrCategorySchema, CodeNotFound, fmt.Sprintf("No %s %s", kind, name)).
		WithDetails(map[string]interface{}{"kind": kind, "name": name})
}

func NewConstraint(message string, fields ...string) *Error {
	return New(ErrCategorySchema, CodeConstraint, message).WithFields(fields...)
}

// NewNoMatchingIndex builds the error returned when no index covers a filter.
// The message lists the fields in the order the caller supplied them.
func NewNoMatchingIndex(space string, fields []string) *Error {
	return New(ErrCategoryQuery, CodeNoMatchingIndex,
		fmt.Sprintf("No index on %s for [%s]", space, strings.Join(fields, ", "))).WithFields(fields...)
}

func NewCastFailed(field, typ string, value interface{}, cause error) *Error {
	return Wrap(ErrCategoryQuery, CodeCastFailed,
		fmt.Sprintf("Invalid value for %s (%s)", field, typ), cause).
		WithFields(field).
		WithDetails(map[string]interface{}{"type": typ, "value": value})
}

// NewStorageError reports a failed object storage operation. Upload,
// download and delete failures are retryable.
func NewStorageError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewCatalogError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryCatalog, code, message, cause)
}

func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
