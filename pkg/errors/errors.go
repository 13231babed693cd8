// Package errors provides standardized error types for the chatplanilha core.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for every user-visible failure kind. Each code maps to a
// distinct message at the boundary; nothing is silently swallowed.
const (
	CodeSchemaError       = "SCHEMA_ERROR"
	CodeCapacityExceeded  = "CAPACITY_EXCEEDED"
	CodeNotFound          = "NOT_FOUND"
	CodeUnresolvableQuery = "UNRESOLVABLE_QUERY"
	CodeExternalService   = "EXTERNAL_SERVICE"
	CodeInsufficientData  = "INSUFFICIENT_DATA"
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeDeadlineExceeded  = "DEADLINE_EXCEEDED"
	CodeInternal          = "INTERNAL_ERROR"
)

// CoreError represents a core error with code, message, and optional details.
type CoreError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *CoreError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by code.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail returns a copy of the error with one detail added. The receiver
// is never mutated, so shared sentinel errors stay safe to annotate.
func (e *CoreError) WithDetail(key string, value interface{}) *CoreError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &CoreError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// Common errors
var (
	ErrSessionNotFound   = &CoreError{Code: CodeNotFound, Message: "session not found"}
	ErrEmptySheet        = &CoreError{Code: CodeSchemaError, Message: "sheet has no data rows"}
	ErrMissingHeaders    = &CoreError{Code: CodeSchemaError, Message: "sheet has no header row"}
	ErrDuplicateHeader   = &CoreError{Code: CodeSchemaError, Message: "duplicate column header"}
	ErrCapacityExceeded  = &CoreError{Code: CodeCapacityExceeded, Message: "dataset exceeds row ceiling"}
	ErrUnresolvableQuery = &CoreError{Code: CodeUnresolvableQuery, Message: "question could not be resolved to a valid plan"}
	ErrModelUnavailable  = &CoreError{Code: CodeExternalService, Message: "language model unavailable"}
	ErrInsufficientData  = &CoreError{Code: CodeInsufficientData, Message: "required columns missing for report"}
	ErrRequestTimeout    = &CoreError{Code: CodeDeadlineExceeded, Message: "request exceeded its time budget"}
)

// New creates a new CoreError with the given code and message.
func New(code, message string) *CoreError {
	return &CoreError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new CoreError with a formatted message.
func Newf(code, format string, args ...interface{}) *CoreError {
	return &CoreError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with a CoreError.
func Wrap(err error, code, message string) *CoreError {
	if err == nil {
		return nil
	}
	return &CoreError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code, format string, args ...interface{}) *CoreError {
	if err == nil {
		return nil
	}
	return &CoreError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return GetCode(err) == CodeNotFound
}

// IsSchemaError checks if an error is a schema inference error.
func IsSchemaError(err error) bool {
	return GetCode(err) == CodeSchemaError
}

// IsCapacityExceeded checks if an error is a row-ceiling error.
func IsCapacityExceeded(err error) bool {
	return GetCode(err) == CodeCapacityExceeded
}

// IsUnresolvableQuery checks if an error is an unresolvable-query error.
func IsUnresolvableQuery(err error) bool {
	return GetCode(err) == CodeUnresolvableQuery
}

// IsExternalService checks if an error is a language-model failure.
func IsExternalService(err error) bool {
	return GetCode(err) == CodeExternalService
}

// IsInsufficientData checks if an error is a missing-report-column error.
func IsInsufficientData(err error) bool {
	return GetCode(err) == CodeInsufficientData
}

// GetCode extracts the error code from an error.
func GetCode(err error) string {
	var coreErr *CoreError
	if errors.As(err, &coreErr) {
		return coreErr.Code
	}
	return CodeInternal
}

// GetMessage extracts the user-visible message from an error.
func GetMessage(err error) string {
	var coreErr *CoreError
	if errors.As(err, &coreErr) {
		return coreErr.Message
	}
	return err.Error()
}
