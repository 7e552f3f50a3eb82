package errors

import (
	stderrors "errors"
	"fmt"
)

// MemoryError is the structured error type for openclaw-memory.
type MemoryError struct {
	// Code is the failure class.
	Code Code

	// Message is the human-readable error message.
	Message string

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error, if any.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *MemoryError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *MemoryError) Unwrap() error {
	return e.Cause
}

// Is matches MemoryErrors by code, enabling errors.Is sentinels.
func (e *MemoryError) Is(target error) bool {
	if t, ok := target.(*MemoryError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail. Returns the error for chaining.
func (e *MemoryError) WithDetail(key, value string) *MemoryError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a MemoryError with the given code and message.
func New(code Code, message string, cause error) *MemoryError {
	return &MemoryError{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: retryable[code],
	}
}

// Newf creates a MemoryError with a formatted message.
func Newf(code Code, format string, args ...any) *MemoryError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates a MemoryError from an existing error, keeping its message.
// Returns nil when err is nil.
func Wrap(code Code, err error) *MemoryError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration error.
func ConfigError(message string, cause error) *MemoryError {
	return New(CodeConfig, message, cause)
}

// StorageError creates an index or filesystem error.
func StorageError(message string, cause error) *MemoryError {
	return New(CodeStorage, message, cause)
}

// EmbeddingUnavailable creates a retryable provider error.
func EmbeddingUnavailable(message string, cause error) *MemoryError {
	return New(CodeEmbeddingUnavailable, message, cause)
}

// QualityRejected creates a quality-gate rejection carrying the reason.
func QualityRejected(reason string) *MemoryError {
	return New(CodeQualityRejected, reason, nil).WithDetail("reason", reason)
}

// PrivacyRejected creates a privacy-filter rejection.
func PrivacyRejected(pattern string) *MemoryError {
	return New(CodePrivacyRejected, "content matches a privacy pattern", nil).
		WithDetail("pattern", pattern)
}

// NotFound creates a missing file or chunk error.
func NotFound(what string) *MemoryError {
	return Newf(CodeNotFound, "%s not found", what)
}

// CodeOf extracts the Code from any error in the chain.
// Returns CodeInternal for errors that are not MemoryErrors.
func CodeOf(err error) Code {
	var me *MemoryError
	if stderrors.As(err, &me) {
		return me.Code
	}
	return CodeInternal
}

// IsRetryable reports whether the error can succeed on retry.
func IsRetryable(err error) bool {
	var me *MemoryError
	if stderrors.As(err, &me) {
		return me.Retryable
	}
	return false
}
