// Package errors defines the error taxonomy shared by the symbolic product pipeline.
package errors

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	CodeUnknown            = "UNKNOWN_ERROR"
	CodeConfigurationFault = "CONFIGURATION_FAULT"
	CodeCapacityExceeded   = "CAPACITY_EXCEEDED"
	CodeDimensionMismatch  = "DIMENSION_MISMATCH"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeConfigError        = "CONFIG_ERROR"
	CodeDatabaseError      = "DATABASE_ERROR"
	CodeUploadError        = "UPLOAD_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeVerification       = "VERIFICATION_FAILED"
)

// AppError represents an application error with a code and message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports a match when the target carries the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code string, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error instances.
var (
	// ErrConfigurationFault marks an arena or table sized below what a row needs.
	ErrConfigurationFault = New(CodeConfigurationFault, "configuration fault")
	// ErrCapacityExceeded marks an accumulator that ran out of slots for a row.
	ErrCapacityExceeded = New(CodeCapacityExceeded, "capacity exceeded")
	// ErrDimensionMismatch marks inconsistent input array shapes.
	ErrDimensionMismatch = New(CodeDimensionMismatch, "dimension mismatch")
	ErrInvalidInput      = New(CodeInvalidInput, "invalid input")
	ErrConfigError       = New(CodeConfigError, "configuration error")
	ErrDatabaseError     = New(CodeDatabaseError, "database error")
	ErrUploadError       = New(CodeUploadError, "upload error")
	ErrNotFound          = New(CodeNotFound, "resource not found")
	// ErrVerification marks a computed structure that differs from the reference product.
	ErrVerification = New(CodeVerification, "verification failed")
)

// IsConfigurationFault checks if the error is a configuration fault.
func IsConfigurationFault(err error) bool {
	return errors.Is(err, ErrConfigurationFault)
}

// IsCapacityExceeded checks if the error is a capacity fault.
func IsCapacityExceeded(err error) bool {
	return errors.Is(err, ErrCapacityExceeded)
}

// IsDimensionMismatch checks if the error is a shape mismatch.
func IsDimensionMismatch(err error) bool {
	return errors.Is(err, ErrDimensionMismatch)
}

// IsDatabaseError checks if the error is a database error.
func IsDatabaseError(err error) bool {
	return errors.Is(err, ErrDatabaseError)
}

// IsUploadError checks if the error is an upload error.
func IsUploadError(err error) bool {
	return errors.Is(err, ErrUploadError)
}

// IsNotFound checks if the error is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsVerificationFailure checks if the error is a reference mismatch.
func IsVerificationFailure(err error) bool {
	return errors.Is(err, ErrVerification)
}

// IsFatal reports whether err belongs to the structural faults that abort a
// computation without retry.
func IsFatal(err error) bool {
	return IsConfigurationFault(err) || IsCapacityExceeded(err) || IsDimensionMismatch(err)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
