package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a validation error
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeConflict indicates the requested change is not allowed from the current state
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeAlreadySettled indicates the requested end state was already reached
	// by another actor. Callers reconcile instead of reporting a failure.
	ErrorTypeAlreadySettled ErrorType = "ALREADY_SETTLED"

	// ErrorTypeResourceBusy indicates a shared resource is held by someone else
	ErrorTypeResourceBusy ErrorType = "RESOURCE_BUSY"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal indicates an error from external service
	ErrorTypeExternal ErrorType = "EXTERNAL"
)

// AppError represents an application error
type AppError struct {
	Type ErrorType
	// Code is a stable machine-readable discriminator within Type, e.g. ALREADY_CALLED.
	Code    string
	Message string
	// Field names the offending input for validation errors.
	Field string
	Err   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	prefix := string(e.Type)
	if e.Code != "" {
		prefix = e.Code
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same type and code.
// A target without a code matches on type alone.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if t.Type != e.Type {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewFieldValidationError creates a validation error naming the invalid field
func NewFieldValidationError(field, message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Field:   field,
		Message: fmt.Sprintf("%s: %s", field, message),
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(code, message string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Code:    code,
		Message: message,
	}
}

// NewAlreadySettledError creates an informational already-settled error
func NewAlreadySettledError(code, message string) *AppError {
	return &AppError{
		Type:    ErrorTypeAlreadySettled,
		Code:    code,
		Message: message,
	}
}

// NewResourceBusyError creates a resource busy error
func NewResourceBusyError(code, message string) *AppError {
	return &AppError{
		Type:    ErrorTypeResourceBusy,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeExternal,
		Message: message,
		Err:     err,
	}
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// TypeOf returns the ErrorType of err, or ErrorTypeInternal for foreign errors.
func TypeOf(err error) ErrorType {
	if appErr, ok := As(err); ok {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// IsType reports whether err carries the given ErrorType.
func IsType(err error, t ErrorType) bool {
	if err == nil {
		return false
	}
	return TypeOf(err) == t
}

// CodeOf returns the code of err, or "" when it has none.
func CodeOf(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ""
}
