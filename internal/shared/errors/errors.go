package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error types for different domains
type ErrorType string

const (
	ErrorTypeConfiguration ErrorType = "CONFIGURATION_ERROR"
	ErrorTypeValidation    ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound      ErrorType = "NOT_FOUND_ERROR"
	ErrorTypeConflict      ErrorType = "CONFLICT_ERROR"
	ErrorTypeRemote        ErrorType = "REMOTE_ERROR"
	ErrorTypePartialBatch  ErrorType = "PARTIAL_BATCH_FAILURE"
	ErrorTypeInternal      ErrorType = "INTERNAL_ERROR"
)

// Sentinel errors, usable with errors.Is through AppError.Cause.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrConflict           = errors.New("resource conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrDatabaseNotFound   = errors.New("database not found")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrInvalidLink        = errors.New("invalid resource link")
	ErrSlotNotBound       = errors.New("collection slot not bound")
)

// AppError represents a custom application error with context
type AppError struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	HTTPCode  int                    `json:"-"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Component string                 `json:"component,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches the typed sentinels so errors.Is(err, ErrNotFound) holds for NOT_FOUND errors.
func (e *AppError) Is(target error) bool {
	switch e.Type {
	case ErrorTypeNotFound:
		return target == ErrNotFound
	case ErrorTypeConflict:
		return target == ErrConflict
	case ErrorTypeValidation:
		return target == ErrInvalidInput
	}
	return false
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string, httpCode int) *AppError {
	return &AppError{
		Type:     errorType,
		Message:  message,
		HTTPCode: httpCode,
		Details:  make(map[string]interface{}),
	}
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithCause adds the underlying cause
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithComponent adds the component name
func (e *AppError) WithComponent(component string) *AppError {
	e.Component = component
	return e
}

// WithDetail adds a detail field
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewConfigurationError reports a setup problem the caller has to fix before retrying,
// such as a missing database with auto-creation disabled.
func NewConfigurationError(message string) *AppError {
	return NewAppError(ErrorTypeConfiguration, message, http.StatusInternalServerError)
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return NewAppError(ErrorTypeValidation, message, http.StatusBadRequest)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *AppError {
	return NewAppError(ErrorTypeConflict, message, http.StatusConflict)
}

// NewRemoteError wraps a failure reported by the database backend.
func NewRemoteError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeRemote, message, http.StatusBadGateway).WithCause(cause)
}

// NewInternalError creates an internal server error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, message, http.StatusInternalServerError)
}

// BatchError is returned by sequential batch operations that stop at the first failing item.
// Items before FailedIndex were committed; items after it were never attempted.
type BatchError struct {
	Operation   string
	Succeeded   int
	FailedIndex int
	FailedID    string
	Cause       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s stopped at item %d (id %q) after %d succeeded: %v",
		e.Operation, e.FailedIndex, e.FailedID, e.Succeeded, e.Cause)
}

func (e *BatchError) Unwrap() error {
	return e.Cause
}

// Type reports the batch error as a partial batch failure.
func (e *BatchError) Type() ErrorType {
	return ErrorTypePartialBatch
}

// ValidationError represents validation errors for multiple fields
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationErrors represents a collection of validation errors
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// Error implements the error interface
func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", ve.Errors[0].Message)
}

// NewValidationErrors creates a new validation errors instance
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make([]ValidationError, 0),
	}
}

// Add adds a validation error
func (ve *ValidationErrors) Add(field, message string, value interface{}) *ValidationErrors {
	ve.Errors = append(ve.Errors, ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
	return ve
}

// HasErrors returns true if there are validation errors
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// ToAppError converts validation errors to an AppError
func (ve *ValidationErrors) ToAppError() *AppError {
	if !ve.HasErrors() {
		return nil
	}

	appErr := NewValidationError("validation failed")
	appErr.Details["validation_errors"] = ve.Errors
	return appErr
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	if appErr, ok := asAppError(err); ok {
		return appErr.Type == ErrorTypeNotFound
	}
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDatabaseNotFound) ||
		errors.Is(err, ErrCollectionNotFound) ||
		errors.Is(err, ErrDocumentNotFound)
}

// IsConfiguration checks if an error is a configuration error
func IsConfiguration(err error) bool {
	appErr, ok := asAppError(err)
	return ok && appErr.Type == ErrorTypeConfiguration
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	if appErr, ok := asAppError(err); ok {
		return appErr.Type == ErrorTypeValidation
	}
	return errors.Is(err, ErrInvalidInput)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	if appErr, ok := asAppError(err); ok {
		return appErr.Type == ErrorTypeConflict
	}
	return errors.Is(err, ErrConflict)
}

// IsRemote checks if an error was reported by the database backend
func IsRemote(err error) bool {
	appErr, ok := asAppError(err)
	return ok && appErr.Type == ErrorTypeRemote
}

// IsPartialBatch checks if an error is a BatchError
func IsPartialBatch(err error) bool {
	var batchErr *BatchError
	return errors.As(err, &batchErr)
}

// IsCanceled reports whether err stems from context cancellation or deadline expiry.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// HTTPStatus maps an error to the status code a transport layer should answer with.
func HTTPStatus(err error) int {
	if IsPartialBatch(err) {
		return http.StatusMultiStatus
	}
	if appErr, ok := asAppError(err); ok && appErr.HTTPCode != 0 {
		return appErr.HTTPCode
	}
	if IsCanceled(err) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func asAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
