package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeCapture    ErrorType = "capture"
	ErrorTypeOCR        ErrorType = "ocr"
	ErrorTypeEmptyText  ErrorType = "empty_text"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeInternal   ErrorType = "internal"
)

// Messages shown to the end user. Only the capture and empty-text cases get a
// specific message; everything else collapses to MessageProcessingFailed.
const (
	MessageCaptureFailed    = "No image captured. Please take or upload a photo and try again."
	MessageEmptyText        = "No text detected. Please try again with a clearer image."
	MessageProcessingFailed = "An error occurred while processing. Please try again."
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails attaches diagnostic detail (for example a response body) that is
// logged but never shown to the user.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

func newAppError(t ErrorType, status int, message string, cause error) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: status,
		Cause:      cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return newAppError(ErrorTypeValidation, http.StatusBadRequest, message, cause)
}

// NewCaptureError is returned when no image could be obtained from a source
func NewCaptureError(message string, cause error) *AppError {
	return newAppError(ErrorTypeCapture, http.StatusBadRequest, message, cause)
}

// NewOCRError wraps a failure of the recognition engine
func NewOCRError(message string, cause error) *AppError {
	return newAppError(ErrorTypeOCR, http.StatusInternalServerError, message, cause)
}

// NewEmptyTextError is returned when recognition produced no usable text
func NewEmptyTextError(message string) *AppError {
	return newAppError(ErrorTypeEmptyText, http.StatusUnprocessableEntity, message, nil)
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return newAppError(ErrorTypeNetwork, http.StatusBadGateway, message, cause)
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return newAppError(ErrorTypeTimeout, http.StatusGatewayTimeout, message, cause)
}

// NewConflictError is returned when a capture is triggered while another one
// is still processing
func NewConflictError(message string) *AppError {
	return newAppError(ErrorTypeConflict, http.StatusConflict, message, nil)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return newAppError(ErrorTypeInternal, http.StatusInternalServerError, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return newAppError(ErrorTypeNotFound, http.StatusNotFound, message, cause)
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// UserMessage returns the fixed string the end user sees for err.
func UserMessage(err error) string {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return MessageProcessingFailed
	}
	switch appErr.Type {
	case ErrorTypeCapture:
		return MessageCaptureFailed
	case ErrorTypeEmptyText:
		return MessageEmptyText
	default:
		return MessageProcessingFailed
	}
}
