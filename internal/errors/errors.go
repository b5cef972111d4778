package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"fctarget/domain/core"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context. Domain sentinels found in the
// chain decide the code when the error is not already an AppError.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    codeFor(err),
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the error code if it's an AppError, otherwise derives it
// from the domain sentinel in the chain
func GetCode(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return codeFor(err)
}

// HTTPStatus maps an error code to the status the API answers with
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case CodeInputNotFound, CodeNotFound:
		return http.StatusNotFound
	case CodeEmptyMask, CodeInvalidInput, CodeValidationError, CodeMalformedCoord:
		return http.StatusBadRequest
	case CodeComputationError, CodeInsufficientData:
		return http.StatusUnprocessableEntity
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Predefined error codes
const (
	CodeConfigInvalid    = "CONFIG_INVALID"
	CodeDatabaseError    = "DATABASE_ERROR"
	CodeValidationError  = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeInputNotFound    = "INPUT_NOT_FOUND"
	CodeEmptyMask        = "EMPTY_MASK"
	CodeComputationError = "COMPUTATION_ERROR"
	CodeInsufficientData = "INSUFFICIENT_DATA"
	CodeMalformedCoord   = "MALFORMED_COORDINATE"
	CodeUnavailable      = "UNAVAILABLE"
	CodeStorageError     = "STORAGE_ERROR"
)

func codeFor(err error) string {
	switch {
	case stderrors.Is(err, core.ErrInputNotFound):
		return CodeInputNotFound
	case stderrors.Is(err, core.ErrEmptyMask):
		return CodeEmptyMask
	case stderrors.Is(err, core.ErrInsufficientData):
		return CodeInsufficientData
	case stderrors.Is(err, core.ErrComputation):
		return CodeComputationError
	case stderrors.Is(err, core.ErrMalformedCoordinate):
		return CodeMalformedCoord
	case stderrors.Is(err, core.ErrGridMismatch),
		stderrors.Is(err, core.ErrEmptySeries),
		stderrors.Is(err, core.ErrInvalidInput):
		return CodeInvalidInput
	default:
		return CodeInternalError
	}
}

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string, cause error) *AppError {
	return &AppError{Code: CodeDatabaseError, Message: message, Cause: cause}
}

func StorageError(message string, cause error) *AppError {
	return &AppError{Code: CodeStorageError, Message: message, Cause: cause}
}

func ValidationError(message string) *AppError {
	return New(CodeValidationError, message)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

func Unavailable(message string) *AppError {
	return New(CodeUnavailable, message)
}
