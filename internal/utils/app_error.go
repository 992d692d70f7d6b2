package utils

import (
	"net/http"
)

// AppError carries the HTTP status and user-facing message of a failed
// request, plus the internal cause for the log.
type AppError struct {
	Code    int
	Message string
	err     error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.err
}

func NewNotFoundError(message string, cause error) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: message, err: cause}
}

func NewBadRequestError(message string, cause error) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: message, err: cause}
}

func NewInternalServerError(message string, cause error) *AppError {
	return &AppError{Code: http.StatusInternalServerError, Message: message, err: cause}
}

func NewUnavailableError(message string) *AppError {
	return &AppError{Code: http.StatusServiceUnavailable, Message: message}
}
