package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound           = "NOT_FOUND"
	CodeInsufficientStock  = "INSUFFICIENT_STOCK"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeValidation         = "VALIDATION_ERROR"
	CodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	CodeConflict           = "CONFLICT"
	CodeNoData             = "NO_DATA"
)

// AppError is the typed failure returned by the reservation service and the gateway.
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail adds a single detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Wrap attaches the underlying cause
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

func newErr(code, msg string, status int) *AppError {
	return &AppError{Code: code, Message: msg, HTTPStatus: status}
}

func NotFound(resource, id string) *AppError {
	return newErr(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound).
		WithDetail("id", id)
}

// InsufficientStock reports both numbers so the UI can show them verbatim.
func InsufficientStock(available, requested int) *AppError {
	return newErr(CodeInsufficientStock,
		fmt.Sprintf("insufficient stock: available %d, requested %d", available, requested),
		http.StatusConflict).
		WithDetail("available", fmt.Sprint(available)).
		WithDetail("requested", fmt.Sprint(requested))
}

func Unauthorized(msg string) *AppError {
	if msg == "" {
		msg = "not allowed"
	}
	return newErr(CodeUnauthorized, msg, http.StatusForbidden)
}

func Validation(msg string) *AppError {
	return newErr(CodeValidation, msg, http.StatusBadRequest)
}

func BackendUnavailable(op string, err error) *AppError {
	return newErr(CodeBackendUnavailable, fmt.Sprintf("%s: backend unavailable", op), http.StatusServiceUnavailable).
		Wrap(err)
}

func Conflict(msg string) *AppError {
	return newErr(CodeConflict, msg, http.StatusConflict)
}

// NoData is returned by the gateway once cache, remote and offline snapshot are all exhausted.
func NoData(collection string) *AppError {
	return newErr(CodeNoData, fmt.Sprintf("no %s data available", collection), http.StatusServiceUnavailable)
}

func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code string) bool {
	if e, ok := As(err); ok {
		return e.Code == code
	}
	return false
}

// FromError converts a plain error into an AppError; anything unknown is treated as
// an infrastructure failure.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	return BackendUnavailable("remote", err)
}
