// Package errors defines the engine's error taxonomy. Every recovery path
// in the queue worker returns one of these instead of relying on
// exceptions-for-control-flow: callers switch on Code, not on string
// matching or panic/recover.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a machine-readable error kind. The HTTP handlers use it to
// choose the response status; their JSON error bodies carry only message
// and type, not the code.
type ErrorCode string

const (
	CodeInvalidTool ErrorCode = "invalid_tool"
	CodeInvalidRequest ErrorCode = "invalid_request"
	CodeUnauthorized ErrorCode = "unauthorized"
	CodeModelNotAvailable ErrorCode = "model_not_available"
	CodeTransientDOM ErrorCode = "transient_dom"
	CodeQuotaExceeded ErrorCode = "quota_exceeded"
	CodeRateLimited ErrorCode = "rate_limited"
	CodeBadGateway ErrorCode = "bad_gateway"
	CodeLayerFailed ErrorCode = "layer_failed"
	CodeGatewayTimeout ErrorCode = "gateway_timeout"
	CodeClientClosed ErrorCode = "client_closed_request"
	CodeRotationExhausted ErrorCode = "rotation_exhausted"
	CodeFatalSession ErrorCode = "fatal_session"
	CodeServiceUnavail ErrorCode = "service_unavailable"
	CodeInternal ErrorCode = "internal_error"
)

// AppError is the single error type propagated across the engine.
type AppError struct {
	Code ErrorCode
	Message string
	Err error

	// Retryable marks errors the queue worker may retry within the same
	// turn (transient-DOM after one page refresh, quota/rate-limit after
	// a successful rotation and only if the request was never delivered
	// upstream).
	Retryable bool
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// HTTPStatus maps the error kind to the HTTP status code the OpenAI-compatible
// API surfaces for it.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidTool, CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeModelNotAvailable:
		return http.StatusUnprocessableEntity
	case CodeClientClosed:
		return 499
	case CodeBadGateway, CodeLayerFailed:
		return http.StatusBadGateway
	case CodeQuotaExceeded, CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeServiceUnavail, CodeRotationExhausted, CodeFatalSession:
		return http.StatusServiceUnavailable
	case CodeGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Err: cause}
}

func Retryable(code ErrorCode, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Err: cause, Retryable: true}
}

// Is reports whether err is an AppError carrying the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Code extracts the ErrorCode from err, defaulting to CodeInternal for
// errors that did not originate as an AppError.
func Code(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}
