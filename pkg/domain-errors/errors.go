// Package domainerrors is the single error vocabulary for shopgate.
//
// Every error produced at an infrastructure or provider boundary is
// normalized into an Error carrying one of the closed set of Codes below.
// Downstream code branches on the code with HasCode, never by re-parsing
// message text. Handlers translate codes to HTTP statuses with ToHTTPStatus
// and surface only the sanitized UserMessage; the wrapped cause stays in
// logs.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error. The set is closed: adding a code means deciding
// its HTTP status and user-facing message here, in one place.
type Code string

const (
	CodeInvalidInput       Code = "invalid_input"
	CodeBadRequest         Code = "bad_request"
	CodeUnauthorized       Code = "unauthorized"
	CodeExpiredCredentials Code = "expired_credentials"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeUnavailable        Code = "unavailable"
	CodeInternal           Code = "internal"
)

// Error is a coded domain error, optionally wrapping a cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with no cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. A nil cause
// yields nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is a readability alias for HasCode at call sites that read like
// errors.Is.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf extracts the code from err, defaulting to CodeInternal for
// unclassified errors so nothing falls through as a success.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code onto the HTTP status used by every handler.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeExpiredCredentials:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage returns the fixed, sanitized string shown to end users for a
// code. Raw error detail (backend text, stack traces, SDK codes) never
// crosses this function.
func UserMessage(code Code) string {
	switch code {
	case CodeInvalidInput, CodeBadRequest:
		return "The request could not be processed. Please check your input."
	case CodeUnauthorized:
		return "Invalid email or password."
	case CodeExpiredCredentials:
		return "Your session has expired. Please sign in again."
	case CodeForbidden:
		return "You do not have access to this resource."
	case CodeNotFound:
		return "The requested resource was not found."
	case CodeConflict:
		return "An account with this email already exists."
	case CodeTimeout, CodeUnavailable:
		return "The service is temporarily unavailable. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
