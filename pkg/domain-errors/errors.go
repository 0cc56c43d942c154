// Package domainerrors defines the coded errors services return to callers.
// Stores return sentinel errors (pkg/platform/sentinel); services translate
// them into these so transport layers can map codes to HTTP statuses without
// inspecting infrastructure details.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code identifies the class of a domain error. Codes double as the wire
// value in the JSON error envelope.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal_error"
)

// Error is a domain error with a stable code and a human-readable message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs a domain error that preserves the underlying cause for
// errors.Is / errors.As chains while exposing only code+message to callers.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// CodeOf extracts the code from err, defaulting to CodeInternal for
// anything that is not a domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
