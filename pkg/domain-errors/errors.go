// Package dErrors provides code-carrying domain errors.
//
// Services return these so transports can translate failures into stable
// wire codes without string matching. Stores return pkg/platform/sentinel
// errors for infrastructure facts; services wrap those into domain errors
// at the boundary.
package dErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure. Codes are part of the API surface:
// clients branch on them, so renaming one is a breaking change.
type Code string

const (
	// Generic infrastructure and validation codes.
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInternal           Code = "internal"
	CodeInvariantViolation Code = "invariant_violation"

	// Ledger domain taxonomy.
	CodeUnauthorized        Code = "unauthorized"
	CodeInactive            Code = "inactive"
	CodeInsufficientBalance Code = "insufficient_balance"
	CodeEmptyReserve        Code = "empty_reserve"
	CodeInvalidRecipient    Code = "invalid_recipient"
	CodeInvalidPercentage   Code = "invalid_percentage"
	CodeNoHolders           Code = "no_holders"
	CodeOperationDisabled   Code = "operation_disabled"
)

// Error is a domain error with a machine-readable code and an operator
// message. It optionally wraps an underlying cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf builds a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err
// yields nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the code.
func HasCode(err error, code Code) bool {
	var domainErr *Error
	for errors.As(err, &domainErr) {
		if domainErr.Code == code {
			return true
		}
		err = domainErr.Err
		domainErr = nil
	}
	return false
}

// Is is a readability alias for HasCode used in handler branches.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost domain code, or CodeInternal when err is
// not a domain error.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain code to the HTTP status the transport layer
// should answer with.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidInput, CodeInvalidRecipient, CodeInvalidPercentage:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeOperationDisabled:
		return http.StatusForbidden
	case CodeNotFound, CodeNoHolders:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeInactive, CodeInsufficientBalance, CodeEmptyReserve, CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
