// Package domainerrors carries machine-matchable error codes from services to
// transports. Services return these; handlers translate them into HTTP status
// codes without inspecting messages.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code is a stable error kind. Clients match on it, so values never change.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_error"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTimeout            Code = "timeout"
	CodeUnavailable        Code = "unavailable"
	CodeInternal           Code = "internal_error"

	// Achievement protocol taxonomy.
	CodeNotAuthorized      Code = "not_authorized"
	CodeUnknownAchievement Code = "unknown_achievement"
	CodeUnknownToken       Code = "unknown_token"
	CodeInvalidSignature   Code = "invalid_signature"
	CodeSignatureMismatch  Code = "signature_mismatch"
	CodeAlreadyClaimed     Code = "already_claimed"
)

// Revert reasons kept for compatibility with clients of the original contract.
const (
	ReasonNotAuthorized = "ERR:NA"
	ReasonWrongMessage  = "ERR:WM"
)

// Error is a coded domain error. Err, when set, is the underlying cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the outermost code in the chain, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost domain error in the chain carries code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// Is is shorthand for HasCode, kept for call sites that read better as a predicate.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// ToHTTPStatus maps a code to the status a handler should write.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidInput, CodeValidation, CodeInvalidSignature:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeNotAuthorized, CodeSignatureMismatch:
		return http.StatusForbidden
	case CodeNotFound, CodeUnknownAchievement, CodeUnknownToken:
		return http.StatusNotFound
	case CodeConflict, CodeAlreadyClaimed:
		return http.StatusConflict
	case CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
