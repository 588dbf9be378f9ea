package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for code mapping and retry policy.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInvalidRequest
	KindMethodNotFound
	KindInvalidParams
	KindNotFound
	KindTimeout
	KindValidationFailed
	KindUnauthorized
	KindRateLimited
)

// String returns the snake_case name of the kind, used as a metric label
// and in log lines.
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindMethodNotFound:
		return "method_not_found"
	case KindInvalidParams:
		return "invalid_params"
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	case KindValidationFailed:
		return "validation_failed"
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// JSON-RPC error codes. The reserved range covers the envelope errors;
// application codes sit below -32000.
const (
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternal         = -32603
	CodeValidationFailed = -32000
	CodeNotFound         = -32001
	CodeTimeout          = -32002
	CodeUnauthorized     = -32003
	CodeRateLimited      = -32004
)

// Error is the typed failure every layer surfaces. Kind drives the JSON-RPC
// code, the HTTP status, the CLI exit code, and the client retry decision.
type Error struct {
	Kind    ErrorKind
	Message string
	Data    map[string]any
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Code returns the JSON-RPC error code for this kind.
func (e *Error) Code() int {
	switch e.Kind {
	case KindInvalidRequest:
		return CodeInvalidRequest
	case KindMethodNotFound:
		return CodeMethodNotFound
	case KindInvalidParams:
		return CodeInvalidParams
	case KindNotFound:
		return CodeNotFound
	case KindTimeout:
		return CodeTimeout
	case KindValidationFailed:
		return CodeValidationFailed
	case KindUnauthorized:
		return CodeUnauthorized
	case KindRateLimited:
		return CodeRateLimited
	default:
		return CodeInternal
	}
}

// HTTPStatus returns the external HTTP mapping for this kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidRequest, KindInvalidParams:
		return 400
	case KindMethodNotFound, KindNotFound:
		return 404
	case KindTimeout:
		return 504
	case KindValidationFailed:
		return 422
	case KindUnauthorized:
		return 401
	case KindRateLimited:
		return 429
	default:
		return 500
	}
}

// ExitCode returns the CLI exit code for this kind.
func (e *Error) ExitCode() int {
	switch e.Kind {
	case KindInvalidParams, KindInvalidRequest, KindMethodNotFound:
		return 2
	case KindNotFound:
		return 3
	case KindTimeout:
		return 4
	case KindValidationFailed:
		return 5
	default:
		return 1
	}
}

// Transient reports whether a client adapter may retry this failure.
// Domain errors (bad params, not found, failed validation) never retry.
func (e *Error) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindInternal, KindRateLimited:
		return true
	default:
		return false
	}
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidRequest marks a malformed envelope.
func NewInvalidRequest(format string, args ...any) *Error {
	return newError(KindInvalidRequest, format, args...)
}

// NewMethodNotFound marks a dispatch to an unregistered method.
func NewMethodNotFound(method string) *Error {
	return newError(KindMethodNotFound, "Method not found: %s", method)
}

// NewInvalidParams marks missing or ill-typed parameters.
func NewInvalidParams(format string, args ...any) *Error {
	return newError(KindInvalidParams, format, args...)
}

// NewNotFound marks an absent resource (record id or file path).
func NewNotFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

// NewTimeout marks an upstream exceeding its budget.
func NewTimeout(format string, args ...any) *Error {
	return newError(KindTimeout, format, args...)
}

// NewValidationFailed marks a failing validator outcome the caller requested
// as an error.
func NewValidationFailed(format string, args ...any) *Error {
	return newError(KindValidationFailed, format, args...)
}

// NewUnauthorized marks a caller the surface refused.
func NewUnauthorized(format string, args ...any) *Error {
	return newError(KindUnauthorized, format, args...)
}

// NewRateLimited marks a throttled caller.
func NewRateLimited(format string, args ...any) *Error {
	return newError(KindRateLimited, format, args...)
}

// NewInternal marks any other failure.
func NewInternal(format string, args ...any) *Error {
	return newError(KindInternal, format, args...)
}

// WrapInternal wraps err as an internal error, preserving it for errors.Is.
func WrapInternal(err error, format string, args ...any) *Error {
	e := newError(KindInternal, format, args...)
	e.cause = err
	return e
}

// WithData attaches structured data carried in the JSON-RPC error object.
func (e *Error) WithData(data map[string]any) *Error {
	e.Data = data
	return e
}

// AsError extracts a typed *Error from err; any other error is wrapped as
// internal so every failure has a kind.
func AsError(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{Kind: KindInternal, Message: err.Error(), cause: err}
}

// KindOf returns the kind of err, treating untyped errors as internal.
func KindOf(err error) ErrorKind {
	return AsError(err).Kind
}

// IsTransient reports whether a client adapter may retry err.
func IsTransient(err error) bool {
	return AsError(err).Transient()
}

// KindForCode maps a JSON-RPC error code back to its kind. Unknown codes
// map to internal, which keeps client adapters retrying only what the
// server explicitly marked recoverable.
func KindForCode(code int) ErrorKind {
	switch code {
	case CodeInvalidRequest:
		return KindInvalidRequest
	case CodeMethodNotFound:
		return KindMethodNotFound
	case CodeInvalidParams:
		return KindInvalidParams
	case CodeNotFound:
		return KindNotFound
	case CodeTimeout:
		return KindTimeout
	case CodeValidationFailed:
		return KindValidationFailed
	case CodeUnauthorized:
		return KindUnauthorized
	case CodeRateLimited:
		return KindRateLimited
	default:
		return KindInternal
	}
}

// FromWire rebuilds a typed error from a JSON-RPC error object. Client
// adapters use this so callers see the same taxonomy on both sides of the
// dispatcher.
func FromWire(code int, message string, data map[string]any) *Error {
	return &Error{Kind: KindForCode(code), Message: message, Data: data}
}
