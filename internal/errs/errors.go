// Package errs defines the gateway error taxonomy. Every error surfaced to a
// caller carries exactly one Kind, and the HTTP layer maps kinds to status
// codes in one place.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the wire-level error classification.
type Kind string

const (
	KindRequestValidation  Kind = "request_validation"
	KindProviderValidation Kind = "provider_validation"
	KindProviderTimeout    Kind = "provider_timeout"
	KindProviderRateLimit  Kind = "provider_rate_limit"
	KindProviderInternal   Kind = "provider_internal"
	KindConfiguration      Kind = "configuration"
	KindRateLimit          Kind = "rate_limit"
	KindInternal           Kind = "internal_error"
)

// Error is the only error type the pipeline and adapters return. Provider is
// set when the error originated at (or on behalf of) a specific upstream.
type Error struct {
	Kind     Kind
	Message  string
	Provider string
	Err      error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with the given kind and message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// WithProvider returns a copy of e attributed to the given provider.
func (e *Error) WithProvider(provider string) *Error {
	cp := *e
	cp.Provider = provider
	return &cp
}

// KindOf extracts the Kind from err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// AsError converts err into an *Error, wrapping foreign errors as
// internal_error so callers always have a kind to dispatch on.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Message: err.Error(), Err: err}
}

// HTTPStatus maps an error kind to the response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindRequestValidation:
		return http.StatusUnprocessableEntity
	case KindProviderValidation:
		return http.StatusBadRequest
	case KindProviderTimeout:
		return http.StatusGatewayTimeout
	case KindProviderRateLimit, KindRateLimit:
		return http.StatusTooManyRequests
	case KindProviderInternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
