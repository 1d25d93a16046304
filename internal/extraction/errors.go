package extraction

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies extraction failures.
type Kind string

const (
	KindTimeout             Kind = "TIMEOUT"
	KindMalformed           Kind = "MALFORMED"
	KindProviderUnavailable Kind = "PROVIDER_UNAVAILABLE"
)

var (
	ErrUnknownProvider = errors.New("unknown extraction provider")
	ErrNoProvider      = errors.New("no extraction provider configured")
	ErrCircuitOpen     = errors.New("circuit open")
)

// Error is the only error type providers surface to the pipeline.
// Message is safe to show to end users; Err keeps the underlying cause for logs.
type Error struct {
	Kind     Kind
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Provider, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, provider, message string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message, Err: err}
}

// Timeout reports a provider call that exceeded its deadline.
func Timeout(provider string, err error) *Error {
	return newError(KindTimeout, provider, "provider call timed out", err)
}

// Malformed reports a payload that does not match the canonical schema.
func Malformed(provider, message string, err error) *Error {
	return newError(KindMalformed, provider, message, err)
}

// Unavailable reports a provider that could not be reached or refused the call.
func Unavailable(provider, message string, err error) *Error {
	return newError(KindProviderUnavailable, provider, message, err)
}

// KindOf returns the kind of an extraction error, or "" for other errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether another attempt or a fallback provider may succeed.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindProviderUnavailable:
		return true
	default:
		return false
	}
}

// MapHTTPStatus maps extraction errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch KindOf(err) {
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindMalformed:
		return http.StatusUnprocessableEntity
	case KindProviderUnavailable:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, ErrUnknownProvider) || errors.Is(err, ErrNoProvider) {
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}
