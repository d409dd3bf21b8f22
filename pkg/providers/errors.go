package providers

import (
	"errors"
	"fmt"
	"time"
)

// Common provider errors that can be checked with errors.Is().
var (
	// ErrUnreachable is returned when the upstream could not be contacted.
	ErrUnreachable = errors.New("upstream unreachable")

	// ErrTimeout is returned when the upstream did not answer in time.
	ErrTimeout = errors.New("upstream timeout")

	// ErrMalformedRequest is returned when a client request cannot be parsed.
	ErrMalformedRequest = errors.New("malformed request")
)

// UnreachableError represents a transport failure: refused connection,
// DNS failure, reset, or a broken response stream.
type UnreachableError struct {
	// Provider is the name of the provider that could not be reached
	Provider string

	// Cause is the transport error
	Cause error
}

// Error implements the error interface.
func (e *UnreachableError) Error() string {
	return fmt.Sprintf("provider %q unreachable: %v", e.Provider, e.Cause)
}

// Is implements error matching for errors.Is().
func (e *UnreachableError) Is(target error) bool {
	return target == ErrUnreachable
}

// Unwrap returns the underlying error for error chain support.
func (e *UnreachableError) Unwrap() error {
	return e.Cause
}

// Failover reports that the next instance should be tried.
func (e *UnreachableError) Failover() bool { return true }

// TimeoutError represents a request timeout.
// This occurs when a request exceeds the provider's configured timeout.
type TimeoutError struct {
	// Provider is the name of the provider where the timeout occurred
	Provider string

	// Timeout is the configured timeout duration
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("provider %q request timeout after %s", e.Provider, e.Timeout)
}

// Is implements error matching for errors.Is().
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Failover reports that the next instance should be tried.
func (e *TimeoutError) Failover() bool { return true }

// StatusError represents a non-2xx upstream response.
type StatusError struct {
	// Provider is the name of the provider that returned the error
	Provider string

	// StatusCode is the HTTP status code
	StatusCode int

	// Outcome is the classification of the response
	Outcome Outcome

	// Body is the upstream response body, passed through to the client
	// for client errors
	Body []byte

	// ContentType is the upstream Content-Type header
	ContentType string

	// RetryAfter is the upstream's retry hint, if any
	RetryAfter time.Duration
}

// Error implements the error interface. The body is not included since
// upstreams sometimes echo credentials back.
func (e *StatusError) Error() string {
	return fmt.Sprintf("provider %q returned status %d (%s)", e.Provider, e.StatusCode, e.Outcome)
}

// Failover reports whether the next instance should be tried. Client
// errors are the caller's problem and end the walk.
func (e *StatusError) Failover() bool {
	return e.Outcome != OutcomeClientError
}

// ParseError represents a response parsing failure.
// This occurs when the provider returns a malformed response.
type ParseError struct {
	// Provider is the name of the provider that returned the malformed response
	Provider string

	// Cause is the underlying parse error
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("provider %q response parse error: %v", e.Provider, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Failover reports that the next instance should be tried.
func (e *ParseError) Failover() bool { return true }

// MalformedRequestError is returned when the client's request body does
// not parse as the shape of the endpoint it was sent to.
type MalformedRequestError struct {
	// Shape is the endpoint's protocol shape
	Shape Shape

	// Reason describes what is wrong
	Reason string
}

// Error implements the error interface.
func (e *MalformedRequestError) Error() string {
	return fmt.Sprintf("malformed %s request: %s", e.Shape, e.Reason)
}

// Is implements error matching for errors.Is().
func (e *MalformedRequestError) Is(target error) bool {
	return target == ErrMalformedRequest
}

// StreamError represents an error reported inside a response stream.
type StreamError struct {
	// Provider is the name of the provider where the error occurred
	Provider string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider %q stream error: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("provider %q stream error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *StreamError) Unwrap() error {
	return e.Cause
}

// ConfigError represents a provider configuration error.
type ConfigError struct {
	// Provider is the name of the provider with invalid configuration
	Provider string

	// Field is the configuration field that is invalid
	Field string

	// Message describes the configuration error
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider %q configuration error for field %q: %s",
		e.Provider, e.Field, e.Message)
}
