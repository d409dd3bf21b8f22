package routing

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common routing errors that can be checked with errors.Is().
var (
	// ErrAllInstancesFailed is returned when every instance of an alias failed.
	ErrAllInstancesFailed = errors.New("all instances failed")

	// ErrNoInstances is returned when there is nothing to try.
	ErrNoInstances = errors.New("no instances to try")

	// ErrInvalidPattern is returned when a /regex/ pattern does not compile.
	ErrInvalidPattern = errors.New("invalid pattern")
)

// PatternError is returned when a model pattern cannot be compiled.
type PatternError struct {
	// Pattern is the pattern as written in configuration.
	Pattern string

	// Err is the underlying compile error.
	Err error
}

// Error implements the error interface.
func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Err)
}

// Is implements error matching for errors.Is().
func (e *PatternError) Is(target error) bool {
	return target == ErrInvalidPattern
}

// Unwrap returns the compile error.
func (e *PatternError) Unwrap() error {
	return e.Err
}

// Attempt records one try of one instance.
type Attempt struct {
	Instance Instance
	Err      error
	Duration time.Duration
}

// AllInstancesFailedError is returned when every instance was tried and
// none produced a usable response.
type AllInstancesFailedError struct {
	// Alias is the alias or model the instances were resolved from.
	Alias string

	// Attempts holds one entry per instance, in the order tried.
	Attempts []Attempt

	// LastError is the error from the last attempted instance.
	LastError error
}

// Error implements the error interface.
func (e *AllInstancesFailedError) Error() string {
	tried := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		tried = append(tried, a.Instance.String())
	}
	return fmt.Sprintf("all instances failed for %q (attempted: %s, last error: %v)",
		e.Alias, strings.Join(tried, ", "), e.LastError)
}

// Is implements error matching for errors.Is().
func (e *AllInstancesFailedError) Is(target error) bool {
	return target == ErrAllInstancesFailed
}

// Unwrap returns the wrapped error for error chain traversal.
func (e *AllInstancesFailedError) Unwrap() error {
	return e.LastError
}

// failoverer is implemented by errors that should move the walk on to the
// next instance.
type failoverer interface {
	Failover() bool
}

// IsFailover reports whether err, or any error it wraps, asks for the next
// instance to be tried.
func IsFailover(err error) bool {
	var f failoverer
	if errors.As(err, &f) {
		return f.Failover()
	}
	return false
}
