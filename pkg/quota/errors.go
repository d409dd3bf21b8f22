package quota

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrQuotaExhausted is returned when no key of a provider can serve a model.
	ErrQuotaExhausted = errors.New("quota exhausted")

	// ErrUnknownProvider is returned for a provider the ledger was not configured with.
	ErrUnknownProvider = errors.New("unknown quota provider")
)

// QuotaExhaustedError is returned by Select when every key is exhausted,
// invalid, over its daily limit or error-prone.
type QuotaExhaustedError struct {
	Provider string
	Model    string

	// ResetAt is the earliest instant at which some key becomes usable
	// again. Zero when every key is invalid.
	ResetAt time.Time

	// RetryAfter is the upstream's own retry hint, when one was seen.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *QuotaExhaustedError) Error() string {
	if e.ResetAt.IsZero() {
		return fmt.Sprintf("no usable key for provider %q model %q", e.Provider, e.Model)
	}
	return fmt.Sprintf("quota exhausted for provider %q model %q (resets at %s)",
		e.Provider, e.Model, e.ResetAt.Format(time.RFC3339))
}

// Is implements error matching for errors.Is().
func (e *QuotaExhaustedError) Is(target error) bool {
	return target == ErrQuotaExhausted
}

// Failover reports that the next instance should be tried.
func (e *QuotaExhaustedError) Failover() bool { return true }

// ResetIn returns the time remaining until ResetAt.
func (e *QuotaExhaustedError) ResetIn(now time.Time) time.Duration {
	if e.ResetAt.IsZero() || !e.ResetAt.After(now) {
		return 0
	}
	return e.ResetAt.Sub(now)
}
