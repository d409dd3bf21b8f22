package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mitchins/SmolRouter/pkg/providers"
	"github.com/mitchins/SmolRouter/pkg/quota"
	"github.com/mitchins/SmolRouter/pkg/routing"
)

// Common dispatch errors that can be checked with errors.Is().
var (
	// ErrNoUpstream is returned when no route matched and there is no
	// default upstream.
	ErrNoUpstream = errors.New("no upstream configured")

	// ErrProviderDisabled is the cause recorded for an instance whose
	// provider is switched off.
	ErrProviderDisabled = errors.New("provider disabled")

	// ErrUnknownServer is the cause recorded for an instance naming a
	// server that is not configured.
	ErrUnknownServer = errors.New("unknown server")

	errStreamAbandoned = errors.New("stream abandoned before it was written")
)

// StatusClientClosedRequest is reported when the client went away before
// the answer was ready.
const StatusClientClosedRequest = 499

// NoUpstreamError is returned when a request matches nothing.
type NoUpstreamError struct {
	// Model is the requested model
	Model string
}

// Error implements the error interface.
func (e *NoUpstreamError) Error() string {
	return fmt.Sprintf("no upstream configured for model %q", e.Model)
}

// Is implements error matching for errors.Is().
func (e *NoUpstreamError) Is(target error) bool {
	return target == ErrNoUpstream
}

// ConfigError is returned when a configuration cannot be turned into a
// Snapshot. The previous snapshot stays in place.
type ConfigError struct {
	// Field is the configuration path at fault
	Field string

	// Err is the underlying error
	Err error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration at %s: %v", e.Field, e.Err)
}

// Unwrap returns the underlying error for error chain support.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ErrorInfo is how an error is presented to HTTP clients.
type ErrorInfo struct {
	Status  int
	Type    string
	Code    string
	Message string

	// RetryAfter is set for quota failures with a known reset.
	RetryAfter time.Duration
}

// Describe maps an error returned by Dispatch to its client-facing form.
// Messages never carry credentials or upstream bodies.
func Describe(err error) ErrorInfo {
	var (
		malformed   *providers.MalformedRequestError
		noUpstream  *NoUpstreamError
		allFailed   *routing.AllInstancesFailedError
		exhausted   *quota.QuotaExhaustedError
		status      *providers.StatusError
		unreachable *providers.UnreachableError
		timeout     *providers.TimeoutError
		parse       *providers.ParseError
	)

	switch {
	case errors.As(err, &malformed):
		return ErrorInfo{Status: http.StatusBadRequest, Type: "invalid_request_error", Code: "invalid_request_error", Message: malformed.Error()}

	case errors.As(err, &noUpstream):
		return ErrorInfo{Status: http.StatusServiceUnavailable, Type: "server_error", Code: "no_upstream_configured", Message: "no upstream configured"}

	case errors.As(err, &allFailed):
		info := ErrorInfo{
			Status:  http.StatusBadGateway,
			Type:    "upstream_error",
			Code:    "all_upstreams_failed",
			Message: fmt.Sprintf("all upstreams unavailable for %q: %v", allFailed.Alias, allFailed.LastError),
		}
		switch {
		case errors.Is(allFailed.LastError, providers.ErrTimeout):
			info.Status = http.StatusGatewayTimeout
		case allQuota(allFailed.Attempts):
			info.Status = http.StatusTooManyRequests
			info.RetryAfter = soonestRetry(allFailed.Attempts)
		}
		return info

	case errors.As(err, &exhausted):
		return ErrorInfo{
			Status:     http.StatusTooManyRequests,
			Type:       "rate_limit_error",
			Code:       "quota_exhausted",
			Message:    exhausted.Error(),
			RetryAfter: retryOf(exhausted),
		}

	case errors.As(err, &timeout):
		return ErrorInfo{Status: http.StatusGatewayTimeout, Type: "upstream_error", Code: "upstream_timeout", Message: timeout.Error()}

	case errors.As(err, &unreachable):
		return ErrorInfo{Status: http.StatusBadGateway, Type: "upstream_error", Code: "upstream_unreachable", Message: unreachable.Error()}

	case errors.As(err, &status):
		if status.Outcome == providers.OutcomeQuota {
			return ErrorInfo{Status: http.StatusTooManyRequests, Type: "rate_limit_error", Code: "quota_exhausted", Message: status.Error(), RetryAfter: status.RetryAfter}
		}
		return ErrorInfo{Status: http.StatusBadGateway, Type: "upstream_error", Code: "upstream_error", Message: status.Error()}

	case errors.As(err, &parse):
		return ErrorInfo{Status: http.StatusBadGateway, Type: "upstream_error", Code: "upstream_invalid_response", Message: parse.Error()}

	case errors.Is(err, context.Canceled):
		return ErrorInfo{Status: StatusClientClosedRequest, Type: "client_error", Code: "client_closed_request", Message: "client closed request"}

	case errors.Is(err, context.DeadlineExceeded):
		return ErrorInfo{Status: http.StatusGatewayTimeout, Type: "upstream_error", Code: "upstream_timeout", Message: "request deadline exceeded"}
	}

	return ErrorInfo{Status: http.StatusInternalServerError, Type: "server_error", Code: "internal_error", Message: "internal error"}
}

// isQuota reports whether err is a quota rejection of any kind.
func isQuota(err error) bool {
	if errors.Is(err, quota.ErrQuotaExhausted) {
		return true
	}
	var status *providers.StatusError
	return errors.As(err, &status) && status.Outcome == providers.OutcomeQuota
}

func allQuota(attempts []routing.Attempt) bool {
	if len(attempts) == 0 {
		return false
	}
	for _, a := range attempts {
		if !isQuota(a.Err) {
			return false
		}
	}
	return true
}

func soonestRetry(attempts []routing.Attempt) time.Duration {
	var best time.Duration
	for _, a := range attempts {
		var d time.Duration
		var exhausted *quota.QuotaExhaustedError
		var status *providers.StatusError
		switch {
		case errors.As(a.Err, &exhausted):
			d = retryOf(exhausted)
		case errors.As(a.Err, &status):
			d = status.RetryAfter
		}
		if d > 0 && (best == 0 || d < best) {
			best = d
		}
	}
	return best
}

func retryOf(e *quota.QuotaExhaustedError) time.Duration {
	if d := e.ResetIn(time.Now()); d > 0 {
		return d
	}
	return e.RetryAfter
}
