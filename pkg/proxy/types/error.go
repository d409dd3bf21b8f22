package types

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/mitchins/SmolRouter/pkg/dispatch"
)

// ErrorResponse is the OpenAI error envelope every router error uses,
// whatever the request shape.
//
//	{"error": {"message": "...", "type": "upstream_error", "code": "all_upstreams_failed"}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the details of an error.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Error types.
const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeRateLimit      = "rate_limit_error"
	ErrorTypeUpstream       = "upstream_error"
	ErrorTypeServerError    = "server_error"
	ErrorTypeClient         = "client_error"
)

// Error codes raised by the HTTP layer itself. Routing codes come from
// dispatch.Describe.
const (
	CodeInvalidJSON      = "invalid_json"
	CodeRequestTooLarge  = "request_too_large"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeNotFound         = "not_found"
	CodeInternalError    = "internal_error"
)

// NewErrorResponse creates a new error response.
func NewErrorResponse(message, errorType, param, code string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errorType,
			Param:   param,
			Code:    code,
		},
	}
}

// NewInvalidRequestError creates an error response for a bad client request.
func NewInvalidRequestError(message, param, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeInvalidRequest, param, code)
}

// NewServerError creates an error response for internal failures.
func NewServerError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeServerError, "", CodeInternalError)
}

// FromInfo converts a described dispatch error.
func FromInfo(info dispatch.ErrorInfo) *ErrorResponse {
	return NewErrorResponse(info.Message, info.Type, "", info.Code)
}

// RetryAfterSeconds renders d as a Retry-After value: whole seconds,
// rounded up, at least 1. It returns "" when d is not positive.
func RetryAfterSeconds(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

// StatusText returns a message for a status the router produced itself.
func StatusText(code int) string {
	if code == dispatch.StatusClientClosedRequest {
		return "client closed request"
	}
	return http.StatusText(code)
}
