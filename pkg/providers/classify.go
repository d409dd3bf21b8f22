package providers

import (
	"bytes"
	"net/http"
)

// Outcome classifies an upstream response.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeQuota
	OutcomeInvalidKey
	OutcomeServerError
	OutcomeClientError
)

// String returns the metric label for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeQuota:
		return "quota"
	case OutcomeInvalidKey:
		return "invalid_key"
	case OutcomeServerError:
		return "server_error"
	case OutcomeClientError:
		return "client_error"
	}
	return "unknown"
}

var quotaIndicators = [][]byte{
	[]byte("resource_exhausted"),
	[]byte("quota exceeded"),
	[]byte("current quota"),
	[]byte("requests per day"),
	[]byte("free_tier_requests"),
	[]byte("rate limit exceeded"),
}

// "invalid_argument" is deliberately absent: Google uses it for ordinary
// request errors as well.
var invalidKeyIndicators = [][]byte{
	[]byte("permission denied"),
	[]byte("permission_denied"),
	[]byte("api key not valid"),
	[]byte("invalid api key"),
	[]byte("api_key_invalid"),
	[]byte("credentials are missing or invalid"),
	[]byte("api key expired"),
	[]byte("incorrect api key"),
}

// Classify maps an upstream status and body to an Outcome. Body text is
// only consulted for non-2xx responses, so a model answer that happens to
// mention quotas is never misread.
func Classify(status int, body []byte) Outcome {
	if status >= 200 && status < 300 {
		return OutcomeOK
	}
	if status >= 500 {
		return OutcomeServerError
	}
	if status == http.StatusTooManyRequests {
		return OutcomeQuota
	}

	lower := bytes.ToLower(body)
	if containsAny(lower, quotaIndicators) {
		return OutcomeQuota
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return OutcomeInvalidKey
	}
	if containsAny(lower, invalidKeyIndicators) {
		return OutcomeInvalidKey
	}
	return OutcomeClientError
}

func containsAny(s []byte, needles [][]byte) bool {
	for _, n := range needles {
		if bytes.Contains(s, n) {
			return true
		}
	}
	return false
}
