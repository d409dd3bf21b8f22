package providers

import (
	"net/http"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Outcome
	}{
		{"ok", 200, `{"choices":[]}`, OutcomeOK},
		{"ok body mentioning quota", 200, `{"text":"quota exceeded is a phrase"}`, OutcomeOK},
		{"too many requests", 429, ``, OutcomeQuota},
		{"resource exhausted in 400", 400, `{"error":{"status":"RESOURCE_EXHAUSTED"}}`, OutcomeQuota},
		{"current quota text", 403, `You exceeded your current quota`, OutcomeQuota},
		{"requests per day", 400, `limit: requests per day`, OutcomeQuota},
		{"unauthorized", 401, `{}`, OutcomeInvalidKey},
		{"forbidden", 403, `{}`, OutcomeInvalidKey},
		{"google bad key", 400, `{"error":{"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`, OutcomeInvalidKey},
		{"expired key", 400, `API key expired. Please renew the API key.`, OutcomeInvalidKey},
		{"plain invalid argument", 400, `{"error":{"status":"INVALID_ARGUMENT","message":"bad field"}}`, OutcomeClientError},
		{"server error", 500, `quota exceeded`, OutcomeServerError},
		{"bad gateway", 502, ``, OutcomeServerError},
		{"not found", 404, `{"error":"model not found"}`, OutcomeClientError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.status, []byte(tt.body)); got != tt.want {
				t.Errorf("Classify(%d, %q) = %s, want %s", tt.status, tt.body, got, tt.want)
			}
		})
	}
}

func TestStatusErrorFailover(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    bool
	}{
		{OutcomeQuota, true},
		{OutcomeInvalidKey, true},
		{OutcomeServerError, true},
		{OutcomeClientError, false},
	}
	for _, tt := range tests {
		t.Run(tt.outcome.String(), func(t *testing.T) {
			err := &StatusError{Provider: "p", StatusCode: 400, Outcome: tt.outcome}
			if got := err.Failover(); got != tt.want {
				t.Errorf("Failover() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseRetryDelay(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		body   string
		want   time.Duration
	}{
		{
			name:   "retry-after seconds",
			header: http.Header{"Retry-After": []string{"30"}},
			want:   30 * time.Second,
		},
		{
			name: "google retry info",
			body: `{"error":{"code":429,"details":[{"@type":"type.googleapis.com/google.rpc.QuotaFailure"},{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"20s"}]}}`,
			want: 20 * time.Second,
		},
		{
			name: "metadata retry delay",
			body: `{"error":{"details":[{"metadata":{"retryDelay":"1.5s"}}]}}`,
			want: 1500 * time.Millisecond,
		},
		{
			name: "free text",
			body: `Quota exceeded. Please retry in 20.9s.`,
			want: 20900 * time.Millisecond,
		},
		{
			name:   "header wins over body",
			header: http.Header{"Retry-After": []string{"5"}},
			body:   `{"error":{"details":[{"retryDelay":"20s"}]}}`,
			want:   5 * time.Second,
		},
		{
			name: "no hint",
			body: `{"error":{"message":"slow down"}}`,
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseRetryDelay(tt.header, []byte(tt.body)); got != tt.want {
				t.Errorf("ParseRetryDelay() = %v, want %v", got, tt.want)
			}
		})
	}
}
