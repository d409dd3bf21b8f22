package providers

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

var retryTextPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)retry in (\d+(?:\.\d+)?)s`),
	regexp.MustCompile(`(?i)retryDelay\W+(\d+(?:\.\d+)?)s`),
}

// ParseRetryDelay extracts the upstream's retry hint from a rejected
// response. It checks the Retry-After header, then Google's structured
// error details, then free text. It returns 0 when there is no hint.
func ParseRetryDelay(header http.Header, body []byte) time.Duration {
	if header != nil {
		if d := parseRetryAfter(header.Get("Retry-After")); d > 0 {
			return d
		}
	}

	if len(body) == 0 {
		return 0
	}

	if gjson.ValidBytes(body) {
		var found time.Duration
		gjson.GetBytes(body, "error.details").ForEach(func(_, detail gjson.Result) bool {
			for _, path := range []string{"retryDelay", "metadata.retryDelay"} {
				if v := detail.Get(path).String(); v != "" {
					if d, err := time.ParseDuration(v); err == nil && d > 0 {
						found = d
						return false
					}
				}
			}
			return true
		})
		if found > 0 {
			return found
		}
	}

	for _, re := range retryTextPatterns {
		if m := re.FindSubmatch(body); m != nil {
			if d, err := time.ParseDuration(string(m[1]) + "s"); err == nil {
				return d
			}
		}
	}
	return 0
}

// parseRetryAfter parses the Retry-After header value.
// It supports both delay-seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}

	return 0
}
