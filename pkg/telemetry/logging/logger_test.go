package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "valid JSON config",
			config: Config{Level: "info", Format: "json", RedactSecrets: true},
		},
		{
			name:   "valid text config",
			config: Config{Level: "debug", Format: "text"},
		},
		{
			name:   "defaults",
			config: Config{},
		},
		{
			name:    "invalid log level",
			config:  Config{Level: "invalid", Format: "json"},
			wantErr: true,
		},
		{
			name:    "invalid format",
			config:  Config{Level: "info", Format: "console"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Writer = &bytes.Buffer{}
			logger, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && logger.Slog() == nil {
				t.Error("Slog() returned nil")
			}
		})
	}
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("output is not one JSON record: %v\n%s", err, buf.String())
	}
	return m
}

func TestLogger_Redacts(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Config{Level: "info", Format: "json", RedactSecrets: true, Writer: buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.With("api_key", "sk-live-1234567890abcdef").Info("calling upstream with Bearer abc.def.ghi",
		"url", "https://generativelanguage.googleapis.com/v1beta/models?key=AIzaSyA1234567890abcdefghijklmn",
		"error", errors.New("upstream echoed sk-proj1234567890"),
		"model", "gpt-4",
	)

	out := buf.String()
	for _, secret := range []string{"sk-live-1234567890abcdef", "abc.def.ghi", "AIzaSyA1234567890", "sk-proj1234567890"} {
		if strings.Contains(out, secret) {
			t.Errorf("output contains %q: %s", secret, out)
		}
	}

	m := decodeLine(t, buf)
	if m["model"] != "gpt-4" {
		t.Errorf("model = %v, plain fields must survive", m["model"])
	}
	if m["api_key"] != "sk-l***" {
		t.Errorf("api_key = %v", m["api_key"])
	}
	if !strings.Contains(m["msg"].(string), "Bearer ***") {
		t.Errorf("msg = %v", m["msg"])
	}
}

func TestLogger_NoRedaction(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Config{Format: "json", Writer: buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("key", "token", "sk-visible1234567")
	if !strings.Contains(buf.String(), "sk-visible1234567") {
		t.Errorf("redaction applied although disabled: %s", buf.String())
	}
}

func TestLogger_Levels(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Config{Level: "warn", Format: "text", Writer: buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("output = %q", buf.String())
	}

	if err := logger.SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}
	logger.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Error("SetLevel did not lower the threshold")
	}
	if err := logger.SetLevel("loud"); err == nil {
		t.Error("SetLevel() accepted an unknown level")
	}
}

func TestLogger_SetDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	buf := &bytes.Buffer{}
	logger, err := New(Config{Format: "json", RedactSecrets: true, Writer: buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.SetDefault()

	slog.Default().With("component", "test").Info("sent", "authorization", "Bearer sk-abcdefghijklmnop")
	m := decodeLine(t, buf)
	if m["component"] != "test" || m["authorization"] == "Bearer sk-abcdefghijklmnop" {
		t.Errorf("record = %v", m)
	}
}

func TestLogger_WithContext(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Config{Format: "json", Writer: buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := WithSourceHost(WithRequestID(context.Background(), "req-42"), "10.0.0.2")
	logger.WithContext(ctx).Info("handled")

	m := decodeLine(t, buf)
	if m["request_id"] != "req-42" || m["source_host"] != "10.0.0.2" {
		t.Errorf("record = %v", m)
	}
	if logger.WithContext(context.Background()) != logger {
		t.Error("WithContext() allocated for an empty context")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
			}
		})
	}
}
