package logging

import (
	"io"
	"testing"
)

func BenchmarkLogger_Info_Redacting(b *testing.B) {
	logger, err := New(Config{Level: "info", Format: "json", RedactSecrets: true, Writer: io.Discard})
	if err != nil {
		b.Fatalf("New() error = %v", err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		logger.Info("request dispatched", "provider", "gemini", "url", "https://h/v1?key=abc", "attempt", i)
	}
}

func BenchmarkLogger_Debug_Disabled(b *testing.B) {
	logger, err := New(Config{Level: "info", Format: "json", RedactSecrets: true, Writer: io.Discard})
	if err != nil {
		b.Fatalf("New() error = %v", err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		logger.Debug("dropped", "attempt", i)
	}
}
