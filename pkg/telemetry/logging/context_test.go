package logging

import (
	"context"
	"testing"
)

func TestContextFields(t *testing.T) {
	ctx := context.Background()
	if GetRequestID(ctx) != "" || GetSourceHost(ctx) != "" {
		t.Fatal("empty context returned values")
	}
	if fields := extractContextFields(ctx); len(fields) != 0 {
		t.Errorf("fields = %v", fields)
	}

	ctx = WithRequestID(ctx, "req-1")
	if got := GetRequestID(ctx); got != "req-1" {
		t.Errorf("GetRequestID() = %q", got)
	}
	fields := extractContextFields(ctx)
	if len(fields) != 2 || fields[0] != "request_id" || fields[1] != "req-1" {
		t.Errorf("fields = %v", fields)
	}

	ctx = WithSourceHost(ctx, "192.168.1.4")
	if got := GetSourceHost(ctx); got != "192.168.1.4" {
		t.Errorf("GetSourceHost() = %q", got)
	}
	if fields := extractContextFields(ctx); len(fields) != 4 {
		t.Errorf("fields = %v", fields)
	}
}
