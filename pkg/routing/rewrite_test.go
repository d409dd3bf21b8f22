package routing

import (
	"errors"
	"testing"
)

func TestRewriter_Rewrite(t *testing.T) {
	rw, err := NewRewriter([]Mapping{
		{From: "gpt-4", To: "claude-3-opus"},
		{From: "/gpt-(.*)turbo/", To: `llama3-\1-instruct`},
		{From: "/^qwen/", To: "qwen2.5-coder"},
		{From: "/^qwen-7b$/", To: "never-reached"},
		{From: "/price-(\\d+)/", To: "cost-$\\1"},
	})
	if err != nil {
		t.Fatalf("NewRewriter failed: %v", err)
	}

	tests := []struct {
		name        string
		model       string
		want        string
		wantChanged bool
	}{
		{"exact", "gpt-4", "claude-3-opus", true},
		{"regex backref", "gpt-35turbo", "llama3-35-instruct", true},
		{"first regex wins", "qwen-7b", "qwen2.5-coder", true},
		{"literal dollar kept", "price-10", "cost-$10", true},
		{"unmapped", "mistral", "mistral", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := rw.Rewrite(tt.model)
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
			if changed != tt.wantChanged {
				t.Errorf("Expected changed=%v, got %v", tt.wantChanged, changed)
			}
		})
	}
}

func TestRewriter_ExactBeforeRegex(t *testing.T) {
	rw, err := NewRewriter([]Mapping{
		{From: "/gpt/", To: "regex-target"},
		{From: "gpt-4", To: "exact-target"},
	})
	if err != nil {
		t.Fatalf("NewRewriter failed: %v", err)
	}

	if got, _ := rw.Rewrite("gpt-4"); got != "exact-target" {
		t.Errorf("Expected exact entry to win, got %q", got)
	}
	if got, _ := rw.Rewrite("gpt-3"); got != "regex-target" {
		t.Errorf("Expected regex entry, got %q", got)
	}
}

func TestRewriter_InvalidRegex(t *testing.T) {
	_, err := NewRewriter([]Mapping{{From: "/([/", To: "x"}})
	if !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("Expected ErrInvalidPattern, got %v", err)
	}
}

func TestRewriter_Nil(t *testing.T) {
	var rw *Rewriter
	if got, changed := rw.Rewrite("m"); got != "m" || changed {
		t.Errorf("Expected nil rewriter to pass through, got %q %v", got, changed)
	}
}
