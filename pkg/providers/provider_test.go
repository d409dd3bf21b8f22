package providers

import (
	"errors"
	"testing"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"openai", TypeOpenAI, false},
		{"", TypeOpenAI, false},
		{"ollama", TypeOllama, false},
		{"google-genai", TypeGoogleGenAI, false},
		{"anthropic", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRegistryOrdering(t *testing.T) {
	a := NewProvider("a", TypeOpenAI, "http://a")
	a.Priority = 2
	b := NewProvider("b", TypeOllama, "http://b")
	b.Priority = 1
	c := NewProvider("c", TypeOllama, "http://c")
	c.Priority = 2

	reg, err := NewRegistry([]*Provider{a, b, c})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	var names []string
	for _, p := range reg.All() {
		names = append(names, p.Name)
	}
	if got := names[0] + names[1] + names[2]; got != "bac" {
		t.Errorf("order = %v, want [b a c]", names)
	}

	b.SetEnabled(false)
	enabled := reg.Enabled()
	if len(enabled) != 2 || enabled[0].Name != "a" {
		t.Errorf("Enabled() = %v, want [a c]", enabled)
	}

	if _, ok := reg.Get("c"); !ok {
		t.Error("Get(c) not found")
	}
}

func TestRegistryDuplicate(t *testing.T) {
	_, err := NewRegistry([]*Provider{
		NewProvider("x", TypeOpenAI, "http://1"),
		NewProvider("x", TypeOllama, "http://2"),
	})
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Provider != "x" {
		t.Errorf("NewRegistry() error = %v, want duplicate ConfigError", err)
	}
}

func TestProviderHealth(t *testing.T) {
	p := NewProvider("p", TypeOpenAI, "http://p/")
	if p.Endpoint != "http://p" {
		t.Errorf("Endpoint = %q, want trailing slash trimmed", p.Endpoint)
	}

	for i := 0; i < unhealthyAfter; i++ {
		p.RecordResult(false, errors.New("boom"))
	}
	h := p.Health()
	if h.IsHealthy || h.ConsecutiveFailures != unhealthyAfter || h.LastError != "boom" {
		t.Errorf("Health() = %+v, want unhealthy after %d failures", h, unhealthyAfter)
	}

	p.RecordResult(true, nil)
	h = p.Health()
	if !h.IsHealthy || h.ConsecutiveFailures != 0 || h.TotalRequests != int64(unhealthyAfter+1) {
		t.Errorf("Health() = %+v, want healthy after success", h)
	}
}
