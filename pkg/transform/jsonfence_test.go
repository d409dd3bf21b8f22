package transform

import (
	"math/rand"
	"strings"
	"testing"
)

func TestScrubJSONFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "sole content",
			input: "```json\n{\"a\":1}\n```",
			want:  `{"a":1}`,
		},
		{
			name:  "backtick fence inline",
			input: "Here is some JSON: ```json\n{\n  \"commit_message\": \"test\"\n}\n```",
			want:  "Here is some JSON: {\n  \"commit_message\": \"test\"\n}",
		},
		{
			name:  "square bracket fence",
			input: `[json] { "commit_message": "feat: add routing" } [json]`,
			want:  `{ "commit_message": "feat: add routing" }`,
		},
		{
			name:  "mixed styles",
			input: "Backtick: ```json\n{\"type\": \"backtick\"}\n``` and square: [json] {\"type\": \"square\"} [json]",
			want:  `Backtick: {"type": "backtick"} and square: {"type": "square"}`,
		},
		{
			name:  "multiple square fences",
			input: `[json] {"first": true} [json] and then [json] {"second": false} [json]`,
			want:  `{"first": true} and then {"second": false}`,
		},
		{
			name:  "inner whitespace kept",
			input: `[json]   {  "spaced": "two  spaces"  }   [json]`,
			want:  `{  "spaced": "two  spaces"  }`,
		},
		{
			name:  "nested fences",
			input: "[json] ```json\n{\"a\":1}\n``` [json]",
			want:  `{"a":1}`,
		},
		{
			name:  "fence formed by unwrapping",
			input: "``[json] `json {} ``` [json]",
			want:  "{}",
		},
		{
			name:  "stray markers",
			input: " [json]```json``` <th}```json[json]</",
			want:  "  <th}```json</",
		},
		{
			name:  "no fencing",
			input: `Just regular text with {"json": "but no fencing"}`,
			want:  `Just regular text with {"json": "but no fencing"}`,
		},
		{
			name:  "malformed square brackets",
			input: `[json {"missing": "closing"} json]`,
			want:  `[json {"missing": "closing"} json]`,
		},
		{
			name:  "unclosed backtick fence",
			input: "result: ```json\n{\"a\":",
			want:  "result: ```json\n{\"a\":",
		},
		{
			name:  "plain code fence untouched",
			input: "```go\nfmt.Println()\n```",
			want:  "```go\nfmt.Println()\n```",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScrubJSONFences(tt.input)
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}

			again := ScrubJSONFences(got)
			if again != got {
				t.Errorf("Scrub not idempotent: %q became %q", got, again)
			}
		})
	}
}

func TestJSONFenceScrubber_Streaming(t *testing.T) {
	input := "Backtick: ```json\n{\"type\": \"backtick\"}\n``` and square: [json] {\"type\": \"square\"} [json]"
	want := ScrubJSONFences(input)

	for size := 1; size <= len(input); size++ {
		var chunks []string
		for i := 0; i < len(input); i += size {
			end := i + size
			if end > len(input) {
				end = len(input)
			}
			chunks = append(chunks, input[i:end])
		}

		got := runChunks(NewJSONFenceScrubber(), chunks)
		if got != want {
			t.Fatalf("chunk size %d: expected %q, got %q", size, want, got)
		}
	}
}

func TestJSONFenceScrubber_Generated(t *testing.T) {
	pieces := []string{"[json]", "```json", "```", "[js", "``", "`", "json", " ", "\n", "{}", "x"}
	rng := rand.New(rand.NewSource(7))

	for n := 0; n < 5000; n++ {
		var b strings.Builder
		for k := rng.Intn(10); k >= 0; k-- {
			b.WriteString(pieces[rng.Intn(len(pieces))])
		}
		input := b.String()

		once := ScrubJSONFences(input)
		if twice := ScrubJSONFences(once); twice != once {
			t.Fatalf("%q: scrubbed once %q, twice %q", input, once, twice)
		}

		cut := rng.Intn(len(input) + 1)
		if got := runChunks(NewJSONFenceScrubber(), []string{input[:cut], input[cut:]}); got != once {
			t.Fatalf("%q split at %d: got %q, want %q", input, cut, got, once)
		}
	}
}
