package providers

import (
	"encoding/json"
	"fmt"
)

// Type is the wire protocol an upstream provider speaks. The set is closed.
type Type string

const (
	// TypeOpenAI speaks the OpenAI chat/completions API.
	TypeOpenAI Type = "openai"

	// TypeOllama speaks the Ollama chat API.
	TypeOllama Type = "ollama"

	// TypeGoogleGenAI speaks the Google Generative Language API.
	TypeGoogleGenAI Type = "google-genai"
)

// Types lists every supported provider type.
var Types = []Type{TypeOpenAI, TypeOllama, TypeGoogleGenAI}

// ParseType validates s as a provider type.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeOpenAI, TypeOllama, TypeGoogleGenAI:
		return Type(s), nil
	case "":
		return TypeOpenAI, nil
	}
	return "", fmt.Errorf("unknown provider type %q (supported: openai, ollama, google-genai)", s)
}

// Shape is the protocol shape a client used for its request. Responses go
// back in the same shape.
type Shape int

const (
	ShapeOpenAIChat Shape = iota
	ShapeOpenAICompletion
	ShapeOllamaGenerate
	ShapeOllamaChat
)

// String returns the endpoint path the shape is served on.
func (s Shape) String() string {
	switch s {
	case ShapeOpenAIChat:
		return "/v1/chat/completions"
	case ShapeOpenAICompletion:
		return "/v1/completions"
	case ShapeOllamaGenerate:
		return "/api/generate"
	case ShapeOllamaChat:
		return "/api/chat"
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

// IsOpenAI reports whether the shape is one of the OpenAI shapes.
func (s Shape) IsOpenAI() bool {
	return s == ShapeOpenAIChat || s == ShapeOpenAICompletion
}

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the provider-agnostic form of an inbound request.
type ChatRequest struct {
	// Shape is the protocol the client used.
	Shape Shape

	// Model is the model the client asked for.
	Model string

	// Messages is the conversation. Prompt-style requests become a single
	// user message.
	Messages []Message

	// Prompt holds the raw prompt of completion-style requests.
	Prompt string

	// RawMessages is the inbound messages array of an Ollama chat
	// request, forwarded unchanged to Ollama upstreams so per-message
	// fields such as images and tool_calls survive.
	RawMessages json.RawMessage

	Temperature *float64
	TopP        *float64
	MaxTokens   int
	Stop        []string
	Stream      bool

	// Raw is the original request body.
	Raw []byte
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the provider-agnostic form of a non-streaming response.
type Completion struct {
	ID           string
	Model        string
	Content      string
	FinishReason string
	Usage        Usage
}

// Delta is one increment of a streaming response.
type Delta struct {
	Content      string
	FinishReason string
	Usage        *Usage

	// Done is set on the final increment.
	Done bool
}

// Message role constants
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Finish reason constants
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonContentFilter = "content_filter"
)
