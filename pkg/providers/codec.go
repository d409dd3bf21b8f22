package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// StreamDecoder yields the increments of an upstream streaming response.
type StreamDecoder interface {
	// Next returns the next increment. It returns io.EOF once the stream
	// has ended.
	Next() (Delta, error)
}

// StreamEncoder renders increments in a caller's shape.
type StreamEncoder interface {
	// ContentType is the response Content-Type.
	ContentType() string

	// Chunk renders one content increment.
	Chunk(content string) []byte

	// Finish renders the terminal record(s).
	Finish(finishReason string, usage *Usage) []byte
}

// Normalize parses an inbound body of the given shape.
func Normalize(shape Shape, body []byte) (*ChatRequest, error) {
	if !gjson.ValidBytes(body) {
		return nil, &MalformedRequestError{Shape: shape, Reason: "body is not valid JSON"}
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, &MalformedRequestError{Shape: shape, Reason: "body must be a JSON object"}
	}

	model := root.Get("model")
	if model.Type != gjson.String || model.String() == "" {
		return nil, &MalformedRequestError{Shape: shape, Reason: "missing model"}
	}

	req := &ChatRequest{Shape: shape, Model: model.String(), Raw: body}

	switch shape {
	case ShapeOpenAIChat, ShapeOllamaChat:
		msgs := root.Get("messages")
		if !msgs.IsArray() {
			return nil, &MalformedRequestError{Shape: shape, Reason: "missing messages"}
		}
		var err error
		if req.Messages, err = parseMessages(shape, msgs); err != nil {
			return nil, err
		}
		if shape == ShapeOllamaChat {
			req.RawMessages = json.RawMessage(msgs.Raw)
		}

	case ShapeOpenAICompletion:
		prompt := root.Get("prompt")
		if !prompt.Exists() {
			return nil, &MalformedRequestError{Shape: shape, Reason: "missing prompt"}
		}
		req.Prompt = joinText(prompt, "\n")
		req.Messages = []Message{{Role: RoleUser, Content: req.Prompt}}

	case ShapeOllamaGenerate:
		prompt := root.Get("prompt")
		if prompt.Type != gjson.String {
			return nil, &MalformedRequestError{Shape: shape, Reason: "missing prompt"}
		}
		req.Prompt = prompt.String()
		if sys := root.Get("system").String(); sys != "" {
			req.Messages = append(req.Messages, Message{Role: RoleSystem, Content: sys})
		}
		req.Messages = append(req.Messages, Message{Role: RoleUser, Content: req.Prompt})

	default:
		return nil, fmt.Errorf("unsupported request shape %s", shape)
	}

	params := root
	if !shape.IsOpenAI() {
		params = root.Get("options")
	}
	req.Temperature = optionalFloat(params.Get("temperature"))
	req.TopP = optionalFloat(params.Get("top_p"))
	req.Stop = stopList(params.Get("stop"))
	if shape.IsOpenAI() {
		req.MaxTokens = int(root.Get("max_tokens").Int())
		if req.MaxTokens == 0 {
			req.MaxTokens = int(root.Get("max_completion_tokens").Int())
		}
	} else {
		req.MaxTokens = int(params.Get("num_predict").Int())
	}

	// Ollama streams unless told otherwise. OpenAI does not.
	req.Stream = !shape.IsOpenAI()
	if s := root.Get("stream"); s.IsBool() {
		req.Stream = s.Bool()
	}

	return req, nil
}

func parseMessages(shape Shape, msgs gjson.Result) ([]Message, error) {
	var out []Message
	var err error
	msgs.ForEach(func(_, m gjson.Result) bool {
		role := m.Get("role").String()
		if role == "" {
			err = &MalformedRequestError{Shape: shape, Reason: "message without role"}
			return false
		}
		out = append(out, Message{Role: role, Content: joinText(m.Get("content"), "")})
		return true
	})
	return out, err
}

// joinText flattens a string, an array of strings, or an array of content
// parts into plain text.
func joinText(v gjson.Result, sep string) string {
	if !v.IsArray() {
		return v.String()
	}
	var parts []string
	v.ForEach(func(_, item gjson.Result) bool {
		switch {
		case item.Type == gjson.String:
			parts = append(parts, item.String())
		case item.IsObject() && item.Get("text").Exists():
			parts = append(parts, item.Get("text").String())
		}
		return true
	})
	return strings.Join(parts, sep)
}

func optionalFloat(v gjson.Result) *float64 {
	if v.Type != gjson.Number {
		return nil
	}
	f := v.Float()
	return &f
}

func stopList(v gjson.Result) []string {
	switch {
	case v.Type == gjson.String && v.String() != "":
		return []string{v.String()}
	case v.IsArray():
		var out []string
		for _, s := range v.Array() {
			if s.String() != "" {
				out = append(out, s.String())
			}
		}
		return out
	}
	return nil
}

// BuildUpstream encodes req for provider p. model is the upstream model
// name after rewriting. key is the selected credential; when empty the
// inbound Authorization header is forwarded to OpenAI upstreams.
func BuildUpstream(p *Provider, req *ChatRequest, model, key string, inbound http.Header) (*UpstreamRequest, error) {
	switch p.Type {
	case TypeOpenAI:
		return buildOpenAI(p, req, model, key, inbound)
	case TypeOllama:
		return buildOllama(p, req, model)
	case TypeGoogleGenAI:
		return buildGemini(p, req, model, key)
	}
	return nil, &ConfigError{Provider: p.Name, Field: "type", Message: fmt.Sprintf("unsupported provider type %q", p.Type)}
}

// DecodeResponse parses a non-streaming 2xx body from provider p.
func DecodeResponse(p *Provider, body []byte) (*Completion, error) {
	if !gjson.ValidBytes(body) {
		return nil, &ParseError{Provider: p.Name, Cause: fmt.Errorf("response is not valid JSON")}
	}
	switch p.Type {
	case TypeOpenAI:
		return decodeOpenAI(body), nil
	case TypeOllama:
		return decodeOllama(body), nil
	case TypeGoogleGenAI:
		return decodeGemini(body), nil
	}
	return nil, &ConfigError{Provider: p.Name, Field: "type", Message: fmt.Sprintf("unsupported provider type %q", p.Type)}
}

// NewStreamDecoder reads a streaming body from provider p.
func NewStreamDecoder(p *Provider, r io.Reader) StreamDecoder {
	switch p.Type {
	case TypeOllama:
		return &ollamaStreamDecoder{provider: p.Name, reader: NewNDJSONReader(r)}
	case TypeGoogleGenAI:
		return &geminiStreamDecoder{provider: p.Name, reader: NewSSEReader(r)}
	default:
		return &openAIStreamDecoder{provider: p.Name, reader: NewSSEReader(r)}
	}
}

// Denormalize renders c in the caller's shape under the caller's model
// name.
func Denormalize(shape Shape, model string, c *Completion) ([]byte, error) {
	switch shape {
	case ShapeOpenAIChat:
		return encodeOpenAIChat(model, c)
	case ShapeOpenAICompletion:
		return encodeOpenAICompletion(model, c)
	case ShapeOllamaGenerate:
		return encodeOllamaGenerate(model, c)
	case ShapeOllamaChat:
		return encodeOllamaChat(model, c)
	}
	return nil, fmt.Errorf("unsupported response shape %s", shape)
}

// NewStreamEncoder renders a stream in the caller's shape.
func NewStreamEncoder(shape Shape, model string) StreamEncoder {
	switch shape {
	case ShapeOpenAICompletion:
		return newOpenAICompletionEncoder(model)
	case ShapeOllamaGenerate:
		return &ollamaEncoder{model: model}
	case ShapeOllamaChat:
		return &ollamaEncoder{model: model, chat: true}
	default:
		return newOpenAIChatEncoder(model)
	}
}

// ContentType returns the response Content-Type for shape.
func ContentType(shape Shape, stream bool) string {
	switch {
	case !stream:
		return "application/json"
	case shape.IsOpenAI():
		return "text/event-stream"
	default:
		return "application/x-ndjson"
	}
}
