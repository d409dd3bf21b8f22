package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// openAIChatRequest is the chat body sent when the caller used a
// non-OpenAI shape.
type openAIChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   Usage          `json:"usage"`
}

type openAIChoice struct {
	Index        int      `json:"index"`
	Message      *Message `json:"message,omitempty"`
	Text         *string  `json:"text,omitempty"`
	FinishReason string   `json:"finish_reason"`
}

type openAIChunk struct {
	ID      string              `json:"id"`
	Object  string              `json:"object"`
	Created int64               `json:"created"`
	Model   string              `json:"model"`
	Choices []openAIChunkChoice `json:"choices"`
	Usage   *Usage              `json:"usage,omitempty"`
}

type openAIChunkChoice struct {
	Index        int          `json:"index"`
	Delta        *openAIDelta `json:"delta,omitempty"`
	Text         *string      `json:"text,omitempty"`
	FinishReason *string      `json:"finish_reason"`
}

type openAIDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// OpenAIBase strips a trailing "/v1" so paths can be appended uniformly.
func OpenAIBase(endpoint string) string {
	return strings.TrimSuffix(strings.TrimRight(endpoint, "/"), "/v1")
}

func buildOpenAI(p *Provider, req *ChatRequest, model, key string, inbound http.Header) (*UpstreamRequest, error) {
	path := "/v1/chat/completions"
	var body []byte
	var err error

	if req.Shape.IsOpenAI() && len(req.Raw) > 0 {
		if req.Shape == ShapeOpenAICompletion {
			path = "/v1/completions"
		}
		body, err = sjson.SetBytes(req.Raw, "model", model)
	} else {
		body, err = json.Marshal(openAIChatRequest{
			Model:       model,
			Messages:    req.Messages,
			Stream:      req.Stream,
			Temperature: req.Temperature,
			TopP:        req.TopP,
			MaxTokens:   req.MaxTokens,
			Stop:        req.Stop,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode openai request: %w", err)
	}

	header := make(http.Header)
	if key != "" {
		header.Set("Authorization", "Bearer "+key)
	} else if inbound != nil {
		for _, h := range []string{"Authorization", "OpenAI-Organization"} {
			if v := inbound.Get(h); v != "" {
				header.Set(h, v)
			}
		}
	}
	if req.Stream {
		header.Set("Accept", "text/event-stream")
	}

	return &UpstreamRequest{
		Method: http.MethodPost,
		URL:    OpenAIBase(p.Endpoint) + path,
		Header: header,
		Body:   body,
		Stream: req.Stream,
	}, nil
}

func decodeOpenAI(body []byte) *Completion {
	r := gjson.ParseBytes(body)
	choice := r.Get("choices.0")

	c := &Completion{
		ID:           r.Get("id").String(),
		Model:        r.Get("model").String(),
		FinishReason: choice.Get("finish_reason").String(),
		Usage:        openAIUsage(r.Get("usage")),
	}
	if content := choice.Get("message.content"); content.Exists() {
		c.Content = joinText(content, "")
	} else {
		c.Content = choice.Get("text").String()
	}
	return c
}

func openAIUsage(u gjson.Result) Usage {
	return Usage{
		PromptTokens:     int(u.Get("prompt_tokens").Int()),
		CompletionTokens: int(u.Get("completion_tokens").Int()),
		TotalTokens:      int(u.Get("total_tokens").Int()),
	}
}

type openAIStreamDecoder struct {
	provider string
	reader   *SSEReader
	done     bool
}

func (d *openAIStreamDecoder) Next() (Delta, error) {
	if d.done {
		return Delta{}, io.EOF
	}
	for {
		data, err := d.reader.Next()
		if err == io.EOF {
			d.done = true
			return Delta{}, io.EOF
		}
		if err != nil {
			return Delta{}, &StreamError{Provider: d.provider, Message: "failed to read stream", Cause: err}
		}

		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			d.done = true
			return Delta{Done: true}, nil
		}
		if !gjson.Valid(data) {
			return Delta{}, &ParseError{Provider: d.provider, Cause: fmt.Errorf("invalid stream chunk")}
		}

		r := gjson.Parse(data)
		if e := r.Get("error"); e.Exists() {
			return Delta{}, &StreamError{Provider: d.provider, Message: errorMessage(e)}
		}

		choice := r.Get("choices.0")
		delta := Delta{FinishReason: choice.Get("finish_reason").String()}
		if content := choice.Get("delta.content"); content.Exists() {
			delta.Content = content.String()
		} else {
			delta.Content = choice.Get("text").String()
		}
		if u := r.Get("usage"); u.IsObject() {
			usage := openAIUsage(u)
			delta.Usage = &usage
		}
		return delta, nil
	}
}

// errorMessage extracts a message from an error value that is either a
// string or an object with a message field.
func errorMessage(e gjson.Result) string {
	if e.IsObject() {
		return e.Get("message").String()
	}
	return e.String()
}

func encodeOpenAIChat(model string, c *Completion) ([]byte, error) {
	return json.Marshal(openAIResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []openAIChoice{{
			Message:      &Message{Role: RoleAssistant, Content: c.Content},
			FinishReason: finishOrStop(c.FinishReason),
		}},
		Usage: c.Usage,
	})
}

func encodeOpenAICompletion(model string, c *Completion) ([]byte, error) {
	text := c.Content
	return json.Marshal(openAIResponse{
		ID:      "cmpl-" + uuid.NewString(),
		Object:  "text_completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []openAIChoice{{
			Text:         &text,
			FinishReason: finishOrStop(c.FinishReason),
		}},
		Usage: c.Usage,
	})
}

func finishOrStop(reason string) string {
	if reason == "" {
		return FinishReasonStop
	}
	return reason
}

// sseEvent renders v as one SSE data event.
func sseEvent(v any) []byte {
	b, _ := json.Marshal(v)
	out := make([]byte, 0, len(b)+8)
	out = append(out, "data: "...)
	out = append(out, b...)
	return append(out, '\n', '\n')
}

// SSEDone is the OpenAI stream terminator.
var SSEDone = []byte("data: [DONE]\n\n")

type openAIChatEncoder struct {
	id      string
	model   string
	created int64
	started bool
}

func newOpenAIChatEncoder(model string) *openAIChatEncoder {
	return &openAIChatEncoder{
		id:      "chatcmpl-" + uuid.NewString(),
		model:   model,
		created: time.Now().Unix(),
	}
}

func (e *openAIChatEncoder) ContentType() string { return "text/event-stream" }

func (e *openAIChatEncoder) chunk(delta *openAIDelta, finish *string, usage *Usage) []byte {
	return sseEvent(openAIChunk{
		ID:      e.id,
		Object:  "chat.completion.chunk",
		Created: e.created,
		Model:   e.model,
		Choices: []openAIChunkChoice{{Delta: delta, FinishReason: finish}},
		Usage:   usage,
	})
}

func (e *openAIChatEncoder) Chunk(content string) []byte {
	delta := &openAIDelta{Content: content}
	if !e.started {
		delta.Role = RoleAssistant
		e.started = true
	}
	return e.chunk(delta, nil, nil)
}

func (e *openAIChatEncoder) Finish(finishReason string, usage *Usage) []byte {
	reason := finishOrStop(finishReason)
	out := e.chunk(&openAIDelta{}, &reason, usage)
	return append(out, SSEDone...)
}

type openAICompletionEncoder struct {
	id      string
	model   string
	created int64
}

func newOpenAICompletionEncoder(model string) *openAICompletionEncoder {
	return &openAICompletionEncoder{
		id:      "cmpl-" + uuid.NewString(),
		model:   model,
		created: time.Now().Unix(),
	}
}

func (e *openAICompletionEncoder) ContentType() string { return "text/event-stream" }

func (e *openAICompletionEncoder) chunk(text string, finish *string, usage *Usage) []byte {
	return sseEvent(openAIChunk{
		ID:      e.id,
		Object:  "text_completion",
		Created: e.created,
		Model:   e.model,
		Choices: []openAIChunkChoice{{Text: &text, FinishReason: finish}},
		Usage:   usage,
	})
}

func (e *openAICompletionEncoder) Chunk(content string) []byte {
	return e.chunk(content, nil, nil)
}

func (e *openAICompletionEncoder) Finish(finishReason string, usage *Usage) []byte {
	reason := finishOrStop(finishReason)
	return append(e.chunk("", &reason, usage), SSEDone...)
}
