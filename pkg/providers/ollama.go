package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages any            `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

func (o *ollamaOptions) empty() bool {
	return o.Temperature == nil && o.TopP == nil && o.NumPredict == 0 && len(o.Stop) == 0
}

// ollamaResponse covers both the generate and chat response records.
type ollamaResponse struct {
	Model           string   `json:"model"`
	CreatedAt       string   `json:"created_at"`
	Message         *Message `json:"message,omitempty"`
	Response        *string  `json:"response,omitempty"`
	Done            bool     `json:"done"`
	DoneReason      string   `json:"done_reason,omitempty"`
	PromptEvalCount int      `json:"prompt_eval_count,omitempty"`
	EvalCount       int      `json:"eval_count,omitempty"`
}

func buildOllama(p *Provider, req *ChatRequest, model string) (*UpstreamRequest, error) {
	opts := &ollamaOptions{
		Temperature: req.Temperature,
		TopP:        req.TopP,
		NumPredict:  req.MaxTokens,
		Stop:        req.Stop,
	}
	if opts.empty() {
		opts = nil
	}

	var messages any = req.Messages
	if len(req.RawMessages) > 0 {
		messages = req.RawMessages
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   req.Stream,
		Options:  opts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode ollama request: %w", err)
	}

	return &UpstreamRequest{
		Method: http.MethodPost,
		URL:    p.Endpoint + "/api/chat",
		Header: make(http.Header),
		Body:   body,
		Stream: req.Stream,
	}, nil
}

func decodeOllama(body []byte) *Completion {
	r := gjson.ParseBytes(body)
	c := &Completion{
		Model:        r.Get("model").String(),
		FinishReason: r.Get("done_reason").String(),
		Usage:        ollamaUsage(r),
	}
	if content := r.Get("message.content"); content.Exists() {
		c.Content = content.String()
	} else {
		c.Content = r.Get("response").String()
	}
	return c
}

func ollamaUsage(r gjson.Result) Usage {
	prompt := int(r.Get("prompt_eval_count").Int())
	completion := int(r.Get("eval_count").Int())
	return Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}

type ollamaStreamDecoder struct {
	provider string
	reader   *NDJSONReader
	done     bool
}

func (d *ollamaStreamDecoder) Next() (Delta, error) {
	if d.done {
		return Delta{}, io.EOF
	}
	line, err := d.reader.Next()
	if err == io.EOF {
		d.done = true
		return Delta{}, io.EOF
	}
	if err != nil {
		return Delta{}, &StreamError{Provider: d.provider, Message: "failed to read stream", Cause: err}
	}
	if !gjson.ValidBytes(line) {
		return Delta{}, &ParseError{Provider: d.provider, Cause: fmt.Errorf("invalid stream record")}
	}

	r := gjson.ParseBytes(line)
	if e := r.Get("error"); e.Exists() {
		return Delta{}, &StreamError{Provider: d.provider, Message: errorMessage(e)}
	}

	delta := Delta{}
	if content := r.Get("message.content"); content.Exists() {
		delta.Content = content.String()
	} else {
		delta.Content = r.Get("response").String()
	}
	if r.Get("done").Bool() {
		d.done = true
		delta.Done = true
		delta.FinishReason = finishOrStop(r.Get("done_reason").String())
		usage := ollamaUsage(r)
		delta.Usage = &usage
	}
	return delta, nil
}

func ollamaTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func encodeOllamaGenerate(model string, c *Completion) ([]byte, error) {
	text := c.Content
	return json.Marshal(ollamaResponse{
		Model:           model,
		CreatedAt:       ollamaTimestamp(),
		Response:        &text,
		Done:            true,
		DoneReason:      finishOrStop(c.FinishReason),
		PromptEvalCount: c.Usage.PromptTokens,
		EvalCount:       c.Usage.CompletionTokens,
	})
}

func encodeOllamaChat(model string, c *Completion) ([]byte, error) {
	text := c.Content
	return json.Marshal(ollamaResponse{
		Model:           model,
		CreatedAt:       ollamaTimestamp(),
		Message:         &Message{Role: RoleAssistant, Content: c.Content},
		Response:        &text,
		Done:            true,
		DoneReason:      finishOrStop(c.FinishReason),
		PromptEvalCount: c.Usage.PromptTokens,
		EvalCount:       c.Usage.CompletionTokens,
	})
}

// ollamaEncoder renders NDJSON records for the generate or chat shape.
type ollamaEncoder struct {
	model string
	chat  bool
}

func (e *ollamaEncoder) ContentType() string { return "application/x-ndjson" }

func (e *ollamaEncoder) record(r ollamaResponse) []byte {
	r.Model = e.model
	r.CreatedAt = ollamaTimestamp()
	b, _ := json.Marshal(r)
	return append(b, '\n')
}

func (e *ollamaEncoder) Chunk(content string) []byte {
	if e.chat {
		return e.record(ollamaResponse{Message: &Message{Role: RoleAssistant, Content: content}})
	}
	return e.record(ollamaResponse{Response: &content})
}

func (e *ollamaEncoder) Finish(finishReason string, usage *Usage) []byte {
	empty := ""
	r := ollamaResponse{Done: true, DoneReason: finishOrStop(finishReason)}
	if e.chat {
		r.Message = &Message{Role: RoleAssistant, Content: ""}
	} else {
		r.Response = &empty
	}
	if usage != nil {
		r.PromptEvalCount = usage.PromptTokens
		r.EvalCount = usage.CompletionTokens
	}
	return e.record(r)
}
