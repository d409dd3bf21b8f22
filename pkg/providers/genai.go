package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

// geminiModel strips the "models/" resource prefix.
func geminiModel(model string) string {
	return strings.TrimPrefix(model, "models/")
}

func buildGemini(p *Provider, req *ChatRequest, model, key string) (*UpstreamRequest, error) {
	contents := make([]geminiContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: "System: " + m.Content}}})
		case RoleAssistant:
			contents = append(contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}

	gen := &geminiGenConfig{
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxTokens,
		TopP:            req.TopP,
		StopSequences:   req.Stop,
	}
	if gen.Temperature == nil && gen.TopP == nil && gen.MaxOutputTokens == 0 && len(gen.StopSequences) == 0 {
		gen = nil
	}

	body, err := json.Marshal(geminiRequest{Contents: contents, GenerationConfig: gen})
	if err != nil {
		return nil, fmt.Errorf("failed to encode gemini request: %w", err)
	}

	endpoint := p.Endpoint
	if endpoint == "" {
		endpoint = DefaultGoogleEndpoint
	}
	u := endpoint + "/v1beta/models/" + url.PathEscape(geminiModel(model))
	if req.Stream {
		u += ":streamGenerateContent?alt=sse"
	} else {
		u += ":generateContent"
	}

	header := make(http.Header)
	if key != "" {
		header.Set("x-goog-api-key", key)
	}

	return &UpstreamRequest{
		Method: http.MethodPost,
		URL:    u,
		Header: header,
		Body:   body,
		Stream: req.Stream,
	}, nil
}

func geminiFinishReason(reason string) string {
	switch reason {
	case "":
		return ""
	case "STOP":
		return FinishReasonStop
	case "MAX_TOKENS":
		return FinishReasonLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return FinishReasonContentFilter
	}
	return strings.ToLower(reason)
}

func geminiText(r gjson.Result) string {
	var sb strings.Builder
	for _, part := range r.Get("candidates.0.content.parts").Array() {
		sb.WriteString(part.Get("text").String())
	}
	return sb.String()
}

func geminiUsage(r gjson.Result) Usage {
	u := r.Get("usageMetadata")
	return Usage{
		PromptTokens:     int(u.Get("promptTokenCount").Int()),
		CompletionTokens: int(u.Get("candidatesTokenCount").Int()),
		TotalTokens:      int(u.Get("totalTokenCount").Int()),
	}
}

func decodeGemini(body []byte) *Completion {
	r := gjson.ParseBytes(body)
	c := &Completion{
		Model:        r.Get("modelVersion").String(),
		Content:      geminiText(r),
		FinishReason: geminiFinishReason(r.Get("candidates.0.finishReason").String()),
		Usage:        geminiUsage(r),
	}
	if c.FinishReason == "" && r.Get("promptFeedback.blockReason").Exists() {
		c.FinishReason = FinishReasonContentFilter
	}
	return c
}

type geminiStreamDecoder struct {
	provider string
	reader   *SSEReader
}

func (d *geminiStreamDecoder) Next() (Delta, error) {
	for {
		data, err := d.reader.Next()
		if err == io.EOF {
			return Delta{}, io.EOF
		}
		if err != nil {
			return Delta{}, &StreamError{Provider: d.provider, Message: "failed to read stream", Cause: err}
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}
		if !gjson.Valid(data) {
			return Delta{}, &ParseError{Provider: d.provider, Cause: fmt.Errorf("invalid stream chunk")}
		}

		r := gjson.Parse(data)
		if e := r.Get("error"); e.Exists() {
			return Delta{}, &StreamError{Provider: d.provider, Message: errorMessage(e)}
		}

		delta := Delta{
			Content:      geminiText(r),
			FinishReason: geminiFinishReason(r.Get("candidates.0.finishReason").String()),
		}
		if r.Get("usageMetadata").IsObject() {
			usage := geminiUsage(r)
			delta.Usage = &usage
		}
		return delta, nil
	}
}
