package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ModelInfo describes one model a provider serves.
type ModelInfo struct {
	ID       string
	Provider string

	// Aliases are alternative names the model is listed under.
	Aliases []string
}

var (
	staticOpenAIModels = []string{"gpt-4o", "gpt-4o-mini", "gpt-4", "gpt-3.5-turbo"}
	staticGeminiModels = []string{"gemini-2.0-flash", "gemini-1.5-flash", "gemini-1.5-pro"}
)

// ListModels asks provider p for its models. OpenAI and Gemini providers
// fall back to a static list when they hold no key or the call fails.
// Ollama failures are returned.
func (c *Client) ListModels(ctx context.Context, p *Provider) ([]ModelInfo, error) {
	switch p.Type {
	case TypeOpenAI:
		if !p.HasKeys() {
			return staticModels(p, staticOpenAIModels), nil
		}
		header := http.Header{"Authorization": []string{"Bearer " + p.Keys[0]}}
		ids, err := c.listIDs(ctx, p, OpenAIBase(p.Endpoint)+"/v1/models", header, func(r gjson.Result) []string {
			var ids []string
			for _, m := range r.Get("data").Array() {
				ids = append(ids, m.Get("id").String())
			}
			return ids
		})
		if err != nil {
			c.logger.Warn("model listing failed, using static list", "provider", p.Name, "error", err)
			return staticModels(p, staticOpenAIModels), nil
		}
		return staticModels(p, ids), nil

	case TypeOllama:
		ids, err := c.listIDs(ctx, p, p.Endpoint+"/api/tags", nil, func(r gjson.Result) []string {
			var ids []string
			for _, m := range r.Get("models").Array() {
				ids = append(ids, m.Get("name").String())
			}
			return ids
		})
		if err != nil {
			return nil, err
		}
		out := make([]ModelInfo, 0, len(ids))
		for _, id := range ids {
			info := ModelInfo{ID: id, Provider: p.Name}
			if strings.Contains(id, ":") {
				info.Aliases = []string{strings.ReplaceAll(id, ":", "-")}
			}
			out = append(out, info)
		}
		return out, nil

	case TypeGoogleGenAI:
		if !p.HasKeys() {
			return staticModels(p, staticGeminiModels), nil
		}
		header := http.Header{"x-goog-api-key": []string{p.Keys[0]}}
		ids, err := c.listIDs(ctx, p, p.Endpoint+"/v1beta/models", header, func(r gjson.Result) []string {
			var ids []string
			for _, m := range r.Get("models").Array() {
				generates := false
				for _, method := range m.Get("supportedGenerationMethods").Array() {
					if method.String() == "generateContent" {
						generates = true
						break
					}
				}
				if generates {
					ids = append(ids, geminiModel(m.Get("name").String()))
				}
			}
			return ids
		})
		if err != nil || len(ids) == 0 {
			c.logger.Warn("model listing failed, using static list", "provider", p.Name, "error", err)
			return staticModels(p, staticGeminiModels), nil
		}
		return staticModels(p, ids), nil
	}
	return nil, &ConfigError{Provider: p.Name, Field: "type", Message: fmt.Sprintf("unsupported provider type %q", p.Type)}
}

func (c *Client) listIDs(ctx context.Context, p *Provider, url string, header http.Header, extract func(gjson.Result) []string) ([]string, error) {
	resp, err := c.Get(ctx, p, url, header)
	if err != nil {
		return nil, err
	}
	if outcome := Classify(resp.StatusCode, resp.Body); outcome != OutcomeOK {
		return nil, &StatusError{Provider: p.Name, StatusCode: resp.StatusCode, Outcome: outcome}
	}
	if !gjson.ValidBytes(resp.Body) {
		return nil, &ParseError{Provider: p.Name, Cause: fmt.Errorf("model list is not valid JSON")}
	}
	var ids []string
	for _, id := range extract(gjson.ParseBytes(resp.Body)) {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func staticModels(p *Provider, ids []string) []ModelInfo {
	out := make([]ModelInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, ModelInfo{ID: id, Provider: p.Name})
	}
	return out
}
