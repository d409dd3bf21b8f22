package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mitchins/SmolRouter/pkg/providers"
)

// AliasOwner is the owner reported for alias entries in model listings.
const AliasOwner = "smolrouter"

// Models lists the models of every enabled provider in priority order,
// followed by the configured aliases. A provider that cannot be listed is
// skipped. The first provider to report an ID owns it.
func (e *Engine) Models(ctx context.Context) []providers.ModelInfo {
	snap := e.snap.Load()
	seen := make(map[string]bool)
	var out []providers.ModelInfo

	for _, p := range snap.Registry.Enabled() {
		infos, err := e.client.ListModels(ctx, p)
		if err != nil {
			e.logger.Warn("failed to list provider models", "provider", p.Name, "error", err)
			continue
		}
		for _, info := range infos {
			if seen[info.ID] {
				continue
			}
			seen[info.ID] = true
			out = append(out, info)
		}
	}

	for _, name := range snap.Aliases.Names() {
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, providers.ModelInfo{ID: name, Provider: AliasOwner})
	}
	return out
}

// ProxiesModels reports whether model listings should be fetched from
// the default upstream instead of being aggregated.
func (e *Engine) ProxiesModels() bool {
	snap := e.snap.Load()
	return snap.Registry.Len() == 0 && len(snap.Aliases.Names()) == 0 && snap.DefaultUpstream != ""
}

// UpstreamModels fetches /v1/models from the default upstream.
func (e *Engine) UpstreamModels(ctx context.Context) (*providers.Response, error) {
	snap := e.snap.Load()
	p, ok := snap.Provider(snap.DefaultUpstream)
	if !ok {
		return nil, &NoUpstreamError{}
	}
	return e.client.Get(ctx, p, providers.OpenAIBase(p.Endpoint)+"/v1/models", nil)
}

type openAIModel struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type openAIModelList struct {
	Object string        `json:"object"`
	Data   []openAIModel `json:"data"`
}

// RenderOpenAIModels renders models as an OpenAI /v1/models list. Alias
// spellings of a model are listed after it.
func RenderOpenAIModels(models []providers.ModelInfo) ([]byte, error) {
	list := openAIModelList{Object: "list", Data: []openAIModel{}}
	for _, m := range models {
		for _, id := range append([]string{m.ID}, m.Aliases...) {
			list.Data = append(list.Data, openAIModel{ID: id, Object: "model", OwnedBy: m.Provider})
		}
	}
	return json.Marshal(list)
}

type ollamaTag struct {
	Name       string `json:"name"`
	Model      string `json:"model"`
	ModifiedAt string `json:"modified_at"`
	Size       int64  `json:"size"`
	Digest     string `json:"digest"`
}

type ollamaTags struct {
	Models []ollamaTag `json:"models"`
}

// RenderOllamaTags renders models as an Ollama /api/tags list.
func RenderOllamaTags(models []providers.ModelInfo) ([]byte, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	tags := ollamaTags{Models: []ollamaTag{}}
	for _, m := range models {
		for _, id := range append([]string{m.ID}, m.Aliases...) {
			tags.Models = append(tags.Models, ollamaTag{Name: id, Model: id, ModifiedAt: now})
		}
	}
	return json.Marshal(tags)
}
