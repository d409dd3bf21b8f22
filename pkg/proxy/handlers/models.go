package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mitchins/SmolRouter/pkg/dispatch"
	"github.com/mitchins/SmolRouter/pkg/providers"
	"github.com/mitchins/SmolRouter/pkg/proxy"
)

// ModelLister lists the models the router can serve.
type ModelLister interface {
	Models(ctx context.Context) []providers.ModelInfo
	ProxiesModels() bool
	UpstreamModels(ctx context.Context) (*providers.Response, error)
}

// ModelsHandler serves /v1/models. With nothing but a default upstream
// configured, the upstream's own list is relayed.
type ModelsHandler struct {
	lister ModelLister
	logger *slog.Logger
}

// NewModelsHandler creates the OpenAI model list handler.
func NewModelsHandler(l ModelLister) *ModelsHandler {
	return &ModelsHandler{lister: l, logger: slog.Default().With("component", "handlers")}
}

// ServeHTTP implements http.Handler.
func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.lister.ProxiesModels() {
		resp, err := h.lister.UpstreamModels(ctx)
		if err != nil {
			if _, werr := proxy.WriteError(w, err); werr != nil {
				h.logger.ErrorContext(ctx, "failed to write error response", "error", werr)
			}
			return
		}
		header := http.Header{"Content-Type": {resp.Header.Get("Content-Type")}}
		if err := proxy.WriteRawResponse(w, resp.StatusCode, header, resp.Body); err != nil {
			h.logger.ErrorContext(ctx, "failed to write response", "error", err)
		}
		return
	}

	writeRendered(ctx, w, h.logger, h.lister.Models(ctx), dispatch.RenderOpenAIModels)
}

// TagsHandler serves Ollama's /api/tags from the aggregated model list.
type TagsHandler struct {
	lister ModelLister
	logger *slog.Logger
}

// NewTagsHandler creates the Ollama tags handler.
func NewTagsHandler(l ModelLister) *TagsHandler {
	return &TagsHandler{lister: l, logger: slog.Default().With("component", "handlers")}
}

// ServeHTTP implements http.Handler.
func (h *TagsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	writeRendered(ctx, w, h.logger, h.lister.Models(ctx), dispatch.RenderOllamaTags)
}

func writeRendered(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, models []providers.ModelInfo, render func([]providers.ModelInfo) ([]byte, error)) {
	body, err := render(models)
	if err != nil {
		if _, werr := proxy.WriteError(w, err); werr != nil {
			logger.ErrorContext(ctx, "failed to write error response", "error", werr)
		}
		return
	}
	if err := proxy.WriteRawResponse(w, http.StatusOK, nil, body); err != nil {
		logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}
