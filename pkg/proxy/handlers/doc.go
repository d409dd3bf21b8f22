// Package handlers implements SmolRouter's HTTP endpoints.
//
// Completion endpoints share one handler type, DispatchHandler, which
// differs only in the request shape it tags bodies with:
//
//	POST /v1/chat/completions   providers.ShapeOpenAIChat
//	POST /v1/completions        providers.ShapeOpenAICompletion
//	POST /api/generate          providers.ShapeOllamaGenerate
//	POST /api/chat              providers.ShapeOllamaChat
//
// The handler does not parse the body. The dispatch engine extracts the
// model and stream flag, picks upstreams and returns a body already in
// the caller's shape. Streaming responses are written chunk by chunk and
// flushed as they arrive.
//
// Model listings come from ModelsHandler (/v1/models) and TagsHandler
// (/api/tags). Both aggregate the enabled providers' models and the
// configured aliases.
package handlers
